// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Discord   DiscordConfig   `mapstructure:"discord"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Leveling  LevelingConfig  `mapstructure:"leveling"`
	Linking   LinkingConfig   `mapstructure:"linking"`
	Tickets   TicketsConfig   `mapstructure:"tickets"`
	Gist      GistConfig      `mapstructure:"gist"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DiscordConfig contains Discord gateway and channel routing settings.
type DiscordConfig struct {
	Token            string `mapstructure:"token"`
	GuildID          string `mapstructure:"guild_id"`
	MonitorChannelID string `mapstructure:"monitor_channel_id"`
	// MonitorChannelName is the fallback when the fixed channel id is unset
	// or no longer resolves.
	MonitorChannelName string `mapstructure:"monitor_channel_name"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	// Driver selects the relational backend: "postgres" or "sqlite".
	Driver string `mapstructure:"driver"`
	// SQLitePath is the database file when driver is "sqlite".
	SQLitePath string `mapstructure:"sqlite_path"`
}

// PostgresConfig contains PostgreSQL connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis connection and pool settings. Redis backs both
// the link-token document store and the leaderboard cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LevelingConfig contains experience award settings.
type LevelingConfig struct {
	XPPerMessage    int `mapstructure:"xp_per_message"`
	CooldownMS      int `mapstructure:"cooldown_ms"`
	LevelMultiplier int `mapstructure:"level_multiplier"`
	// LevelRoles maps a level (as a string key, YAML map keys arrive as
	// strings) to the role name granted on reaching it.
	LevelRoles map[string]string `mapstructure:"level_roles"`
	CacheTTL   int               `mapstructure:"cache_ttl"` // leaderboard cache TTL in seconds
}

// Cooldown returns the award cooldown as a duration.
func (c *LevelingConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMS) * time.Millisecond
}

// RoleForLevel returns the role name granted at the given level, if any.
func (c *LevelingConfig) RoleForLevel(level int) (string, bool) {
	role, ok := c.LevelRoles[strconv.Itoa(level)]
	return role, ok
}

// LinkingConfig contains account-link workflow settings.
type LinkingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// RewardListKey is the document-store list that successful links append
	// the external account id to.
	RewardListKey string `mapstructure:"reward_list_key"`
}

// TicketsConfig contains support-ticket workflow settings.
type TicketsConfig struct {
	CategoryID        string `mapstructure:"category_id"`
	ChannelPrefix     string `mapstructure:"channel_prefix"`
	MaxOpenPerUser    int    `mapstructure:"max_open_per_user"`
	CloseDelaySeconds int    `mapstructure:"close_delay_seconds"`
}

// CloseDelay returns the delay between closing a ticket and deleting its channel.
func (c *TicketsConfig) CloseDelay() time.Duration {
	return time.Duration(c.CloseDelaySeconds) * time.Second
}

// GistConfig contains the remote ticket blob store settings.
type GistConfig struct {
	Token    string `mapstructure:"token"`
	GistID   string `mapstructure:"gist_id"`
	Filename string `mapstructure:"filename"`
	BaseURL  string `mapstructure:"base_url"`
	// TimeoutSeconds bounds every gist HTTP call.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request timeout for gist calls.
func (c *GistConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DashboardConfig contains the operator REST API settings.
type DashboardConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig contains daily digest scheduler settings.
type SchedulerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Time         string `mapstructure:"time"` // "HH:MM"
	Timezone     string `mapstructure:"timezone"`
	SkipWeekends bool   `mapstructure:"skip_weekends"`
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/guildbot/")
	}

	setDefaults(v)

	// Bind specific environment variables (explicit bindings for 12-factor app compliance)
	// Discord configuration
	_ = v.BindEnv("discord.token", "DISCORD_TOKEN", "DISCORD_BOT_TOKEN")
	_ = v.BindEnv("discord.guild_id", "DISCORD_GUILD_ID")
	_ = v.BindEnv("discord.monitor_channel_id", "DISCORD_MONITOR_CHANNEL_ID")
	_ = v.BindEnv("discord.monitor_channel_name", "DISCORD_MONITOR_CHANNEL_NAME")

	// Database configuration
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.sqlite_path", "DATABASE_SQLITE_PATH")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Gist configuration
	_ = v.BindEnv("gist.token", "GITHUB_TOKEN")
	_ = v.BindEnv("gist.gist_id", "GIST_ID")
	_ = v.BindEnv("gist.filename", "GIST_FILENAME")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.time", "SCHEDULER_TIME")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.skip_weekends", "SCHEDULER_SKIP_WEEKENDS")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults applies defaults matching the behavior the bot shipped with.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sqlite_path", "guildbot.db")
	v.SetDefault("leveling.xp_per_message", 15)
	v.SetDefault("leveling.cooldown_ms", 60000)
	v.SetDefault("leveling.level_multiplier", 100)
	v.SetDefault("leveling.cache_ttl", 30)
	v.SetDefault("linking.reward_list_key", "rewards:recipients")
	v.SetDefault("tickets.channel_prefix", "ticket")
	v.SetDefault("tickets.max_open_per_user", 3)
	v.SetDefault("tickets.close_delay_seconds", 5)
	v.SetDefault("gist.filename", "guildbot-tickets.json")
	v.SetDefault("gist.base_url", "https://api.github.com")
	v.SetDefault("gist.timeout_seconds", 10)
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Leveling.XPPerMessage <= 0 {
		return fmt.Errorf("leveling.xp_per_message must be positive")
	}
	if c.Leveling.LevelMultiplier <= 0 {
		return fmt.Errorf("leveling.level_multiplier must be positive")
	}
	if c.Tickets.MaxOpenPerUser <= 0 {
		return fmt.Errorf("tickets.max_open_per_user must be positive")
	}
	return nil
}
