package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/pkg/logger"
)

// channelFinder is the slice of the session API the router needs.
type channelFinder interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
}

// Router resolves the monitor channel. The configured channel id wins; when
// it is unset or no longer resolves, the router falls back to looking the
// channel up by name and remembers the answer.
type Router struct {
	cfg    *config.DiscordConfig
	finder channelFinder
	log    *logger.Logger

	mu       sync.Mutex
	resolved string
}

// NewRouter creates a monitor-channel router.
func NewRouter(cfg *config.DiscordConfig, finder channelFinder, log *logger.Logger) *Router {
	return &Router{cfg: cfg, finder: finder, log: log}
}

// MonitorChannel returns the id of the monitor channel.
func (r *Router) MonitorChannel() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved != "" {
		return r.resolved, nil
	}

	if r.cfg.MonitorChannelID != "" {
		if _, err := r.finder.Channel(r.cfg.MonitorChannelID); err == nil {
			r.resolved = r.cfg.MonitorChannelID
			return r.resolved, nil
		}
		r.log.Warn().
			Str("channel_id", r.cfg.MonitorChannelID).
			Msg("Configured monitor channel does not resolve, falling back to name lookup")
	}

	if r.cfg.MonitorChannelName == "" {
		return "", fmt.Errorf("no monitor channel configured")
	}

	channels, err := r.finder.GuildChannels(r.cfg.GuildID)
	if err != nil {
		return "", fmt.Errorf("failed to list guild channels: %w", err)
	}
	for _, channel := range channels {
		if channel.Type == discordgo.ChannelTypeGuildText && channel.Name == r.cfg.MonitorChannelName {
			r.resolved = channel.ID
			return r.resolved, nil
		}
	}
	return "", fmt.Errorf("monitor channel %q not found", r.cfg.MonitorChannelName)
}

// Invalidate clears the cached resolution, forcing the next lookup to go back
// to the API. Called when a send against the cached channel fails.
func (r *Router) Invalidate() {
	r.mu.Lock()
	r.resolved = ""
	r.mu.Unlock()
}
