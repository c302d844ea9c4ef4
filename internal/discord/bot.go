// Package discord is the gateway surface of the bot: slash commands,
// component interactions and the event handlers that feed the services.
package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/service/leveling"
	"github.com/calyptra/guildbot/internal/service/linking"
	"github.com/calyptra/guildbot/internal/service/modlog"
	"github.com/calyptra/guildbot/internal/service/tickets"
	"github.com/calyptra/guildbot/pkg/logger"
)

// NewSession creates the gateway session with the intents and state caching
// the handlers rely on. Message content and the state message cache are what
// let deleted messages be mirrored with their text.
func NewSession(cfg *config.DiscordConfig) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	session.StateEnabled = true
	session.State.MaxMessageCount = 2048

	return session, nil
}

// Bot wires the gateway session to the services.
type Bot struct {
	cfg      *config.Config
	session  *discordgo.Session
	leveling *leveling.Service
	modlog   *modlog.Service
	linking  *linking.Service
	tickets  *tickets.Service
	log      *logger.Logger
}

// NewBot creates the bot on an existing session.
func NewBot(
	cfg *config.Config,
	session *discordgo.Session,
	levelingService *leveling.Service,
	modlogService *modlog.Service,
	linkingService *linking.Service,
	ticketService *tickets.Service,
	log *logger.Logger,
) *Bot {
	return &Bot{
		cfg:      cfg,
		session:  session,
		leveling: levelingService,
		modlog:   modlogService,
		linking:  linkingService,
		tickets:  ticketService,
		log:      log,
	}
}

// Start opens the gateway connection and registers commands and handlers.
func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onMemberAdd)
	b.session.AddHandler(b.onMemberRemove)
	b.session.AddHandler(b.onInteraction)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		_ = b.session.Close()
		return err
	}
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	b.log.Info().Msg("Discord session closed")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().
		Str("username", r.User.Username).
		Int("guilds", len(r.Guilds)).
		Msg("Discord gateway ready")
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.cfg.Discord.GuildID, commandDefinitions())
	if err != nil {
		return fmt.Errorf("failed to register application commands: %w", err)
	}
	b.log.Info().Int("count", len(registered)).Msg("Application commands registered")
	return nil
}

// isAdmin reports whether the interaction member has administrator
// permission.
func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// interactionUser returns the acting user for guild and DM interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}
