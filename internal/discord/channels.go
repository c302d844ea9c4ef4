package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/pkg/logger"
)

// closeButtonPrefix is the custom id prefix of the per-ticket close button;
// the channel id follows the prefix.
const closeButtonPrefix = "close_ticket_"

// guildChannelAPI is the slice of the session API the channel manager needs.
type guildChannelAPI interface {
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// TicketChannels creates and tears down the private per-ticket channels.
type TicketChannels struct {
	cfg    *config.TicketsConfig
	api    guildChannelAPI
	selfID func() string
	log    *logger.Logger
}

// NewTicketChannels creates a ticket channel manager. selfID reports the
// bot's own user id once the gateway session is ready.
func NewTicketChannels(cfg *config.TicketsConfig, api guildChannelAPI, selfID func() string, log *logger.Logger) *TicketChannels {
	return &TicketChannels{cfg: cfg, api: api, selfID: selfID, log: log}
}

// CreateTicketChannel creates the private channel, visible to the creator and
// the bot only, and posts the intro message with the close button.
func (t *TicketChannels) CreateTicketChannel(ctx context.Context, ticket *models.Ticket) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			// @everyone shares its id with the guild.
			ID:   ticket.GuildID,
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
		{
			ID:    ticket.UserID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory,
		},
	}
	if botID := t.selfID(); botID != "" {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    botID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionManageChannels,
		})
	}

	channel, err := t.api.GuildChannelCreateComplex(ticket.GuildID, discordgo.GuildChannelCreateData{
		Name:                 fmt.Sprintf("%s-%s-%s", t.cfg.ChannelPrefix, ticket.Type, ticket.TicketID),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("Ticket %s opened by %s", ticket.TicketID, ticket.Username),
		ParentID:             t.cfg.CategoryID,
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create ticket channel: %w", err)
	}

	if err := t.postIntro(channel.ID, ticket); err != nil {
		t.log.Warn().Err(err).Str("channel_id", channel.ID).Msg("Failed to post ticket intro")
	}
	return channel.ID, nil
}

func (t *TicketChannels) postIntro(channelID string, ticket *models.Ticket) error {
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎫 Ticket #%s", ticket.TicketID),
		Color:       colorBlue,
		Description: truncate(ticket.Description, 2048),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Opened by", Value: fmt.Sprintf("<@%s>", ticket.UserID), Inline: true},
			{Name: "Type", Value: ticket.Type, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "A team member will be with you shortly.",
		},
	}
	_, err := t.api.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embed: embed,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Close Ticket",
						Style:    discordgo.DangerButton,
						CustomID: closeButtonPrefix + channelID,
						Emoji:    &discordgo.ComponentEmoji{Name: "🔒"},
					},
				},
			},
		},
	})
	return err
}

// ScheduleChannelDelete deletes the channel after the given delay.
func (t *TicketChannels) ScheduleChannelDelete(channelID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if _, err := t.api.ChannelDelete(channelID); err != nil {
			t.log.Warn().Err(err).Str("channel_id", channelID).Msg("Failed to delete ticket channel")
		}
	})
}
