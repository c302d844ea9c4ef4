package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/calyptra/guildbot/internal/service/leveling"
	"github.com/calyptra/guildbot/internal/service/linking"
	"github.com/calyptra/guildbot/internal/service/tickets"
)

// Component and modal custom ids for the ticket panel flow.
const (
	panelButtonID      = "open_ticket_modal"
	ticketModalID      = "ticket_modal"
	modalTypeInputID   = "ticket_type"
	modalDescriptionID = "ticket_description"
)

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.dispatchCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.dispatchComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.dispatchModal(s, i)
	}
}

func (b *Bot) dispatchCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	switch name {
	case "level":
		b.handleLevel(s, i)
	case "leaderboard":
		b.handleLeaderboard(s, i)
	case "serverstats":
		b.handleServerStats(s, i)
	case "deletedlogs":
		b.handleDeletedLogs(s, i)
	case "leavelogs":
		b.handleLeaveLogs(s, i)
	case "resetlevel":
		b.handleResetLevel(s, i)
	case "link":
		b.handleLink(s, i)
	case "checklink":
		b.handleCheckLink(s, i)
	case "ticket":
		b.handleTicketOpen(s, i)
	case "ticketstats":
		b.handleTicketStats(s, i)
	case "ticketpanel":
		b.handleTicketPanel(s, i)
	case "testgist":
		b.handleTestGist(s, i)
	default:
		b.respondEphemeral(s, i, "Unknown command.")
	}
}

func (b *Bot) dispatchComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	switch {
	case customID == panelButtonID:
		b.openTicketModal(s, i)
	case strings.HasPrefix(customID, closeButtonPrefix):
		b.handleTicketClose(s, i, strings.TrimPrefix(customID, closeButtonPrefix))
	}
}

func (b *Bot) dispatchModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.ModalSubmitData().CustomID == ticketModalID {
		b.handleTicketModalSubmit(s, i)
	}
}

// commandOptions indexes the interaction's options by name.
func commandOptions(i *discordgo.InteractionCreate) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := i.ApplicationCommandData().Options
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, option := range options {
		byName[option.Name] = option
	}
	return byName
}

func limitOptionValue(i *discordgo.InteractionCreate, fallback, max int) int {
	if option, ok := commandOptions(i)["limit"]; ok {
		limit := int(option.IntValue())
		if limit >= 1 && limit <= max {
			return limit
		}
	}
	return fallback
}

func (b *Bot) handleLevel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	target := interactionUser(i)
	if option, ok := commandOptions(i)["user"]; ok {
		target = option.UserValue(s)
	}

	record, err := b.leveling.GetRecord(context.Background(), target.ID, i.GuildID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load level record")
		b.respondEphemeral(s, i, "Something went wrong looking that up.")
		return
	}
	if record == nil {
		b.respondEphemeral(s, i, fmt.Sprintf("No activity recorded for <@%s> yet.", target.ID))
		return
	}

	progress := b.leveling.RecordProgress(record)
	b.respondEmbed(s, i, levelEmbed(target, record, progress))
}

func (b *Bot) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	limit := limitOptionValue(i, 10, maxLeaderboardLimit)

	records, err := b.leveling.Leaderboard(context.Background(), i.GuildID, limit)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load leaderboard")
		b.respondEphemeral(s, i, "Something went wrong loading the leaderboard.")
		return
	}
	if len(records) == 0 {
		b.respondEphemeral(s, i, "No activity recorded yet.")
		return
	}
	b.respondEmbed(s, i, leaderboardEmbed(records))
}

func (b *Bot) handleServerStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	members, avgLevel, err := b.leveling.GuildStats(ctx, i.GuildID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load guild stats")
		b.respondEphemeral(s, i, "Something went wrong loading server stats.")
		return
	}
	deleted, left, err := b.modlog.Counts(ctx, i.GuildID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load audit counts")
		b.respondEphemeral(s, i, "Something went wrong loading server stats.")
		return
	}
	linked, err := b.linking.Count(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to count linked accounts")
		b.respondEphemeral(s, i, "Something went wrong loading server stats.")
		return
	}

	b.respondEmbed(s, i, serverStatsEmbed(members, avgLevel, deleted, left, linked))
}

func (b *Bot) handleDeletedLogs(s *discordgo.Session, i *discordgo.InteractionCreate) {
	limit := limitOptionValue(i, 5, maxAuditLogLimit)

	records, err := b.modlog.RecentDeletions(context.Background(), i.GuildID, limit)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load deletion log")
		b.respondEphemeral(s, i, "Something went wrong loading the deletion log.")
		return
	}
	if len(records) == 0 {
		b.respondEphemeral(s, i, "No deleted messages on record.")
		return
	}
	b.respondEphemeralEmbed(s, i, deletedLogsEmbed(records))
}

func (b *Bot) handleLeaveLogs(s *discordgo.Session, i *discordgo.InteractionCreate) {
	limit := limitOptionValue(i, 5, maxAuditLogLimit)

	records, err := b.modlog.RecentLeaves(context.Background(), i.GuildID, limit)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load leave log")
		b.respondEphemeral(s, i, "Something went wrong loading the leave log.")
		return
	}
	if len(records) == 0 {
		b.respondEphemeral(s, i, "No member departures on record.")
		return
	}
	b.respondEphemeralEmbed(s, i, leaveLogsEmbed(records))
}

func (b *Bot) handleResetLevel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		b.respondEphemeral(s, i, "You need administrator permission for that.")
		return
	}
	option, ok := commandOptions(i)["user"]
	if !ok {
		b.respondEphemeral(s, i, "Pick a member to reset.")
		return
	}
	target := option.UserValue(s)

	err := b.leveling.Reset(context.Background(), target.ID, i.GuildID)
	if errors.Is(err, leveling.ErrNoRecord) {
		b.respondEphemeral(s, i, fmt.Sprintf("<@%s> has no recorded activity.", target.ID))
		return
	}
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to reset level record")
		b.respondEphemeral(s, i, "Something went wrong resetting that member.")
		return
	}
	b.respondEphemeral(s, i, fmt.Sprintf("Level progress for <@%s> has been reset.", target.ID))
}

func (b *Bot) handleLink(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	code := ""
	if option, ok := commandOptions(i)["code"]; ok {
		code = option.StringValue()
	}

	link, err := b.linking.Link(context.Background(), user.ID, i.GuildID, code)
	switch {
	case errors.Is(err, linking.ErrInvalidToken):
		b.respondEphemeral(s, i, "That code is invalid or was already used.")
	case errors.Is(err, linking.ErrAlreadyLinked):
		b.respondEphemeral(s, i, "Your account is already linked.")
	case err != nil:
		b.log.Error().Err(err).Msg("Failed to link account")
		b.respondEphemeral(s, i, "Something went wrong linking your account, try again later.")
	default:
		b.respondEphemeral(s, i, fmt.Sprintf("✅ Linked to account `%s`. Your reward is on its way!", link.MaskedExternalID()))
	}
}

func (b *Bot) handleCheckLink(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)

	link, err := b.linking.Status(context.Background(), user.ID)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to check link status")
		b.respondEphemeral(s, i, "Something went wrong checking your link status.")
		return
	}
	if link == nil {
		b.respondEphemeral(s, i, "Your account is not linked. Use /link with your one-time code.")
		return
	}
	b.respondEphemeral(s, i, fmt.Sprintf("🔗 Linked to account `%s` since <t:%d:D>.", link.MaskedExternalID(), link.LinkedAt.Unix()))
}

func (b *Bot) handleTicketOpen(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := commandOptions(i)
	ticketType := ""
	description := ""
	if option, ok := options["type"]; ok {
		ticketType = option.StringValue()
	}
	if option, ok := options["description"]; ok {
		description = option.StringValue()
	}
	b.openTicket(s, i, ticketType, description)
}

// openTicket is shared by the slash command and the panel modal.
func (b *Bot) openTicket(s *discordgo.Session, i *discordgo.InteractionCreate, ticketType, description string) {
	user := interactionUser(i)

	// Channel plus blob-store writes are too slow for the 3s interaction
	// deadline, so acknowledge first and edit the reply when done.
	if !b.deferEphemeral(s, i) {
		return
	}

	ticket, err := b.tickets.Open(context.Background(), user.ID, user.Username, i.GuildID, ticketType, description)
	switch {
	case errors.Is(err, tickets.ErrInvalidType):
		b.editReply(s, i, "Pick one of: bug, feature, general, urgent.")
	case errors.Is(err, tickets.ErrTooManyOpen):
		b.editReply(s, i, "You already have the maximum number of open tickets. Close one first.")
	case errors.Is(err, tickets.ErrStoreUnavailable):
		b.editReply(s, i, "The ticket system is not available right now.")
	case err != nil:
		b.log.Error().Err(err).Msg("Failed to open ticket")
		b.editReply(s, i, "Something went wrong opening your ticket, try again later.")
	default:
		b.editReply(s, i, fmt.Sprintf("🎫 Ticket **#%s** opened: <#%s>", ticket.TicketID, ticket.ChannelID))
	}
}

func (b *Bot) handleTicketClose(s *discordgo.Session, i *discordgo.InteractionCreate, channelID string) {
	user := interactionUser(i)

	if !b.deferEphemeral(s, i) {
		return
	}

	ticket, err := b.tickets.CloseByChannel(context.Background(), channelID, user.ID, isAdmin(i))
	switch {
	case errors.Is(err, tickets.ErrTicketNotFound):
		b.editReply(s, i, "No ticket is bound to this channel.")
	case errors.Is(err, tickets.ErrTicketClosed):
		b.editReply(s, i, "This ticket is already closed.")
	case errors.Is(err, tickets.ErrNotAuthorized):
		b.editReply(s, i, "Only the ticket creator or an admin can close this ticket.")
	case err != nil:
		b.log.Error().Err(err).Msg("Failed to close ticket")
		b.editReply(s, i, "Something went wrong closing the ticket, try again later.")
	default:
		b.editReply(s, i, fmt.Sprintf("🔒 Ticket **#%s** closed. This channel will be removed shortly.", ticket.TicketID))
	}
}

func (b *Bot) handleTicketStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	stats, err := b.tickets.Stats(context.Background(), i.GuildID)
	if errors.Is(err, tickets.ErrStoreUnavailable) {
		b.respondEphemeral(s, i, "The ticket system is not available right now.")
		return
	}
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load ticket stats")
		b.respondEphemeral(s, i, "Something went wrong loading ticket stats.")
		return
	}
	b.respondEmbed(s, i, ticketStatsEmbed(stats))
}

func (b *Bot) handleTicketPanel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(i) {
		b.respondEphemeral(s, i, "You need administrator permission for that.")
		return
	}

	_, err := s.ChannelMessageSendComplex(i.ChannelID, &discordgo.MessageSend{
		Embed: &discordgo.MessageEmbed{
			Title:       "🎫 Need help?",
			Color:       colorBlue,
			Description: "Press the button below to open a support ticket. A private channel will be created for you.",
		},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Open a ticket",
						Style:    discordgo.PrimaryButton,
						CustomID: panelButtonID,
						Emoji:    &discordgo.ComponentEmoji{Name: "🎫"},
					},
				},
			},
		},
	})
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to post ticket panel")
		b.respondEphemeral(s, i, "Something went wrong posting the panel.")
		return
	}
	b.respondEphemeral(s, i, "Ticket panel posted.")
}

func (b *Bot) handleTestGist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	count, err := b.tickets.TestConnection(context.Background())
	if errors.Is(err, tickets.ErrStoreUnavailable) {
		b.respondEphemeral(s, i, "The ticket store is not configured.")
		return
	}
	if err != nil {
		b.respondEphemeral(s, i, fmt.Sprintf("❌ Ticket store check failed: %v", err))
		return
	}
	b.respondEphemeral(s, i, fmt.Sprintf("✅ Ticket store reachable, %d tickets on record.", count))
}

func (b *Bot) openTicketModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: ticketModalID,
			Title:    "Open a support ticket",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    modalTypeInputID,
							Label:       "Type (bug, feature, general, urgent)",
							Style:       discordgo.TextInputShort,
							Placeholder: "general",
							Required:    true,
							MaxLength:   10,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:  modalDescriptionID,
							Label:     "What do you need help with?",
							Style:     discordgo.TextInputParagraph,
							Required:  true,
							MaxLength: 1000,
						},
					},
				},
			},
		},
	})
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to open ticket modal")
	}
}

func (b *Bot) handleTicketModalSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	ticketType := ""
	description := ""
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, component := range actionsRow.Components {
			input, ok := component.(*discordgo.TextInput)
			if !ok {
				continue
			}
			switch input.CustomID {
			case modalTypeInputID:
				ticketType = strings.ToLower(strings.TrimSpace(input.Value))
			case modalDescriptionID:
				description = input.Value
			}
		}
	}
	b.openTicket(s, i, ticketType, description)
}

func (b *Bot) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to respond to interaction")
	}
}

func (b *Bot) respondEphemeralEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to respond to interaction")
	}
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to respond to interaction")
	}
}

func (b *Bot) deferEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to defer interaction")
		return false
	}
	return true
}

func (b *Bot) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to edit interaction reply")
	}
}
