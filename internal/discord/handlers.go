package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/calyptra/guildbot/internal/metrics"
	"github.com/calyptra/guildbot/internal/service/modlog"
)

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	award, err := b.leveling.HandleMessage(context.Background(), m.Author.ID, m.Author.Username, m.GuildID)
	if err != nil {
		b.log.Error().Err(err).Str("user_id", m.Author.ID).Msg("Failed to process message for leveling")
		return
	}
	if award == nil || !award.LeveledUp {
		return
	}

	embed := levelUpEmbed(m.Author.ID, award.Record.Level)
	if _, err := s.ChannelMessageSendEmbed(m.ChannelID, embed); err != nil {
		b.log.Warn().Err(err).Msg("Failed to post level-up notice")
	}

	if award.RoleName != "" {
		b.grantRole(s, m.GuildID, m.Author.ID, award.RoleName)
	}
}

// grantRole resolves the role by name and assigns it. Failures are logged,
// not surfaced; the XP award already happened.
func (b *Bot) grantRole(s *discordgo.Session, guildID, userID, roleName string) {
	roleID := ""
	if guild, err := s.State.Guild(guildID); err == nil {
		for _, role := range guild.Roles {
			if role.Name == roleName {
				roleID = role.ID
				break
			}
		}
	}
	if roleID == "" {
		b.log.Warn().Str("role", roleName).Msg("Level role not found in guild")
		metrics.RecordRoleGrant(guildID, "missing_role")
		return
	}

	if err := s.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
		b.log.Warn().Err(err).Str("role", roleName).Str("user_id", userID).Msg("Failed to grant level role")
		metrics.RecordRoleGrant(guildID, "failed")
		return
	}
	metrics.RecordRoleGrant(guildID, "granted")
}

func (b *Bot) onMessageDelete(s *discordgo.Session, m *discordgo.MessageDelete) {
	if m.GuildID == "" {
		return
	}

	event := &modlog.DeletedMessageEvent{
		MessageID: m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
	}

	// The state cache only holds recent messages; older deletions are
	// mirrored without content.
	if cached := m.BeforeDelete; cached != nil {
		if cached.Author != nil {
			if cached.Author.Bot {
				return
			}
			event.UserID = cached.Author.ID
			event.Username = cached.Author.Username
		}
		event.Content = cached.Content
		for _, attachment := range cached.Attachments {
			event.Attachments = append(event.Attachments, attachment.URL)
		}
	}

	if channel, err := s.State.Channel(m.ChannelID); err == nil {
		event.ChannelName = channel.Name
	}

	if err := b.modlog.HandleMessageDelete(context.Background(), event); err != nil {
		b.log.Error().Err(err).Str("message_id", m.ID).Msg("Failed to mirror deleted message")
	}
}

func (b *Bot) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}

	if err := b.leveling.SeedMember(context.Background(), m.User.ID, m.User.Username, m.GuildID); err != nil {
		b.log.Error().Err(err).Str("user_id", m.User.ID).Msg("Failed to seed member ledger")
	}

	memberCount := 0
	if guild, err := s.State.Guild(m.GuildID); err == nil {
		memberCount = guild.MemberCount
	}
	b.modlog.HandleMemberJoin(context.Background(), m.User.ID, m.User.Username, m.GuildID, memberCount)
}

func (b *Bot) onMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.User == nil || m.User.Bot {
		return
	}

	var joinedAt *time.Time
	if !m.JoinedAt.IsZero() {
		joined := m.JoinedAt
		joinedAt = &joined
	}

	event := &modlog.MemberLeaveEvent{
		UserID:   m.User.ID,
		Username: m.User.Username,
		JoinedAt: joinedAt,
		Roles:    b.roleNames(s, m.GuildID, m.Roles),
		GuildID:  m.GuildID,
	}
	if err := b.modlog.HandleMemberLeave(context.Background(), event); err != nil {
		b.log.Error().Err(err).Str("user_id", m.User.ID).Msg("Failed to mirror member leave")
	}
}

func (b *Bot) roleNames(s *discordgo.Session, guildID string, roleIDs []string) []string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return roleIDs
	}
	byID := make(map[string]string, len(guild.Roles))
	for _, role := range guild.Roles {
		byID[role.ID] = role.Name
	}
	names := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		} else {
			names = append(names, id)
		}
	}
	return names
}
