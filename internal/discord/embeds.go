package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/internal/service/leveling"
	"github.com/calyptra/guildbot/internal/service/tickets"
)

func levelUpEmbed(userID string, level int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎉 Level Up!",
		Color:       colorGreen,
		Description: fmt.Sprintf("<@%s> reached **level %d**!", userID, level),
	}
}

func levelEmbed(user *discordgo.User, record *models.LevelRecord, progress leveling.Progress) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Level %d", record.Level),
		Color: colorBlue,
		Author: &discordgo.MessageEmbedAuthor{
			Name:    user.Username,
			IconURL: user.AvatarURL("64"),
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "XP", Value: fmt.Sprintf("%d", record.XP), Inline: true},
			{Name: "Messages", Value: fmt.Sprintf("%d", record.MessageCount), Inline: true},
			{Name: "Next level", Value: fmt.Sprintf("%d / %d (%d%%)", progress.Current, progress.Needed, progress.Percent), Inline: true},
		},
		Footer: joinedFooter(record.JoinedAt),
	}
}

func joinedFooter(joinedAt time.Time) *discordgo.MessageEmbedFooter {
	if joinedAt.IsZero() {
		return nil
	}
	return &discordgo.MessageEmbedFooter{
		Text: "Joined " + joinedAt.Format("2006-01-02"),
	}
}

func leaderboardEmbed(records []models.LevelRecord) *discordgo.MessageEmbed {
	medals := []string{"🥇", "🥈", "🥉"}
	var sb strings.Builder
	for idx, record := range records {
		rank := fmt.Sprintf("**%d.**", idx+1)
		if idx < len(medals) {
			rank = medals[idx]
		}
		fmt.Fprintf(&sb, "%s <@%s> — Level %d (%d XP)\n", rank, record.UserID, record.Level, record.XP)
	}
	return &discordgo.MessageEmbed{
		Title:       "🏆 Leaderboard",
		Color:       colorPurple,
		Description: sb.String(),
	}
}

func serverStatsEmbed(members int64, avgLevel float64, deleted, left, linked int64) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "📊 Server Stats",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Tracked members", Value: fmt.Sprintf("%d", members), Inline: true},
			{Name: "Average level", Value: fmt.Sprintf("%.1f", avgLevel), Inline: true},
			{Name: "Linked accounts", Value: fmt.Sprintf("%d", linked), Inline: true},
			{Name: "Deleted messages", Value: fmt.Sprintf("%d", deleted), Inline: true},
			{Name: "Members left", Value: fmt.Sprintf("%d", left), Inline: true},
		},
	}
}

func deletedLogsEmbed(records []models.DeletedMessage) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, record := range records {
		content := record.Content
		if content == "" {
			content = "*no cached content*"
		}
		fmt.Fprintf(&sb, "<t:%d:R> <@%s> in <#%s>: %s\n", record.DeletedAt.Unix(), record.UserID, record.ChannelID, truncate(content, 200))
	}
	return &discordgo.MessageEmbed{
		Title:       "🗑️ Recently Deleted Messages",
		Color:       colorRed,
		Description: truncate(sb.String(), 4096),
	}
}

func leaveLogsEmbed(records []models.MemberLeave) *discordgo.MessageEmbed {
	var sb strings.Builder
	for _, record := range records {
		tenure := "tenure unknown"
		if days := record.TenureDays(); days != nil {
			tenure = fmt.Sprintf("%d days on server", *days)
		}
		fmt.Fprintf(&sb, "<t:%d:R> **%s** (%s)\n", record.LeftAt.Unix(), record.Username, tenure)
	}
	return &discordgo.MessageEmbed{
		Title:       "👋 Recent Departures",
		Color:       colorOrange,
		Description: truncate(sb.String(), 4096),
	}
}

func ticketStatsEmbed(stats *tickets.Stats) *discordgo.MessageEmbed {
	byType := "-"
	if len(stats.ByType) > 0 {
		var parts []string
		for _, ticketType := range []string{models.TicketTypeBug, models.TicketTypeFeature, models.TicketTypeGeneral, models.TicketTypeUrgent} {
			if n, ok := stats.ByType[ticketType]; ok {
				parts = append(parts, fmt.Sprintf("%s: %d", ticketType, n))
			}
		}
		byType = strings.Join(parts, ", ")
	}
	return &discordgo.MessageEmbed{
		Title: "🎫 Ticket Stats",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total", Value: fmt.Sprintf("%d", stats.Total), Inline: true},
			{Name: "Open", Value: fmt.Sprintf("%d", stats.Open), Inline: true},
			{Name: "Closed", Value: fmt.Sprintf("%d", stats.Closed), Inline: true},
			{Name: "By type", Value: byType},
		},
	}
}
