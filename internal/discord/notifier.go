package discord

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/internal/service/scheduler"
	"github.com/calyptra/guildbot/pkg/logger"
)

// Embed colors.
const (
	colorRed    = 0xe74c3c
	colorOrange = 0xe67e22
	colorGreen  = 0x2ecc71
	colorBlue   = 0x3498db
	colorPurple = 0x9b59b6
)

// messageSender is the slice of the session API the notifier needs.
type messageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts monitor-channel notices. It backs the moderation mirror,
// the link workflow and the daily digest.
type Notifier struct {
	sender messageSender
	router *Router
	log    *logger.Logger
}

// NewNotifier creates a monitor-channel notifier.
func NewNotifier(sender messageSender, router *Router, log *logger.Logger) *Notifier {
	return &Notifier{sender: sender, router: router, log: log}
}

func (n *Notifier) send(embed *discordgo.MessageEmbed) error {
	channelID, err := n.router.MonitorChannel()
	if err != nil {
		return err
	}
	if _, err := n.sender.ChannelMessageSendEmbed(channelID, embed); err != nil {
		n.router.Invalidate()
		return fmt.Errorf("failed to send monitor notice: %w", err)
	}
	return nil
}

// NotifyMessageDeleted posts a deleted-message notice.
func (n *Notifier) NotifyMessageDeleted(record *models.DeletedMessage) error {
	embed := &discordgo.MessageEmbed{
		Title: "🗑️ Message Deleted",
		Color: colorRed,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Author", Value: userLine(record.UserID, record.Username), Inline: true},
			{Name: "Channel", Value: channelLine(record.ChannelID, record.ChannelName), Inline: true},
			{Name: "Content", Value: truncate(record.Content, 1024)},
		},
		Timestamp: record.DeletedAt.Format(time.RFC3339),
	}
	if record.Attachments != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Attachments",
			Value: truncate(record.Attachments, 1024),
		})
	}
	return n.send(embed)
}

// NotifyMemberLeft posts a member-departure notice with tenure.
func (n *Notifier) NotifyMemberLeft(record *models.MemberLeave) error {
	tenure := "unknown"
	if days := record.TenureDays(); days != nil {
		tenure = fmt.Sprintf("%d days", *days)
	}
	roles := record.Roles
	if roles == "" {
		roles = "none"
	}
	embed := &discordgo.MessageEmbed{
		Title: "👋 Member Left",
		Color: colorOrange,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Member", Value: userLine(record.UserID, record.Username), Inline: true},
			{Name: "Time on server", Value: tenure, Inline: true},
			{Name: "Roles", Value: truncate(roles, 1024)},
		},
		Timestamp: record.LeftAt.Format(time.RFC3339),
	}
	return n.send(embed)
}

// NotifyMemberJoined posts a welcome notice with the member count.
func (n *Notifier) NotifyMemberJoined(userID, username, guildID string, memberCount int) error {
	embed := &discordgo.MessageEmbed{
		Title:       "📥 Member Joined",
		Color:       colorGreen,
		Description: fmt.Sprintf("Welcome <@%s>! We are now **%d** members.", userID, memberCount),
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	return n.send(embed)
}

// NotifyAccountLinked posts a link notice with the external id masked.
func (n *Notifier) NotifyAccountLinked(link *models.AccountLink) error {
	embed := &discordgo.MessageEmbed{
		Title: "🔗 Account Linked",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Member", Value: fmt.Sprintf("<@%s>", link.DiscordID), Inline: true},
			{Name: "Account", Value: link.MaskedExternalID(), Inline: true},
		},
		Timestamp: link.LinkedAt.Format(time.RFC3339),
	}
	return n.send(embed)
}

// NotifyDailyDigest posts the daily activity summary.
func (n *Notifier) NotifyDailyDigest(digest *scheduler.Digest) error {
	embed := &discordgo.MessageEmbed{
		Title: "📊 Daily Digest",
		Color: colorPurple,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Tracked members", Value: fmt.Sprintf("%d", digest.TrackedMembers), Inline: true},
			{Name: "Average level", Value: fmt.Sprintf("%.1f", digest.AverageLevel), Inline: true},
			{Name: "Linked accounts", Value: fmt.Sprintf("%d", digest.LinkedAccounts), Inline: true},
			{Name: "Deleted messages", Value: fmt.Sprintf("%d", digest.DeletedMessages), Inline: true},
			{Name: "Members left", Value: fmt.Sprintf("%d", digest.MemberLeaves), Inline: true},
			{Name: "Open tickets", Value: fmt.Sprintf("%d", digest.OpenTickets), Inline: true},
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
	return n.send(embed)
}

func userLine(userID, username string) string {
	if username == "" {
		return fmt.Sprintf("<@%s>", userID)
	}
	return fmt.Sprintf("<@%s> (%s)", userID, username)
}

func channelLine(channelID, channelName string) string {
	if channelName == "" {
		return fmt.Sprintf("<#%s>", channelID)
	}
	return fmt.Sprintf("<#%s> (#%s)", channelID, channelName)
}

// truncate caps s at max runes. Cutting on rune boundaries keeps multibyte
// content valid UTF-8.
func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
