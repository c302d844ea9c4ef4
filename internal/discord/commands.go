package discord

import "github.com/bwmarrin/discordgo"

var adminOnly = int64(discordgo.PermissionAdministrator)

// Upper bounds for the limit option.
const (
	maxLeaderboardLimit = 20
	maxAuditLogLimit    = 10
)

// commandDefinitions returns the guild slash command set.
func commandDefinitions() []*discordgo.ApplicationCommand {
	limitOption := func(description string, max float64) *discordgo.ApplicationCommandOption {
		minLimit := float64(1)
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "limit",
			Description: description,
			MinValue:    &minLimit,
			MaxValue:    max,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "level",
			Description: "Show a member's level and progress",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to look up, defaults to you",
				},
			},
		},
		{
			Name:        "leaderboard",
			Description: "Show the most active members",
			Options:     []*discordgo.ApplicationCommandOption{limitOption("How many members to show", maxLeaderboardLimit)},
		},
		{
			Name:        "serverstats",
			Description: "Show server activity statistics",
		},
		{
			Name:                     "deletedlogs",
			Description:              "Show recently deleted messages",
			DefaultMemberPermissions: &adminOnly,
			Options:                  []*discordgo.ApplicationCommandOption{limitOption("How many entries to show", maxAuditLogLimit)},
		},
		{
			Name:                     "leavelogs",
			Description:              "Show members who recently left",
			DefaultMemberPermissions: &adminOnly,
			Options:                  []*discordgo.ApplicationCommandOption{limitOption("How many entries to show", maxAuditLogLimit)},
		},
		{
			Name:                     "resetlevel",
			Description:              "Reset a member's level progress",
			DefaultMemberPermissions: &adminOnly,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "Member to reset",
					Required:    true,
				},
			},
		},
		{
			Name:        "link",
			Description: "Link your account with a one-time code",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "code",
					Description: "Your one-time link code",
					Required:    true,
				},
			},
		},
		{
			Name:        "checklink",
			Description: "Check whether your account is linked",
		},
		{
			Name:        "ticket",
			Description: "Open a support ticket",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "type",
					Description: "What kind of ticket",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Bug report", Value: "bug"},
						{Name: "Feature request", Value: "feature"},
						{Name: "General question", Value: "general"},
						{Name: "Urgent issue", Value: "urgent"},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "description",
					Description: "Describe the issue",
					Required:    true,
				},
			},
		},
		{
			Name:                     "ticketstats",
			Description:              "Show ticket statistics",
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     "ticketpanel",
			Description:              "Post the open-a-ticket panel in this channel",
			DefaultMemberPermissions: &adminOnly,
		},
		{
			Name:                     "testgist",
			Description:              "Check the ticket store connection",
			DefaultMemberPermissions: &adminOnly,
		},
	}
}
