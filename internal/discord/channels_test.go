package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/pkg/logger"
)

type fakeChannelAPI struct {
	created   []discordgo.GuildChannelCreateData
	messages  []*discordgo.MessageSend
	deleted   chan string
	createErr error
}

func newFakeChannelAPI() *fakeChannelAPI {
	return &fakeChannelAPI{deleted: make(chan string, 4)}
}

func (f *fakeChannelAPI) GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, data)
	return &discordgo.Channel{ID: "chan-1", Name: data.Name}, nil
}

func (f *fakeChannelAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.messages = append(f.messages, data)
	return &discordgo.Message{}, nil
}

func (f *fakeChannelAPI) ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.deleted <- channelID
	return &discordgo.Channel{ID: channelID}, nil
}

func setupChannels() (*TicketChannels, *fakeChannelAPI) {
	api := newFakeChannelAPI()
	cfg := &config.TicketsConfig{CategoryID: "cat-1", ChannelPrefix: "ticket", CloseDelaySeconds: 5}
	channels := NewTicketChannels(cfg, api, func() string { return "bot-1" }, logger.Nop())
	return channels, api
}

func testTicket() *models.Ticket {
	return &models.Ticket{
		TicketID:    "812345",
		UserID:      "user-1",
		Username:    "alice",
		Type:        models.TicketTypeBug,
		Description: "it broke",
		Status:      models.TicketStatusOpen,
		GuildID:     "guild-1",
	}
}

func TestCreateTicketChannel(t *testing.T) {
	channels, api := setupChannels()

	id, err := channels.CreateTicketChannel(context.Background(), testTicket())
	require.NoError(t, err)
	assert.Equal(t, "chan-1", id)

	require.Len(t, api.created, 1)
	data := api.created[0]
	assert.Equal(t, "ticket-bug-812345", data.Name)
	assert.Equal(t, "cat-1", data.ParentID)

	// Hidden from @everyone, visible to creator and bot.
	require.Len(t, data.PermissionOverwrites, 3)
	assert.Equal(t, "guild-1", data.PermissionOverwrites[0].ID)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), data.PermissionOverwrites[0].Deny)
	assert.Equal(t, "user-1", data.PermissionOverwrites[1].ID)
	assert.Equal(t, "bot-1", data.PermissionOverwrites[2].ID)
}

func TestCreateTicketChannel_IntroHasCloseButton(t *testing.T) {
	channels, api := setupChannels()

	_, err := channels.CreateTicketChannel(context.Background(), testTicket())
	require.NoError(t, err)

	require.Len(t, api.messages, 1)
	message := api.messages[0]
	require.Len(t, message.Components, 1)

	row, ok := message.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	button, ok := row.Components[0].(discordgo.Button)
	require.True(t, ok)
	assert.Equal(t, "close_ticket_chan-1", button.CustomID)
	assert.Equal(t, discordgo.DangerButton, button.Style)
}

func TestCreateTicketChannel_CreateFails(t *testing.T) {
	channels, api := setupChannels()
	api.createErr = errors.New("missing permissions")

	_, err := channels.CreateTicketChannel(context.Background(), testTicket())
	assert.Error(t, err)
	assert.Empty(t, api.messages)
}

func TestScheduleChannelDelete(t *testing.T) {
	channels, api := setupChannels()

	channels.ScheduleChannelDelete("chan-1", 10*time.Millisecond)

	select {
	case id := <-api.deleted:
		assert.Equal(t, "chan-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("channel was never deleted")
	}
}
