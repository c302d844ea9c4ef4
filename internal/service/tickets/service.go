// Package tickets implements the support-ticket workflow. Tickets live in the
// shared remote blob document; each open ticket also gets a private guild
// channel that is torn down shortly after the ticket closes.
package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/gist"
	"github.com/calyptra/guildbot/internal/metrics"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/pkg/logger"
)

var (
	// ErrInvalidType is returned when the ticket type is not one of the
	// fixed tags.
	ErrInvalidType = errors.New("invalid ticket type")

	// ErrTooManyOpen is returned when the user already has the maximum
	// number of open tickets.
	ErrTooManyOpen = errors.New("too many open tickets")

	// ErrTicketNotFound is returned when no ticket matches the channel.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrTicketClosed is returned when closing a ticket that is already
	// closed.
	ErrTicketClosed = errors.New("ticket is already closed")

	// ErrNotAuthorized is returned when the closer is neither the creator
	// nor an admin.
	ErrNotAuthorized = errors.New("not authorized to close this ticket")

	// ErrStoreUnavailable is returned when the blob store is not configured.
	ErrStoreUnavailable = errors.New("ticket store is not configured")
)

// BlobStore interface for the remote ticket document.
type BlobStore interface {
	Configured() bool
	Read(ctx context.Context) (*models.TicketDocument, string, error)
	Update(ctx context.Context, mutate func(doc *models.TicketDocument) error) error
}

// ChannelManager creates and tears down per-ticket guild channels.
type ChannelManager interface {
	// CreateTicketChannel creates the private channel for a ticket and posts
	// its intro message. Returns the new channel id.
	CreateTicketChannel(ctx context.Context, ticket *models.Ticket) (string, error)

	// ScheduleChannelDelete deletes the channel after the given delay, so
	// participants can read the closing notice first.
	ScheduleChannelDelete(channelID string, delay time.Duration)
}

// Stats summarizes the ticket document.
type Stats struct {
	Total  int            `json:"total"`
	Open   int            `json:"open"`
	Closed int            `json:"closed"`
	ByType map[string]int `json:"by_type"`
}

// Service orchestrates the ticket lifecycle.
type Service struct {
	cfg      *config.TicketsConfig
	store    BlobStore
	channels ChannelManager
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a new ticket service with the concrete gist client.
func NewService(cfg *config.TicketsConfig, store *gist.Client, channels ChannelManager, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(cfg, store, channels, log)
}

// NewServiceWithInterfaces creates a new ticket service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(cfg *config.TicketsConfig, store BlobStore, channels ChannelManager, log *logger.Logger) *Service {
	return &Service{cfg: cfg, store: store, channels: channels, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Open creates a new ticket: validates the request against the remote
// document, creates the private channel, then appends the ticket to the
// document. The open-ticket cap is enforced before any channel exists.
func (s *Service) Open(ctx context.Context, userID, username, guildID, ticketType, description string) (*models.Ticket, error) {
	if !models.ValidTicketType(ticketType) {
		metrics.RecordTicketRejected("invalid_type")
		return nil, ErrInvalidType
	}
	if !s.store.Configured() {
		metrics.RecordTicketRejected("store_unavailable")
		return nil, ErrStoreUnavailable
	}

	// Fast path: reject before creating a channel when the user is already
	// at the cap. The cap is re-checked inside the conditional write below,
	// which is what actually enforces it under concurrent opens.
	doc, _, err := s.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket document: %w", err)
	}
	if countOpenByUser(doc, userID) >= s.cfg.MaxOpenPerUser {
		metrics.RecordTicketRejected("too_many_open")
		return nil, ErrTooManyOpen
	}

	now := s.now()
	ticket := &models.Ticket{
		TicketID:    ticketIDAt(now),
		UserID:      userID,
		Username:    username,
		Type:        ticketType,
		Description: description,
		CreatedAt:   now.UnixMilli(),
		Status:      models.TicketStatusOpen,
		GuildID:     guildID,
	}

	channelID, err := s.channels.CreateTicketChannel(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket channel: %w", err)
	}
	ticket.ChannelID = channelID

	err = s.store.Update(ctx, func(doc *models.TicketDocument) error {
		if countOpenByUser(doc, userID) >= s.cfg.MaxOpenPerUser {
			return ErrTooManyOpen
		}
		doc.Tickets = append(doc.Tickets, *ticket)
		return nil
	})
	if err != nil {
		// The channel exists but the ticket never made it into the
		// document; tear the channel down right away.
		s.channels.ScheduleChannelDelete(channelID, 0)
		if errors.Is(err, ErrTooManyOpen) {
			metrics.RecordTicketRejected("too_many_open")
			return nil, ErrTooManyOpen
		}
		return nil, fmt.Errorf("failed to store ticket: %w", err)
	}

	metrics.RecordTicketOpened(guildID, ticketType)
	s.refreshOpenGauge(ctx, guildID)
	s.log.Info().
		Str("ticket_id", ticket.TicketID).
		Str("user_id", userID).
		Str("type", ticketType).
		Msg("Ticket opened")
	return ticket, nil
}

// CloseByChannel closes the ticket bound to the given channel. Only the
// creator or an admin may close it, a closed ticket stays closed, and the
// channel is deleted after the configured delay.
func (s *Service) CloseByChannel(ctx context.Context, channelID, closerID string, isAdmin bool) (*models.Ticket, error) {
	if !s.store.Configured() {
		return nil, ErrStoreUnavailable
	}

	var closed models.Ticket
	err := s.store.Update(ctx, func(doc *models.TicketDocument) error {
		for i := range doc.Tickets {
			ticket := &doc.Tickets[i]
			if ticket.ChannelID != channelID {
				continue
			}
			if ticket.Status == models.TicketStatusClosed {
				return ErrTicketClosed
			}
			if ticket.UserID != closerID && !isAdmin {
				return ErrNotAuthorized
			}
			closedAt := s.now().UnixMilli()
			ticket.Status = models.TicketStatusClosed
			ticket.ClosedAt = &closedAt
			ticket.ClosedBy = closerID
			closed = *ticket
			return nil
		}
		return ErrTicketNotFound
	})
	if err != nil {
		return nil, err
	}

	s.channels.ScheduleChannelDelete(channelID, s.cfg.CloseDelay())
	metrics.RecordTicketClosed(closed.GuildID)
	s.refreshOpenGauge(ctx, closed.GuildID)
	s.log.Info().
		Str("ticket_id", closed.TicketID).
		Str("closed_by", closerID).
		Msg("Ticket closed")
	return &closed, nil
}

// Stats summarizes the document for one guild, or all guilds when guildID is
// empty.
func (s *Service) Stats(ctx context.Context, guildID string) (*Stats, error) {
	if !s.store.Configured() {
		return nil, ErrStoreUnavailable
	}

	doc, _, err := s.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticket document: %w", err)
	}

	stats := &Stats{ByType: make(map[string]int)}
	for _, ticket := range doc.Tickets {
		if guildID != "" && ticket.GuildID != guildID {
			continue
		}
		stats.Total++
		if ticket.Status == models.TicketStatusOpen {
			stats.Open++
		} else {
			stats.Closed++
		}
		stats.ByType[ticket.Type]++
	}
	return stats, nil
}

// TestConnection verifies the blob store is reachable and reports how many
// tickets the document holds.
func (s *Service) TestConnection(ctx context.Context) (int, error) {
	if !s.store.Configured() {
		return 0, ErrStoreUnavailable
	}
	doc, _, err := s.store.Read(ctx)
	if err != nil {
		return 0, err
	}
	return len(doc.Tickets), nil
}

func (s *Service) refreshOpenGauge(ctx context.Context, guildID string) {
	doc, _, err := s.store.Read(ctx)
	if err != nil {
		return
	}
	open := 0
	for _, ticket := range doc.Tickets {
		if ticket.GuildID == guildID && ticket.Status == models.TicketStatusOpen {
			open++
		}
	}
	metrics.SetOpenTickets(guildID, open)
}

func countOpenByUser(doc *models.TicketDocument, userID string) int {
	n := 0
	for _, ticket := range doc.Tickets {
		if ticket.UserID == userID && ticket.Status == models.TicketStatusOpen {
			n++
		}
	}
	return n
}

// ticketIDAt derives the six-digit ticket id from the creation time, the
// trailing digits of its Unix millisecond timestamp.
func ticketIDAt(now time.Time) string {
	return fmt.Sprintf("%06d", now.UnixMilli()%1_000_000)
}
