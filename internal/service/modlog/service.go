// Package modlog implements the moderation mirror: deleted messages and
// member movements are persisted to append-only audit tables and forwarded to
// the monitor channel as best-effort notifications.
package modlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calyptra/guildbot/internal/metrics"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/internal/repository"
	"github.com/calyptra/guildbot/pkg/logger"
)

// AuditRepository interface for audit-table operations.
type AuditRepository interface {
	RecordDeletedMessage(record *models.DeletedMessage) error
	RecordMemberLeave(record *models.MemberLeave) error
	RecentDeletedMessages(guildID string, limit int) ([]models.DeletedMessage, error)
	RecentMemberLeaves(guildID string, limit int) ([]models.MemberLeave, error)
	CountDeletedMessages(guildID string) (int64, error)
	CountMemberLeaves(guildID string) (int64, error)
}

// Notifier posts formatted notices to the monitor channel. Implementations
// are best-effort; a send failure never affects persistence.
type Notifier interface {
	NotifyMessageDeleted(record *models.DeletedMessage) error
	NotifyMemberLeft(record *models.MemberLeave) error
	NotifyMemberJoined(userID, username, guildID string, memberCount int) error
}

// Service is the moderation mirror.
type Service struct {
	repo     AuditRepository
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a new moderation mirror service with concrete repository types.
func NewService(repo *repository.AuditRepository, notifier Notifier, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, notifier, log)
}

// NewServiceWithInterfaces creates a new moderation mirror service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo AuditRepository, notifier Notifier, log *logger.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, log: log, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// DeletedMessageEvent carries the fields of a message-delete gateway event.
type DeletedMessageEvent struct {
	MessageID   string
	UserID      string
	Username    string
	ChannelID   string
	ChannelName string
	Content     string
	Attachments []string
	GuildID     string
}

// HandleMessageDelete persists the audit row and, when the message had text
// content, posts a notice. The two side effects are independent: either can
// fail without the other being rolled back or skipped.
func (s *Service) HandleMessageDelete(ctx context.Context, event *DeletedMessageEvent) error {
	record := &models.DeletedMessage{
		MessageID:   event.MessageID,
		UserID:      event.UserID,
		Username:    event.Username,
		ChannelID:   event.ChannelID,
		ChannelName: event.ChannelName,
		Content:     event.Content,
		Attachments: strings.Join(event.Attachments, ", "),
		GuildID:     event.GuildID,
		DeletedAt:   s.now(),
	}

	persistErr := s.repo.RecordDeletedMessage(record)
	if persistErr != nil {
		s.log.Error().Err(persistErr).Str("message_id", event.MessageID).Msg("Failed to persist deleted message")
	} else {
		metrics.RecordAuditRecord(event.GuildID, "deleted_message")
	}

	if event.Content == "" {
		metrics.RecordNotification("deleted_message", "skipped")
	} else if err := s.notifier.NotifyMessageDeleted(record); err != nil {
		metrics.RecordNotification("deleted_message", "failed")
		s.log.Warn().Err(err).Msg("Failed to post deleted-message notice")
	} else {
		metrics.RecordNotification("deleted_message", "sent")
	}

	return persistErr
}

// MemberLeaveEvent carries the fields of a member-remove gateway event.
type MemberLeaveEvent struct {
	UserID   string
	Username string
	JoinedAt *time.Time
	Roles    []string
	GuildID  string
}

// HandleMemberLeave persists the departure and posts a notice with the
// member's tenure.
func (s *Service) HandleMemberLeave(ctx context.Context, event *MemberLeaveEvent) error {
	record := &models.MemberLeave{
		UserID:   event.UserID,
		Username: event.Username,
		JoinedAt: event.JoinedAt,
		LeftAt:   s.now(),
		Roles:    strings.Join(event.Roles, ", "),
		GuildID:  event.GuildID,
	}

	persistErr := s.repo.RecordMemberLeave(record)
	if persistErr != nil {
		s.log.Error().Err(persistErr).Str("user_id", event.UserID).Msg("Failed to persist member leave")
	} else {
		metrics.RecordAuditRecord(event.GuildID, "member_leave")
	}

	if err := s.notifier.NotifyMemberLeft(record); err != nil {
		metrics.RecordNotification("member_leave", "failed")
		s.log.Warn().Err(err).Msg("Failed to post member-leave notice")
	} else {
		metrics.RecordNotification("member_leave", "sent")
	}

	return persistErr
}

// HandleMemberJoin posts the welcome notice. The ledger seed happens in the
// leveling service; this only covers the mirror's notification side.
func (s *Service) HandleMemberJoin(ctx context.Context, userID, username, guildID string, memberCount int) {
	metrics.RecordAuditRecord(guildID, "member_join")
	if err := s.notifier.NotifyMemberJoined(userID, username, guildID, memberCount); err != nil {
		metrics.RecordNotification("member_join", "failed")
		s.log.Warn().Err(err).Msg("Failed to post welcome notice")
		return
	}
	metrics.RecordNotification("member_join", "sent")
}

// RecentDeletions returns the latest deleted-message rows for a guild.
func (s *Service) RecentDeletions(ctx context.Context, guildID string, limit int) ([]models.DeletedMessage, error) {
	records, err := s.repo.RecentDeletedMessages(guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load deletion log: %w", err)
	}
	return records, nil
}

// RecentLeaves returns the latest member-departure rows for a guild.
func (s *Service) RecentLeaves(ctx context.Context, guildID string, limit int) ([]models.MemberLeave, error) {
	records, err := s.repo.RecentMemberLeaves(guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leave log: %w", err)
	}
	return records, nil
}

// Counts reports the audit totals for a guild.
func (s *Service) Counts(ctx context.Context, guildID string) (deleted, left int64, err error) {
	deleted, err = s.repo.CountDeletedMessages(guildID)
	if err != nil {
		return 0, 0, err
	}
	left, err = s.repo.CountMemberLeaves(guildID)
	if err != nil {
		return 0, 0, err
	}
	return deleted, left, nil
}
