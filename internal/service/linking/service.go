// Package linking implements the account-link workflow: one-time tokens are
// consumed against the remote document store and successful links are mirrored
// into the local database for fast status lookups.
package linking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/docstore"
	"github.com/calyptra/guildbot/internal/metrics"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/internal/repository"
	"github.com/calyptra/guildbot/pkg/logger"
)

var (
	// ErrInvalidToken is returned when the supplied token does not exist or
	// was already consumed.
	ErrInvalidToken = errors.New("invalid or already used token")

	// ErrAlreadyLinked is returned when the discord account already has a
	// link.
	ErrAlreadyLinked = errors.New("account is already linked")
)

// DocumentStore interface for the remote transactional store.
type DocumentStore interface {
	GetLink(ctx context.Context, discordID string) (*docstore.Link, error)
	ConsumeToken(ctx context.Context, token, discordID, guildID, rewardListKey string) (*docstore.Link, error)
	RewardListLength(ctx context.Context, rewardListKey string) (int64, error)
}

// LinkRepository interface for the local link mirror.
type LinkRepository interface {
	Create(link *models.AccountLink) error
	GetByDiscordID(discordID string) (*models.AccountLink, error)
	Count() (int64, error)
}

// Notifier posts link notices to the monitor channel.
type Notifier interface {
	NotifyAccountLinked(link *models.AccountLink) error
}

// Service orchestrates the account-link workflow.
type Service struct {
	cfg      *config.LinkingConfig
	store    DocumentStore
	repo     LinkRepository
	notifier Notifier
	log      *logger.Logger
}

// NewService creates a new linking service with concrete dependencies.
func NewService(cfg *config.LinkingConfig, store *docstore.Store, repo *repository.LinkRepository, notifier Notifier, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(cfg, store, repo, notifier, log)
}

// NewServiceWithInterfaces creates a new linking service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(cfg *config.LinkingConfig, store DocumentStore, repo LinkRepository, notifier Notifier, log *logger.Logger) *Service {
	return &Service{cfg: cfg, store: store, repo: repo, notifier: notifier, log: log}
}

// Link consumes a one-time token for the discord user. The token can only
// succeed once; losing a race or reusing a code reports ErrInvalidToken, and
// a user who already holds a link reports ErrAlreadyLinked without burning
// the token.
func (s *Service) Link(ctx context.Context, discordID, guildID, token string) (*models.AccountLink, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.RecordLinkAttempt("invalid_token")
		return nil, ErrInvalidToken
	}

	existing, err := s.repo.GetByDiscordID(discordID)
	if err != nil {
		return nil, fmt.Errorf("failed to check link status: %w", err)
	}
	if existing != nil {
		metrics.RecordLinkAttempt("already_linked")
		return nil, ErrAlreadyLinked
	}

	start := time.Now()
	remote, err := s.store.ConsumeToken(ctx, token, discordID, guildID, s.cfg.RewardListKey)
	metrics.ObserveRemoteCall("docstore", "consume_token", time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(err, docstore.ErrTokenInvalid):
			metrics.RecordLinkAttempt("invalid_token")
			return nil, ErrInvalidToken
		case errors.Is(err, docstore.ErrAlreadyLinked):
			metrics.RecordLinkAttempt("already_linked")
			return nil, ErrAlreadyLinked
		default:
			metrics.RecordLinkAttempt("error")
			return nil, fmt.Errorf("failed to consume link token: %w", err)
		}
	}

	link := &models.AccountLink{
		DiscordID:  remote.DiscordID,
		ExternalID: remote.ExternalID,
		GuildID:    remote.GuildID,
		LinkedAt:   remote.LinkedAt,
	}
	if err := s.repo.Create(link); err != nil {
		// The remote store committed; the mirror catches up on the next
		// Status lookup.
		s.log.Error().Err(err).Str("discord_id", discordID).Msg("Failed to mirror account link")
	}

	metrics.RecordLinkAttempt("success")
	s.log.Info().
		Str("discord_id", discordID).
		Str("external_id", link.MaskedExternalID()).
		Msg("Account linked")

	if s.notifier != nil {
		if err := s.notifier.NotifyAccountLinked(link); err != nil {
			metrics.RecordNotification("account_link", "failed")
			s.log.Warn().Err(err).Msg("Failed to post link notice")
		} else {
			metrics.RecordNotification("account_link", "sent")
		}
	}

	return link, nil
}

// Status reports the user's link, or nil when unlinked. The local mirror is
// consulted first; a remote hit that is missing locally is backfilled.
func (s *Service) Status(ctx context.Context, discordID string) (*models.AccountLink, error) {
	local, err := s.repo.GetByDiscordID(discordID)
	if err != nil {
		return nil, fmt.Errorf("failed to check link status: %w", err)
	}
	if local != nil {
		return local, nil
	}

	start := time.Now()
	remote, err := s.store.GetLink(ctx, discordID)
	metrics.ObserveRemoteCall("docstore", "get_link", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read remote link: %w", err)
	}
	if remote == nil {
		return nil, nil
	}

	link := &models.AccountLink{
		DiscordID:  remote.DiscordID,
		ExternalID: remote.ExternalID,
		GuildID:    remote.GuildID,
		LinkedAt:   remote.LinkedAt,
	}
	if err := s.repo.Create(link); err != nil {
		s.log.Warn().Err(err).Str("discord_id", discordID).Msg("Failed to backfill account link mirror")
	}
	return link, nil
}

// Count returns the number of linked accounts.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.Count()
}

// RewardQueueLength reports how many reward payouts are pending remotely.
func (s *Service) RewardQueueLength(ctx context.Context) (int64, error) {
	return s.store.RewardListLength(ctx, s.cfg.RewardListKey)
}
