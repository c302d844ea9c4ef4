// Package leveling implements the experience ledger and its award state
// machine: cooldown-gated XP awards, level transitions, role-grant decisions
// and leaderboard reads.
package leveling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/calyptra/guildbot/internal/cache"
	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/metrics"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/internal/repository"
	"github.com/calyptra/guildbot/pkg/logger"
)

// ErrNoRecord is returned when an operation targets a user with no ledger
// record.
var ErrNoRecord = errors.New("no ledger record for user")

// LevelRepository interface for experience-ledger operations.
type LevelRepository interface {
	Get(userID, guildID string) (*models.LevelRecord, error)
	Create(record *models.LevelRecord) error
	Update(record *models.LevelRecord) error
	Upsert(record *models.LevelRecord) error
	Delete(userID, guildID string) error
	Top(guildID string, limit int) ([]models.LevelRecord, error)
	CountByGuild(guildID string) (int64, error)
	AverageLevel(guildID string) (float64, error)
}

// Award is the outcome of processing one message through the engine.
type Award struct {
	Record    models.LevelRecord
	Awarded   bool
	LeveledUp bool
	OldLevel  int
	// RoleName is the configured role for the new level, when one exists.
	RoleName string
}

// Service is the leveling engine.
type Service struct {
	repo  LevelRepository
	cache cache.Cache
	cfg   *config.LevelingConfig
	log   *logger.Logger
	now   func() time.Time

	// locks serializes the read-modify-write per (user, guild) key; two
	// rapid messages from one user cannot both pass the cooldown check.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new leveling service with concrete repository types.
func NewService(repo *repository.LevelRepository, c cache.Cache, cfg *config.LevelingConfig, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(repo, c, cfg, log)
}

// NewServiceWithInterfaces creates a new leveling service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo LevelRepository, c cache.Cache, cfg *config.LevelingConfig, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: c,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// HandleMessage applies one inbound guild message to the ledger. Inside the
// cooldown window the record is left entirely untouched: no XP, no level, no
// message count, no timestamp.
func (s *Service) HandleMessage(ctx context.Context, userID, username, guildID string) (*Award, error) {
	lock := s.keyLock(userID + ":" + guildID)
	lock.Lock()
	defer lock.Unlock()

	now := s.now()

	record, err := s.repo.Get(userID, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger record: %w", err)
	}

	if record == nil {
		record = &models.LevelRecord{
			UserID:        userID,
			GuildID:       guildID,
			Username:      username,
			XP:            s.cfg.XPPerMessage,
			Level:         LevelFor(s.cfg.XPPerMessage, s.cfg.LevelMultiplier),
			MessageCount:  1,
			LastMessageAt: now,
			JoinedAt:      now,
		}
		if err := s.repo.Create(record); err != nil {
			return nil, err
		}
		s.invalidateLeaderboard(ctx, guildID)
		metrics.RecordMessageProcessed(guildID, "awarded")
		metrics.RecordXPAwarded(guildID, s.cfg.XPPerMessage)
		return &Award{Record: *record, Awarded: true, OldLevel: 1}, nil
	}

	if now.Sub(record.LastMessageAt) < s.cfg.Cooldown() {
		metrics.RecordMessageProcessed(guildID, "cooldown")
		return &Award{Record: *record, Awarded: false, OldLevel: record.Level}, nil
	}

	oldLevel := record.Level
	record.Username = username
	record.XP += s.cfg.XPPerMessage
	record.Level = LevelFor(record.XP, s.cfg.LevelMultiplier)
	record.MessageCount++
	record.LastMessageAt = now

	if err := s.repo.Update(record); err != nil {
		return nil, err
	}
	s.invalidateLeaderboard(ctx, guildID)

	metrics.RecordMessageProcessed(guildID, "awarded")
	metrics.RecordXPAwarded(guildID, s.cfg.XPPerMessage)

	award := &Award{
		Record:    *record,
		Awarded:   true,
		OldLevel:  oldLevel,
		LeveledUp: record.Level > oldLevel,
	}
	if award.LeveledUp {
		metrics.RecordLevelUp(guildID)
		if role, ok := s.cfg.RoleForLevel(record.Level); ok {
			award.RoleName = role
		}
		s.log.Info().
			Str("user_id", userID).
			Str("guild_id", guildID).
			Int("level", record.Level).
			Msg("User leveled up")
	}
	return award, nil
}

// SeedMember upserts a zeroed ledger record when a member joins.
func (s *Service) SeedMember(ctx context.Context, userID, username, guildID string) error {
	record := &models.LevelRecord{
		UserID:   userID,
		GuildID:  guildID,
		Username: username,
		XP:       0,
		Level:    1,
		JoinedAt: s.now(),
	}
	if err := s.repo.Upsert(record); err != nil {
		return fmt.Errorf("failed to seed ledger for joining member: %w", err)
	}
	s.invalidateLeaderboard(ctx, guildID)
	return nil
}

// GetRecord retrieves the ledger record for a user, or nil when none exists.
func (s *Service) GetRecord(ctx context.Context, userID, guildID string) (*models.LevelRecord, error) {
	return s.repo.Get(userID, guildID)
}

// RecordProgress computes level progress for a record.
func (s *Service) RecordProgress(record *models.LevelRecord) Progress {
	return ProgressFor(record.XP, s.cfg.LevelMultiplier)
}

// Reset removes a user's ledger record; the next qualifying message recreates
// it at level 1.
func (s *Service) Reset(ctx context.Context, userID, guildID string) error {
	lock := s.keyLock(userID + ":" + guildID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.Delete(userID, guildID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoRecord
		}
		return err
	}
	s.invalidateLeaderboard(ctx, guildID)
	return nil
}

// Leaderboard returns the top records for a guild, served from cache when a
// recent read exists.
func (s *Service) Leaderboard(ctx context.Context, guildID string, limit int) ([]models.LevelRecord, error) {
	key := leaderboardKey(guildID, limit)

	if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
		var records []models.LevelRecord
		if err := json.Unmarshal([]byte(cached), &records); err == nil {
			return records, nil
		}
	}

	records, err := s.repo.Top(guildID, limit)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(records); err == nil {
		ttl := time.Duration(s.cfg.CacheTTL) * time.Second
		if err := s.cache.Set(ctx, key, string(payload), ttl); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache leaderboard")
		}
	}
	return records, nil
}

// GuildStats reports how many users are tracked and their average level.
func (s *Service) GuildStats(ctx context.Context, guildID string) (int64, float64, error) {
	count, err := s.repo.CountByGuild(guildID)
	if err != nil {
		return 0, 0, err
	}
	avg, err := s.repo.AverageLevel(guildID)
	if err != nil {
		return 0, 0, err
	}
	return count, avg, nil
}

func (s *Service) invalidateLeaderboard(ctx context.Context, guildID string) {
	// Limits 1..20 are the only values the command surface accepts.
	keys := make([]string, 0, 20)
	for limit := 1; limit <= 20; limit++ {
		keys = append(keys, leaderboardKey(guildID, limit))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		s.log.Debug().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
}

func leaderboardKey(guildID string, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%d", guildID, limit)
}
