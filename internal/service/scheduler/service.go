// Package scheduler posts the daily activity digest to the monitor channel.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/metrics"
	"github.com/calyptra/guildbot/pkg/logger"
)

// Digest is one day's guild activity summary.
type Digest struct {
	GuildID         string
	TrackedMembers  int64
	AverageLevel    float64
	DeletedMessages int64
	MemberLeaves    int64
	LinkedAccounts  int64
	OpenTickets     int
}

// ActivitySource aggregates the numbers that go into the digest.
type ActivitySource interface {
	GuildActivity(ctx context.Context, guildID string) (*Digest, error)
}

// Notifier posts the digest to the monitor channel.
type Notifier interface {
	NotifyDailyDigest(digest *Digest) error
}

// Service handles daily digest scheduling.
type Service struct {
	cfg      *config.Config
	source   ActivitySource
	notifier Notifier
	log      *logger.Logger
	cron     *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.Config, source ActivitySource, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		cfg:      cfg,
		source:   source,
		notifier: notifier,
		log:      log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.cfg.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.cfg.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.cfg.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	cronExpr, err := s.buildCronExpression()
	if err != nil {
		return fmt.Errorf("failed to build cron expression: %w", err)
	}

	_, err = s.cron.AddFunc(cronExpr, func() {
		s.RunDigest(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register daily digest job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", cronExpr).
		Str("timezone", s.cfg.Scheduler.Timezone).
		Bool("skip_weekends", s.cfg.Scheduler.SkipWeekends).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// buildCronExpression generates a cron expression from config.
func (s *Service) buildCronExpression() (string, error) {
	parts := strings.Split(s.cfg.Scheduler.Time, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time format %q, expected HH:MM", s.cfg.Scheduler.Time)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour %q", parts[0])
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute %q", parts[1])
	}

	if s.cfg.Scheduler.SkipWeekends {
		return fmt.Sprintf("%d %d * * 1-5", minute, hour), nil
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// RunDigest executes the daily digest job once.
func (s *Service) RunDigest(ctx context.Context) {
	start := time.Now()
	defer metrics.SetDigestLastRun()

	s.log.Info().Msg("Running daily digest job")

	digest, err := s.source.GuildActivity(ctx, s.cfg.Discord.GuildID)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Failed to gather guild activity")
		metrics.RecordDigestRun("error")
		return
	}

	if err := s.notifier.NotifyDailyDigest(digest); err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Failed to post daily digest")
		metrics.RecordDigestRun("error")
		return
	}

	metrics.RecordDigestRun("success")
	s.log.Info().
		Int64("tracked_members", digest.TrackedMembers).
		Dur("duration", time.Since(start)).
		Msg("Daily digest posted")
}
