// Package dashboard provides the operator REST API: health, leaderboard,
// audit and ticket statistics.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/internal/service/leveling"
	"github.com/calyptra/guildbot/internal/service/linking"
	"github.com/calyptra/guildbot/internal/service/modlog"
	"github.com/calyptra/guildbot/internal/service/tickets"
	"github.com/calyptra/guildbot/pkg/logger"
)

// LevelingService interface for experience-ledger reads.
type LevelingService interface {
	Leaderboard(ctx context.Context, guildID string, limit int) ([]models.LevelRecord, error)
	GuildStats(ctx context.Context, guildID string) (int64, float64, error)
}

// AuditService interface for moderation-mirror reads.
type AuditService interface {
	RecentDeletions(ctx context.Context, guildID string, limit int) ([]models.DeletedMessage, error)
	RecentLeaves(ctx context.Context, guildID string, limit int) ([]models.MemberLeave, error)
	Counts(ctx context.Context, guildID string) (deleted, left int64, err error)
}

// LinkService interface for account-link reads.
type LinkService interface {
	Count(ctx context.Context) (int64, error)
}

// TicketService interface for ticket reads.
type TicketService interface {
	Stats(ctx context.Context, guildID string) (*tickets.Stats, error)
}

// HealthChecker reports whether the database connection is alive.
type HealthChecker interface {
	Health() error
}

// Handler handles dashboard API requests.
type Handler struct {
	cfg      *config.Config
	leveling LevelingService
	audit    AuditService
	links    LinkService
	tickets  TicketService
	health   HealthChecker
	log      *logger.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(
	cfg *config.Config,
	levelingService *leveling.Service,
	auditService *modlog.Service,
	linkService *linking.Service,
	ticketService *tickets.Service,
	health HealthChecker,
	log *logger.Logger,
) *Handler {
	return NewHandlerWithInterfaces(cfg, levelingService, auditService, linkService, ticketService, health, log)
}

// NewHandlerWithInterfaces creates a new dashboard handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(
	cfg *config.Config,
	levelingService LevelingService,
	auditService AuditService,
	linkService LinkService,
	ticketService TicketService,
	health HealthChecker,
	log *logger.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		leveling: levelingService,
		audit:    auditService,
		links:    linkService,
		tickets:  ticketService,
		health:   health,
		log:      log,
	}
}

// RegisterRoutes attaches the dashboard routes to the engine.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.GetHealth)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/leaderboard", h.GetLeaderboard)
		v1.GET("/stats", h.GetServerStats)
		v1.GET("/audit/deletions", h.GetRecentDeletions)
		v1.GET("/audit/leaves", h.GetRecentLeaves)
		v1.GET("/tickets/stats", h.GetTicketStats)
	}
}

// GetHealth returns service health.
// GET /health.
func (h *Handler) GetHealth(c *gin.Context) {
	if err := h.health.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// GetLeaderboard returns the guild leaderboard.
// GET /api/v1/leaderboard?limit=10.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, 10)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.leveling.Leaderboard(context.Background(), h.guildID(c), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leaderboard")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leaderboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   records,
		"total_entries": len(records),
		"generated_at":  time.Now().UTC(),
	})
}

// GetServerStats returns activity statistics for the guild.
// GET /api/v1/stats.
func (h *Handler) GetServerStats(c *gin.Context) {
	ctx := context.Background()
	guildID := h.guildID(c)

	members, avgLevel, err := h.leveling.GuildStats(ctx, guildID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get guild stats")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve server stats")
		return
	}
	deleted, left, err := h.audit.Counts(ctx, guildID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get audit counts")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve server stats")
		return
	}
	linked, err := h.links.Count(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count linked accounts")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve server stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tracked_members":  members,
		"average_level":    avgLevel,
		"deleted_messages": deleted,
		"member_leaves":    left,
		"linked_accounts":  linked,
		"generated_at":     time.Now().UTC(),
	})
}

// GetRecentDeletions returns the latest deleted-message records.
// GET /api/v1/audit/deletions?limit=20.
func (h *Handler) GetRecentDeletions(c *gin.Context) {
	limit, err := h.parseLimit(c, 20)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.audit.RecentDeletions(context.Background(), h.guildID(c), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get deletion log")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve deletion log")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deletions":     records,
		"total_entries": len(records),
		"generated_at":  time.Now().UTC(),
	})
}

// GetRecentLeaves returns the latest member-departure records.
// GET /api/v1/audit/leaves?limit=20.
func (h *Handler) GetRecentLeaves(c *gin.Context) {
	limit, err := h.parseLimit(c, 20)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.audit.RecentLeaves(context.Background(), h.guildID(c), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get leave log")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve leave log")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaves":        records,
		"total_entries": len(records),
		"generated_at":  time.Now().UTC(),
	})
}

// GetTicketStats returns ticket statistics.
// GET /api/v1/tickets/stats.
func (h *Handler) GetTicketStats(c *gin.Context) {
	stats, err := h.tickets.Stats(context.Background(), h.guildID(c))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get ticket stats")
		h.errorResponse(c, http.StatusServiceUnavailable, "Failed to retrieve ticket stats")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets":      stats,
		"generated_at": time.Now().UTC(),
	})
}

// guildID returns the guild scoping a request, the configured guild unless
// overridden by query parameter.
func (h *Handler) guildID(c *gin.Context) string {
	if guildID := c.Query("guild_id"); guildID != "" {
		return guildID
	}
	return h.cfg.Discord.GuildID
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > 100 {
		return 0, fmt.Errorf("limit cannot exceed 100")
	}
	return limit, nil
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
