package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/calyptra/guildbot/internal/service/leveling"
	"github.com/calyptra/guildbot/internal/service/linking"
	"github.com/calyptra/guildbot/internal/service/modlog"
	"github.com/calyptra/guildbot/internal/service/tickets"
)

// Collector gathers digest numbers from the other services.
type Collector struct {
	leveling *leveling.Service
	modlog   *modlog.Service
	linking  *linking.Service
	tickets  *tickets.Service
}

// NewCollector creates a digest collector. The linking and ticket services
// are optional; their numbers are omitted when the backing store is not
// configured.
func NewCollector(lvl *leveling.Service, mod *modlog.Service, lnk *linking.Service, tkt *tickets.Service) *Collector {
	return &Collector{leveling: lvl, modlog: mod, linking: lnk, tickets: tkt}
}

// GuildActivity builds the digest for a guild.
func (c *Collector) GuildActivity(ctx context.Context, guildID string) (*Digest, error) {
	digest := &Digest{GuildID: guildID}

	members, avgLevel, err := c.leveling.GuildStats(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger stats: %w", err)
	}
	digest.TrackedMembers = members
	digest.AverageLevel = avgLevel

	deleted, left, err := c.modlog.Counts(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit stats: %w", err)
	}
	digest.DeletedMessages = deleted
	digest.MemberLeaves = left

	if c.linking != nil {
		linked, err := c.linking.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count linked accounts: %w", err)
		}
		digest.LinkedAccounts = linked
	}

	if c.tickets != nil {
		stats, err := c.tickets.Stats(ctx, guildID)
		if errors.Is(err, tickets.ErrStoreUnavailable) {
			return digest, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ticket stats: %w", err)
		}
		digest.OpenTickets = stats.Open
	}

	return digest, nil
}
