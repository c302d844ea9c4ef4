// Package docstore implements the remote transactional document store backing
// the account-link workflow. Documents are Redis hashes; multi-document
// mutations run inside optimistic WATCH transactions so a one-time token has
// exactly one consumer even under concurrent attempts.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calyptra/guildbot/pkg/logger"
)

// Key prefixes for the document collections.
const (
	tokenKeyPrefix = "linktoken:"
	linkKeyPrefix  = "link:"
)

// consumeRetries bounds transaction retries on WATCH conflicts. A conflicting
// writer has either consumed the token (next read reports it used) or touched
// the link document (next read reports the user linked), so a couple of
// retries always reach a terminal answer.
const consumeRetries = 3

var (
	// ErrTokenInvalid is returned when the token does not exist or was
	// already consumed.
	ErrTokenInvalid = errors.New("link token invalid or already used")

	// ErrAlreadyLinked is returned when a link document already exists for
	// the discord id.
	ErrAlreadyLinked = errors.New("account already linked")
)

// Token is a one-time link token document.
type Token struct {
	Token      string
	ExternalID string
	Used       bool
	ConsumedBy string
	ConsumedAt time.Time
}

// Link is a remote account-link document.
type Link struct {
	DiscordID  string
	ExternalID string
	GuildID    string
	LinkedAt   time.Time
}

// Store provides transactional access to the link-token and link-document
// collections.
type Store struct {
	client *redis.Client
	log    *logger.Logger
}

// NewStore creates a document store on the given Redis client.
func NewStore(client *redis.Client, log *logger.Logger) *Store {
	return &Store{client: client, log: log}
}

// CreateToken registers an unused one-time token bound to an external account
// id. Used by the operator tooling that issues codes.
func (s *Store) CreateToken(ctx context.Context, token, externalID string) error {
	key := tokenKeyPrefix + token
	err := s.client.HSet(ctx, key, map[string]interface{}{
		"token":       token,
		"external_id": externalID,
		"used":        "0",
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to create token document: %w", err)
	}
	return nil
}

// GetLink retrieves the link document for a discord id, or nil when unlinked.
func (s *Store) GetLink(ctx context.Context, discordID string) (*Link, error) {
	fields, err := s.client.HGetAll(ctx, linkKeyPrefix+discordID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read link document: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return linkFromFields(fields), nil
}

// ConsumeToken atomically marks the token consumed, creates the link document
// and appends the external account id to the reward recipient list. The whole
// mutation commits or none of it does; a concurrent consumer of the same token
// makes the losing call return ErrTokenInvalid.
func (s *Store) ConsumeToken(ctx context.Context, token, discordID, guildID, rewardListKey string) (*Link, error) {
	tokenKey := tokenKeyPrefix + token
	linkKey := linkKeyPrefix + discordID

	var link *Link

	txn := func(tx *redis.Tx) error {
		tokenFields, err := tx.HGetAll(ctx, tokenKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read token document: %w", err)
		}
		if len(tokenFields) == 0 || tokenFields["used"] != "0" {
			return ErrTokenInvalid
		}

		linkFields, err := tx.HGetAll(ctx, linkKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read link document: %w", err)
		}
		if len(linkFields) > 0 {
			return ErrAlreadyLinked
		}

		now := time.Now()
		externalID := tokenFields["external_id"]

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, tokenKey, map[string]interface{}{
				"used":        "1",
				"consumed_by": discordID,
				"consumed_at": strconv.FormatInt(now.UnixMilli(), 10),
			})
			pipe.HSet(ctx, linkKey, map[string]interface{}{
				"discord_id":  discordID,
				"external_id": externalID,
				"guild_id":    guildID,
				"linked_at":   strconv.FormatInt(now.UnixMilli(), 10),
			})
			pipe.RPush(ctx, rewardListKey, externalID)
			return nil
		})
		if err != nil {
			return err
		}

		link = &Link{
			DiscordID:  discordID,
			ExternalID: externalID,
			GuildID:    guildID,
			LinkedAt:   now,
		}
		return nil
	}

	for attempt := 0; attempt < consumeRetries; attempt++ {
		err := s.client.Watch(ctx, txn, tokenKey, linkKey)
		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug().
				Str("discord_id", discordID).
				Int("attempt", attempt+1).
				Msg("Token transaction conflict, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return link, nil
	}

	return nil, ErrTokenInvalid
}

// RewardListLength returns the length of the reward recipient list.
func (s *Store) RewardListLength(ctx context.Context, rewardListKey string) (int64, error) {
	n, err := s.client.LLen(ctx, rewardListKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read reward list: %w", err)
	}
	return n, nil
}

func linkFromFields(fields map[string]string) *Link {
	link := &Link{
		DiscordID:  fields["discord_id"],
		ExternalID: fields["external_id"],
		GuildID:    fields["guild_id"],
	}
	if ms, err := strconv.ParseInt(fields["linked_at"], 10, 64); err == nil {
		link.LinkedAt = time.UnixMilli(ms)
	}
	return link
}
