package docstore

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/guildbot/pkg/logger"
)

const rewardKey = "rewards:recipients"

func setupStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, logger.Nop()), client
}

func TestConsumeToken_Success(t *testing.T) {
	store, client := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateToken(ctx, "abc123", "acct-9981"))

	link, err := store.ConsumeToken(ctx, "abc123", "42", "100", rewardKey)
	require.NoError(t, err)
	require.NotNil(t, link)

	assert.Equal(t, "42", link.DiscordID)
	assert.Equal(t, "acct-9981", link.ExternalID)
	assert.Equal(t, "100", link.GuildID)
	assert.False(t, link.LinkedAt.IsZero())

	// Token is marked consumed with consumer metadata.
	fields, err := client.HGetAll(ctx, "linktoken:abc123").Result()
	require.NoError(t, err)
	assert.Equal(t, "1", fields["used"])
	assert.Equal(t, "42", fields["consumed_by"])
	assert.NotEmpty(t, fields["consumed_at"])

	// Link document exists and is readable.
	stored, err := store.GetLink(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "acct-9981", stored.ExternalID)

	// Reward side effect applied exactly once.
	n, err := store.RewardListLength(ctx, rewardKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConsumeToken_UnknownToken(t *testing.T) {
	store, _ := setupStore(t)

	link, err := store.ConsumeToken(context.Background(), "nope", "42", "100", rewardKey)
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Nil(t, link)
}

func TestConsumeToken_SecondUseRejected(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateToken(ctx, "abc123", "acct-9981"))

	_, err := store.ConsumeToken(ctx, "abc123", "42", "100", rewardKey)
	require.NoError(t, err)

	_, err = store.ConsumeToken(ctx, "abc123", "77", "100", rewardKey)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// No link document for the loser, no extra reward entry.
	link, err := store.GetLink(ctx, "77")
	require.NoError(t, err)
	assert.Nil(t, link)

	n, _ := store.RewardListLength(ctx, rewardKey)
	assert.Equal(t, int64(1), n)
}

func TestConsumeToken_AlreadyLinked(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateToken(ctx, "first", "acct-1"))
	require.NoError(t, store.CreateToken(ctx, "second", "acct-2"))

	_, err := store.ConsumeToken(ctx, "first", "42", "100", rewardKey)
	require.NoError(t, err)

	_, err = store.ConsumeToken(ctx, "second", "42", "100", rewardKey)
	assert.ErrorIs(t, err, ErrAlreadyLinked)

	// The second token survives untouched for its rightful owner.
	link, err := store.ConsumeToken(ctx, "second", "43", "100", rewardKey)
	require.NoError(t, err)
	assert.Equal(t, "acct-2", link.ExternalID)
}

func TestConsumeToken_ConcurrentExactlyOneWinner(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateToken(ctx, "contested", "acct-9981"))

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			discordID := "user-" + string(rune('a'+i))
			_, errs[i] = store.ConsumeToken(ctx, "contested", discordID, "100", rewardKey)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrTokenInvalid)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent consumer must win")

	n, _ := store.RewardListLength(ctx, rewardKey)
	assert.Equal(t, int64(1), n)
}

func TestGetLink_Unlinked(t *testing.T) {
	store, _ := setupStore(t)

	link, err := store.GetLink(context.Background(), "42")
	require.NoError(t, err)
	assert.Nil(t, link)
}
