package linking

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/docstore"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/pkg/logger"
)

type fakeLinkRepo struct {
	links     map[string]*models.AccountLink
	createErr error
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*models.AccountLink)}
}

func (f *fakeLinkRepo) Create(link *models.AccountLink) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.links[link.DiscordID] = link
	return nil
}

func (f *fakeLinkRepo) GetByDiscordID(discordID string) (*models.AccountLink, error) {
	return f.links[discordID], nil
}

func (f *fakeLinkRepo) Count() (int64, error) {
	return int64(len(f.links)), nil
}

type fakeLinkNotifier struct {
	notices []models.AccountLink
}

func (f *fakeLinkNotifier) NotifyAccountLinked(link *models.AccountLink) error {
	f.notices = append(f.notices, *link)
	return nil
}

func setupService(t *testing.T) (*Service, *docstore.Store, *fakeLinkRepo, *fakeLinkNotifier) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := docstore.NewStore(client, logger.Nop())
	repo := newFakeLinkRepo()
	notifier := &fakeLinkNotifier{}
	cfg := &config.LinkingConfig{Enabled: true, RewardListKey: "rewards:recipients"}
	svc := NewServiceWithInterfaces(cfg, store, repo, notifier, logger.Nop())
	return svc, store, repo, notifier
}

func TestLink_Success(t *testing.T) {
	svc, store, repo, notifier := setupService(t)
	ctx := context.Background()
	require.NoError(t, store.CreateToken(ctx, "abc123", "EXT-0042"))

	link, err := svc.Link(ctx, "user-1", "guild-1", "abc123")
	require.NoError(t, err)

	assert.Equal(t, "user-1", link.DiscordID)
	assert.Equal(t, "EXT-0042", link.ExternalID)
	assert.Equal(t, "guild-1", link.GuildID)
	assert.False(t, link.LinkedAt.IsZero())

	mirrored, err := repo.GetByDiscordID("user-1")
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, "EXT-0042", mirrored.ExternalID)

	require.Len(t, notifier.notices, 1)

	pending, err := svc.RewardQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestLink_UnknownToken(t *testing.T) {
	svc, _, repo, _ := setupService(t)

	_, err := svc.Link(context.Background(), "user-1", "guild-1", "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, repo.links)
}

func TestLink_BlankToken(t *testing.T) {
	svc, _, _, _ := setupService(t)

	_, err := svc.Link(context.Background(), "user-1", "guild-1", "   ")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLink_TokenReuseRejected(t *testing.T) {
	svc, store, _, _ := setupService(t)
	ctx := context.Background()
	require.NoError(t, store.CreateToken(ctx, "abc123", "EXT-0042"))

	_, err := svc.Link(ctx, "user-1", "guild-1", "abc123")
	require.NoError(t, err)

	_, err = svc.Link(ctx, "user-2", "guild-1", "abc123")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLink_AlreadyLinkedLocallyKeepsToken(t *testing.T) {
	svc, store, repo, _ := setupService(t)
	ctx := context.Background()
	require.NoError(t, store.CreateToken(ctx, "fresh1", "EXT-0099"))
	repo.links["user-1"] = &models.AccountLink{DiscordID: "user-1", ExternalID: "EXT-0001"}

	_, err := svc.Link(ctx, "user-1", "guild-1", "fresh1")
	assert.ErrorIs(t, err, ErrAlreadyLinked)

	// The unburned token still works for someone else.
	link, err := svc.Link(ctx, "user-2", "guild-1", "fresh1")
	require.NoError(t, err)
	assert.Equal(t, "EXT-0099", link.ExternalID)
}

func TestLink_MirrorFailureStillSucceeds(t *testing.T) {
	svc, store, repo, _ := setupService(t)
	ctx := context.Background()
	require.NoError(t, store.CreateToken(ctx, "abc123", "EXT-0042"))
	repo.createErr = errors.New("database down")

	link, err := svc.Link(ctx, "user-1", "guild-1", "abc123")
	require.NoError(t, err)
	assert.Equal(t, "EXT-0042", link.ExternalID)
}

func TestStatus_Unlinked(t *testing.T) {
	svc, _, _, _ := setupService(t)

	link, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, link)
}

func TestStatus_BackfillsMirrorFromRemote(t *testing.T) {
	svc, store, repo, _ := setupService(t)
	ctx := context.Background()
	require.NoError(t, store.CreateToken(ctx, "abc123", "EXT-0042"))
	_, err := store.ConsumeToken(ctx, "abc123", "user-1", "guild-1", "rewards:recipients")
	require.NoError(t, err)

	link, err := svc.Status(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "EXT-0042", link.ExternalID)

	mirrored, err := repo.GetByDiscordID("user-1")
	require.NoError(t, err)
	assert.NotNil(t, mirrored)
}

func TestStatus_PrefersLocalMirror(t *testing.T) {
	svc, _, repo, _ := setupService(t)
	repo.links["user-1"] = &models.AccountLink{DiscordID: "user-1", ExternalID: "EXT-0001"}

	link, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "EXT-0001", link.ExternalID)
}
