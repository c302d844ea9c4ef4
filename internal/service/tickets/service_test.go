package tickets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/guildbot/internal/config"
	"github.com/calyptra/guildbot/internal/models"
	"github.com/calyptra/guildbot/pkg/logger"
)

type fakeBlobStore struct {
	doc        models.TicketDocument
	configured bool
	readErr    error
	writeErr   error
	writes     int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{configured: true, doc: models.TicketDocument{Tickets: []models.Ticket{}}}
}

func (f *fakeBlobStore) Configured() bool {
	return f.configured
}

func (f *fakeBlobStore) Read(ctx context.Context) (*models.TicketDocument, string, error) {
	if f.readErr != nil {
		return nil, "", f.readErr
	}
	doc := models.TicketDocument{
		Tickets:     append([]models.Ticket{}, f.doc.Tickets...),
		LastUpdated: f.doc.LastUpdated,
	}
	return &doc, "etag", nil
}

func (f *fakeBlobStore) Update(ctx context.Context, mutate func(doc *models.TicketDocument) error) error {
	doc, _, err := f.Read(ctx)
	if err != nil {
		return err
	}
	if err := mutate(doc); err != nil {
		return err
	}
	if f.writeErr != nil {
		return f.writeErr
	}
	f.doc = *doc
	f.writes++
	return nil
}

type fakeChannelManager struct {
	mu        sync.Mutex
	created   []models.Ticket
	deleted   []string
	delays    []time.Duration
	createErr error
	nextID    int
}

func (f *fakeChannelManager) CreateTicketChannel(ctx context.Context, ticket *models.Ticket) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	f.created = append(f.created, *ticket)
	return fmt.Sprintf("chan-%d", f.nextID), nil
}

func (f *fakeChannelManager) ScheduleChannelDelete(channelID string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID)
	f.delays = append(f.delays, delay)
}

func setupService() (*Service, *fakeBlobStore, *fakeChannelManager) {
	store := newFakeBlobStore()
	channels := &fakeChannelManager{}
	cfg := &config.TicketsConfig{
		ChannelPrefix:     "ticket",
		MaxOpenPerUser:    3,
		CloseDelaySeconds: 5,
	}
	svc := NewServiceWithInterfaces(cfg, store, channels, logger.Nop())
	svc.SetClock(func() time.Time { return time.UnixMilli(1749556812345) })
	return svc, store, channels
}

func TestOpen_CreatesChannelAndStoresTicket(t *testing.T) {
	svc, store, channels := setupService()

	ticket, err := svc.Open(context.Background(), "user-1", "alice", "guild-1", models.TicketTypeBug, "it broke")
	require.NoError(t, err)

	assert.Len(t, ticket.TicketID, 6)
	assert.Equal(t, "chan-1", ticket.ChannelID)
	assert.Equal(t, models.TicketStatusOpen, ticket.Status)
	assert.Equal(t, "it broke", ticket.Description)

	require.Len(t, store.doc.Tickets, 1)
	assert.Equal(t, ticket.TicketID, store.doc.Tickets[0].TicketID)
	require.Len(t, channels.created, 1)
}

func TestOpen_InvalidType(t *testing.T) {
	svc, _, channels := setupService()

	_, err := svc.Open(context.Background(), "user-1", "alice", "guild-1", "complaint", "x")
	assert.ErrorIs(t, err, ErrInvalidType)
	assert.Empty(t, channels.created)
}

func TestOpen_CapEnforcedBeforeChannelCreation(t *testing.T) {
	svc, store, channels := setupService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeGeneral, "q")
		require.NoError(t, err)
	}

	created := len(channels.created)
	_, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeGeneral, "q")
	assert.ErrorIs(t, err, ErrTooManyOpen)
	assert.Len(t, channels.created, created)
	assert.Len(t, store.doc.Tickets, 3)

	// A different user is unaffected by the cap.
	_, err = svc.Open(ctx, "user-2", "bob", "guild-1", models.TicketTypeGeneral, "q")
	assert.NoError(t, err)
}

// gatedBlobStore holds every initial Read until all expected readers have
// arrived, so concurrent opens all observe the same stale snapshot before any
// of them commits.
type gatedBlobStore struct {
	mu      sync.Mutex
	doc     models.TicketDocument
	readers int
	arrived int
	barrier chan struct{}
}

func newGatedBlobStore(readers int) *gatedBlobStore {
	return &gatedBlobStore{
		doc:     models.TicketDocument{Tickets: []models.Ticket{}},
		readers: readers,
		barrier: make(chan struct{}),
	}
}

func (g *gatedBlobStore) Configured() bool {
	return true
}

func (g *gatedBlobStore) Read(ctx context.Context) (*models.TicketDocument, string, error) {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.readers {
		close(g.barrier)
	}
	doc := models.TicketDocument{
		Tickets:     append([]models.Ticket{}, g.doc.Tickets...),
		LastUpdated: g.doc.LastUpdated,
	}
	g.mu.Unlock()
	<-g.barrier
	return &doc, "etag", nil
}

func (g *gatedBlobStore) Update(ctx context.Context, mutate func(doc *models.TicketDocument) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	doc := models.TicketDocument{
		Tickets:     append([]models.Ticket{}, g.doc.Tickets...),
		LastUpdated: g.doc.LastUpdated,
	}
	if err := mutate(&doc); err != nil {
		return err
	}
	g.doc = doc
	return nil
}

func TestOpen_ConcurrentOpensRespectCap(t *testing.T) {
	const attempts = 4

	store := newGatedBlobStore(attempts)
	channels := &fakeChannelManager{}
	cfg := &config.TicketsConfig{
		ChannelPrefix:     "ticket",
		MaxOpenPerUser:    3,
		CloseDelaySeconds: 5,
	}
	svc := NewServiceWithInterfaces(cfg, store, channels, logger.Nop())

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Open(context.Background(), "user-1", "alice", "guild-1", models.TicketTypeGeneral, "q")
		}(i)
	}
	wg.Wait()

	opened, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			opened++
		case errors.Is(err, ErrTooManyOpen):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 3, opened)
	assert.Equal(t, 1, rejected)

	stored := 0
	for _, ticket := range store.doc.Tickets {
		if ticket.UserID == "user-1" && ticket.Status == models.TicketStatusOpen {
			stored++
		}
	}
	assert.Equal(t, 3, stored)

	// The rejected attempt had already created its channel; it must be
	// torn down immediately.
	require.Len(t, channels.deleted, 1)
	assert.Equal(t, time.Duration(0), channels.delays[0])
}

func TestOpen_ClosedTicketsDoNotCountTowardCap(t *testing.T) {
	svc, _, _ := setupService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ticket, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeGeneral, "q")
		require.NoError(t, err)
		_, err = svc.CloseByChannel(ctx, ticket.ChannelID, "user-1", false)
		require.NoError(t, err)
	}

	_, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeGeneral, "q")
	assert.NoError(t, err)
}

func TestOpen_StoreUnavailable(t *testing.T) {
	svc, store, _ := setupService()
	store.configured = false

	_, err := svc.Open(context.Background(), "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestOpen_WriteFailureTearsDownChannel(t *testing.T) {
	svc, store, channels := setupService()
	store.writeErr = errors.New("gist down")

	_, err := svc.Open(context.Background(), "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	require.Error(t, err)

	require.Len(t, channels.deleted, 1)
	assert.Equal(t, "chan-1", channels.deleted[0])
	assert.Equal(t, time.Duration(0), channels.delays[0])
}

func TestCloseByChannel_CreatorCloses(t *testing.T) {
	svc, store, channels := setupService()
	ctx := context.Background()

	ticket, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	require.NoError(t, err)

	closed, err := svc.CloseByChannel(ctx, ticket.ChannelID, "user-1", false)
	require.NoError(t, err)

	assert.Equal(t, models.TicketStatusClosed, closed.Status)
	assert.Equal(t, "user-1", closed.ClosedBy)
	require.NotNil(t, closed.ClosedAt)

	assert.Equal(t, models.TicketStatusClosed, store.doc.Tickets[0].Status)
	require.Len(t, channels.deleted, 1)
	assert.Equal(t, 5*time.Second, channels.delays[0])
}

func TestCloseByChannel_AdminCloses(t *testing.T) {
	svc, _, _ := setupService()
	ctx := context.Background()

	ticket, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	require.NoError(t, err)

	closed, err := svc.CloseByChannel(ctx, ticket.ChannelID, "mod-1", true)
	require.NoError(t, err)
	assert.Equal(t, "mod-1", closed.ClosedBy)
}

func TestCloseByChannel_StrangerRejected(t *testing.T) {
	svc, store, channels := setupService()
	ctx := context.Background()

	ticket, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	require.NoError(t, err)

	_, err = svc.CloseByChannel(ctx, ticket.ChannelID, "user-2", false)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, models.TicketStatusOpen, store.doc.Tickets[0].Status)
	assert.Empty(t, channels.deleted)
}

func TestCloseByChannel_RecloseRejected(t *testing.T) {
	svc, store, channels := setupService()
	ctx := context.Background()

	ticket, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	require.NoError(t, err)

	first, err := svc.CloseByChannel(ctx, ticket.ChannelID, "user-1", false)
	require.NoError(t, err)

	_, err = svc.CloseByChannel(ctx, ticket.ChannelID, "mod-1", true)
	assert.ErrorIs(t, err, ErrTicketClosed)

	// The original close metadata survives the rejected attempt.
	assert.Equal(t, "user-1", store.doc.Tickets[0].ClosedBy)
	assert.Equal(t, *first.ClosedAt, *store.doc.Tickets[0].ClosedAt)
	assert.Len(t, channels.deleted, 1)
}

func TestCloseByChannel_UnknownChannel(t *testing.T) {
	svc, _, _ := setupService()

	_, err := svc.CloseByChannel(context.Background(), "chan-404", "user-1", true)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestStats(t *testing.T) {
	svc, _, _ := setupService()
	ctx := context.Background()

	bug, err := svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	require.NoError(t, err)
	_, err = svc.Open(ctx, "user-2", "bob", "guild-1", models.TicketTypeFeature, "y")
	require.NoError(t, err)
	_, err = svc.Open(ctx, "user-3", "carol", "guild-2", models.TicketTypeBug, "z")
	require.NoError(t, err)
	_, err = svc.CloseByChannel(ctx, bug.ChannelID, "user-1", false)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, "guild-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Open)
	assert.Equal(t, 1, stats.Closed)
	assert.Equal(t, map[string]int{"bug": 1, "feature": 1}, stats.ByType)

	all, err := svc.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
}

func TestTestConnection(t *testing.T) {
	svc, store, _ := setupService()
	ctx := context.Background()

	n, err := svc.TestConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = svc.Open(ctx, "user-1", "alice", "guild-1", models.TicketTypeBug, "x")
	require.NoError(t, err)

	n, err = svc.TestConnection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	store.readErr = errors.New("gist down")
	_, err = svc.TestConnection(ctx)
	assert.Error(t, err)
}

func TestTicketIDDerivedFromTime(t *testing.T) {
	id := ticketIDAt(time.UnixMilli(1749556812345))
	assert.Equal(t, "812345", id)

	// Small timestamps still pad to six digits.
	assert.Equal(t, "000042", ticketIDAt(time.UnixMilli(42)))
}
