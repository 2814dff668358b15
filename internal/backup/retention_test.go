package backup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivestash/drivestash/internal/drive"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeStore stubs the drive query/delete surface for retention tests.
type fakeStore struct {
	mu      sync.Mutex
	nodes   []drive.Node
	deleted []string
	listErr error
	failIDs map[string]error
	filters []string
}

func (f *fakeStore) List(_ context.Context, filter, _, _ string) ([]drive.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filters = append(f.filters, filter)

	if f.listErr != nil {
		return nil, f.listErr
	}

	return f.nodes, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.failIDs[id]; ok {
		return err
	}

	f.deleted = append(f.deleted, id)

	return nil
}

// pinnedPurger returns a Purger whose clock is frozen at now.
func pinnedPurger(store *fakeStore, now time.Time) *Purger {
	p := NewPurger(store, testLogger())
	p.now = func() time.Time { return now }

	return p
}

func TestPurgeSelectsStrictlyOlderThanCutoff(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	store := &fakeStore{nodes: []drive.Node{
		{ID: "old", Name: "old.bkp", ModifiedAt: now.AddDate(0, 0, -11)},
		{ID: "edge", Name: "edge.bkp", ModifiedAt: now.AddDate(0, 0, -10)},
		{ID: "new", Name: "new.bkp", ModifiedAt: now.AddDate(0, 0, -9)},
	}}

	deleted, err := pinnedPurger(store, now).PurgeOlderThan(context.Background(), "host-folder", 10)
	require.NoError(t, err)

	// Exactly the 11-day-old node falls before the 10-day cutoff; the node
	// at exactly the boundary survives (strict less-than comparator).
	assert.Equal(t, 1, deleted)
	assert.Equal(t, []string{"old"}, store.deleted)
}

func TestPurgeFilterCarriesCutoffPredicate(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{}

	_, err := pinnedPurger(store, now).PurgeOlderThan(context.Background(), "host-folder", 10)
	require.NoError(t, err)

	require.Len(t, store.filters, 1)
	assert.Contains(t, store.filters[0], "'host-folder' in parents")
	assert.Contains(t, store.filters[0], "modifiedTime < '2026-08-21T00:00:00Z'")
}

func TestPurgeEmptyListingMeansNothingToDelete(t *testing.T) {
	store := &fakeStore{}

	deleted, err := pinnedPurger(store, time.Now()).PurgeOlderThan(context.Background(), "host-folder", 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPurgeContinuesPastFailures(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -30)

	bad := errors.New("delete refused")
	store := &fakeStore{
		nodes: []drive.Node{
			{ID: "a", Name: "a.bkp", ModifiedAt: old},
			{ID: "b", Name: "b.bkp", ModifiedAt: old},
			{ID: "c", Name: "c.bkp", ModifiedAt: old},
		},
		failIDs: map[string]error{"b": bad},
	}

	deleted, err := pinnedPurger(store, now).PurgeOlderThan(context.Background(), "host-folder", 10)

	// The failure on b must not prevent a and c, and must surface in the
	// aggregated error.
	assert.Equal(t, 2, deleted)
	assert.Equal(t, []string{"a", "c"}, store.deleted)
	require.Error(t, err)
	assert.ErrorIs(t, err, bad)
}

func TestPurgeRejectsNonPositiveWindow(t *testing.T) {
	store := &fakeStore{}

	_, err := pinnedPurger(store, time.Now()).PurgeOlderThan(context.Background(), "host-folder", 0)
	require.Error(t, err)
}

func TestPurgePropagatesListFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("listing broke")}

	_, err := pinnedPurger(store, time.Now()).PurgeOlderThan(context.Background(), "host-folder", 10)
	require.Error(t, err)
	assert.Empty(t, store.deleted)
}
