package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBoltStore_CreateAndGet(t *testing.T) {
	s := openTestBoltStore(t)
	ctx := context.Background()
	r := &Record{RunID: "r1", PieceName: "demo", Status: "completed", Iteration: 3}
	require.NoError(t, s.Create(ctx, r))

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.PieceName)
	assert.Equal(t, 3, got.Iteration)
}

func TestBoltStore_GetMissingReturnsError(t *testing.T) {
	s := openTestBoltStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.Error(t, err)
}

func TestBoltStore_ListRecentOrdersNewestFirstAndRespectsLimit(t *testing.T) {
	s := openTestBoltStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, &Record{RunID: "oldest", StartedAt: base}))
	require.NoError(t, s.Create(ctx, &Record{RunID: "newest", StartedAt: base.Add(2 * time.Hour)}))
	require.NoError(t, s.Create(ctx, &Record{RunID: "middle", StartedAt: base.Add(time.Hour)}))

	all, err := s.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "newest", all[0].RunID)
	assert.Equal(t, "oldest", all[2].RunID)

	limited, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestBoltStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), &Record{RunID: "r1", PieceName: "demo"}))
	require.NoError(t, s.Close())

	reopened, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.PieceName)
}
