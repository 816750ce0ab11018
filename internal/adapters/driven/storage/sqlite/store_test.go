package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRecord() driven.CheckpointRecord {
	return driven.CheckpointRecord{
		BackendName: "github",
		Origin:      "https://github.com/acme/widget",
		Category:    "issue",
		Checkpoint: domain.FetchCheckpoint{
			FromDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			Cursor:   "2024-06-15T12:00:00Z",
		},
		Fetched: 240,
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	t.Run("round trips a record", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, sampleRecord()))

		got, err := store.Get(ctx, "github", "https://github.com/acme/widget", "issue")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "2024-06-15T12:00:00Z", got.Checkpoint.Cursor)
		assert.Equal(t, 240, got.Fetched)
		assert.True(t, got.Checkpoint.FromDate.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
		assert.True(t, got.Checkpoint.ToDate.IsZero())
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("save replaces the previous checkpoint", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		require.NoError(t, store.Save(ctx, sampleRecord()))

		rec := sampleRecord()
		rec.Checkpoint.Cursor = "2024-06-20T00:00:00Z"
		rec.Fetched = 300
		require.NoError(t, store.Save(ctx, rec))

		got, err := store.Get(ctx, rec.BackendName, rec.Origin, rec.Category)
		require.NoError(t, err)
		assert.Equal(t, "2024-06-20T00:00:00Z", got.Checkpoint.Cursor)
		assert.Equal(t, 300, got.Fetched)
	})

	t.Run("missing checkpoint is nil without error", func(t *testing.T) {
		store := newTestStore(t)

		got, err := store.Get(context.Background(), "github", "https://github.com/none/none", "issue")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("categories are independent keys", func(t *testing.T) {
		store := newTestStore(t)
		ctx := context.Background()

		issues := sampleRecord()
		pulls := sampleRecord()
		pulls.Category = "pull_request"
		pulls.Checkpoint.Cursor = "elsewhere"

		require.NoError(t, store.Save(ctx, issues))
		require.NoError(t, store.Save(ctx, pulls))

		got, err := store.Get(ctx, issues.BackendName, issues.Origin, "issue")
		require.NoError(t, err)
		assert.Equal(t, issues.Checkpoint.Cursor, got.Checkpoint.Cursor)

		got, err = store.Get(ctx, pulls.BackendName, pulls.Origin, "pull_request")
		require.NoError(t, err)
		assert.Equal(t, "elsewhere", got.Checkpoint.Cursor)
	})
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := sampleRecord()

	require.NoError(t, store.Save(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.BackendName, rec.Origin, rec.Category))

	got, err := store.Get(ctx, rec.BackendName, rec.Origin, rec.Category)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleRecord()
	b := sampleRecord()
	b.Origin = "https://github.com/acme/gadget"

	require.NoError(t, store.Save(ctx, a))
	require.NoError(t, store.Save(ctx, b))

	recs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://github.com/acme/gadget", recs[0].Origin, "sorted by key")
}

func TestStorePersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleRecord()))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "github", "https://github.com/acme/widget", "issue")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-06-15T12:00:00Z", got.Checkpoint.Cursor)
}
