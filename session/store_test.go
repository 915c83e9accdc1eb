package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/troupe-dev/troupe/core"
)

// Interface compliance (compile-time assertions).
var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ core.SessionStore = (*FileStore)(nil)
	_ core.SessionStore = (*SQLiteStore)(nil)
)

// openStores builds one of each backend so the contract tests run against
// all of them.
func openStores(t *testing.T) map[string]core.SessionStore {
	t.Helper()

	file, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	sqlite, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]core.SessionStore{
		"memory": NewInMemoryStore(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestStores_SaveLoadRoundTrip(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			snap := sampleSnapshot()

			require.NoError(t, store.Save(ctx, "trip-42", snap))

			loaded, err := store.Load(ctx, "trip-42")
			require.NoError(t, err)
			assert.Equal(t, snap.Group, loaded.Group)
			assert.Equal(t, snap.Mode, loaded.Mode)
			assert.Equal(t, snap.Members, loaded.Members, "history must survive save/load unchanged")
			assert.True(t, snap.CreatedAt.Equal(loaded.CreatedAt))

			// Mutating a loaded snapshot never touches the stored one.
			loaded.Members[0].Messages[0].Content = "mutated"
			reloaded, err := store.Load(ctx, "trip-42")
			require.NoError(t, err)
			assert.Equal(t, snap.Members[0].Messages[0].Content, reloaded.Members[0].Messages[0].Content)

			// Saving again under the same id overwrites.
			snap2 := sampleSnapshot()
			snap2.Members[0].LastAnswer = "revised"
			require.NoError(t, store.Save(ctx, "trip-42", snap2))
			reloaded, err = store.Load(ctx, "trip-42")
			require.NoError(t, err)
			assert.Equal(t, "revised", reloaded.Members[0].LastAnswer)
		})
	}
}

func TestStores_MissingSessions(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.Load(ctx, "never-saved")
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
			assert.ErrorIs(t, store.Delete(ctx, "never-saved"), core.ErrSessionNotFound)

			require.NoError(t, store.Save(ctx, "short-lived", sampleSnapshot()))
			require.NoError(t, store.Delete(ctx, "short-lived"))
			_, err = store.Load(ctx, "short-lived")
			assert.ErrorIs(t, err, core.ErrSessionNotFound)
		})
	}
}

func TestStores_List(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ids, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, ids)

			for _, id := range []string{"zeta", "alpha", "mid"} {
				require.NoError(t, store.Save(ctx, id, sampleSnapshot()))
			}
			ids, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
		})
	}
}

func TestStores_RejectInvalidArguments(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Error(t, store.Save(ctx, "", sampleSnapshot()), "empty id")
			assert.Error(t, store.Save(ctx, "id", nil), "nil snapshot")
			_, err := store.Load(ctx, "")
			assert.Error(t, err)
		})
	}
}

func TestFileStore_Layout(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "travel", sampleSnapshot()))

	blob, err := os.ReadFile(filepath.Join(dir, "travel.snap"))
	require.NoError(t, err)
	snap, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, "travel-crew", snap.Group)

	// No staging leftovers after a successful save.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "travel.snap", entries[0].Name())
}

func TestFileStore_RejectsUnsafeIDs(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	for _, id := range []string{"../escape", "a/b", `a\b`, ".", ".."} {
		assert.Error(t, store.Save(ctx, id, sampleSnapshot()), "id %q", id)
		_, err := store.Load(ctx, id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "durable", sampleSnapshot()))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	loaded, err := reopened.Load(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "travel-crew", loaded.Group)
}

func TestFileStore_CorruptBlobSurfaces(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.snap"), []byte("junk"), 0o644))
	_, err = store.Load(ctx, "broken")
	assert.ErrorIs(t, err, ErrCorruptBlob)
	assert.ErrorContains(t, err, "broken")
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "sessions.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "durable", sampleSnapshot()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, "travel-crew", loaded.Group)
	assert.Len(t, loaded.Members, 2)
}

func TestSQLiteStore_MetadataColumns(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, "trip", sampleSnapshot()))

	var groupName, mode string
	err = store.db.QueryRowContext(ctx,
		"SELECT group_name, mode FROM snapshots WHERE id = ?", "trip",
	).Scan(&groupName, &mode)
	require.NoError(t, err)
	assert.Equal(t, "travel-crew", groupName)
	assert.Equal(t, "manager_delegation", mode)
}
