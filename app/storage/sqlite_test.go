package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/you/disdrop/pkg/entities"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	store, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSeenNamesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	names, err := store.SeenNames(ctx, "222")
	require.NoError(t, err)
	require.Empty(t, names)

	require.NoError(t, store.AddSeenNames(ctx, "222", []string{"movie.mp4", "clip_part1.gif"}))
	// Duplicates are ignored.
	require.NoError(t, store.AddSeenNames(ctx, "222", []string{"movie.mp4"}))

	names, err = store.SeenNames(ctx, "222")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"movie.mp4", "clip_part1.gif"}, names)

	// Channels do not share names.
	names, err = store.SeenNames(ctx, "333")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestSaveResult(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res := entities.SendResult{
		Group: entities.MediaGroup{
			Files: []entities.MediaFile{
				{Base: "clip_part1.mp4"},
				{Base: "clip_part1.gif"},
			},
		},
		Outcome: entities.OutcomeFailed,
		Err:     "discord: HTTP 500",
	}
	require.NoError(t, store.SaveResult(ctx, "run-1", "222", res))

	var count int
	err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM send_results WHERE run_id = ?", "run-1").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
