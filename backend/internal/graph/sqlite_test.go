package graph

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindgraph/backend/internal/state"
	apperrors "mindgraph/backend/pkg/errors"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "maps.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newRecord(id, owner string, at time.Time) *state.MapRecord {
	return &state.MapRecord{ID: id, OwnerID: owner, CreatedAt: at, UpdatedAt: at}
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, newRecord("m1", "alice", now)))

	rec, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.OwnerID)
	assert.Equal(t, int64(0), rec.Revision)
	assert.Empty(t, rec.Graph.Nodes)
	assert.True(t, rec.CreatedAt.Equal(now))

	assert.Error(t, store.Create(ctx, newRecord("m1", "bob", now)), "duplicate id")
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestSQLiteStore_PutRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newRecord("m1", "alice", time.Now())))

	g := state.Graph{
		Nodes: []state.Node{
			{ID: state.AnchorNodeID, Label: "Ada", Kind: state.AnchorNodeKind},
			{ID: "n1", Label: "Rex", Kind: state.DefaultNodeKind, Position: state.Position{X: 10, Y: -4.5}},
		},
		Edges: []state.Edge{{ID: "e1", Source: state.AnchorNodeID, Target: "n1"}},
	}

	rev, err := store.Put(ctx, "m1", g, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	rec, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, g, rec.Graph)
	assert.Equal(t, int64(1), rec.Revision)
}

func TestSQLiteStore_PutStaleRevision(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newRecord("m1", "alice", time.Now())))

	_, err := store.Put(ctx, "m1", state.Graph{}, 0)
	require.NoError(t, err)

	_, err = store.Put(ctx, "m1", state.Graph{}, 0)
	require.Error(t, err)
	var cm *apperrors.ErrConcurrentModification
	require.ErrorAs(t, err, &cm)
	assert.Equal(t, int64(0), cm.Expected)
	assert.Equal(t, int64(1), cm.Actual)
}

func TestSQLiteStore_PutMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Put(context.Background(), "ghost", state.Graph{}, 0)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestSQLiteStore_ConcurrentPutsOneWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newRecord("m1", "alice", time.Now())))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(ctx, "m1", state.Graph{}, 0); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	rec, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Revision)
}

func TestSQLiteStore_ListByOwner(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, store.Create(ctx, newRecord("old", "alice", base.Add(-time.Hour))))
	require.NoError(t, store.Create(ctx, newRecord("new", "alice", base)))
	require.NoError(t, store.Create(ctx, newRecord("other", "bob", base)))

	list, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)

	list, err = store.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)
}
