// Package graphstoretest holds the behavior every graphstore backend must share.
package graphstoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
)

// Run executes the contract tests against stores produced by newStore.
// Each subtest gets a fresh store or, for shared backends, one it may write to freely.
func Run(t *testing.T, newStore func(t *testing.T) graphstore.Store) {
	t.Run("CommitMakesWritesVisible", func(t *testing.T) { testCommit(t, newStore(t)) })
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("PropertyKinds", func(t *testing.T) { testPropertyKinds(t, newStore(t)) })
	t.Run("QueryVertices", func(t *testing.T) { testQueryVertices(t, newStore(t)) })
	t.Run("QueryEdges", func(t *testing.T) { testQueryEdges(t, newStore(t)) })
	t.Run("RemoveVertexCascades", func(t *testing.T) { testRemoveVertex(t, newStore(t)) })
	t.Run("MissingIDs", func(t *testing.T) { testMissing(t, newStore(t)) })
}

func begin(t *testing.T, s graphstore.Store) graphstore.Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

func testCommit(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	tx := begin(t, s)
	id, err := tx.CreateVertex(ctx, "user", graphstore.Properties{"name": "ada"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Commit(ctx), graphstore.ErrTxDone)

	tx = begin(t, s)
	v, err := tx.GetVertex(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, v.ID)
	assert.Equal(t, "user", v.Type)
	assert.Equal(t, "ada", v.Properties.String("name"))
}

func testRollback(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	tx := begin(t, s)
	keep, err := tx.CreateVertex(ctx, "location", graphstore.Properties{"description": "kept"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx = begin(t, s)
	gone, err := tx.CreateVertex(ctx, "location", nil)
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(ctx, keep, "description", "changed"))
	_, err = tx.AddEdge(ctx, keep, gone, "within", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	tx = begin(t, s)
	_, err = tx.GetVertex(ctx, gone)
	assert.ErrorIs(t, err, graphstore.ErrNotFound)
	v, err := tx.GetVertex(ctx, keep)
	require.NoError(t, err)
	assert.Equal(t, "kept", v.Properties.String("description"))
	edges, err := tx.QueryEdges(ctx, keep, graphstore.Both, "within", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func testPropertyKinds(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	at := time.Date(2024, 3, 9, 8, 30, 0, 123, time.UTC)

	tx := begin(t, s)
	id, err := tx.CreateVertex(ctx, "locality", graphstore.Properties{
		"source":  "manual",
		"active":  true,
		"count":   7,
		"ratio":   0.25,
		"arrival": at,
		"skipped": nil,
	})
	require.NoError(t, err)
	require.NoError(t, tx.SetProperty(ctx, id, "active", false))
	require.NoError(t, tx.SetProperty(ctx, id, "source", nil))

	v, err := tx.GetVertex(ctx, id)
	require.NoError(t, err)
	_, hasSource := v.Properties["source"]
	assert.False(t, hasSource)
	_, hasSkipped := v.Properties["skipped"]
	assert.False(t, hasSkipped)
	assert.False(t, v.Properties.Bool("active"))
	n, ok := v.Properties.Int("count")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)
	f, ok := v.Properties.Float("ratio")
	assert.True(t, ok)
	assert.InDelta(t, 0.25, f, 1e-9)
	got, ok := v.Properties.Time("arrival")
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
}

func testQueryVertices(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	owner := "owner-" + time.Now().Format("150405.000000000")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tx := begin(t, s)
	var ids []string
	for i := 0; i < 4; i++ {
		id, err := tx.CreateVertex(ctx, "locality", graphstore.Properties{
			"user_id": owner,
			"arrival": base.Add(time.Duration(i) * time.Minute),
			"rank":    i,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := tx.QueryVertices(ctx, "locality", []graphstore.Filter{graphstore.Eq("user_id", owner)}, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, v := range all {
		assert.Equal(t, ids[i], v.ID, "creation order")
	}

	window, err := tx.QueryVertices(ctx, "locality", []graphstore.Filter{
		graphstore.Eq("user_id", owner),
		graphstore.Gt("arrival", base),
		graphstore.Lt("arrival", base.Add(3*time.Minute)),
	}, 0)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, ids[1], window[0].ID)
	assert.Equal(t, ids[2], window[1].ID)

	numeric, err := tx.QueryVertices(ctx, "locality", []graphstore.Filter{
		graphstore.Eq("user_id", owner),
		graphstore.Gte("rank", 1.5),
	}, 1)
	require.NoError(t, err)
	require.Len(t, numeric, 1)
	assert.Equal(t, ids[2], numeric[0].ID)

	mismatched, err := tx.QueryVertices(ctx, "locality", []graphstore.Filter{graphstore.Eq("user_id", 42)}, 0)
	require.NoError(t, err)
	assert.Empty(t, mismatched)
}

func testQueryEdges(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	tx := begin(t, s)
	a, err := tx.CreateVertex(ctx, "user", nil)
	require.NoError(t, err)
	b, err := tx.CreateVertex(ctx, "user", nil)
	require.NoError(t, err)
	c, err := tx.CreateVertex(ctx, "user", nil)
	require.NoError(t, err)

	ab, err := tx.AddEdge(ctx, a, b, "knows", graphstore.Properties{"strength": 40, graphstore.TargetKey: b})
	require.NoError(t, err)
	_, err = tx.AddEdge(ctx, c, a, "knows", graphstore.Properties{"strength": 90, graphstore.TargetKey: a})
	require.NoError(t, err)
	_, err = tx.AddEdge(ctx, a, c, "within", nil)
	require.NoError(t, err)

	out, err := tx.QueryEdges(ctx, a, graphstore.Outbound, "knows", nil, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ab, out[0].ID)
	assert.Equal(t, a, out[0].From)
	assert.Equal(t, b, out[0].To)
	assert.Equal(t, "knows", out[0].Label)

	in, err := tx.QueryEdges(ctx, a, graphstore.Inbound, "knows", nil, 0)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, c, in[0].From)

	both, err := tx.QueryEdges(ctx, a, graphstore.Both, "knows", nil, 0)
	require.NoError(t, err)
	assert.Len(t, both, 2)

	strong, err := tx.QueryEdges(ctx, a, graphstore.Both, "knows", []graphstore.Filter{graphstore.Gte("strength", 50)}, 0)
	require.NoError(t, err)
	require.Len(t, strong, 1)
	assert.Equal(t, c, strong[0].Other(a))

	exact, err := tx.QueryEdges(ctx, a, graphstore.Outbound, "knows", []graphstore.Filter{graphstore.Eq(graphstore.TargetKey, b)}, 1)
	require.NoError(t, err)
	assert.Len(t, exact, 1)

	require.NoError(t, tx.SetEdgeProperty(ctx, ab, "strength", 55))
	require.NoError(t, tx.RemoveEdge(ctx, ab))
	out, err = tx.QueryEdges(ctx, a, graphstore.Outbound, "knows", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func testRemoveVertex(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	tx := begin(t, s)
	a, err := tx.CreateVertex(ctx, "location", nil)
	require.NoError(t, err)
	b, err := tx.CreateVertex(ctx, "location", nil)
	require.NoError(t, err)
	edge, err := tx.AddEdge(ctx, a, b, "nearby", graphstore.Properties{"distance": 12.5})
	require.NoError(t, err)

	require.NoError(t, tx.RemoveVertex(ctx, b))
	edges, err := tx.QueryEdges(ctx, a, graphstore.Both, "nearby", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, edges)
	assert.ErrorIs(t, tx.RemoveEdge(ctx, edge), graphstore.ErrNotFound)
}

func testMissing(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	tx := begin(t, s)
	a, err := tx.CreateVertex(ctx, "user", nil)
	require.NoError(t, err)

	_, err = tx.GetVertex(ctx, "does-not-exist")
	assert.True(t, errors.Is(err, graphstore.ErrNotFound))
	assert.ErrorIs(t, tx.SetProperty(ctx, "does-not-exist", "k", "v"), graphstore.ErrNotFound)
	assert.ErrorIs(t, tx.RemoveVertex(ctx, "does-not-exist"), graphstore.ErrNotFound)
	_, err = tx.AddEdge(ctx, a, "does-not-exist", "knows", nil)
	assert.ErrorIs(t, err, graphstore.ErrNotFound)
	assert.ErrorIs(t, tx.SetEdgeProperty(ctx, "does-not-exist", "k", 1), graphstore.ErrNotFound)
}
