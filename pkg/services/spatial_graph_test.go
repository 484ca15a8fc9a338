package services

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/geo"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

func locationIDs(locations []*models.Location) []string {
	out := make([]string, 0, len(locations))
	for _, l := range locations {
		out = append(out, l.ID)
	}
	return out
}

func TestNearby_Scenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.location(t, "a", nil)
	b := env.location(t, "b", nil)

	ok, err := env.spatial.AddNearby(ctx, a, b, 10)
	require.NoError(t, err)
	assert.True(t, ok)

	near, err := env.spatial.IsNearby(ctx, a, b, 9)
	require.NoError(t, err)
	assert.False(t, near)

	near, err = env.spatial.IsNearby(ctx, a, b, 10)
	require.NoError(t, err)
	assert.True(t, near)

	near, err = env.spatial.IsNearby(ctx, b, a, 10)
	require.NoError(t, err)
	assert.True(t, near, "nearby is symmetric")

	_, err = env.spatial.AddNearby(ctx, a, b, 3)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRelationship)
	_, err = env.spatial.AddNearby(ctx, b, a, 3)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRelationship)
}

func TestNearby_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.location(t, "a", nil)
	b := env.location(t, "b", nil)

	_, err := env.spatial.AddNearby(ctx, a, a, 1)
	assert.ErrorIs(t, err, apperrors.ErrConstraintViolation)
	_, err = env.spatial.AddNearby(ctx, a, b, -1)
	assert.ErrorIs(t, err, apperrors.ErrConstraintViolation)
	_, err = env.spatial.AddNearby(ctx, a, b, math.NaN())
	assert.ErrorIs(t, err, apperrors.ErrConstraintViolation)
	_, err = env.spatial.AddNearby(ctx, a, "missing", 1)
	assert.ErrorIs(t, err, apperrors.ErrInvalidReference)
}

func TestNearby_UpdateAndRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.location(t, "a", nil)
	b := env.location(t, "b", nil)

	ok, err := env.spatial.UpdateNearby(ctx, a, b, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.spatial.AddNearby(ctx, a, b, 50)
	require.NoError(t, err)

	ok, err = env.spatial.UpdateNearby(ctx, b, a, 5)
	require.NoError(t, err)
	assert.True(t, ok, "either orientation finds the edge")
	near, err := env.spatial.IsNearby(ctx, a, b, 5)
	require.NoError(t, err)
	assert.True(t, near)

	ok, err = env.spatial.RemoveNearby(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.spatial.RemoveNearby(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetNearby(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	hub := env.location(t, "hub", nil)
	close1 := env.location(t, "close", nil)
	far := env.location(t, "far", nil)
	close2 := env.location(t, "close too", nil)

	_, err := env.spatial.AddNearby(ctx, hub, close1, 5)
	require.NoError(t, err)
	_, err = env.spatial.AddNearby(ctx, far, hub, 500)
	require.NoError(t, err)
	_, err = env.spatial.AddNearby(ctx, close2, hub, 8)
	require.NoError(t, err)

	within10, err := env.spatial.GetNearby(ctx, hub, 10, 0)
	require.NoError(t, err)
	require.Len(t, within10, 2)
	assert.Equal(t, close1, within10[0].Location.ID)
	assert.InDelta(t, 5, within10[0].Distance, 1e-9)
	assert.Equal(t, close2, within10[1].Location.ID)

	all, err := env.spatial.GetNearby(ctx, hub, -1, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := env.spatial.GetNearby(ctx, hub, -1, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = env.spatial.GetNearby(ctx, "missing", -1, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidReference)
}

func TestWithin_Scenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.location(t, "room", nil)
	b := env.location(t, "building", nil)

	ok, err := env.spatial.AddWithin(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, ok)

	children, err := env.spatial.GetWithin(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, children, "nothing is within the room")

	children, err = env.spatial.GetWithin(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, locationIDs(children))

	parents, err := env.spatial.GetContaining(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, locationIDs(parents))

	parents, err = env.spatial.GetContaining(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, parents)

	within, err := env.spatial.IsWithin(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, within)
	within, err = env.spatial.IsWithin(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, within, "within is directed")

	_, err = env.spatial.AddWithin(ctx, a, b)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRelationship)
}

func TestWithin_SingleHopAndCycles(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	room := env.location(t, "room", nil)
	floor := env.location(t, "floor", nil)
	building := env.location(t, "building", nil)

	_, err := env.spatial.AddWithin(ctx, room, floor)
	require.NoError(t, err)
	_, err = env.spatial.AddWithin(ctx, floor, building)
	require.NoError(t, err)

	children, err := env.spatial.GetWithin(ctx, building)
	require.NoError(t, err)
	assert.Equal(t, []string{floor}, locationIDs(children), "no transitive closure")

	_, err = env.spatial.AddWithin(ctx, building, room)
	require.NoError(t, err, "cycles are accepted")

	ok, err := env.spatial.RemoveWithin(ctx, building, room)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.spatial.RemoveWithin(ctx, building, room)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocationDistance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	paris := &models.Coordinates{Latitude: 48.8566, Longitude: 2.3522}
	london := &models.Coordinates{Latitude: 51.5074, Longitude: -0.1278}
	p := env.location(t, "paris", paris)
	l := env.location(t, "london", london)
	room := env.location(t, "room", nil)
	hall := env.location(t, "hall", nil)
	attic := env.location(t, "attic", nil)

	d, ok, err := env.spatial.LocationDistance(ctx, p, l)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, geo.Distance(*paris, *london), d, 1e-6)

	back, _, err := env.spatial.LocationDistance(ctx, l, p)
	require.NoError(t, err)
	assert.Equal(t, d, back)

	d, ok, err = env.spatial.LocationDistance(ctx, room, room)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, d)

	_, err = env.spatial.AddNearby(ctx, room, hall, 12)
	require.NoError(t, err)
	d, ok, err = env.spatial.LocationDistance(ctx, hall, room)
	require.NoError(t, err)
	assert.True(t, ok, "falls back to the nearby edge")
	assert.InDelta(t, 12, d, 1e-9)

	_, ok, err = env.spatial.LocationDistance(ctx, room, attic)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = env.spatial.LocationDistance(ctx, room, "missing")
	assert.ErrorIs(t, err, apperrors.ErrInvalidReference)
}
