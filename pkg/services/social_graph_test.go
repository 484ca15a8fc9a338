package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

func contactIDs(contacts []*models.Contact) []string {
	out := make([]string, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c.User.ID)
	}
	return out
}

func TestAddKnows_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a")
	b := env.user(t, "b")

	tests := []struct {
		name     string
		from, to string
		strength int
		wantErr  error
	}{
		{name: "self", from: a, to: a, strength: 50, wantErr: apperrors.ErrConstraintViolation},
		{name: "strength below range", from: a, to: b, strength: -1, wantErr: apperrors.ErrConstraintViolation},
		{name: "strength above range", from: a, to: b, strength: 101, wantErr: apperrors.ErrConstraintViolation},
		{name: "unknown target", from: a, to: "missing", strength: 50, wantErr: apperrors.ErrInvalidReference},
		{name: "empty source", from: "", to: b, strength: 50, wantErr: apperrors.ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := env.social.AddKnows(ctx, tt.from, tt.to, tt.strength)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, ok)
		})
	}

	for _, strength := range []int{models.MinStrength, models.MaxStrength} {
		c := env.user(t, "edge")
		ok, err := env.social.AddKnows(ctx, a, c, strength)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestAddKnows_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a")
	b := env.user(t, "b")

	ok, err := env.social.AddKnows(ctx, a, b, 70)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = env.social.AddKnows(ctx, a, b, 10)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRelationship)

	ok, err = env.social.AddKnows(ctx, b, a, 10)
	require.NoError(t, err, "the reverse direction is a separate relationship")
	assert.True(t, ok)
}

func TestKnows_Directed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a")
	b := env.user(t, "b")
	_, err := env.social.AddKnows(ctx, a, b, 60)
	require.NoError(t, err)

	out, err := env.social.GetKnows(ctx, b, 0, models.DirectionOutbound, 0)
	require.NoError(t, err)
	assert.Empty(t, out)

	in, err := env.social.GetKnows(ctx, b, 0, models.DirectionInbound, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, contactIDs(in))
	assert.Equal(t, 60, in[0].Strength)

	out, err = env.social.GetKnows(ctx, a, 0, models.DirectionOutbound, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, contactIDs(out))
}

func TestGetKnows_StrengthAndLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a")
	var friends []string
	for _, strength := range []int{90, 40, 60, 10} {
		f := env.user(t, "friend")
		_, err := env.social.AddKnows(ctx, a, f, strength)
		require.NoError(t, err)
		friends = append(friends, f)
	}

	strong, err := env.social.GetKnows(ctx, a, 50, models.DirectionOutbound, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{friends[0], friends[2]}, contactIDs(strong))

	limited, err := env.social.GetKnows(ctx, a, 0, models.DirectionOutbound, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{friends[0], friends[1]}, contactIDs(limited))

	_, err = env.social.GetKnows(ctx, "missing", 0, models.DirectionOutbound, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidReference)
	_, err = env.social.GetKnows(ctx, a, 0, models.Direction("sideways"), 0)
	assert.ErrorIs(t, err, apperrors.ErrConstraintViolation)
}

func TestUpdateAndRemoveKnows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.user(t, "a")
	b := env.user(t, "b")

	ok, err := env.social.UpdateKnows(ctx, a, b, 30)
	require.NoError(t, err)
	assert.False(t, ok, "no relationship to update")

	_, err = env.social.AddKnows(ctx, a, b, 20)
	require.NoError(t, err)

	ok, err = env.social.UpdateKnows(ctx, a, b, 80)
	require.NoError(t, err)
	assert.True(t, ok)
	strength, found, err := env.social.GetStrength(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 80, strength)

	_, err = env.social.UpdateKnows(ctx, a, b, 200)
	assert.ErrorIs(t, err, apperrors.ErrConstraintViolation)

	ok, err = env.social.RemoveKnows(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = env.social.RemoveKnows(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err = env.social.GetStrength(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, found)
}
