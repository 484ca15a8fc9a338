package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

var errBackendDown = errors.New("connection refused")

// faultyStore fails Begin, or hands out transactions whose reads fail.
type faultyStore struct {
	beginErr  error
	readErr   error
	committed int
	rolled    int
}

func (s *faultyStore) Begin(ctx context.Context) (graphstore.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	return &faultyTx{store: s}, nil
}

func (s *faultyStore) Close(ctx context.Context) error { return nil }

type faultyTx struct {
	graphstore.Tx
	store *faultyStore
}

func (t *faultyTx) GetVertex(ctx context.Context, id string) (*graphstore.Vertex, error) {
	return nil, t.store.readErr
}

func (t *faultyTx) Commit(ctx context.Context) error {
	t.store.committed++
	return nil
}

func (t *faultyTx) Rollback(ctx context.Context) error {
	t.store.rolled++
	return nil
}

func TestInTx_ClassifiesStoreFaults(t *testing.T) {
	ctx := context.Background()

	store := &faultyStore{beginErr: errBackendDown}
	_, err := inTx(ctx, store, func(tx graphstore.Tx) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBackendDown)

	store = &faultyStore{readErr: errBackendDown}
	_, err = inTx(ctx, store, func(tx graphstore.Tx) (*models.User, error) { return loadUser(ctx, tx, "u1") })
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidReference, "store faults are never not-found")
	assert.Equal(t, 1, store.rolled)
	assert.Zero(t, store.committed)

	store = &faultyStore{readErr: graphstore.ErrNotFound}
	_, err = inTx(ctx, store, func(tx graphstore.Tx) (*models.User, error) { return loadUser(ctx, tx, "u1") })
	assert.ErrorIs(t, err, apperrors.ErrInvalidReference)
	assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	store := &faultyStore{}
	got, err := inTx(context.Background(), store, func(tx graphstore.Tx) (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, store.committed)
	assert.Zero(t, store.rolled)
}

func TestClassify_KeepsDomainErrors(t *testing.T) {
	for _, sentinel := range []error{
		apperrors.ErrDuplicateRelationship,
		apperrors.ErrAlreadyInLocation,
		locking.ErrLockTimeout,
		context.Canceled,
	} {
		err := classify(fmt.Errorf("op: %w", sentinel))
		assert.ErrorIs(t, err, sentinel)
		assert.NotErrorIs(t, err, apperrors.ErrStoreUnavailable)
	}
}

func TestServices_SurfaceStoreUnavailable(t *testing.T) {
	store := &faultyStore{beginErr: errBackendDown}
	registry := NewRegistryService(store, locking.NewKeyedMutex(), nil, zap.NewNop())

	_, err := registry.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
}
