package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/codec"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/metrics"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// inTx runs fn inside one store transaction. The transaction commits only if fn
// succeeds; any error rolls it back. Errors that are not domain errors are
// reported as ErrStoreUnavailable.
func inTx[T any](ctx context.Context, store graphstore.Store, fn func(tx graphstore.Tx) (T, error)) (result T, err error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return result, storeFault("begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	result, err = fn(tx)
	if err != nil {
		return result, classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return result, storeFault("commit", err)
	}
	return result, nil
}

var domainErrors = []error{
	apperrors.ErrNotFound,
	apperrors.ErrConflict,
	apperrors.ErrInvalidReference,
	apperrors.ErrAmbiguousResolution,
	apperrors.ErrDuplicateRelationship,
	apperrors.ErrAlreadyInLocation,
	apperrors.ErrConstraintViolation,
	apperrors.ErrStoreUnavailable,
	locking.ErrLockTimeout,
	context.Canceled,
	context.DeadlineExceeded,
}

// classify leaves domain and context errors alone and marks everything else as a store fault.
func classify(err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
}

func storeFault(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, apperrors.ErrStoreUnavailable, err)
}

// load fetches id and decodes it. A missing vertex, or one of another kind, is an invalid reference.
func load[T any](ctx context.Context, tx graphstore.Tx, kind, id string, decode func(*graphstore.Vertex) (T, error)) (T, error) {
	var zero T
	if err := codec.ValidateID(kind, id); err != nil {
		return zero, err
	}
	v, err := tx.GetVertex(ctx, id)
	if errors.Is(err, graphstore.ErrNotFound) {
		return zero, fmt.Errorf("%s %s does not exist: %w", kind, id, apperrors.ErrInvalidReference)
	}
	if err != nil {
		return zero, storeFault("get "+kind, err)
	}
	return decode(v)
}

func loadUser(ctx context.Context, tx graphstore.Tx, id string) (*models.User, error) {
	return load(ctx, tx, "user", id, codec.DecodeUser)
}

func loadDevice(ctx context.Context, tx graphstore.Tx, id string) (*models.Device, error) {
	return load(ctx, tx, "device", id, codec.DecodeDevice)
}

func loadLocation(ctx context.Context, tx graphstore.Tx, id string) (*models.Location, error) {
	return load(ctx, tx, "location", id, codec.DecodeLocation)
}

func loadLocality(ctx context.Context, tx graphstore.Tx, id string) (*models.Locality, error) {
	return load(ctx, tx, "locality", id, codec.DecodeLocality)
}

// loadSignal also resolves the Location bound through the contains edge.
func loadSignal(ctx context.Context, tx graphstore.Tx, id string) (*models.Signal, error) {
	sig, err := load(ctx, tx, "signal", id, codec.DecodeSignal)
	if err != nil {
		return nil, err
	}
	sig.LocationID, err = signalLocation(ctx, tx, sig.ID)
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// signalLocation returns the id of the single Location containing signalID.
func signalLocation(ctx context.Context, tx graphstore.Tx, signalID string) (string, error) {
	edges, err := tx.QueryEdges(ctx, signalID, graphstore.Inbound, graphstore.LabelContains, nil, 2)
	if err != nil {
		return "", storeFault("query contains edges", err)
	}
	switch len(edges) {
	case 0:
		return "", fmt.Errorf("signal %s is not bound to a location: %w", signalID, apperrors.ErrInvalidReference)
	case 1:
		return edges[0].From, nil
	default:
		return "", fmt.Errorf("signal %s is bound to %d locations: %w", signalID, len(edges), apperrors.ErrAmbiguousResolution)
	}
}

// findEdge returns the first label edge from -> to, or nil.
func findEdge(ctx context.Context, tx graphstore.Tx, from, to, label string) (*graphstore.Edge, error) {
	edges, err := tx.QueryEdges(ctx, from, graphstore.Outbound, label,
		[]graphstore.Filter{graphstore.Eq(graphstore.TargetKey, to)}, 1)
	if err != nil {
		return nil, storeFault("query "+label+" edges", err)
	}
	if len(edges) == 0 {
		return nil, nil
	}
	return edges[0], nil
}

// keyLock serializes check-then-act sequences on one key and records how long callers waited.
type keyLock struct {
	locker  locking.Locker
	metrics *metrics.Metrics
}

func (k keyLock) acquire(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	unlock, err := k.locker.Lock(ctx, key)
	k.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return unlock, nil
}
