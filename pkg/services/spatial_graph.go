package services

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/codec"
	"github.com/ekaya-inc/whereabouts/pkg/geo"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/metrics"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// SpatialGraphService manages containment (within) and adjacency (nearby) between locations.
//
// within is directed inner -> outer and single hop: GetWithin and GetContaining
// return direct neighbors only. Cycles are not rejected.
// nearby is symmetric and carries a distance in meters.
type SpatialGraphService interface {
	AddWithin(ctx context.Context, innerID, outerID string) (bool, error)
	RemoveWithin(ctx context.Context, innerID, outerID string) (bool, error)
	IsWithin(ctx context.Context, innerID, outerID string) (bool, error)
	// GetWithin returns the locations directly within locationID.
	GetWithin(ctx context.Context, locationID string) ([]*models.Location, error)
	// GetContaining returns the locations that directly contain locationID.
	GetContaining(ctx context.Context, locationID string) ([]*models.Location, error)

	AddNearby(ctx context.Context, aID, bID string, distance float64) (bool, error)
	UpdateNearby(ctx context.Context, aID, bID string, distance float64) (bool, error)
	RemoveNearby(ctx context.Context, aID, bID string) (bool, error)
	IsNearby(ctx context.Context, aID, bID string, maxDistance float64) (bool, error)
	// GetNearby lists neighbors of locationID within maxDistance. A negative
	// maxDistance means unbounded, a limit <= 0 means no limit.
	GetNearby(ctx context.Context, locationID string, maxDistance float64, limit int) ([]*models.Nearby, error)
	// LocationDistance returns the distance between two locations from their
	// coordinates, or from a nearby edge when either has none. ok is false when
	// neither source is available.
	LocationDistance(ctx context.Context, aID, bID string) (distance float64, ok bool, err error)
}

type spatialGraphService struct {
	store  graphstore.Store
	locks  keyLock
	logger *zap.Logger
}

var _ SpatialGraphService = (*spatialGraphService)(nil)

func NewSpatialGraphService(store graphstore.Store, locker locking.Locker, m *metrics.Metrics, logger *zap.Logger) SpatialGraphService {
	return &spatialGraphService{
		store:  store,
		locks:  keyLock{locker: locker, metrics: m},
		logger: logger.Named("spatial"),
	}
}

func validatePair(a, b string) error {
	if err := codec.ValidateID("location", a); err != nil {
		return err
	}
	return codec.ValidateID("location", b)
}

func (s *spatialGraphService) AddWithin(ctx context.Context, innerID, outerID string) (bool, error) {
	if err := validatePair(innerID, outerID); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.WithinKey(innerID, outerID))
	if err != nil {
		return false, err
	}
	defer unlock()

	_, err = inTx(ctx, s.store, func(tx graphstore.Tx) (string, error) {
		if _, err := loadLocation(ctx, tx, innerID); err != nil {
			return "", err
		}
		if _, err := loadLocation(ctx, tx, outerID); err != nil {
			return "", err
		}
		existing, err := findEdge(ctx, tx, innerID, outerID, graphstore.LabelWithin)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return "", fmt.Errorf("location %s already within %s: %w", innerID, outerID, apperrors.ErrDuplicateRelationship)
		}
		return tx.AddEdge(ctx, innerID, outerID, graphstore.LabelWithin,
			graphstore.Properties{graphstore.TargetKey: outerID})
	})
	if err != nil {
		return false, fmt.Errorf("add within: %w", err)
	}

	s.logger.Debug("Within added",
		zap.String("inner_id", innerID),
		zap.String("outer_id", outerID))
	return true, nil
}

func (s *spatialGraphService) RemoveWithin(ctx context.Context, innerID, outerID string) (bool, error) {
	if err := validatePair(innerID, outerID); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.WithinKey(innerID, outerID))
	if err != nil {
		return false, err
	}
	defer unlock()

	removed, err := inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		existing, err := findEdge(ctx, tx, innerID, outerID, graphstore.LabelWithin)
		if err != nil || existing == nil {
			return false, err
		}
		return true, tx.RemoveEdge(ctx, existing.ID)
	})
	if err != nil {
		return false, fmt.Errorf("remove within: %w", err)
	}
	return removed, nil
}

func (s *spatialGraphService) IsWithin(ctx context.Context, innerID, outerID string) (bool, error) {
	if err := validatePair(innerID, outerID); err != nil {
		return false, err
	}
	return inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		existing, err := findEdge(ctx, tx, innerID, outerID, graphstore.LabelWithin)
		return existing != nil, err
	})
}

func (s *spatialGraphService) GetWithin(ctx context.Context, locationID string) ([]*models.Location, error) {
	return s.withinNeighbors(ctx, locationID, graphstore.Inbound)
}

func (s *spatialGraphService) GetContaining(ctx context.Context, locationID string) ([]*models.Location, error) {
	return s.withinNeighbors(ctx, locationID, graphstore.Outbound)
}

func (s *spatialGraphService) withinNeighbors(ctx context.Context, locationID string, dir graphstore.Direction) ([]*models.Location, error) {
	return inTx(ctx, s.store, func(tx graphstore.Tx) ([]*models.Location, error) {
		if _, err := loadLocation(ctx, tx, locationID); err != nil {
			return nil, err
		}
		edges, err := tx.QueryEdges(ctx, locationID, dir, graphstore.LabelWithin, nil, 0)
		if err != nil {
			return nil, storeFault("query within edges", err)
		}
		locations := make([]*models.Location, 0, len(edges))
		for _, e := range edges {
			loc, err := loadLocation(ctx, tx, e.Other(locationID))
			if err != nil {
				return nil, err
			}
			locations = append(locations, loc)
		}
		return locations, nil
	})
}

func validDistance(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return fmt.Errorf("distance %v must be a finite non-negative number: %w", d, apperrors.ErrConstraintViolation)
	}
	return nil
}

// findNearby looks for the a/b edge in both orientations.
func findNearby(ctx context.Context, tx graphstore.Tx, a, b string) (*graphstore.Edge, error) {
	e, err := findEdge(ctx, tx, a, b, graphstore.LabelNearby)
	if err != nil || e != nil {
		return e, err
	}
	return findEdge(ctx, tx, b, a, graphstore.LabelNearby)
}

func (s *spatialGraphService) AddNearby(ctx context.Context, aID, bID string, distance float64) (bool, error) {
	if err := validatePair(aID, bID); err != nil {
		return false, err
	}
	if aID == bID {
		return false, fmt.Errorf("location %s cannot be nearby itself: %w", aID, apperrors.ErrConstraintViolation)
	}
	if err := validDistance(distance); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.NearbyKey(aID, bID))
	if err != nil {
		return false, err
	}
	defer unlock()

	_, err = inTx(ctx, s.store, func(tx graphstore.Tx) (string, error) {
		if _, err := loadLocation(ctx, tx, aID); err != nil {
			return "", err
		}
		if _, err := loadLocation(ctx, tx, bID); err != nil {
			return "", err
		}
		existing, err := findNearby(ctx, tx, aID, bID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return "", fmt.Errorf("locations %s and %s already nearby: %w", aID, bID, apperrors.ErrDuplicateRelationship)
		}
		return tx.AddEdge(ctx, aID, bID, graphstore.LabelNearby, graphstore.Properties{
			codec.KeyDistance:    distance,
			graphstore.TargetKey: bID,
		})
	})
	if err != nil {
		return false, fmt.Errorf("add nearby: %w", err)
	}

	s.logger.Debug("Nearby added",
		zap.String("a_id", aID),
		zap.String("b_id", bID),
		zap.Float64("distance", distance))
	return true, nil
}

func (s *spatialGraphService) UpdateNearby(ctx context.Context, aID, bID string, distance float64) (bool, error) {
	if err := validatePair(aID, bID); err != nil {
		return false, err
	}
	if err := validDistance(distance); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.NearbyKey(aID, bID))
	if err != nil {
		return false, err
	}
	defer unlock()

	updated, err := inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		existing, err := findNearby(ctx, tx, aID, bID)
		if err != nil || existing == nil {
			return false, err
		}
		return true, tx.SetEdgeProperty(ctx, existing.ID, codec.KeyDistance, distance)
	})
	if err != nil {
		return false, fmt.Errorf("update nearby: %w", err)
	}
	return updated, nil
}

func (s *spatialGraphService) RemoveNearby(ctx context.Context, aID, bID string) (bool, error) {
	if err := validatePair(aID, bID); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.NearbyKey(aID, bID))
	if err != nil {
		return false, err
	}
	defer unlock()

	removed, err := inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		existing, err := findNearby(ctx, tx, aID, bID)
		if err != nil || existing == nil {
			return false, err
		}
		return true, tx.RemoveEdge(ctx, existing.ID)
	})
	if err != nil {
		return false, fmt.Errorf("remove nearby: %w", err)
	}
	return removed, nil
}

func (s *spatialGraphService) IsNearby(ctx context.Context, aID, bID string, maxDistance float64) (bool, error) {
	if err := validatePair(aID, bID); err != nil {
		return false, err
	}
	return inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		existing, err := findNearby(ctx, tx, aID, bID)
		if err != nil || existing == nil {
			return false, err
		}
		d, ok := existing.Properties.Float(codec.KeyDistance)
		return ok && d <= maxDistance, nil
	})
}

func (s *spatialGraphService) GetNearby(ctx context.Context, locationID string, maxDistance float64, limit int) ([]*models.Nearby, error) {
	var filters []graphstore.Filter
	if maxDistance >= 0 && !math.IsInf(maxDistance, 1) {
		filters = append(filters, graphstore.Lte(codec.KeyDistance, maxDistance))
	}

	return inTx(ctx, s.store, func(tx graphstore.Tx) ([]*models.Nearby, error) {
		if _, err := loadLocation(ctx, tx, locationID); err != nil {
			return nil, err
		}
		edges, err := tx.QueryEdges(ctx, locationID, graphstore.Both, graphstore.LabelNearby, filters, 0)
		if err != nil {
			return nil, storeFault("query nearby edges", err)
		}
		seen := make(map[string]struct{}, len(edges))
		result := make([]*models.Nearby, 0, len(edges))
		for _, e := range edges {
			if limit > 0 && len(result) >= limit {
				break
			}
			otherID := e.Other(locationID)
			if _, dup := seen[otherID]; dup {
				continue
			}
			seen[otherID] = struct{}{}
			loc, err := loadLocation(ctx, tx, otherID)
			if err != nil {
				return nil, err
			}
			d, _ := e.Properties.Float(codec.KeyDistance)
			result = append(result, &models.Nearby{Location: loc, Distance: d})
		}
		return result, nil
	})
}

func (s *spatialGraphService) LocationDistance(ctx context.Context, aID, bID string) (float64, bool, error) {
	type result struct {
		distance float64
		ok       bool
	}
	r, err := inTx(ctx, s.store, func(tx graphstore.Tx) (result, error) {
		a, err := loadLocation(ctx, tx, aID)
		if err != nil {
			return result{}, err
		}
		if aID == bID {
			return result{distance: 0, ok: true}, nil
		}
		b, err := loadLocation(ctx, tx, bID)
		if err != nil {
			return result{}, err
		}
		if a.Coordinates != nil && b.Coordinates != nil {
			return result{distance: geo.Distance(*a.Coordinates, *b.Coordinates), ok: true}, nil
		}
		e, err := findNearby(ctx, tx, aID, bID)
		if err != nil || e == nil {
			return result{}, err
		}
		d, ok := e.Properties.Float(codec.KeyDistance)
		return result{distance: d, ok: ok}, nil
	})
	return r.distance, r.ok, err
}
