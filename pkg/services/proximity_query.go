package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/metrics"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// QueryLimits bounds the work one proximity query may fan out to.
type QueryLimits struct {
	ContactLimit int
	HistoryLimit int
	FanOut       int
}

// DefaultQueryLimits matches the config defaults.
var DefaultQueryLimits = QueryLimits{ContactLimit: 1024, HistoryLimit: 1024, FanOut: 8}

// ProximityQueryService answers "where is this user, or the people they know".
type ProximityQueryService interface {
	// Classify picks the strategy from which optional fields are present.
	Classify(q *models.ProximityQuery) models.QueryType
	Resolve(ctx context.Context, q *models.ProximityQuery) (*models.ProximityResult, error)
}

type proximityQueryService struct {
	store   graphstore.Store
	tracker LocalityTracker
	social  SocialGraphService
	spatial SpatialGraphService
	limits  QueryLimits
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

var _ ProximityQueryService = (*proximityQueryService)(nil)

func NewProximityQueryService(
	store graphstore.Store,
	tracker LocalityTracker,
	social SocialGraphService,
	spatial SpatialGraphService,
	limits QueryLimits,
	m *metrics.Metrics,
	logger *zap.Logger,
) ProximityQueryService {
	if limits.FanOut <= 0 {
		limits.FanOut = 1
	}
	return &proximityQueryService{
		store:   store,
		tracker: tracker,
		social:  social,
		spatial: spatial,
		limits:  limits,
		metrics: m,
		now:     time.Now,
		logger:  logger.Named("query"),
	}
}

// Classify maps the presence of location, strength and start date to a strategy.
// MaxDistance and DateEnd refine a strategy but never select one.
func (s *proximityQueryService) Classify(q *models.ProximityQuery) models.QueryType {
	hasLocation := q.LocationID != nil
	hasStrength := q.Strength != nil
	hasStart := q.DateStart != nil

	switch {
	case !hasLocation && !hasStrength && !hasStart:
		return models.QueryTypeSelfCurrent
	case !hasLocation && !hasStrength && hasStart:
		return models.QueryTypeSelfHistory
	case !hasLocation && hasStrength && !hasStart:
		return models.QueryTypeContactsCurrent
	case !hasLocation && hasStrength && hasStart:
		return models.QueryTypeContactsHistory
	case hasLocation && hasStrength && !hasStart:
		return models.QueryTypeContactsAtLocation
	case hasLocation && hasStrength && hasStart:
		return models.QueryTypeContactsHistoryAtLocation
	default:
		return models.QueryTypeUnknown
	}
}

func (s *proximityQueryService) Resolve(ctx context.Context, q *models.ProximityQuery) (*models.ProximityResult, error) {
	start := time.Now()
	qt := s.Classify(q)
	result := &models.ProximityResult{Type: qt, Strategy: qt.String(), Localities: []*models.Locality{}}
	defer s.metrics.ObserveQuery(result.Strategy, start)

	if err := s.validate(ctx, q); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", qt, err)
	}
	if q.Strength != nil && !models.ValidStrength(*q.Strength) {
		return result, nil
	}

	var rangeStart, rangeEnd time.Time
	if q.DateStart != nil {
		rangeStart = *q.DateStart
		rangeEnd = s.now().UTC()
		if q.DateEnd != nil {
			rangeEnd = *q.DateEnd
		}
		if rangeEnd.Before(rangeStart) {
			return result, nil
		}
	}

	var (
		localities []*models.Locality
		err        error
	)
	switch qt {
	case models.QueryTypeSelfCurrent:
		localities, err = s.selfCurrent(ctx, q.UserID)
	case models.QueryTypeSelfHistory:
		localities, err = s.tracker.GetHistoryInRange(ctx, q.UserID, rangeStart, rangeEnd, s.limits.HistoryLimit)
	case models.QueryTypeContactsCurrent:
		localities, err = s.contactsCurrent(ctx, q, "")
	case models.QueryTypeContactsHistory:
		localities, err = s.contactsHistory(ctx, q, rangeStart, rangeEnd)
	case models.QueryTypeContactsAtLocation:
		localities, err = s.contactsCurrent(ctx, q, *q.LocationID)
	case models.QueryTypeContactsHistoryAtLocation:
		localities, err = s.contactsHistory(ctx, q, rangeStart, rangeEnd)
	default:
		s.logger.Debug("Query matches no strategy", zap.String("user_id", q.UserID))
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", qt, err)
	}
	if localities != nil {
		result.Localities = localities
	}

	s.logger.Debug("Query resolved",
		zap.String("user_id", q.UserID),
		zap.String("strategy", result.Strategy),
		zap.Int("results", len(result.Localities)))
	return result, nil
}

// validate checks that the referenced user and location exist.
func (s *proximityQueryService) validate(ctx context.Context, q *models.ProximityQuery) error {
	_, err := inTx(ctx, s.store, func(tx graphstore.Tx) (struct{}, error) {
		if _, err := loadUser(ctx, tx, q.UserID); err != nil {
			return struct{}{}, err
		}
		if q.LocationID != nil {
			if _, err := loadLocation(ctx, tx, *q.LocationID); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (s *proximityQueryService) selfCurrent(ctx context.Context, userID string) ([]*models.Locality, error) {
	current, err := s.tracker.GetCurrent(ctx, userID)
	if err != nil || current == nil {
		return nil, err
	}
	return []*models.Locality{current}, nil
}

func (s *proximityQueryService) contacts(ctx context.Context, q *models.ProximityQuery) ([]*models.Contact, error) {
	return s.social.GetKnows(ctx, q.UserID, *q.Strength, models.DirectionOutbound, s.limits.ContactLimit)
}

// contactsCurrent returns the active Locality of every contact, optionally
// restricted to one Location and to contacts within MaxDistance of the requester.
func (s *proximityQueryService) contactsCurrent(ctx context.Context, q *models.ProximityQuery, locationID string) ([]*models.Locality, error) {
	contacts, err := s.contacts(ctx, q)
	if err != nil {
		return nil, err
	}
	current, err := fanOut(ctx, s.limits.FanOut, contacts, func(ctx context.Context, c *models.Contact) (*models.Locality, error) {
		return s.tracker.GetCurrent(ctx, c.User.ID)
	})
	if err != nil {
		return nil, err
	}

	var origin *models.Locality
	if q.MaxDistance != nil {
		if origin, err = s.tracker.GetCurrent(ctx, q.UserID); err != nil {
			return nil, err
		}
		if origin == nil {
			s.logger.Debug("Requester has no current locality, distance filter skipped", zap.String("user_id", q.UserID))
		}
	}

	result := make([]*models.Locality, 0, len(current))
	for _, loc := range current {
		if loc == nil {
			continue
		}
		if locationID != "" && loc.LocationID != locationID {
			continue
		}
		if origin != nil {
			d, ok, err := s.spatial.LocationDistance(ctx, origin.LocationID, loc.LocationID)
			if err != nil {
				return nil, err
			}
			if !ok || d > *q.MaxDistance {
				continue
			}
		}
		result = append(result, loc)
	}
	return result, nil
}

// contactsHistory returns closed localities of every contact in the range, grouped by contact.
func (s *proximityQueryService) contactsHistory(ctx context.Context, q *models.ProximityQuery, start, end time.Time) ([]*models.Locality, error) {
	contacts, err := s.contacts(ctx, q)
	if err != nil {
		return nil, err
	}
	perContact, err := fanOut(ctx, s.limits.FanOut, contacts, func(ctx context.Context, c *models.Contact) ([]*models.Locality, error) {
		if q.LocationID != nil {
			return s.tracker.GetHistoryAtLocation(ctx, c.User.ID, *q.LocationID, start, end, s.limits.HistoryLimit)
		}
		return s.tracker.GetHistoryInRange(ctx, c.User.ID, start, end, s.limits.HistoryLimit)
	})
	if err != nil {
		return nil, err
	}

	var result []*models.Locality
	for _, locs := range perContact {
		result = append(result, locs...)
	}
	return result, nil
}

// fanOut runs fn for every contact with at most limit in flight and returns
// the results in contact order. The first error cancels the rest.
func fanOut[T any](ctx context.Context, limit int, contacts []*models.Contact, fn func(context.Context, *models.Contact) (T, error)) ([]T, error) {
	results := make([]T, len(contacts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, c := range contacts {
		g.Go(func() error {
			r, err := fn(gctx, c)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
