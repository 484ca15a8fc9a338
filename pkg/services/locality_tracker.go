package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/codec"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/metrics"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// DefaultHistoryLimit caps range queries that are called without a limit.
const DefaultHistoryLimit = 1024

// LocalityTracker records where users are. Every user has at most one active
// Locality; closed ones form a chain from the user's last locality backwards
// through previous_locality_id.
type LocalityTracker interface {
	// DeviceDetect checks the device owner into the Location bound to the
	// resolved signal, closing any active Locality elsewhere.
	DeviceDetect(ctx context.Context, deviceID string, ref models.SignalRef) (*models.Locality, error)
	// DeviceUndetect closes the owner's active Locality if it is at the
	// signal's Location. Returns false when there was nothing to close.
	DeviceUndetect(ctx context.Context, deviceID string, ref models.SignalRef) (bool, error)
	SetManualLocation(ctx context.Context, userID, locationID string) (*models.Locality, error)
	UnsetManualLocation(ctx context.Context, userID, locationID string) (bool, error)
	// GetCurrent returns the active Locality, or nil if the user is nowhere.
	GetCurrent(ctx context.Context, userID string) (*models.Locality, error)
	// History yields closed localities newest first, at most depth of them
	// (depth <= 0 walks the whole chain). Each range over the sequence starts
	// again from the user's most recent locality.
	History(ctx context.Context, userID string, depth int) iter.Seq2[*models.Locality, error]
	GetHistory(ctx context.Context, userID string, depth int) ([]*models.Locality, error)
	// GetHistoryInRange returns closed localities whose arrival falls in [start, end], newest first.
	GetHistoryInRange(ctx context.Context, userID string, start, end time.Time, limit int) ([]*models.Locality, error)
	// GetHistoryAtLocation is GetHistoryInRange restricted to one Location.
	GetHistoryAtLocation(ctx context.Context, userID, locationID string, start, end time.Time, limit int) ([]*models.Locality, error)
}

type localityTracker struct {
	store   graphstore.Store
	locks   keyLock
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

var _ LocalityTracker = (*localityTracker)(nil)

func NewLocalityTracker(store graphstore.Store, locker locking.Locker, m *metrics.Metrics, logger *zap.Logger) LocalityTracker {
	return &localityTracker{
		store:   store,
		locks:   keyLock{locker: locker, metrics: m},
		metrics: m,
		now:     time.Now,
		logger:  logger.Named("tracker"),
	}
}

// checkIn describes the Locality a check-in should open.
type checkIn struct {
	locationID string
	deviceID   string
	signal     *models.Signal
	manual     bool
}

func (c checkIn) source() models.LocalitySource {
	switch {
	case c.manual:
		return models.LocalitySourceManual
	case c.signal != nil && c.signal.Kind == models.SignalKindEnvironmental:
		return models.LocalitySourceEnvironmental
	default:
		return models.LocalitySourceSensor
	}
}

// deviceOwner returns the user a device belongs to. Ownership never changes,
// so it is read before the user lock is taken.
func (s *localityTracker) deviceOwner(ctx context.Context, deviceID string) (string, error) {
	device, err := inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Device, error) {
		return loadDevice(ctx, tx, deviceID)
	})
	if err != nil {
		return "", err
	}
	return device.UserID, nil
}

func (s *localityTracker) DeviceDetect(ctx context.Context, deviceID string, ref models.SignalRef) (*models.Locality, error) {
	userID, err := s.deviceOwner(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device detect: %w", err)
	}
	unlock, err := s.locks.acquire(ctx, locking.UserKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	in := checkIn{deviceID: deviceID}
	loc, err := inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Locality, error) {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		sig, err := resolveSignal(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		in.signal = sig
		in.locationID = sig.LocationID
		return s.checkIn(ctx, tx, user, in)
	})
	if err != nil {
		s.reject(err)
		return nil, fmt.Errorf("device detect: %w", err)
	}

	s.metrics.CheckIn(string(loc.Source()))
	s.logger.Info("Device detected",
		zap.String("device_id", deviceID),
		zap.String("user_id", userID),
		zap.String("signal", ref.String()),
		zap.String("location_id", loc.LocationID),
		zap.String("locality_id", loc.ID))
	return loc, nil
}

func (s *localityTracker) DeviceUndetect(ctx context.Context, deviceID string, ref models.SignalRef) (bool, error) {
	userID, err := s.deviceOwner(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("device undetect: %w", err)
	}
	unlock, err := s.locks.acquire(ctx, locking.UserKey(userID))
	if err != nil {
		return false, err
	}
	defer unlock()

	closed, err := inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return false, err
		}
		sig, err := resolveSignal(ctx, tx, ref)
		if err != nil {
			return false, err
		}
		return s.checkOut(ctx, tx, user, sig.LocationID)
	})
	if err != nil {
		return false, fmt.Errorf("device undetect: %w", err)
	}
	if closed {
		s.metrics.CheckOut()
		s.logger.Info("Device undetected",
			zap.String("device_id", deviceID),
			zap.String("user_id", userID),
			zap.String("signal", ref.String()))
	}
	return closed, nil
}

func (s *localityTracker) SetManualLocation(ctx context.Context, userID, locationID string) (*models.Locality, error) {
	if err := codec.ValidateID("user", userID); err != nil {
		return nil, err
	}
	unlock, err := s.locks.acquire(ctx, locking.UserKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	loc, err := inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Locality, error) {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if _, err := loadLocation(ctx, tx, locationID); err != nil {
			return nil, err
		}
		return s.checkIn(ctx, tx, user, checkIn{locationID: locationID, manual: true})
	})
	if err != nil {
		s.reject(err)
		return nil, fmt.Errorf("set manual location: %w", err)
	}

	s.metrics.CheckIn(string(models.LocalitySourceManual))
	s.logger.Info("Manual location set",
		zap.String("user_id", userID),
		zap.String("location_id", locationID),
		zap.String("locality_id", loc.ID))
	return loc, nil
}

func (s *localityTracker) UnsetManualLocation(ctx context.Context, userID, locationID string) (bool, error) {
	if err := codec.ValidateID("user", userID); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.UserKey(userID))
	if err != nil {
		return false, err
	}
	defer unlock()

	closed, err := inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return false, err
		}
		if _, err := loadLocation(ctx, tx, locationID); err != nil {
			return false, err
		}
		return s.checkOut(ctx, tx, user, locationID)
	})
	if err != nil {
		return false, fmt.Errorf("unset manual location: %w", err)
	}
	if closed {
		s.metrics.CheckOut()
		s.logger.Info("Manual location unset",
			zap.String("user_id", userID),
			zap.String("location_id", locationID))
	}
	return closed, nil
}

func (s *localityTracker) reject(err error) {
	switch {
	case errors.Is(err, apperrors.ErrAlreadyInLocation):
		s.metrics.Reject("already_in_location")
	case errors.Is(err, apperrors.ErrAmbiguousResolution):
		s.metrics.Reject("ambiguous_signal")
	case errors.Is(err, apperrors.ErrInvalidReference):
		s.metrics.Reject("invalid_reference")
	}
}

// currentLocality loads the user's active Locality, or nil. A dangling or
// inactive pointer is logged and treated as no active Locality.
func (s *localityTracker) currentLocality(ctx context.Context, tx graphstore.Tx, user *models.User) (*models.Locality, error) {
	if user.CurrentLocalityID == "" {
		return nil, nil
	}
	current, err := loadLocality(ctx, tx, user.CurrentLocalityID)
	if errors.Is(err, apperrors.ErrInvalidReference) {
		s.logger.Warn("Current locality pointer is dangling",
			zap.String("user_id", user.ID),
			zap.String("locality_id", user.CurrentLocalityID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !current.Active {
		s.logger.Warn("Current locality is not active",
			zap.String("user_id", user.ID),
			zap.String("locality_id", current.ID))
		return nil, nil
	}
	return current, nil
}

// checkIn opens a Locality at in.locationID, closing the active one first.
// Checking into the Location the user is already at is rejected.
func (s *localityTracker) checkIn(ctx context.Context, tx graphstore.Tx, user *models.User, in checkIn) (*models.Locality, error) {
	current, err := s.currentLocality(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	now, err := s.arrivalTime(ctx, tx, user, current)
	if err != nil {
		return nil, err
	}
	if current != nil {
		if current.LocationID == in.locationID {
			return nil, fmt.Errorf("user %s is already at location %s: %w", user.ID, in.locationID, apperrors.ErrAlreadyInLocation)
		}
		if err := s.closeActive(ctx, tx, user, current, now); err != nil {
			return nil, err
		}
	} else if user.CurrentLocalityID != "" {
		if err := tx.SetProperty(ctx, user.ID, codec.KeyCurrent, nil); err != nil {
			return nil, err
		}
	}

	loc := &models.Locality{
		UserID:     user.ID,
		LocationID: in.locationID,
		DeviceID:   in.deviceID,
		Manual:     in.manual,
		Active:     true,
		Arrival:    now,
	}
	if in.signal != nil {
		loc.SignalID = in.signal.ID
		loc.SignalKind = in.signal.Kind
	}
	id, err := tx.CreateVertex(ctx, graphstore.TypeLocality, codec.EncodeLocality(loc))
	if err != nil {
		return nil, err
	}
	loc.ID = id
	if err := tx.SetProperty(ctx, user.ID, codec.KeyCurrent, id); err != nil {
		return nil, err
	}
	user.CurrentLocalityID = id

	s.logger.Debug("Locality opened",
		zap.String("user_id", user.ID),
		zap.String("locality_id", id),
		zap.String("source", string(in.source())))
	return loc, nil
}

// arrivalTime reads the clock for a new Locality. A clock that stepped back
// is held at the user's newest arrival, so no arrival precedes an older one.
func (s *localityTracker) arrivalTime(ctx context.Context, tx graphstore.Tx, user *models.User, current *models.Locality) (time.Time, error) {
	now := s.now().UTC()
	newest := current
	if newest == nil && user.LastLocalityID != "" {
		last, err := loadLocality(ctx, tx, user.LastLocalityID)
		if err != nil && !errors.Is(err, apperrors.ErrInvalidReference) {
			return time.Time{}, err
		}
		newest = last
	}
	if newest != nil && now.Before(newest.Arrival) {
		s.logger.Warn("Clock is behind the newest arrival",
			zap.String("user_id", user.ID),
			zap.Time("now", now),
			zap.Time("arrival", newest.Arrival))
		now = newest.Arrival
	}
	return now, nil
}

// checkOut closes the active Locality if it is at locationID.
func (s *localityTracker) checkOut(ctx context.Context, tx graphstore.Tx, user *models.User, locationID string) (bool, error) {
	current, err := s.currentLocality(ctx, tx, user)
	if err != nil || current == nil {
		return false, err
	}
	if current.LocationID != locationID {
		return false, nil
	}
	if err := s.closeActive(ctx, tx, user, current, s.now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

// closeActive deactivates current and pushes it onto the front of the user's history chain.
func (s *localityTracker) closeActive(ctx context.Context, tx graphstore.Tx, user *models.User, current *models.Locality, now time.Time) error {
	var previous any
	if user.LastLocalityID != "" {
		previous = user.LastLocalityID
	}
	if err := tx.SetProperty(ctx, current.ID, codec.KeyActive, false); err != nil {
		return err
	}
	if err := tx.SetProperty(ctx, current.ID, codec.KeyDeparture, now); err != nil {
		return err
	}
	if err := tx.SetProperty(ctx, current.ID, codec.KeyPrevious, previous); err != nil {
		return err
	}
	if err := tx.SetProperty(ctx, user.ID, codec.KeyCurrent, nil); err != nil {
		return err
	}
	if err := tx.SetProperty(ctx, user.ID, codec.KeyLast, current.ID); err != nil {
		return err
	}

	current.Active = false
	current.Departure = &now
	current.PreviousLocalityID = user.LastLocalityID
	user.CurrentLocalityID = ""
	user.LastLocalityID = current.ID
	return nil
}

func (s *localityTracker) GetCurrent(ctx context.Context, userID string) (*models.Locality, error) {
	return inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Locality, error) {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		return s.currentLocality(ctx, tx, user)
	})
}

// History reads one locality per transaction so a consumer can stop early
// without holding the store. Closed localities are immutable, so a walk stays
// consistent while new check-ins are pushed onto the front of the chain.
func (s *localityTracker) History(ctx context.Context, userID string, depth int) iter.Seq2[*models.Locality, error] {
	return func(yield func(*models.Locality, error) bool) {
		user, err := inTx(ctx, s.store, func(tx graphstore.Tx) (*models.User, error) {
			return loadUser(ctx, tx, userID)
		})
		if err != nil {
			yield(nil, err)
			return
		}

		seen := make(map[string]struct{})
		next := user.LastLocalityID
		for n := 0; next != "" && (depth <= 0 || n < depth); n++ {
			if _, loop := seen[next]; loop {
				yield(nil, fmt.Errorf("history of user %s loops at locality %s: %w", userID, next, apperrors.ErrConflict))
				return
			}
			seen[next] = struct{}{}

			id := next
			loc, err := inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Locality, error) {
				return loadLocality(ctx, tx, id)
			})
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(loc, nil) {
				return
			}
			next = loc.PreviousLocalityID
		}
	}
}

func (s *localityTracker) GetHistory(ctx context.Context, userID string, depth int) ([]*models.Locality, error) {
	result := []*models.Locality{}
	for loc, err := range s.History(ctx, userID, depth) {
		if err != nil {
			return nil, err
		}
		result = append(result, loc)
	}
	return result, nil
}

// GetHistoryInRange walks the chain and stops at the first locality that
// arrived before start. arrivalTime keeps arrivals non-increasing along the
// chain, so nothing older can fall inside the range.
func (s *localityTracker) GetHistoryInRange(ctx context.Context, userID string, start, end time.Time, limit int) ([]*models.Locality, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	result := []*models.Locality{}
	if end.Before(start) {
		return result, nil
	}
	for loc, err := range s.History(ctx, userID, 0) {
		if err != nil {
			return nil, err
		}
		if loc.Arrival.Before(start) {
			break
		}
		if loc.Arrival.After(end) {
			continue
		}
		result = append(result, loc)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// GetHistoryAtLocation uses the store's attribute filters instead of the chain walk.
func (s *localityTracker) GetHistoryAtLocation(ctx context.Context, userID, locationID string, start, end time.Time, limit int) ([]*models.Locality, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if end.Before(start) {
		return []*models.Locality{}, nil
	}
	bounds, ok := arrivalFilters(start, end)
	if !ok {
		return []*models.Locality{}, nil
	}

	return inTx(ctx, s.store, func(tx graphstore.Tx) ([]*models.Locality, error) {
		if _, err := loadUser(ctx, tx, userID); err != nil {
			return nil, err
		}
		if _, err := loadLocation(ctx, tx, locationID); err != nil {
			return nil, err
		}
		filters := append([]graphstore.Filter{
			graphstore.Eq(codec.KeyUserID, userID),
			graphstore.Eq(codec.KeyLocationID, locationID),
			graphstore.Eq(codec.KeyActive, false),
		}, bounds...)
		vertices, err := tx.QueryVertices(ctx, graphstore.TypeLocality, filters, 0)
		if err != nil {
			return nil, storeFault("query localities", err)
		}

		result := make([]*models.Locality, 0, min(len(vertices), limit))
		for _, v := range slices.Backward(vertices) {
			loc, err := codec.DecodeLocality(v)
			if err != nil {
				return nil, err
			}
			result = append(result, loc)
			if len(result) >= limit {
				break
			}
		}
		return result, nil
	})
}

// Arrivals are stored as Unix nanoseconds, which only cover these instants.
var (
	minArrival = time.Unix(0, math.MinInt64).UTC()
	maxArrival = time.Unix(0, math.MaxInt64).UTC()
)

// arrivalFilters turns an inclusive arrival range into store filters. A bound
// outside the storable range is dropped rather than wrapped, and ok is false
// when no storable arrival can fall inside the range.
func arrivalFilters(start, end time.Time) (filters []graphstore.Filter, ok bool) {
	if end.Before(minArrival) || start.After(maxArrival) {
		return nil, false
	}
	if start.After(minArrival) {
		filters = append(filters, graphstore.Gte(codec.KeyArrival, start))
	}
	if end.Before(maxArrival) {
		filters = append(filters, graphstore.Lte(codec.KeyArrival, end))
	}
	return filters, true
}

// resolveSignal turns a partial signal reference into exactly one registered
// signal with its Location. Zero or several matches are AmbiguousResolution.
func resolveSignal(ctx context.Context, tx graphstore.Tx, ref models.SignalRef) (*models.Signal, error) {
	if ref.ID != "" {
		v, err := tx.GetVertex(ctx, ref.ID)
		if errors.Is(err, graphstore.ErrNotFound) {
			return nil, fmt.Errorf("signal %s matched nothing: %w", ref.ID, apperrors.ErrAmbiguousResolution)
		}
		if err != nil {
			return nil, storeFault("get signal", err)
		}
		return withLocation(ctx, tx, v)
	}
	if ref.Identifier == "" {
		return nil, fmt.Errorf("signal reference has neither id nor identifier: %w", apperrors.ErrAmbiguousResolution)
	}

	kinds := []models.SignalKind{models.SignalKindSensor, models.SignalKindEnvironmental}
	switch {
	case ref.Kind != "":
		kinds = []models.SignalKind{ref.Kind}
	case ref.Type.Kind() != "":
		kinds = []models.SignalKind{ref.Type.Kind()}
	}
	filters := []graphstore.Filter{graphstore.Eq(codec.KeyIdentifier, ref.Identifier)}
	if ref.Type != "" {
		filters = append(filters, graphstore.Eq(codec.KeySignalType, string(ref.Type)))
	}

	var matches []*graphstore.Vertex
	for _, kind := range kinds {
		vertexType, err := codec.SignalVertexType(kind)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, apperrors.ErrAmbiguousResolution)
		}
		found, err := tx.QueryVertices(ctx, vertexType, filters, 2)
		if err != nil {
			return nil, storeFault("query signals", err)
		}
		matches = append(matches, found...)
	}
	if len(matches) != 1 {
		return nil, fmt.Errorf("signal %s matched %d signals: %w", ref, len(matches), apperrors.ErrAmbiguousResolution)
	}

	return withLocation(ctx, tx, matches[0])
}

func withLocation(ctx context.Context, tx graphstore.Tx, v *graphstore.Vertex) (*models.Signal, error) {
	sig, err := codec.DecodeSignal(v)
	if err != nil {
		return nil, err
	}
	if sig.LocationID, err = signalLocation(ctx, tx, sig.ID); err != nil {
		return nil, err
	}
	return sig, nil
}
