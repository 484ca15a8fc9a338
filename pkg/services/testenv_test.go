package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/codec"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore/memstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// tickClock advances one minute on every call, so consecutive check-ins get
// distinct, predictable timestamps: the nth call returns t0 + n minutes.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

// set moves the clock so the next call returns t + 1 minute.
func (c *tickClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testEnv struct {
	store    *memstore.Store
	clock    *tickClock
	registry RegistryService
	tracker  LocalityTracker
	social   SocialGraphService
	spatial  SpatialGraphService
	query    ProximityQueryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := memstore.New()
	locker := locking.NewKeyedMutex()
	clock := &tickClock{t: t0}

	tracker := NewLocalityTracker(store, locker, nil, logger)
	tracker.(*localityTracker).now = clock.Now
	social := NewSocialGraphService(store, locker, nil, logger)
	spatial := NewSpatialGraphService(store, locker, nil, logger)

	env := &testEnv{
		store:    store,
		clock:    clock,
		registry: NewRegistryService(store, locker, nil, logger),
		tracker:  tracker,
		social:   social,
		spatial:  spatial,
		query:    NewProximityQueryService(store, tracker, social, spatial, DefaultQueryLimits, nil, logger),
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return env
}

func (e *testEnv) user(t *testing.T, name string) string {
	t.Helper()
	u, err := e.registry.CreateUser(context.Background(), &models.User{Name: name})
	require.NoError(t, err)
	return u.ID
}

func (e *testEnv) device(t *testing.T, userID string) string {
	t.Helper()
	d, err := e.registry.CreateDevice(context.Background(), &models.Device{UserID: userID, Name: "phone"})
	require.NoError(t, err)
	return d.ID
}

func (e *testEnv) location(t *testing.T, description string, coords *models.Coordinates) string {
	t.Helper()
	l, err := e.registry.CreateLocation(context.Background(), &models.Location{Description: description, Coordinates: coords})
	require.NoError(t, err)
	return l.ID
}

func (e *testEnv) signal(t *testing.T, locationID string, typ models.SignalType, identifier string) *models.Signal {
	t.Helper()
	s, err := e.registry.CreateSignal(context.Background(), &models.Signal{
		Type:       typ,
		Identifier: identifier,
		LocationID: locationID,
	})
	require.NoError(t, err)
	return s
}

// person is a user with a phone.
func (e *testEnv) person(t *testing.T, name string) (userID, deviceID string) {
	t.Helper()
	userID = e.user(t, name)
	return userID, e.device(t, userID)
}

// place is a location with one wifi access point, identified by the location description.
func (e *testEnv) place(t *testing.T, description string, coords *models.Coordinates) (locationID string, ref models.SignalRef) {
	t.Helper()
	locationID = e.location(t, description, coords)
	sig := e.signal(t, locationID, models.SignalTypeWiFi, "bssid-"+description)
	return locationID, models.SignalRef{Type: sig.Type, Identifier: sig.Identifier}
}

func (e *testEnv) detect(t *testing.T, deviceID string, ref models.SignalRef) *models.Locality {
	t.Helper()
	loc, err := e.tracker.DeviceDetect(context.Background(), deviceID, ref)
	require.NoError(t, err)
	return loc
}

// activeLocalities reads the store directly for the active localities of userID.
func (e *testEnv) activeLocalities(t *testing.T, userID string) []*models.Locality {
	t.Helper()
	ctx := context.Background()
	tx, err := e.store.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	vertices, err := tx.QueryVertices(ctx, graphstore.TypeLocality, []graphstore.Filter{
		graphstore.Eq(codec.KeyUserID, userID),
		graphstore.Eq(codec.KeyActive, true),
	}, 0)
	require.NoError(t, err)
	result := make([]*models.Locality, 0, len(vertices))
	for _, v := range vertices {
		l, err := codec.DecodeLocality(v)
		require.NoError(t, err)
		result = append(result, l)
	}
	return result
}

func ids(localities []*models.Locality) []string {
	out := make([]string, 0, len(localities))
	for _, l := range localities {
		out = append(out, l.ID)
	}
	return out
}
