package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/codec"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/metrics"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// RegistryService registers and looks up the entities the tracker operates on.
type RegistryService interface {
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	CreateDevice(ctx context.Context, device *models.Device) (*models.Device, error)
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context, userID string) ([]*models.Device, error)
	CreateLocation(ctx context.Context, location *models.Location) (*models.Location, error)
	GetLocation(ctx context.Context, locationID string) (*models.Location, error)
	CreateSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error)
	GetSignal(ctx context.Context, signalID string) (*models.Signal, error)
	MoveSignal(ctx context.Context, signalID, locationID string) (*models.Signal, error)
}

type registryService struct {
	store graphstore.Store
	locks keyLock
	now   func() time.Time

	logger *zap.Logger
}

var _ RegistryService = (*registryService)(nil)

// NewRegistryService creates a registry backed by store.
func NewRegistryService(store graphstore.Store, locker locking.Locker, m *metrics.Metrics, logger *zap.Logger) RegistryService {
	return &registryService{
		store:  store,
		locks:  keyLock{locker: locker, metrics: m},
		now:    time.Now,
		logger: logger.Named("registry"),
	}
}

// CreateUser stores a new user. Locality pointers on the input are ignored;
// a new user has no current or past locality.
func (s *registryService) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if strings.TrimSpace(user.Name) == "" {
		return nil, fmt.Errorf("user name is required: %w", apperrors.ErrConstraintViolation)
	}
	created := &models.User{
		Name:      strings.TrimSpace(user.Name),
		Email:     strings.TrimSpace(user.Email),
		CreatedAt: s.now().UTC(),
	}

	id, err := inTx(ctx, s.store, func(tx graphstore.Tx) (string, error) {
		return tx.CreateVertex(ctx, graphstore.TypeUser, codec.EncodeUser(created))
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	created.ID = id

	s.logger.Debug("User created", zap.String("user_id", id))
	return created, nil
}

func (s *registryService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return inTx(ctx, s.store, func(tx graphstore.Tx) (*models.User, error) {
		return loadUser(ctx, tx, userID)
	})
}

// CreateDevice stores a device owned by an existing user.
func (s *registryService) CreateDevice(ctx context.Context, device *models.Device) (*models.Device, error) {
	created := &models.Device{
		UserID:    device.UserID,
		Name:      strings.TrimSpace(device.Name),
		Model:     strings.TrimSpace(device.Model),
		Platform:  strings.TrimSpace(device.Platform),
		CreatedAt: s.now().UTC(),
	}

	id, err := inTx(ctx, s.store, func(tx graphstore.Tx) (string, error) {
		if _, err := loadUser(ctx, tx, created.UserID); err != nil {
			return "", err
		}
		return tx.CreateVertex(ctx, graphstore.TypeDevice, codec.EncodeDevice(created))
	})
	if err != nil {
		return nil, fmt.Errorf("create device: %w", err)
	}
	created.ID = id

	s.logger.Debug("Device created",
		zap.String("device_id", id),
		zap.String("user_id", created.UserID))
	return created, nil
}

func (s *registryService) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	return inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Device, error) {
		return loadDevice(ctx, tx, deviceID)
	})
}

// ListDevices returns the devices of userID in registration order.
func (s *registryService) ListDevices(ctx context.Context, userID string) ([]*models.Device, error) {
	return inTx(ctx, s.store, func(tx graphstore.Tx) ([]*models.Device, error) {
		if _, err := loadUser(ctx, tx, userID); err != nil {
			return nil, err
		}
		vertices, err := tx.QueryVertices(ctx, graphstore.TypeDevice,
			[]graphstore.Filter{graphstore.Eq(codec.KeyUserID, userID)}, 0)
		if err != nil {
			return nil, storeFault("query devices", err)
		}
		devices := make([]*models.Device, 0, len(vertices))
		for _, v := range vertices {
			d, err := codec.DecodeDevice(v)
			if err != nil {
				return nil, err
			}
			devices = append(devices, d)
		}
		return devices, nil
	})
}

// CreateLocation stores a new location. Coordinates are optional but must be in range when given.
func (s *registryService) CreateLocation(ctx context.Context, location *models.Location) (*models.Location, error) {
	if strings.TrimSpace(location.Description) == "" {
		return nil, fmt.Errorf("location description is required: %w", apperrors.ErrConstraintViolation)
	}
	if location.Coordinates != nil {
		if err := location.Coordinates.Validate(); err != nil {
			return nil, fmt.Errorf("%v: %w", err, apperrors.ErrConstraintViolation)
		}
	}
	created := &models.Location{
		Description: strings.TrimSpace(location.Description),
		Address:     strings.TrimSpace(location.Address),
		Type:        strings.TrimSpace(location.Type),
		CreatedAt:   s.now().UTC(),
	}
	if location.Coordinates != nil {
		c := *location.Coordinates
		created.Coordinates = &c
	}

	id, err := inTx(ctx, s.store, func(tx graphstore.Tx) (string, error) {
		return tx.CreateVertex(ctx, graphstore.TypeLocation, codec.EncodeLocation(created))
	})
	if err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}
	created.ID = id

	s.logger.Debug("Location created", zap.String("location_id", id))
	return created, nil
}

func (s *registryService) GetLocation(ctx context.Context, locationID string) (*models.Location, error) {
	return inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Location, error) {
		return loadLocation(ctx, tx, locationID)
	})
}

// CreateSignal stores a signal and binds it to its Location with a contains edge.
// A second signal with the same kind, type and identifier is rejected.
func (s *registryService) CreateSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error) {
	created := &models.Signal{
		Kind:        signal.Kind,
		Type:        signal.Type,
		Identifier:  strings.TrimSpace(signal.Identifier),
		Description: strings.TrimSpace(signal.Description),
		LocationID:  signal.LocationID,
		CreatedAt:   s.now().UTC(),
	}
	if created.Kind == "" {
		created.Kind = created.Type.Kind()
	}
	if err := created.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrConstraintViolation)
	}
	vertexType, err := codec.SignalVertexType(created.Kind)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, apperrors.ErrConstraintViolation)
	}

	unlock, err := s.locks.acquire(ctx, locking.SignalKey(string(created.Kind), string(created.Type), created.Identifier))
	if err != nil {
		return nil, err
	}
	defer unlock()

	id, err := inTx(ctx, s.store, func(tx graphstore.Tx) (string, error) {
		if _, err := loadLocation(ctx, tx, created.LocationID); err != nil {
			return "", err
		}
		existing, err := tx.QueryVertices(ctx, vertexType, []graphstore.Filter{
			graphstore.Eq(codec.KeySignalType, string(created.Type)),
			graphstore.Eq(codec.KeyIdentifier, created.Identifier),
		}, 1)
		if err != nil {
			return "", storeFault("query signals", err)
		}
		if len(existing) > 0 {
			return "", fmt.Errorf("signal %s already registered as %s: %w",
				created.Identifier, existing[0].ID, apperrors.ErrDuplicateRelationship)
		}

		id, err := tx.CreateVertex(ctx, vertexType, codec.EncodeSignal(created))
		if err != nil {
			return "", err
		}
		if _, err := tx.AddEdge(ctx, created.LocationID, id, graphstore.LabelContains,
			graphstore.Properties{graphstore.TargetKey: id}); err != nil {
			return "", err
		}
		return id, nil
	})
	if err != nil {
		return nil, fmt.Errorf("create signal: %w", err)
	}
	created.ID = id

	s.logger.Debug("Signal created",
		zap.String("signal_id", id),
		zap.String("kind", created.Kind.String()),
		zap.String("type", created.Type.String()),
		zap.String("location_id", created.LocationID))
	return created, nil
}

func (s *registryService) GetSignal(ctx context.Context, signalID string) (*models.Signal, error) {
	return inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Signal, error) {
		return loadSignal(ctx, tx, signalID)
	})
}

// MoveSignal rebinds a signal to another Location, replacing its contains edge.
func (s *registryService) MoveSignal(ctx context.Context, signalID, locationID string) (*models.Signal, error) {
	if err := codec.ValidateID("signal", signalID); err != nil {
		return nil, err
	}
	unlock, err := s.locks.acquire(ctx, locking.ResourceKey("signal", signalID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	moved, err := inTx(ctx, s.store, func(tx graphstore.Tx) (*models.Signal, error) {
		sig, err := load(ctx, tx, "signal", signalID, codec.DecodeSignal)
		if err != nil {
			return nil, err
		}
		if _, err := loadLocation(ctx, tx, locationID); err != nil {
			return nil, err
		}
		edges, err := tx.QueryEdges(ctx, sig.ID, graphstore.Inbound, graphstore.LabelContains, nil, 0)
		if err != nil {
			return nil, storeFault("query contains edges", err)
		}
		for _, e := range edges {
			if err := tx.RemoveEdge(ctx, e.ID); err != nil {
				return nil, err
			}
		}
		if _, err := tx.AddEdge(ctx, locationID, sig.ID, graphstore.LabelContains,
			graphstore.Properties{graphstore.TargetKey: sig.ID}); err != nil {
			return nil, err
		}
		sig.LocationID = locationID
		return sig, nil
	})
	if err != nil {
		return nil, fmt.Errorf("move signal: %w", err)
	}

	s.logger.Info("Signal moved",
		zap.String("signal_id", signalID),
		zap.String("location_id", locationID))
	return moved, nil
}
