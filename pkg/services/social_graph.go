package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/apperrors"
	"github.com/ekaya-inc/whereabouts/pkg/codec"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/metrics"
	"github.com/ekaya-inc/whereabouts/pkg/models"
)

// SocialGraphService manages directed, weighted knows relationships between users.
type SocialGraphService interface {
	// AddKnows creates from -> to with strength. Existing pairs are DuplicateRelationship.
	AddKnows(ctx context.Context, fromUserID, toUserID string, strength int) (bool, error)
	// UpdateKnows changes the strength of an existing pair. Returns false if the pair does not exist.
	UpdateKnows(ctx context.Context, fromUserID, toUserID string, strength int) (bool, error)
	RemoveKnows(ctx context.Context, fromUserID, toUserID string) (bool, error)
	// GetKnows lists the users linked to userID in dir with strength >= minStrength.
	// A limit <= 0 means no limit.
	GetKnows(ctx context.Context, userID string, minStrength int, dir models.Direction, limit int) ([]*models.Contact, error)
	GetStrength(ctx context.Context, fromUserID, toUserID string) (int, bool, error)
}

type socialGraphService struct {
	store  graphstore.Store
	locks  keyLock
	logger *zap.Logger
}

var _ SocialGraphService = (*socialGraphService)(nil)

func NewSocialGraphService(store graphstore.Store, locker locking.Locker, m *metrics.Metrics, logger *zap.Logger) SocialGraphService {
	return &socialGraphService{
		store:  store,
		locks:  keyLock{locker: locker, metrics: m},
		logger: logger.Named("social"),
	}
}

func validateKnows(from, to string, strength int) error {
	if err := codec.ValidateID("user", from); err != nil {
		return err
	}
	if err := codec.ValidateID("user", to); err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("user %s cannot know themselves: %w", from, apperrors.ErrConstraintViolation)
	}
	if !models.ValidStrength(strength) {
		return fmt.Errorf("strength %d outside [%d, %d]: %w",
			strength, models.MinStrength, models.MaxStrength, apperrors.ErrConstraintViolation)
	}
	return nil
}

func (s *socialGraphService) AddKnows(ctx context.Context, fromUserID, toUserID string, strength int) (bool, error) {
	if err := validateKnows(fromUserID, toUserID, strength); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.KnowsKey(fromUserID, toUserID))
	if err != nil {
		return false, err
	}
	defer unlock()

	_, err = inTx(ctx, s.store, func(tx graphstore.Tx) (string, error) {
		if _, err := loadUser(ctx, tx, fromUserID); err != nil {
			return "", err
		}
		if _, err := loadUser(ctx, tx, toUserID); err != nil {
			return "", err
		}
		existing, err := findEdge(ctx, tx, fromUserID, toUserID, graphstore.LabelKnows)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return "", fmt.Errorf("user %s already knows %s: %w", fromUserID, toUserID, apperrors.ErrDuplicateRelationship)
		}
		return tx.AddEdge(ctx, fromUserID, toUserID, graphstore.LabelKnows, graphstore.Properties{
			codec.KeyStrength:    strength,
			graphstore.TargetKey: toUserID,
		})
	})
	if err != nil {
		return false, fmt.Errorf("add knows: %w", err)
	}

	s.logger.Debug("Knows added",
		zap.String("from_user_id", fromUserID),
		zap.String("to_user_id", toUserID),
		zap.Int("strength", strength))
	return true, nil
}

func (s *socialGraphService) UpdateKnows(ctx context.Context, fromUserID, toUserID string, strength int) (bool, error) {
	if err := validateKnows(fromUserID, toUserID, strength); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.KnowsKey(fromUserID, toUserID))
	if err != nil {
		return false, err
	}
	defer unlock()

	updated, err := inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		existing, err := findEdge(ctx, tx, fromUserID, toUserID, graphstore.LabelKnows)
		if err != nil || existing == nil {
			return false, err
		}
		if err := tx.SetEdgeProperty(ctx, existing.ID, codec.KeyStrength, strength); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("update knows: %w", err)
	}
	return updated, nil
}

func (s *socialGraphService) RemoveKnows(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	if err := codec.ValidateID("user", fromUserID); err != nil {
		return false, err
	}
	if err := codec.ValidateID("user", toUserID); err != nil {
		return false, err
	}
	unlock, err := s.locks.acquire(ctx, locking.KnowsKey(fromUserID, toUserID))
	if err != nil {
		return false, err
	}
	defer unlock()

	removed, err := inTx(ctx, s.store, func(tx graphstore.Tx) (bool, error) {
		existing, err := findEdge(ctx, tx, fromUserID, toUserID, graphstore.LabelKnows)
		if err != nil || existing == nil {
			return false, err
		}
		if err := tx.RemoveEdge(ctx, existing.ID); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return false, fmt.Errorf("remove knows: %w", err)
	}
	if removed {
		s.logger.Debug("Knows removed",
			zap.String("from_user_id", fromUserID),
			zap.String("to_user_id", toUserID))
	}
	return removed, nil
}

func (s *socialGraphService) GetKnows(ctx context.Context, userID string, minStrength int, dir models.Direction, limit int) ([]*models.Contact, error) {
	var storeDir graphstore.Direction
	switch dir {
	case models.DirectionOutbound, "":
		storeDir = graphstore.Outbound
	case models.DirectionInbound:
		storeDir = graphstore.Inbound
	default:
		return nil, fmt.Errorf("unknown direction %q: %w", dir, apperrors.ErrConstraintViolation)
	}

	return inTx(ctx, s.store, func(tx graphstore.Tx) ([]*models.Contact, error) {
		if _, err := loadUser(ctx, tx, userID); err != nil {
			return nil, err
		}
		edges, err := tx.QueryEdges(ctx, userID, storeDir, graphstore.LabelKnows,
			[]graphstore.Filter{graphstore.Gte(codec.KeyStrength, minStrength)}, limit)
		if err != nil {
			return nil, storeFault("query knows edges", err)
		}
		contacts := make([]*models.Contact, 0, len(edges))
		for _, e := range edges {
			other, err := loadUser(ctx, tx, e.Other(userID))
			if err != nil {
				return nil, err
			}
			strength, _ := e.Properties.Int(codec.KeyStrength)
			contacts = append(contacts, &models.Contact{User: other, Strength: int(strength)})
		}
		return contacts, nil
	})
}

func (s *socialGraphService) GetStrength(ctx context.Context, fromUserID, toUserID string) (int, bool, error) {
	type result struct {
		strength int
		ok       bool
	}
	r, err := inTx(ctx, s.store, func(tx graphstore.Tx) (result, error) {
		if _, err := loadUser(ctx, tx, fromUserID); err != nil {
			return result{}, err
		}
		e, err := findEdge(ctx, tx, fromUserID, toUserID, graphstore.LabelKnows)
		if err != nil || e == nil {
			return result{}, err
		}
		n, _ := e.Properties.Int(codec.KeyStrength)
		return result{strength: int(n), ok: true}, nil
	})
	return r.strength, r.ok, err
}
