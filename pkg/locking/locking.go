// Package locking serializes check-then-act sequences per logical key.
package locking

import (
	"context"
	"errors"
)

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquire timeout")

// Locker hands out exclusive per-key locks. The returned unlock func must be
// called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UserKey serializes Locality transitions of one user.
func UserKey(userID string) string {
	return "user:" + userID
}

// KnowsKey serializes the ordered pair from -> to.
func KnowsKey(from, to string) string {
	return "knows:" + from + ":" + to
}

// WithinKey serializes the ordered pair inner -> outer.
func WithinKey(inner, outer string) string {
	return "within:" + inner + ":" + outer
}

// NearbyKey serializes the unordered pair {a, b}.
func NearbyKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "nearby:" + a + ":" + b
}

// SignalKey serializes registration of one (kind, type, identifier) triple.
func SignalKey(kind, signalType, identifier string) string {
	return "signal:" + kind + ":" + signalType + ":" + identifier
}

// ResourceKey serializes changes to a single entity by id.
func ResourceKey(kind, id string) string {
	return kind + ":" + id
}
