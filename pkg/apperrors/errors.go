package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrInvalidReference means an id does not resolve to the expected entity kind.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrAmbiguousResolution means a partial signal matched zero or several signals.
	ErrAmbiguousResolution = errors.New("ambiguous signal resolution")

	ErrDuplicateRelationship = errors.New("relationship already exists")
	ErrAlreadyInLocation     = errors.New("user already in location")
	ErrConstraintViolation   = errors.New("constraint violation")

	// ErrStoreUnavailable wraps graph store faults. It is never used for "not found".
	ErrStoreUnavailable = errors.New("graph store unavailable")
)
