package shared

import "errors"

// Failure classes used across services. Domain packages wrap these with
// %w plus a human-readable message describing the violated rule.
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a precondition on the entity state failed.
	ErrInvalidState = errors.New("invalid state")
	// ErrForbidden indicates the actor lacks the required role or ownership.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed or rule-breaking input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a concurrent-mutation conflict; callers may retry.
	ErrConflict = errors.New("resource conflict")
)

// UserSafeMessage returns a message suitable for end users. Wrapped
// taxonomy errors already carry curated messages; anything else is
// collapsed so internals do not leak.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
