/*
errors.go - Centralized error types for the agenda engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinels with errors.Is; the structured types
  carry the context needed to build a user-facing message.

ERROR CATEGORIES:
  1. Validation errors - malformed drafts/patches, attempted kind change
  2. Not found errors - update/delete/acknowledge of an unknown id
  3. Derived event errors - mutation of a projected (never stored) event
  4. Stale view errors - a newer view request superseded this one

  Transient store failures are NOT translated: repositories wrap them with
  fmt.Errorf("...: %w") and the controller returns them unchanged.

USAGE:
  if errors.Is(err, agenda.ErrNotFound) {
      // stale UI state: refresh instead of failing
  }

SEE ALSO:
  - store.go: ValidateDraft / ApplyPatch produce ValidationError
  - controller.go: produces DerivedEventImmutableError
  - api/handlers.go: maps these to HTTP status codes
*/
package agenda

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a draft or patch violates the event rules.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when an id does not name a stored event.
	ErrNotFound = errors.New("event not found")

	// ErrDerivedEventImmutable is returned when a caller tries to mutate a
	// projected event (birthday, plan expiration, reassessment).
	ErrDerivedEventImmutable = errors.New("derived events cannot be modified")

	// ErrInvalidWindow is returned when a window is unset or ends before it starts.
	ErrInvalidWindow = errors.New("invalid window: end before start")

	// ErrStaleView is returned when a newer view request began while this one
	// was waiting on the store. The result must be discarded.
	ErrStaleView = errors.New("stale view response")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError carries the id the caller asked for.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type DerivedEventImmutableError struct {
	ID     string
	Origin Origin
}

func (e *DerivedEventImmutableError) Error() string {
	return fmt.Sprintf("event %s is %s and cannot be modified", e.ID, e.Origin)
}

func (e *DerivedEventImmutableError) Unwrap() error { return ErrDerivedEventImmutable }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDerivedEventImmutable) ||
		errors.Is(err, ErrInvalidWindow)
}

// IsNotFound returns true if the error indicates a missing event.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
