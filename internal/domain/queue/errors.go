package queue

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced entry does not exist. No mutation
// is attempted.
var ErrNotFound = errors.New("queue entry not found")

// ValidationError reports malformed or missing input to an operation. It is
// raised before any state mutation and is recoverable by fixing the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a status change not permitted by the state
// machine. The entry is left unchanged.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// DependencyError wraps a failure of an external collaborator (AI scoring
// service or persistence layer). Timeout distinguishes a deadline expiry from
// other failures. Queue state stays at its last committed value; the caller
// may retry with backoff.
type DependencyError struct {
	Dependency string
	Timeout    bool
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Dependency, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// IsDependencyTimeout reports whether err is a DependencyError caused by a
// timeout.
func IsDependencyTimeout(err error) bool {
	var de *DependencyError
	return errors.As(err, &de) && de.Timeout
}

// InconsistencyError reports a detected invariant violation in a computed
// ordering (duplicate ids, non-dense positions). It should never occur in
// correct operation; when detected the offending reorder is discarded and
// recomputed from the persisted source of truth before this error surfaces.
type InconsistencyError struct {
	Reason string
}

func (e *InconsistencyError) Error() string {
	return "queue ordering inconsistency: " + e.Reason
}
