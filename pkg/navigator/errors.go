package navigator

import (
	"errors"
	"fmt"

	"github.com/offerforge/offerforge/pkg/stepgraph"
)

// ValidationError is a recoverable rejection of a user action. The session
// is left unchanged.
type ValidationError struct {
	Step   stepgraph.StepID
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot proceed from %s: %s", e.Step, e.Reason)
	}
	return fmt.Sprintf("cannot proceed from %s: %s %s", e.Step, e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SearchError wraps a provider failure. It is recorded on the session;
// the previous candidate pool is kept.
type SearchError struct {
	Step  stepgraph.StepID
	Epoch uint64
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search for %s (epoch %d) failed: %v", e.Step, e.Epoch, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// ClosedError is returned by a controller after Close.
type ClosedError struct {
	SessionID string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("session %s is closed", e.SessionID)
}
