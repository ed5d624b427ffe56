package ledger

import (
	"errors"
	"fmt"

	"github.com/rileyhales/hydrologic-bias-correction/internal/model"
)

// ErrInconsistentAssignment matches every InconsistentAssignmentError.
var ErrInconsistentAssignment = errors.New("inconsistent assignment")

// InconsistentAssignmentError is raised when a ledger invariant would be or
// has been broken. It always aborts the run.
type InconsistentAssignmentError struct {
	Mid       int64
	Attempted model.Reason
	Existing  model.Reason
	Detail    string
}

func (e *InconsistentAssignmentError) Error() string {
	return fmt.Sprintf("inconsistent assignment for basin %d (attempted %q, existing %q): %s",
		e.Mid, e.Attempted, e.Existing, e.Detail)
}

func (e *InconsistentAssignmentError) Unwrap() error {
	return ErrInconsistentAssignment
}
