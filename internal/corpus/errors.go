package corpus

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageUnavailable wraps store failures other than a missing
	// metadata record.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrAdvanceConflict is returned when the metadata record kept changing
	// underneath every advance attempt.
	ErrAdvanceConflict = errors.New("metadata advance conflict")
	// ErrBatchTooLarge is returned for a count above the configured maximum
	// batch size. Nothing is generated or stored.
	ErrBatchTooLarge = errors.New("batch too large")
)

// GenerationError reports the identifier whose text generation failed. The
// whole batch is discarded when this is returned.
type GenerationError struct {
	ID  int
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed for feedback #%d: %v", e.ID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// PersistenceError reports the identifier whose record could not be
// written. Records with lower identifiers in the same batch may already be
// stored.
type PersistenceError struct {
	ID  int
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist feedback #%d: %v", e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
