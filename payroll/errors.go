/*
errors.go - Centralized error types for the payroll cycle engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and transports wrap these errors with additional context.

ERROR CATEGORIES:
  1. Lookup errors      - ConfigNotFound (the generator treats it as "nothing to do")
  2. Cycle state errors - UnsupportedCycleState, UnknownCycleType
  3. Computation errors - Malformed or zero dates fed to the calendar functions
  4. Store errors       - Persistence failures, CAS conflicts, duplicate periods

USAGE:
  if errors.Is(err, payroll.ErrConcurrentModification) {
      // re-read and try again
  }

SEE ALSO:
  - calendar.go: Raises ComputationError
  - cycle.go: Raises UnsupportedCycleStateError
  - generator.go: Logs and surfaces everything else
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfigNotFound is returned when a configuration id does not resolve to a row.
	ErrConfigNotFound = errors.New("payroll cycle config not found")

	// ErrUnsupportedCycleState is returned when a configuration cannot be advanced
	// in its current shape, e.g. a semi-monthly config without a second half.
	ErrUnsupportedCycleState = errors.New("unsupported cycle state")

	// ErrUnknownCycleType is returned for cycle ids outside the known set.
	ErrUnknownCycleType = errors.New("unknown cycle type")

	// ErrComputation is returned when calendar arithmetic receives malformed input.
	ErrComputation = errors.New("date computation failed")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidConfig is returned when a config is missing required fields.
	ErrInvalidConfig = errors.New("invalid payroll cycle config")

	// ErrPersistence is returned when a config update or period insert fails.
	ErrPersistence = errors.New("persistence failed")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicatePeriod is returned when the same period is inserted twice for a config.
	ErrDuplicatePeriod = errors.New("duplicate payroll period")

	// ErrDuplicateConfig is returned when a config id already exists.
	ErrDuplicateConfig = errors.New("duplicate payroll cycle config")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnsupportedCycleStateError explains why a config cannot be advanced.
type UnsupportedCycleStateError struct {
	ConfigID ConfigID
	Cycle    CycleType
	Reason   string
}

func (e *UnsupportedCycleStateError) Error() string {
	return fmt.Sprintf("unsupported cycle state for %s config %q: %s", e.Cycle, e.ConfigID, e.Reason)
}

func (e *UnsupportedCycleStateError) Unwrap() error {
	return ErrUnsupportedCycleState
}

// ComputationError reports the calendar operation and the input that broke it.
type ComputationError struct {
	Op     string
	Input  Date
	Reason string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s(%s): %s", e.Op, e.Input, e.Reason)
}

func (e *ComputationError) Unwrap() error {
	return ErrComputation
}

// PersistenceError wraps a store failure with the step that failed.
// errors.Is matches both ErrPersistence and the underlying cause.
type PersistenceError struct {
	Op       string
	ConfigID ConfigID
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s for config %q: %v", e.Op, e.ConfigID, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnsupportedCycleState) ||
		errors.Is(err, ErrUnknownCycleType) ||
		errors.Is(err, ErrComputation) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidConfig)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConfigNotFound)
}

// IsConflict returns true for uniqueness and optimistic-lock violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrDuplicatePeriod) ||
		errors.Is(err, ErrDuplicateConfig)
}
