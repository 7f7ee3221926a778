/*
errors.go - Centralized error types for the pay engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Computation packages degrade instead of failing; these errors surface at
  the edges (sources, stores, HTTP) and in batch logs.

ERROR CATEGORIES:
  1. Input errors - Malformed periods, unknown workers
  2. Data errors - Missing contracts, unavailable distances
  3. Store errors - Duplicate or missing pay records

SEE ALSO:
  - pay/service.go: Logs and skips per-worker failures
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrNoContract is returned when a worker has no company contract
	// applicable to the period. Batch runs skip such workers.
	ErrNoContract = errors.New("no applicable contract")

	// ErrWorkerNotFound is returned when a referenced worker doesn't exist.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrDistanceUnavailable is returned by distance providers that cannot
	// resolve a route. Callers resolve it to a zero distance.
	ErrDistanceUnavailable = errors.New("distance unavailable")

	// ErrPayNotFound is returned when no stored pay record matches.
	ErrPayNotFound = errors.New("pay record not found")

	// ErrDuplicatePay is returned when a pay record already exists for the
	// worker and month.
	ErrDuplicatePay = errors.New("pay record already exists for this period")

	// ErrInvalidRecord is returned when a pay record to save is incomplete.
	ErrInvalidRecord = errors.New("invalid pay record")

	// ErrInvalidDataset is returned when a planning dataset file cannot be
	// turned into domain records.
	ErrInvalidDataset = errors.New("invalid dataset")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// WorkerError attaches the worker whose computation failed.
type WorkerError struct {
	WorkerID string
	Err      error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.WorkerID, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrDuplicatePay) ||
		errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrInvalidDataset)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkerNotFound) ||
		errors.Is(err, ErrPayNotFound) ||
		errors.Is(err, ErrNoContract)
}
