package models

import "errors"

// Sentinel error kinds shared by the ingest and merge services. Callers
// classify failures with errors.Is; the HTTP and MCP layers map each kind
// to its own status.
var (
	// ErrInvalidInput means a required identifier or field was missing or
	// malformed. Raised before any storage access.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means an item, proposal, or history row is absent.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict means the entity exists but is in the wrong state:
	// a proposal that is no longer pending, a history row already reversed,
	// or a canonical item consumed by a later merge.
	ErrStateConflict = errors.New("state conflict")

	// ErrStrategyFailed means the merge strategy rejected the source set
	// (wrong type mix, fewer than two sources).
	ErrStrategyFailed = errors.New("merge strategy failed")

	// ErrStorageUnavailable means an operation could not reach the record
	// store. Collection reads degrade to empty results instead of raising
	// it; single-entity loads and all writes surface it.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
