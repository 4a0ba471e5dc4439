package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock already held")

	// ErrConfigInvalid wraps a validation failure surfaced at boot.
	ErrConfigInvalid = errors.New("config invalid")
	// ErrBookUnhealthy marks an orderbook that fails health checks.
	ErrBookUnhealthy = errors.New("book unhealthy")
	// ErrSizeInvalid marks a sizing ladder that fails validateSizes.
	ErrSizeInvalid = errors.New("size invalid")
	// ErrNoSizes marks an empty sizing ladder (e.g. zero available collateral).
	ErrNoSizes = errors.New("no sizes")
	// ErrVenue wraps any failure surfaced by the venue SDK.
	ErrVenue = errors.New("venue error")
	// ErrOracleUnavailable marks a full oracle blackout (no source succeeded, no stale cache).
	ErrOracleUnavailable = errors.New("oracle unavailable")
)
