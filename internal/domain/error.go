package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrConflict           = errors.New("conflicting state transition")
	ErrActiveJobExists    = errors.New("an active job already exists for this post")
	ErrInvalidState       = errors.New("operation not allowed in current status")
	ErrValidation         = errors.New("invalid input")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrTokenExpired       = errors.New("instagram token expired, reconnect required")
	ErrLockNotAcquired    = errors.New("lock not acquired")
)
