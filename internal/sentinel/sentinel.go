package sentinel

import "errors"

// Sentinel dependency errors. Stores return these (optionally wrapped)
// so services can translate them into domain errors exactly once.
var (
	ErrNotFound    = errors.New("not found")
	ErrExpired     = errors.New("expired")
	ErrAlreadyUsed = errors.New("already used")
	ErrExhausted   = errors.New("attempts exhausted")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
