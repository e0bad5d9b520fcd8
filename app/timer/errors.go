package timer

import "errors"

var (
	ErrNotInitialized = errors.New("timer is not initialized")
	ErrInvalidCycle   = errors.New("cycle duration must be positive")
	ErrCorruptAnchor  = errors.New("anchor is corrupt")
)
