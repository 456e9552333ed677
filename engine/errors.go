package engine

import "errors"

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine: closed")

	// ErrNotFound is returned when a key does not exist or has been
	// deleted.
	ErrNotFound = errors.New("engine: not found")
)
