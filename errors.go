package lsmgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lsmgo/engine"
	"github.com/hupe1980/lsmgo/resource"
)

var (
	// ErrNotFound is returned when a key does not exist or has been
	// deleted.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("closed")

	// ErrOutOfMemory is returned at Open when the table regions do not fit
	// the configured memory limit. No other operation allocates.
	ErrOutOfMemory = errors.New("out of memory")
)

// translateError unifies subsystem errors into the package's public
// taxonomy. The original error stays reachable via errors.Is and errors.As.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, engine.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, engine.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if errors.Is(err, resource.ErrOutOfMemory) {
		return fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}

	return err
}
