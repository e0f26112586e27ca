package irrigation

import "errors"

// Domain errors for watering cycles.
var (
	// ErrCancelled is the reason of a cycle that was stopped during a wait.
	ErrCancelled = errors.New("irrigation: cycle cancelled")

	// ErrDispatcherClosed is returned by Submit after Shutdown.
	ErrDispatcherClosed = errors.New("irrigation: dispatcher closed")
)
