package actuator

import "errors"

// Domain errors for the actuator package.
//
// Both are recovered by the caller: an irrigation cycle that hits either one
// ends as Failed and is retried on a later tick.
var (
	// ErrResourceBusy is returned when a resource could not be acquired
	// before the acquire timeout or the context deadline.
	ErrResourceBusy = errors.New("actuator: resource busy")

	// ErrReentrantLock is returned when an owner requests a resource it
	// already holds, or names the same resource twice in one request.
	ErrReentrantLock = errors.New("actuator: reentrant lock")
)
