package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle not found case
//	}
//
// Every error except ErrNotFound is a configuration error: the inventory
// cannot be used and the process must not start with it.
var (
	// ErrNotFound is returned when no device with the given kind and id exists.
	ErrNotFound = errors.New("device: not found")

	// ErrUnknownDeviceKind is returned when an inventory record names a kind
	// that is not one of Air, Water, Light, Arm, Pump, Tank, Aux.
	ErrUnknownDeviceKind = errors.New("device: unknown device kind")

	// ErrMissingSetting is returned when a required settings field is absent.
	ErrMissingSetting = errors.New("device: missing setting")

	// ErrInvalidReference is returned when a Water device points to a Tank,
	// Pump or Arm that does not exist.
	ErrInvalidReference = errors.New("device: invalid reference")

	// ErrInvariantViolation is returned when settings break an ordering or
	// range rule (thresholds out of order, negative durations, bad times).
	ErrInvariantViolation = errors.New("device: invariant violation")

	// ErrDuplicateDevice is returned when the same kind and id appear twice.
	ErrDuplicateDevice = errors.New("device: duplicate device")

	// ErrInvalidInventory is returned when the inventory document is malformed.
	ErrInvalidInventory = errors.New("device: invalid inventory")
)
