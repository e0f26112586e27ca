package hardware

import "errors"

// Errors shared by every sensor source and actuator driver.
//
// The control loop treats both as device faults: the device is marked
// degraded and the loop carries on with the other devices.
var (
	// ErrSensorUnavailable is returned when no current reading exists for a device.
	ErrSensorUnavailable = errors.New("hardware: sensor unavailable")

	// ErrActuatorFault is returned when an actuator command fails or is rejected.
	ErrActuatorFault = errors.New("hardware: actuator fault")
)
