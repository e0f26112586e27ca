package control

import "errors"

// ErrBreakerOpen is returned for a device whose sensor breaker is open. It is
// always wrapped together with hardware.ErrSensorUnavailable.
var ErrBreakerOpen = errors.New("control: sensor breaker open")
