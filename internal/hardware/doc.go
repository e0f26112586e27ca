// Package hardware connects the controller to sensors and actuators.
//
// Two implementations of Hardware exist:
//
//   - MQTTBridge: device nodes publish readings on grow/sensor/{kind}/{id}
//     and receive commands on grow/command/{kind}/{id}. Arm moves are
//     confirmed on grow/ack/{kind}/{id}.
//   - Simulator: a clock-driven in-process model used for development and tests.
//
// Sensor failures wrap ErrSensorUnavailable and actuator failures wrap
// ErrActuatorFault.
package hardware
