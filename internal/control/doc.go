// Package control runs the periodic control loop.
//
// Every tick the loop reads each Air, Water, Light and Tank device and
//
//   - evaluates its alert level and emits alert_changed on a change
//   - queues a watering cycle for a Water station at or below its low
//     yellow threshold
//   - runs the lamp schedule of a Light station
//   - sets the fan mode of an Air station from its temperature and checks
//     the fan RPM floor while the fan runs
//   - classifies tank levels
//
// A device whose sensor or actuator fails is marked degraded and shown as
// Blue until it reads successfully again. Sensor reads go through a
// per-device circuit breaker so a dead sensor is not polled every tick.
//
// After each tick the loop emits a status event carrying the worst
// indicator colour and a per-device summary.
package control
