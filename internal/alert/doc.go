// Package alert maps sensor readings to alert levels.
//
// Levels are ordered Normal < YellowWarning < RedAlert and carry the side of
// the band that was breached (low or high). Evaluation is a pure function of
// the reading and the device settings:
//
//	Water moisture   two-sided band, ties go to the more severe level
//	Air temperature  high side of the same band
//	Air fan RPM      single floor, strictly below is RedAlert
//	Light level      low floor, strictly below red is RedAlert
//
// Evaluator adds optional hysteresis on top: with a positive margin a
// de-escalation is only reported once the reading has cleared the held
// level's boundary by the margin. Escalation is never delayed.
//
// The package also classifies tank levels and derives fan modes and display
// indicators, all from the same threshold rules.
package alert
