// Package irrigation waters plants.
//
// A watering cycle serves one Water station. The station's position names
// the arm that must move over it; its tank and pump ids name the water
// supply. Those three devices are shared by every station on the same arm,
// so a cycle holds all three for its whole duration:
//
//	Idle
//	  → AcquiringResources   arm, pump, tank locks in global order
//	  → Positioning          MoveArm(arm, x, y, z)
//	  → SettlingPre          wait settling_time
//	  → Pumping              pump on, wait pump_time, pump off
//	  → SettlingPost         wait settling_time
//	  → Idle
//
// Any state after Idle may end in Failed. Once Pumping has been entered
// the pump-off command is always sent, even when the cycle is cancelled
// or the pump-on command failed. A failing pump-off is retried with
// exponential backoff.
//
// Sequencer.Run executes a cycle synchronously. Dispatcher runs cycles in
// the background on a bounded worker pool and refuses a second cycle for a
// station that already has one queued or running.
package irrigation
