// Package light runs the daily lamp schedule of Light stations.
//
// Each station lights its lamp from lamp_on until lamp_off in the site time
// zone; a window whose start is later than its end spans midnight. The
// scheduler remembers the last state it commanded per lamp and only talks
// to the hardware on a change, so calling it every control tick is cheap.
package light
