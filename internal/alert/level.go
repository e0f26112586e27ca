package alert

import "fmt"

// Level is an ordered alert level.
type Level int

// Alert levels, least severe first.
const (
	Normal Level = iota
	YellowWarning
	RedAlert
)

// String returns the level name used in events and logs.
func (l Level) String() string {
	switch l {
	case Normal:
		return "normal"
	case YellowWarning:
		return "yellow_warning"
	case RedAlert:
		return "red_alert"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Side is the side of a band that was breached.
type Side int

// Band sides.
const (
	SideNone Side = iota
	SideLow
	SideHigh
)

// String returns the side name.
func (s Side) String() string {
	switch s {
	case SideLow:
		return "low"
	case SideHigh:
		return "high"
	default:
		return "none"
	}
}

// Result is the outcome of one evaluation. A Normal result has SideNone.
type Result struct {
	Level Level `json:"level"`
	Side  Side  `json:"side"`
}

// Predefined results.
var (
	OK         = Result{Level: Normal, Side: SideNone}
	YellowLow  = Result{Level: YellowWarning, Side: SideLow}
	YellowHigh = Result{Level: YellowWarning, Side: SideHigh}
	RedLow     = Result{Level: RedAlert, Side: SideLow}
	RedHigh    = Result{Level: RedAlert, Side: SideHigh}
)

// String formats the result as level(side), or "normal".
func (r Result) String() string {
	if r.Level == Normal {
		return Normal.String()
	}
	return fmt.Sprintf("%s(%s)", r.Level, r.Side)
}

// MoreSevere reports whether r has a strictly higher level than o.
func (r Result) MoreSevere(o Result) bool {
	return r.Level > o.Level
}

// Worst returns the most severe of the results; the first one wins a tie.
// It returns OK for no results.
func Worst(results ...Result) Result {
	worst := OK
	for _, r := range results {
		if r.MoreSevere(worst) {
			worst = r
		}
	}
	return worst
}
