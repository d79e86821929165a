package progress

// Outcome is the terminal classification of one target's update attempt.
type Outcome int

const (
	// CriticalUpdate means a new version was staged that must be picked up
	// promptly.
	CriticalUpdate Outcome = iota
	// NonCriticalUpdate means a new version was staged that may wait for the
	// next natural restart.
	NonCriticalUpdate
	// NoUpdate means the target already has the deployment's version.
	NoUpdate
	// Failed means the target could not be checked or updated.
	Failed

	// NumOutcomes is the number of Outcome kinds.
	NumOutcomes = int(Failed) + 1
)

// Outcomes lists every Outcome in declaration order.
var Outcomes = [NumOutcomes]Outcome{CriticalUpdate, NonCriticalUpdate, NoUpdate, Failed}

func (o Outcome) String() string {
	switch o {
	case CriticalUpdate:
		return "critical-update"
	case NonCriticalUpdate:
		return "update"
	case NoUpdate:
		return "no-update"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Updated is true for both update outcomes.
func (o Outcome) Updated() bool {
	return o == CriticalUpdate || o == NonCriticalUpdate
}
