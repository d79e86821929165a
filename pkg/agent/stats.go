package agent

import (
	"fmt"
	"sync/atomic"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
)

// Stats are the counts of one cycle.
type Stats struct {
	// Expected is the number of targets the run announced.
	Expected int
	// Started is the number of targets whose session began.
	Started int
	// Outcomes counts terminal calls by outcome.
	Outcomes [progress.NumOutcomes]int
}

// Count of targets that ended with o.
func (s Stats) Count(o progress.Outcome) int {
	if o < 0 || int(o) >= len(s.Outcomes) {
		return 0
	}
	return s.Outcomes[o]
}

// Completed is the number of targets that reached a terminal call.
func (s Stats) Completed() int {
	n := 0
	for _, c := range s.Outcomes {
		n += c
	}
	return n
}

// CriticalUpdates is true when a target staged a critical update.
func (s Stats) CriticalUpdates() bool {
	return s.Count(progress.CriticalUpdate) != 0
}

// NonCriticalUpdates is true when a target staged a non-critical update.
func (s Stats) NonCriticalUpdates() bool {
	return s.Count(progress.NonCriticalUpdate) != 0
}

// Failed is true when a target failed.
func (s Stats) Failed() bool {
	return s.Count(progress.Failed) != 0
}

// Unfinished is true while a started target has yet to report its outcome.
func (s Stats) Unfinished() bool {
	return s.Started > s.Completed()
}

// NotStarted is true while some announced targets have not begun.
func (s Stats) NotStarted() bool {
	return s.Expected > s.Started
}

func (s Stats) String() string {
	return fmt.Sprintf("expected=%d started=%d critical=%d update=%d no-update=%d failed=%d",
		s.Expected, s.Started,
		s.Count(progress.CriticalUpdate), s.Count(progress.NonCriticalUpdate),
		s.Count(progress.NoUpdate), s.Count(progress.Failed))
}

// cycle is the live record of a running cycle. Only the loop goroutine writes
// it; any goroutine may read it.
type cycle struct {
	expected atomic.Int64
	started  atomic.Int64
	outcomes [progress.NumOutcomes]atomic.Int64
}

func (c *cycle) stats() Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{
		Expected: int(c.expected.Load()),
		Started:  int(c.started.Load()),
	}
	for i := range c.outcomes {
		s.Outcomes[i] = int(c.outcomes[i].Load())
	}
	return s
}
