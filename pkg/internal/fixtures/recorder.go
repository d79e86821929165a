package fixtures

import (
	"fmt"
	"sync"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
)

// Recorder is a progress.Callback keeping every call it receives as a line,
// e.g. "starting 2", "start a local=1.0.0", "a critical-update 2.0.0",
// "finished".
type Recorder struct {
	mu    sync.Mutex
	calls []string
	// Outcomes keeps the terminal outcome of each target by name.
	Outcomes map[string]progress.Outcome
}

var _ progress.Callback = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Outcomes: map[string]progress.Outcome{}}
}

func (r *Recorder) record(format string, args ...interface{}) {
	r.mu.Lock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// Calls returns a copy of the recorded lines.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *Recorder) Starting(expected int) {
	r.record("starting %d", expected)
}

func (r *Recorder) Start(target, localVersion string) progress.Session {
	r.record("start %s local=%s", target, localVersion)
	return &progress.SessionFuncs{
		OutcomeFunc: func(o progress.Outcome, detail string) {
			r.mu.Lock()
			r.Outcomes[target] = o
			r.mu.Unlock()
			if detail == "" || o == progress.Failed {
				r.record("%s %s", target, o)
				return
			}
			r.record("%s %s %s", target, o, detail)
		},
	}
}

func (r *Recorder) Finished() {
	r.record("finished")
}
