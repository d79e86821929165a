package agent

import (
	"context"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
)

// cycleCallback counts one run into a fresh cycle record and asks the handler
// for a decision when the run finishes. The decision is written to decision,
// which the loop reads after Run returns on the same goroutine.
func (a *Agent) cycleCallback(ctx context.Context, decision *Decision) progress.Callback {
	var c *cycle
	return &progress.CallbackFuncs{
		StartingFunc: func(expected int) {
			c = &cycle{}
			c.expected.Store(int64(expected))
			a.current.Store(c)
		},
		StartFunc: func(target, localVersion string) progress.Session {
			c.started.Add(1)
			return &progress.SessionFuncs{
				OutcomeFunc: func(o progress.Outcome, _ string) {
					if o >= 0 && int(o) < len(c.outcomes) {
						c.outcomes[o].Add(1)
					}
				},
			}
		},
		FinishedFunc: func() {
			stats := c.stats()
			a.log.WithField("stats", stats.String()).Debug("cycle finished")
			*decision = a.handler.StatsReady(ctx, stats)
		},
	}
}
