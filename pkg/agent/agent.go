package agent

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/state"
	"github.com/pkg/errors"
)

// Decision is the Handler's verdict on a finished cycle.
type Decision int

const (
	// Stop ends the loop after the current cycle.
	Stop Decision = iota
	// RunAgain starts another cycle.
	RunAgain
)

func (d Decision) String() string {
	if d == RunAgain {
		return "run-again"
	}
	return "stop"
}

// Handler reacts to finished cycles. StatsReady runs on the agent's goroutine
// and blocks the next cycle until it returns.
type Handler interface {
	StatsReady(ctx context.Context, stats Stats) Decision
}

// HandlerFunc adapts a func to a Handler.
type HandlerFunc func(ctx context.Context, stats Stats) Decision

func (fn HandlerFunc) StatsReady(ctx context.Context, stats Stats) Decision {
	return fn(ctx, stats)
}

// Runner runs update passes. It is satisfied by *updater.Updater.
type Runner interface {
	Run(ctx context.Context, verbose bool, cb progress.Callback) bool
	State() state.State
}

// foreground tracks agents that keep the process alive, see WaitForeground.
var foreground sync.WaitGroup

// WaitForeground blocks until every agent created with Daemon(false) has
// stopped.
func WaitForeground() {
	foreground.Wait()
}

// Option configures an Agent.
type Option func(*Agent)

// Daemon controls whether the agent's goroutine may be abandoned at process
// exit. Agents are daemons unless set otherwise.
func Daemon(daemon bool) Option {
	return func(a *Agent) { a.daemon = daemon }
}

// Verbose requests verbose runs.
func Verbose(verbose bool) Option {
	return func(a *Agent) { a.verbose = verbose }
}

// Agent owns the goroutine repeating runs.
type Agent struct {
	log     logging.Logger
	runner  Runner
	handler Handler
	daemon  bool
	verbose bool

	current atomic.Pointer[cycle]
	cycles  atomic.Int64

	done chan struct{}
	err  error
}

// New starts the agent's goroutine right away. The loop ends when the handler
// returns Stop, when ctx is done, or when a run panics.
func New(ctx context.Context, log logging.Logger, r Runner, h Handler, opts ...Option) *Agent {
	a := &Agent{
		log:     log,
		runner:  r,
		handler: h,
		daemon:  true,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.daemon {
		foreground.Add(1)
	}
	go a.loop(ctx)
	return a
}

func (a *Agent) loop(ctx context.Context) {
	defer close(a.done)
	if !a.daemon {
		defer foreground.Done()
	}
	defer func() {
		if r := recover(); r != nil {
			a.err = errors.Errorf("update run panicked: %v", r)
			a.log.WithError(a.err).WithField("cycles", a.Cycles()).Error("agent stopped")
		}
	}()

	a.log.Debug("starting")
	for {
		if err := ctx.Err(); err != nil {
			a.log.WithError(err).Info("stopping")
			return
		}
		decision := Stop
		ok := a.runner.Run(ctx, a.verbose, a.cycleCallback(ctx, &decision))
		n := a.cycles.Add(1)

		a.log.WithField("cycle", n).WithField("ok", ok).Debugf("handler decided to %s", decision)
		if decision != RunAgain {
			a.log.WithField("cycles", n).Info("stopping")
			return
		}
	}
}

// Done is closed once the loop has ended.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the loop has ended and returns the error that ended it,
// nil unless a run panicked.
func (a *Agent) Wait() error {
	<-a.done
	return a.err
}

// Cycles is the number of completed runs.
func (a *Agent) Cycles() int {
	return int(a.cycles.Load())
}

// Stats reads the counts of the running or last cycle. Outside the handler
// the result may lag behind the loop.
func (a *Agent) Stats() Stats {
	return a.current.Load().stats()
}

// State reads the targets' recorded versions.
func (a *Agent) State() state.State {
	return a.runner.State()
}
