// Package supervisor reacts to finished update cycles in watch mode: it keeps
// systemd informed, restarts the managed unit when a critical update was
// staged and schedules the next cycle.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/agent"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/config"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Supervisor is the watch mode agent.Handler.
type Supervisor struct {
	log      logging.Logger
	interval time.Duration
	unit     string
	// notify is cleared on the agent's goroutine when systemd isn't
	// listening; watchdog is fixed at creation.
	notify   bool
	watchdog bool

	notifier        notifier
	watchdogTimeout func() (time.Duration, error)
	connect         func(context.Context) (systemdConn, error)
	fs              billy.Filesystem

	ready    bool
	restarts int
}

var _ agent.Handler = (*Supervisor)(nil)

// Option configures a Supervisor.
type Option func(*Supervisor)

func withNotifier(n notifier) Option {
	return func(s *Supervisor) { s.notifier = n }
}

func withSystemd(fn func(context.Context) (systemdConn, error)) Option {
	return func(s *Supervisor) { s.connect = fn }
}

// WithFilesystem sets the filesystem drop-ins are written to. It must be
// rooted at the system root.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(s *Supervisor) { s.fs = fs }
}

// New creates a Supervisor acting on cfg.
func New(log logging.Logger, cfg *config.Watch, opts ...Option) *Supervisor {
	s := &Supervisor{
		log:             log,
		interval:        cfg.IntervalDuration(),
		unit:            cfg.Unit,
		notify:          cfg.Notify,
		watchdog:        cfg.Notify,
		notifier:        sdNotifier{},
		watchdogTimeout: sdWatchdogTimeout,
		connect:         connect,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = osfs.New("/")
	}
	return s
}

// StatsReady reports the cycle, restarts the unit after a critical update and
// waits out the interval before asking for another cycle.
func (s *Supervisor) StatsReady(ctx context.Context, stats agent.Stats) agent.Decision {
	log := s.log.WithFields(logrus.Fields{
		"critical": stats.CriticalUpdates(),
		"update":   stats.NonCriticalUpdates(),
		"failed":   stats.Failed(),
	})
	switch {
	case stats.Failed():
		log.Warn("cycle finished with failures")
	case stats.CriticalUpdates() || stats.NonCriticalUpdates():
		log.Info("cycle staged updates")
	default:
		log.Debug("cycle finished")
	}

	if !s.ready {
		s.sdNotify(daemon.SdNotifyReady)
		s.ready = true
	}
	s.sdNotify("STATUS=" + status(stats))

	if stats.CriticalUpdates() && !stats.Unfinished() && ctx.Err() == nil {
		if err := s.restart(ctx); err != nil {
			log.WithError(err).WithField("unit", s.unit).Error("unable to restart unit")
		}
	}

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.sdNotify(daemon.SdNotifyStopping)
		return agent.Stop
	case <-timer.C:
		return agent.RunAgain
	}
}

// Restarts is the number of unit restarts requested.
func (s *Supervisor) Restarts() int {
	return s.restarts
}

func (s *Supervisor) restart(ctx context.Context) error {
	if s.unit == "" {
		s.log.Info("critical update staged, no unit configured to restart")
		return nil
	}
	log := s.log.WithField("unit", s.unit)
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Warn("restarting unit for critical update")
	result := make(chan string, 1)
	if _, err := conn.RestartUnitContext(ctx, s.unit, "replace", result); err != nil {
		return errors.Wrap(err, "unable to queue restart")
	}
	s.restarts++
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		if res != "done" {
			return errors.Errorf("restart job finished with %q", res)
		}
	}
	log.Info("restarted unit")
	return nil
}

func (s *Supervisor) sdNotify(state string) {
	if !s.notify {
		return
	}
	sent, err := s.notifier.Notify(state)
	if err != nil {
		s.log.WithError(err).Warn("unable to notify systemd")
		return
	}
	if !sent {
		s.log.Debug("not running under systemd notify, disabling notifications")
		s.notify = false
	}
}

func status(stats agent.Stats) string {
	if stats.Unfinished() || stats.NotStarted() {
		return fmt.Sprintf("interrupted after %d of %d targets", stats.Completed(), stats.Expected)
	}
	return fmt.Sprintf("%d targets: %s", stats.Expected, stats)
}
