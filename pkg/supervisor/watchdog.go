package supervisor

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Watchdog pings systemd's watchdog at half its timeout until ctx is done. It
// returns right away when the service has no watchdog configured.
func (s *Supervisor) Watchdog(ctx context.Context) error {
	if !s.watchdog {
		return nil
	}
	timeout, err := s.watchdogTimeout()
	if err != nil {
		s.log.WithError(err).Warn("unable to read watchdog settings")
		return nil
	}
	if timeout <= 0 {
		s.log.Debug("watchdog not enabled")
		return nil
	}

	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.notifier.Notify(daemon.SdNotifyWatchdog); err != nil {
				s.log.WithError(err).Warn("unable to ping watchdog")
			}
		}
	}
}
