package supervisor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/agent"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/config"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/internal/testoutput"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

type testNotifier struct {
	states []string
	absent bool
}

func (n *testNotifier) Notify(state string) (bool, error) {
	if n.absent {
		return false, nil
	}
	n.states = append(n.states, state)
	return true, nil
}

type testConn struct {
	restarted []string
	reloads   int
	result    string
	closed    int

	restartErr error
}

func (c *testConn) RestartUnitContext(ctx context.Context, name, mode string, ch chan<- string) (int, error) {
	if c.restartErr != nil {
		return 0, c.restartErr
	}
	c.restarted = append(c.restarted, name+":"+mode)
	ch <- c.result
	return len(c.restarted), nil
}

func (c *testConn) ReloadContext(ctx context.Context) error {
	c.reloads++
	return nil
}

func (c *testConn) Close() {
	c.closed++
}

func testSupervisor(t *testing.T, cfg *config.Watch) (*Supervisor, *testNotifier, *testConn) {
	n := &testNotifier{}
	conn := &testConn{result: "done"}
	s := New(testoutput.Logger(t, "supervisor"), cfg,
		withNotifier(n),
		withSystemd(func(context.Context) (systemdConn, error) { return conn, nil }),
		WithFilesystem(memfs.New()),
	)
	return s, n, conn
}

func testConfig() *config.Watch {
	cfg := config.DefaultWatch()
	cfg.Interval = "1ms"
	cfg.Unit = "app.service"
	return cfg
}

func finished(outcomes ...progress.Outcome) agent.Stats {
	s := agent.Stats{Expected: len(outcomes), Started: len(outcomes)}
	for _, o := range outcomes {
		s.Outcomes[o]++
	}
	return s
}

func TestQuietCycleRunsAgain(t *testing.T) {
	s, n, conn := testSupervisor(t, testConfig())

	d := s.StatsReady(context.Background(), finished(progress.NoUpdate, progress.NoUpdate))
	assert.Equal(t, d, agent.RunAgain)
	assert.Equal(t, len(conn.restarted), 0)
	assert.Equal(t, n.states[0], "READY=1")
	assert.Check(t, strings.HasPrefix(n.states[1], "STATUS=2 targets"), n.states[1])

	s.StatsReady(context.Background(), finished(progress.NoUpdate, progress.NoUpdate))
	assert.Equal(t, len(n.states), 3, "ready is only sent once")
}

func TestCriticalRestartsUnit(t *testing.T) {
	s, _, conn := testSupervisor(t, testConfig())

	d := s.StatsReady(context.Background(), finished(progress.CriticalUpdate, progress.NoUpdate))
	assert.Equal(t, d, agent.RunAgain)
	assert.DeepEqual(t, conn.restarted, []string{"app.service:replace"})
	assert.Equal(t, conn.closed, 1)
	assert.Equal(t, s.Restarts(), 1)

	s.StatsReady(context.Background(), finished(progress.NonCriticalUpdate))
	assert.Equal(t, s.Restarts(), 1)
}

func TestRestartFailureKeepsWatching(t *testing.T) {
	s, _, conn := testSupervisor(t, testConfig())
	conn.restartErr = errors.New("access denied")

	d := s.StatsReady(context.Background(), finished(progress.CriticalUpdate))
	assert.Equal(t, d, agent.RunAgain)
	assert.Equal(t, s.Restarts(), 0)
}

func TestRestartJobFailure(t *testing.T) {
	s, _, conn := testSupervisor(t, testConfig())
	conn.result = "failed"

	assert.ErrorContains(t, s.restart(context.Background()), `"failed"`)
}

func TestNoUnitNoRestart(t *testing.T) {
	cfg := testConfig()
	cfg.Unit = ""
	s, _, conn := testSupervisor(t, cfg)

	s.StatsReady(context.Background(), finished(progress.CriticalUpdate))
	assert.Equal(t, len(conn.restarted), 0)
}

func TestCancelledStops(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = "1h"
	s, n, conn := testSupervisor(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := s.StatsReady(ctx, agent.Stats{Expected: 3, Started: 1, Outcomes: finished(progress.CriticalUpdate).Outcomes})
	assert.Equal(t, d, agent.Stop)
	assert.Equal(t, len(conn.restarted), 0)
	assert.DeepEqual(t, n.states, []string{"READY=1", "STATUS=interrupted after 1 of 3 targets", "STOPPING=1"})
}

func TestIntervalStopsEarly(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = "1h"
	s, _, _ := testSupervisor(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.Equal(t, s.StatsReady(ctx, finished(progress.NoUpdate)), agent.Stop)
}

func TestNotifyDisabledOutsideSystemd(t *testing.T) {
	s, n, _ := testSupervisor(t, testConfig())
	n.absent = true

	s.StatsReady(context.Background(), finished(progress.NoUpdate))
	assert.Check(t, !s.notify)
}

func TestEnsurePromoteDropIn(t *testing.T) {
	s, _, conn := testSupervisor(t, testConfig())
	cmd := []string{"/usr/bin/verdir", "promote", "https://example.com/releases", "2024.1", "a,b"}

	wrote, err := s.EnsurePromoteDropIn(context.Background(), "app.service", cmd)
	assert.NilError(t, err)
	assert.Check(t, wrote)
	assert.Equal(t, conn.reloads, 1)

	raw, err := util.ReadFile(s.fs, "/run/systemd/system/app.service.d/50-verdir-promote.conf")
	assert.NilError(t, err)
	assert.Check(t, strings.Contains(string(raw), "[Service]"))
	assert.Check(t, strings.Contains(string(raw), "ExecStartPre=/usr/bin/verdir promote https://example.com/releases 2024.1 a,b"), string(raw))

	wrote, err = s.EnsurePromoteDropIn(context.Background(), "app.service", cmd)
	assert.NilError(t, err)
	assert.Check(t, !wrote)
	assert.Equal(t, conn.reloads, 1)

	_, err = s.EnsurePromoteDropIn(context.Background(), "", cmd)
	assert.Check(t, err != nil)
}

func TestExecLine(t *testing.T) {
	assert.Equal(t, execLine([]string{"/bin/verdir", "promote"}), "/bin/verdir promote")
	assert.Equal(t, execLine([]string{"a b", ""}), `"a b" ""`)
	assert.Equal(t, execLine([]string{`say "$HOME" 100%`}), `"say \"$$HOME\" 100%%"`)
}

func TestWatchdog(t *testing.T) {
	s, n, _ := testSupervisor(t, testConfig())
	s.watchdogTimeout = func() (time.Duration, error) { return 10 * time.Millisecond, nil }
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NilError(t, s.Watchdog(ctx))
	assert.Assert(t, len(n.states) > 0)
	for _, st := range n.states {
		assert.Equal(t, st, "WATCHDOG=1")
	}
}

func TestWatchdogDisabled(t *testing.T) {
	s, n, _ := testSupervisor(t, testConfig())
	s.watchdogTimeout = func() (time.Duration, error) { return 0, nil }

	assert.NilError(t, s.Watchdog(context.Background()))
	assert.Equal(t, len(n.states), 0)
}
