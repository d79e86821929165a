package updater

import (
	"context"
	"testing"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/config"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/internal/fixtures"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/internal/testoutput"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/state"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

type testTarget struct {
	name    string
	outcome progress.Outcome
	triad   state.Triad
	updates int

	promoteFn func() (bool, error)
	pruned    int
}

var _ targetUpdater = (*testTarget)(nil)

func (t *testTarget) Name() string { return t.name }

func (t *testTarget) Update(ctx context.Context, verbose bool, src source.Source, deployment string, cb progress.Callback) progress.Outcome {
	t.updates++
	s := cb.Start(t.name, t.triad.Current)
	progress.Report(s, t.outcome, "2.0.0", "broken")
	return t.outcome
}

func (t *testTarget) State() state.Triad {
	tr := t.triad
	tr.Target = t.name
	return tr
}

func (t *testTarget) Promote() (bool, error) {
	if t.promoteFn != nil {
		return t.promoteFn()
	}
	return false, nil
}

func (t *testTarget) Prune() error {
	t.pruned++
	return nil
}

func testUpdater(t *testing.T, targets ...*testTarget) *Updater {
	tus := make([]targetUpdater, len(targets))
	for i := range targets {
		tus[i] = targets[i]
	}
	return newUpdater(testoutput.Logger(t, "updater"), "https://example.invalid", "d1", fixtures.NewRemote(), tus)
}

func TestRunProtocol(t *testing.T) {
	u := testUpdater(t,
		&testTarget{name: "a", outcome: progress.NoUpdate, triad: state.Triad{Current: "1.0.0"}},
		&testTarget{name: "b", outcome: progress.CriticalUpdate},
		&testTarget{name: "c", outcome: progress.Failed, triad: state.Triad{Current: "0.1"}},
	)
	rec := fixtures.NewRecorder()

	ok := u.Run(context.Background(), true, rec)
	assert.Check(t, !ok)
	assert.DeepEqual(t, rec.Calls(), []string{
		"starting 3",
		"start a local=1.0.0",
		"a no-update",
		"start b local=",
		"b critical-update 2.0.0",
		"start c local=0.1",
		"c failed",
		"finished",
	})
}

func TestRunAllNoUpdate(t *testing.T) {
	u := testUpdater(t,
		&testTarget{name: "a", outcome: progress.NoUpdate},
		&testTarget{name: "b", outcome: progress.NoUpdate},
	)
	assert.Check(t, u.Run(context.Background(), false, fixtures.NewRecorder()))
}

func TestRunUpdatesSucceed(t *testing.T) {
	u := testUpdater(t,
		&testTarget{name: "a", outcome: progress.NonCriticalUpdate},
		&testTarget{name: "b", outcome: progress.CriticalUpdate},
	)
	assert.Check(t, u.Run(context.Background(), false, fixtures.NewRecorder()))
}

func TestRunCancelled(t *testing.T) {
	a := &testTarget{name: "a", outcome: progress.NoUpdate}
	b := &testTarget{name: "b", outcome: progress.NoUpdate}
	u := testUpdater(t, a, b)
	ctx, cancel := context.WithCancel(context.Background())

	rec := fixtures.NewRecorder()
	cb := &progress.CallbackFuncs{
		StartingFunc: rec.Starting,
		StartFunc: func(target, local string) progress.Session {
			// Stop the run once the first target is underway.
			cancel()
			return rec.Start(target, local)
		},
		FinishedFunc: rec.Finished,
	}

	assert.Check(t, !u.Run(ctx, false, cb))
	assert.Equal(t, a.updates, 1)
	assert.Equal(t, b.updates, 0)
	assert.DeepEqual(t, rec.Calls(), []string{"starting 2", "start a local=", "a no-update", "finished"})
}

func TestRunPanicPropagates(t *testing.T) {
	u := newUpdater(testoutput.Logger(t, "updater"), "u", "d", fixtures.NewRemote(), []targetUpdater{&panicTarget{}})
	defer func() {
		assert.Equal(t, recover(), "target exploded")
	}()
	u.Run(context.Background(), false, fixtures.NewRecorder())
	t.Fatal("expected panic")
}

type panicTarget struct{ testTarget }

func (p *panicTarget) Update(context.Context, bool, source.Source, string, progress.Callback) progress.Outcome {
	panic("target exploded")
}

func TestState(t *testing.T) {
	u := testUpdater(t,
		&testTarget{name: "b", triad: state.Triad{Current: "1", Pending: "2"}},
		&testTarget{name: "a", triad: state.Triad{Previous: "0", Current: "1"}},
	)
	assert.DeepEqual(t, u.State(), state.State{
		DeploymentVersion: "d1",
		Targets: []state.Triad{
			{Target: "b", Current: "1", Pending: "2"},
			{Target: "a", Previous: "0", Current: "1"},
		},
	})
	assert.DeepEqual(t, u.Targets(), []string{"b", "a"})
	assert.Equal(t, u.DeploymentVersion(), "d1")
}

func TestPromoteAttemptsEveryTarget(t *testing.T) {
	a := &testTarget{name: "a", promoteFn: func() (bool, error) { return false, errors.New("disk full") }}
	b := &testTarget{name: "b", promoteFn: func() (bool, error) { return true, nil }}
	u := testUpdater(t, a, b)

	err := u.Promote()
	assert.ErrorContains(t, err, "a: disk full")
	assert.Equal(t, a.pruned, 0)
	assert.Equal(t, b.pruned, 1)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		deployment string
		targets    string
		field      string
	}{
		{"empty targets", "https://example.com", "d1", "", "targets"},
		{"blank targets", "https://example.com", "d1", "  ", "targets"},
		{"empty entry", "https://example.com", "d1", "a,,b", "targets"},
		{"trailing comma", "https://example.com", "d1", "a,", "targets"},
		{"quoted", "https://example.com", "d1", `"a",b`, "targets"},
		{"empty url", "", "d1", "a", "URL"},
		{"empty deployment", "https://example.com", " ", "a", "deployment version"},
		{"traversing deployment", "https://example.com", "../other", "a", "deployment version"},
		{"nested deployment", "https://example.com", "prod/v2", "a", "deployment version"},
		{"bad scheme", "ftp://example.com", "d1", "a", "URL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, err := New(tc.url, tc.deployment, tc.targets, WithLogger(testoutput.Logger(t, "updater")))
			assert.Check(t, u == nil)
			var cerr *config.Error
			assert.Assert(t, errors.As(err, &cerr), "%v", err)
			assert.Equal(t, cerr.Field, tc.field)
		})
	}
}

func TestEndToEnd(t *testing.T) {
	fs := memfs.New()
	remote := fixtures.NewRemote()
	remote.Publish("a", fixtures.Deployment, "1.0.0", false, fixtures.Files{"a": "1"})
	remote.Publish("b", fixtures.Deployment, "1.0.0", false, fixtures.Files{"b": "1"})

	u, err := New("https://example.com", fixtures.Deployment, "a, b",
		WithLogger(testoutput.Logger(t, "updater")),
		WithFilesystem(fs),
		WithSource(remote),
	)
	assert.NilError(t, err)
	assert.Check(t, !u.State().IsRunnable())

	rec := fixtures.NewRecorder()
	assert.Check(t, u.Run(context.Background(), false, rec))
	assert.Equal(t, rec.Outcomes["a"], progress.CriticalUpdate)
	assert.Equal(t, rec.Outcomes["b"], progress.CriticalUpdate)
	assert.Check(t, u.State().IsRunnable())
	assert.DeepEqual(t, u.State().Pending(), []string{"a", "b"})

	assert.NilError(t, u.Promote())
	assert.DeepEqual(t, u.State().Targets, []state.Triad{
		{Target: "a", Current: "1.0.0"},
		{Target: "b", Current: "1.0.0"},
	})

	rec = fixtures.NewRecorder()
	assert.Check(t, u.Run(context.Background(), false, rec))
	assert.Equal(t, rec.Outcomes["a"], progress.NoUpdate)
	assert.Equal(t, rec.Outcomes["b"], progress.NoUpdate)
}
