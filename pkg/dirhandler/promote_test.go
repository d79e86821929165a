package dirhandler

import (
	"context"
	"sort"
	"testing"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/internal/fixtures"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/layout"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/state"
	"github.com/go-git/go-billy/v5/util"
	"gotest.tools/assert"
)

func TestPromote(t *testing.T) {
	h, _, remote := testHandler(t, "app")

	promoted, err := h.Promote()
	assert.NilError(t, err)
	assert.Check(t, !promoted, "nothing pending")

	installed(t, h, remote, "1.0.0")
	assert.DeepEqual(t, h.State(), state.Triad{Target: "app", Current: "1.0.0"})

	installed(t, h, remote, "1.1.0")
	assert.DeepEqual(t, h.State(), state.Triad{Target: "app", Previous: "1.0.0", Current: "1.1.0"})
}

func TestPromoteMissingVersion(t *testing.T) {
	h, fs, _ := testHandler(t, "app")
	assert.NilError(t, h.writeMarker(layout.MarkerPending, "3.0.0"))

	promoted, err := h.Promote()
	assert.Check(t, err != nil)
	assert.Check(t, !promoted)
	assert.Equal(t, readFile(t, fs, layout.MarkerFile("app", layout.MarkerPending)), "3.0.0\n")
}

func TestPrune(t *testing.T) {
	h, fs, remote := testHandler(t, "app")
	installed(t, h, remote, "1.0.0")
	installed(t, h, remote, "1.1.0")
	installed(t, h, remote, "1.2.0")
	remote.Publish("app", fixtures.Deployment, "1.3.0", false, fixtures.Files{"v": "1.3.0"})
	assert.Equal(t, h.Update(context.Background(), false, remote, fixtures.Deployment, fixtures.NewRecorder()), progress.NonCriticalUpdate)

	assert.NilError(t, fs.MkdirAll(layout.StagingDir("app", "9.9.9"), 0755))
	assert.NilError(t, util.WriteFile(fs, h.fs.Join(h.Dir(), "notes"), []byte("keep"), 0644))

	assert.NilError(t, h.Prune())

	entries, err := fs.ReadDir(h.Dir())
	assert.NilError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.DeepEqual(t, names, []string{"1.1.0", "1.2.0", "1.3.0", "current", "notes", "pending", "previous"})
}

func TestPruneMissingDir(t *testing.T) {
	h, _, _ := testHandler(t, "absent")
	assert.NilError(t, h.Prune())
}

func TestClassify(t *testing.T) {
	rel := func(version string, critical bool) *source.Release {
		return &source.Release{Version: version, Critical: critical}
	}
	running := func(current string) state.Triad {
		return state.Triad{Target: "t", Current: current}
	}
	tests := []struct {
		name   string
		rel    *source.Release
		local  state.Triad
		expect progress.Outcome
	}{
		{"flagged", rel("1.0.1", true), running("1.0.0"), progress.CriticalUpdate},
		{"nothing installed", rel("1.0.0", false), running(""), progress.CriticalUpdate},
		{"major", rel("2.0.0", false), running("1.9.9"), progress.CriticalUpdate},
		{"minor", rel("1.1.0", false), running("1.0.0"), progress.NonCriticalUpdate},
		{"major downgrade", rel("1.0.0", false), running("2.0.0"), progress.NonCriticalUpdate},
		{"opaque versions", rel("build-42", false), running("build-41"), progress.NonCriticalUpdate},
		{"v prefix", rel("v3.0.0", false), running("v2.1.0"), progress.CriticalUpdate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, Classify(tc.rel, tc.local), tc.expect)
		})
	}
}
