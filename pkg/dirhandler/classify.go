package dirhandler

import (
	"github.com/Masterminds/semver/v3"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/state"
)

// Classify decides whether staging rel over local is a critical update.
//
// An update is critical when the release says so, when the target has
// nothing it could run, or when both versions are semantic versions and the
// major version goes up. Every other update is non-critical.
func Classify(rel *source.Release, local state.Triad) progress.Outcome {
	switch {
	case rel.Critical:
		return progress.CriticalUpdate
	case !local.Runnable():
		return progress.CriticalUpdate
	case majorIncrease(local.Current, rel.Version):
		return progress.CriticalUpdate
	}
	return progress.NonCriticalUpdate
}

func majorIncrease(from, to string) bool {
	if from == "" {
		return false
	}
	f, err := semver.NewVersion(from)
	if err != nil {
		return false
	}
	t, err := semver.NewVersion(to)
	if err != nil {
		return false
	}
	return t.Major() > f.Major()
}
