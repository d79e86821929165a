package dirhandler

import (
	"context"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/layout"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/state"
	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Handler manages the directory of one target.
type Handler struct {
	log  logging.Logger
	fs   billy.Filesystem
	name string
	dir  string
}

// New creates the Handler for the named target on fs. fs is expected to be
// rooted at the system root so the target lives at layout.TargetDir(name).
func New(log logging.Logger, fs billy.Filesystem, name string) *Handler {
	return &Handler{
		log:  log.WithField("target", name),
		fs:   fs,
		name: name,
		dir:  layout.TargetDir(name),
	}
}

// Name of the target.
func (h *Handler) Name() string {
	return h.name
}

// Dir is the target's directory.
func (h *Handler) Dir() string {
	return h.dir
}

// State reads the target's recorded versions.
func (h *Handler) State() state.Triad {
	return state.Triad{
		Target:   h.name,
		Previous: h.readMarker(layout.MarkerPrevious),
		Current:  h.readMarker(layout.MarkerCurrent),
		Pending:  h.readMarker(layout.MarkerPending),
	}
}

// Update brings the target in line with the release published for the
// deployment and reports the outcome through cb. It starts the target's
// session before doing any work and always ends it with exactly one terminal
// call; failures are reported as Failed rather than returned.
func (h *Handler) Update(ctx context.Context, verbose bool, src source.Source, deployment string, cb progress.Callback) progress.Outcome {
	local := h.State()
	session := cb.Start(h.name, local.Current)

	outcome, version, err := h.update(ctx, verbose, src, deployment, local)
	if err != nil {
		h.log.WithError(err).WithField("deployment", deployment).Error("update failed")
		session.Fail(err.Error())
		return progress.Failed
	}
	progress.Report(session, outcome, version, "")
	return outcome
}

func (h *Handler) update(ctx context.Context, verbose bool, src source.Source, deployment string, local state.Triad) (progress.Outcome, string, error) {
	log := h.log.WithField("deployment", deployment)
	say(log, verbose, "fetching release")

	rel, err := src.Release(ctx, h.name, deployment)
	if err != nil {
		return progress.Failed, "", errors.WithMessage(err, "unable to fetch release")
	}
	log = log.WithFields(logrus.Fields{
		"version": rel.Version,
		"current": local.Current,
		"pending": local.Pending,
	})

	switch rel.Version {
	case local.Pending:
		say(log, verbose, "release already staged")
		return progress.NoUpdate, "", nil
	case local.Current:
		if local.Pending != "" {
			// The deployment went back to what is running; drop the stale
			// staged version.
			say(log, verbose, "discarding staged version")
			if err := h.removeMarker(layout.MarkerPending); err != nil {
				return progress.Failed, "", err
			}
		}
		say(log, verbose, "up to date")
		return progress.NoUpdate, "", nil
	}

	if err := h.install(ctx, log, verbose, src, rel); err != nil {
		return progress.Failed, "", err
	}
	if err := h.writeMarker(layout.MarkerPending, rel.Version); err != nil {
		return progress.Failed, "", err
	}
	outcome := Classify(rel, local)
	log.WithField("outcome", outcome.String()).Info("staged release")
	return outcome, rel.Version, nil
}

// say logs at info when the caller asked for verbose progress.
func say(log logging.Logger, verbose bool, msg string) {
	if verbose {
		log.Info(msg)
		return
	}
	log.Debug(msg)
}
