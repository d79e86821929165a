// Package updater runs update passes over the configured targets.
package updater

import (
	"context"
	"strings"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/config"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/dirhandler"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/progress"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/state"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// targetUpdater is the per-target collaborator. It must start the target's
// session on cb before doing any work and end it with exactly one terminal
// call, reporting failures through the session.
type targetUpdater interface {
	Name() string
	Update(ctx context.Context, verbose bool, src source.Source, deployment string, cb progress.Callback) progress.Outcome
	State() state.Triad
	Promote() (bool, error)
	Prune() error
}

var _ targetUpdater = (*dirhandler.Handler)(nil)

// Updater holds the ordered targets of one deployment.
type Updater struct {
	log        logging.Logger
	url        string
	deployment string
	src        source.Source
	targets    []targetUpdater
}

type options struct {
	log        logging.Logger
	fs         billy.Filesystem
	src        source.Source
	sourceOpts []source.Option
}

// Option configures New.
type Option func(*options)

// WithLogger sets the Updater's logger.
func WithLogger(log logging.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithFilesystem sets the filesystem the targets live on. It must be rooted
// at the system root. The default is the host filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(o *options) { o.fs = fs }
}

// WithSource replaces the remote built from the endpoint.
func WithSource(src source.Source) Option {
	return func(o *options) { o.src = src }
}

// WithSourceOptions passes options to the remote built from the endpoint.
func WithSourceOptions(opts ...source.Option) Option {
	return func(o *options) { o.sourceOpts = append(o.sourceOpts, opts...) }
}

// New validates its arguments and creates an Updater for the comma separated
// targets. Invalid arguments are reported as *config.Error.
func New(url, deploymentVersion, csvTargets string, opts ...Option) (*Updater, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.New("updater")
	}

	url, err := config.NotEmpty("URL", url)
	if err != nil {
		return nil, err
	}
	deploymentVersion, err = config.DeploymentVersion("deployment version", deploymentVersion)
	if err != nil {
		return nil, err
	}
	names, err := config.TargetNames("targets", csvTargets)
	if err != nil {
		return nil, err
	}

	src := o.src
	if src == nil {
		src, err = source.New(url, append([]source.Option{
			source.WithLogger(o.log.WithField(logging.SubComponentField, "source")),
		}, o.sourceOpts...)...)
		if err != nil {
			return nil, err
		}
	}
	fs := o.fs
	if fs == nil {
		fs = osfs.New("/")
	}

	targets := make([]targetUpdater, len(names))
	for i, name := range names {
		targets[i] = dirhandler.New(o.log, fs, name)
	}
	return newUpdater(o.log, url, deploymentVersion, src, targets), nil
}

func newUpdater(log logging.Logger, url, deployment string, src source.Source, targets []targetUpdater) *Updater {
	return &Updater{
		log: log.WithFields(logrus.Fields{
			"url":        url,
			"deployment": deployment,
		}),
		url:        url,
		deployment: deployment,
		src:        src,
		targets:    targets,
	}
}

// Run makes one pass over the targets in order, reporting through cb, and
// returns false if any target failed.
//
// cb.Starting and cb.Finished are each called exactly once. Once ctx is done
// the targets not yet started are skipped and the run fails. Panics raised by
// a target are not recovered.
func (u *Updater) Run(ctx context.Context, verbose bool, cb progress.Callback) bool {
	u.log.Debug("starting run")
	cb.Starting(len(u.targets))

	ok := true
	for i, t := range u.targets {
		if err := ctx.Err(); err != nil {
			u.log.WithError(err).WithField("skipped", len(u.targets)-i).Warn("run interrupted")
			ok = false
			break
		}
		if t.Update(ctx, verbose, u.src, u.deployment, cb) == progress.Failed {
			u.log.WithField("target", t.Name()).Debug("target failed")
			ok = false
		}
	}

	cb.Finished()
	u.log.WithField("ok", ok).Debug("finished run")
	return ok
}

// State reads the recorded versions of every target.
func (u *Updater) State() state.State {
	s := state.State{
		DeploymentVersion: u.deployment,
		Targets:           make([]state.Triad, len(u.targets)),
	}
	for i, t := range u.targets {
		s.Targets[i] = t.State()
	}
	return s
}

// Promote makes every staged version current and prunes versions no longer
// referenced. Every target is attempted; failures are combined.
func (u *Updater) Promote() error {
	var failed []string
	for _, t := range u.targets {
		log := u.log.WithField("target", t.Name())
		promoted, err := t.Promote()
		if err != nil {
			log.WithError(err).Error("unable to promote")
			failed = append(failed, t.Name()+": "+err.Error())
			continue
		}
		if !promoted {
			log.Debug("nothing to promote")
		}
		if err := t.Prune(); err != nil {
			log.WithError(err).Warn("unable to prune")
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("promote failed for %s", strings.Join(failed, "; "))
	}
	return nil
}

// Targets lists the target names in configured order.
func (u *Updater) Targets() []string {
	names := make([]string, len(u.targets))
	for i, t := range u.targets {
		names[i] = t.Name()
	}
	return names
}

// DeploymentVersion is the version the targets are checked against.
func (u *Updater) DeploymentVersion() string {
	return u.deployment
}
