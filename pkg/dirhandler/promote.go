package dirhandler

import (
	"os"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/layout"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Promote makes the pending version current, keeping the replaced version as
// previous. It reports whether anything was promoted. Each step leaves the
// markers in a state from which Promote can be run again.
func (h *Handler) Promote() (bool, error) {
	t := h.State()
	if !t.HasPending() {
		return false, h.removeMarker(layout.MarkerPending)
	}
	log := h.log.WithFields(logrus.Fields{
		"current": t.Current,
		"pending": t.Pending,
	})

	fi, err := h.fs.Stat(layout.VersionDir(h.name, t.Pending))
	if err != nil || !fi.IsDir() {
		return false, errors.Errorf("pending version %s of %s is not installed", t.Pending, h.name)
	}
	if t.Current != "" {
		if err := h.writeMarker(layout.MarkerPrevious, t.Current); err != nil {
			return false, err
		}
	}
	if err := h.writeMarker(layout.MarkerCurrent, t.Pending); err != nil {
		return false, err
	}
	if err := h.removeMarker(layout.MarkerPending); err != nil {
		return false, err
	}
	log.Info("promoted pending version")
	return true, nil
}

// Prune removes version directories no marker refers to along with leftover
// staging and temporary entries. It must not run concurrently with Update.
func (h *Handler) Prune() error {
	entries, err := h.fs.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "unable to list %s", h.dir)
	}
	t := h.State()
	keep := map[string]bool{t.Previous: true, t.Current: true, t.Pending: true}

	var failed []string
	for _, entry := range entries {
		name := entry.Name()
		isMarker := false
		for _, m := range layout.Markers {
			isMarker = isMarker || name == m
		}
		if isMarker || keep[name] {
			continue
		}
		if !entry.IsDir() && !layout.IsReserved(name) {
			continue
		}
		p := h.fs.Join(h.dir, name)
		if err := util.RemoveAll(h.fs, p); err != nil {
			h.log.WithError(err).WithField("entry", name).Warn("unable to prune")
			failed = append(failed, name)
			continue
		}
		h.log.WithField("entry", name).Debug("pruned")
	}
	if len(failed) > 0 {
		return errors.Errorf("unable to prune %v in %s", failed, h.dir)
	}
	return nil
}
