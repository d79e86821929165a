package dirhandler

import (
	"io"
	"os"
	"path"
	"strings"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/layout"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

func (h *Handler) markerPath(m layout.Marker) string {
	return path.Join(h.dir, m)
}

// readMarker returns the marker's version, empty when unset or unreadable.
func (h *Handler) readMarker(m layout.Marker) string {
	raw, err := util.ReadFile(h.fs, h.markerPath(m))
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			h.log.WithError(err).WithField("marker", m).Warn("unable to read marker")
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// writeMarker replaces the marker's content by renaming a fully written
// temporary file over it.
func (h *Handler) writeMarker(m layout.Marker, version string) error {
	if err := h.fs.MkdirAll(h.dir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create %s", h.dir)
	}
	f, err := h.fs.TempFile(h.dir, layout.TempPrefix()+m+"-")
	if err != nil {
		return errors.Wrapf(err, "unable to write %s marker", m)
	}
	tmp := f.Name()
	if _, err := io.WriteString(f, version+"\n"); err != nil {
		f.Close()
		h.fs.Remove(tmp)
		return errors.Wrapf(err, "unable to write %s marker", m)
	}
	if err := f.Close(); err != nil {
		h.fs.Remove(tmp)
		return errors.Wrapf(err, "unable to write %s marker", m)
	}
	if err := h.fs.Rename(tmp, h.markerPath(m)); err != nil {
		h.fs.Remove(tmp)
		return errors.Wrapf(err, "unable to replace %s marker", m)
	}
	return nil
}

func (h *Handler) removeMarker(m layout.Marker) error {
	err := h.fs.Remove(h.markerPath(m))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unable to clear %s marker", m)
	}
	return nil
}
