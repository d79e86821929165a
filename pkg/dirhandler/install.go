package dirhandler

import (
	"archive/tar"
	"context"
	"io"
	"io/ioutil"
	"os"
	"path"
	"strings"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/layout"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/logging"
	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	errDigestMismatch = errors.New("archive does not match published digest")
	errUnsafeEntry    = errors.New("archive entry escapes its version directory")
)

// install places rel's tree at its version directory. An existing version
// directory, left from an earlier install, is reused as is.
func (h *Handler) install(ctx context.Context, log logging.Logger, verbose bool, src source.Source, rel *source.Release) error {
	dest := layout.VersionDir(h.name, rel.Version)
	if fi, err := h.fs.Stat(dest); err == nil && fi.IsDir() {
		say(log, verbose, "reusing installed version")
		return nil
	}

	expected, err := rel.ParsedDigest()
	if err != nil {
		return err
	}

	staging := layout.StagingDir(h.name, rel.Version)
	if err := util.RemoveAll(h.fs, staging); err != nil {
		return errors.Wrap(err, "unable to clear staging directory")
	}
	if err := h.fs.MkdirAll(staging, 0755); err != nil {
		return errors.Wrap(err, "unable to create staging directory")
	}

	say(log.WithField("archive", rel.Archive), verbose, "downloading")
	body, err := src.Archive(ctx, rel)
	if err != nil {
		h.discard(staging)
		return errors.WithMessage(err, "unable to fetch archive")
	}
	defer body.Close()

	verifier := expected.Verifier()
	stream := io.TeeReader(body, verifier)
	if err := h.extract(ctx, log, stream, staging); err != nil {
		h.discard(staging)
		return err
	}
	// Drain anything after the tar trailer so the digest covers every byte.
	if _, err := io.Copy(ioutil.Discard, stream); err != nil {
		h.discard(staging)
		return errors.Wrap(err, "unable to read archive")
	}
	if !verifier.Verified() {
		h.discard(staging)
		return errors.WithMessagef(errDigestMismatch, "expected %s", expected)
	}

	if err := h.fs.Rename(staging, dest); err != nil {
		h.discard(staging)
		return errors.Wrap(err, "unable to move version into place")
	}
	say(log, verbose, "installed version")
	return nil
}

func (h *Handler) discard(dir string) {
	if err := util.RemoveAll(h.fs, dir); err != nil {
		h.log.WithError(err).WithField("dir", dir).Warn("unable to remove staging directory")
	}
}

// extract unpacks a gzip compressed tarball into dest.
//
// Symlinks are created only once every other entry is written, so no write
// can pass through a link taken from the archive. Each link must resolve
// within dest, following the archive's other links on the way, and must not
// sit below another link.
func (h *Handler) extract(ctx context.Context, log logging.Logger, r io.Reader, dest string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return errors.Wrap(err, "archive is not gzip compressed")
	}
	defer zr.Close()

	links := linkTable{}
	var order []string

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "unable to read archive")
		}

		name, ok := entryPath(hdr.Name)
		if !ok {
			return errors.WithMessagef(errUnsafeEntry, "%q", hdr.Name)
		}
		if name == "" {
			continue
		}
		if _, dup := links[name]; dup {
			return errors.WithMessagef(errUnsafeEntry, "%q replaces a symlink", hdr.Name)
		}
		if !links.placed(name) {
			return errors.WithMessagef(errUnsafeEntry, "%q is below a symlink", hdr.Name)
		}
		target := path.Join(dest, name)
		if logging.Debuggable {
			log.WithFields(logrus.Fields{
				"entry": name,
				"type":  string(hdr.Typeflag),
				"size":  hdr.Size,
			}).Debug("extracting")
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = h.fs.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0700)
		case tar.TypeReg:
			err = h.writeEntry(target, os.FileMode(hdr.Mode).Perm(), tr)
		case tar.TypeSymlink:
			if hdr.Linkname == "" || path.IsAbs(hdr.Linkname) {
				return errors.WithMessagef(errUnsafeEntry, "%q links to %q", hdr.Name, hdr.Linkname)
			}
			links[name] = hdr.Linkname
			order = append(order, name)
		default:
			log.WithField("entry", name).Debugf("skipping unsupported entry type %q", hdr.Typeflag)
		}
		if err != nil {
			return errors.Wrapf(err, "unable to extract %s", name)
		}
	}

	for _, name := range order {
		if !links.placed(name) {
			return errors.WithMessagef(errUnsafeEntry, "%q is below another symlink", name)
		}
		if _, ok := links.resolve(path.Dir(name) + "/" + links[name]); !ok {
			return errors.WithMessagef(errUnsafeEntry, "%q links to %q", name, links[name])
		}
		target := path.Join(dest, name)
		err := h.fs.MkdirAll(path.Dir(target), 0755)
		if err == nil {
			err = h.fs.Symlink(links[name], target)
		}
		if err != nil {
			return errors.Wrapf(err, "unable to extract %s", name)
		}
	}
	return nil
}

func (h *Handler) writeEntry(target string, mode os.FileMode, r io.Reader) error {
	if err := h.fs.MkdirAll(path.Dir(target), 0755); err != nil {
		return err
	}
	f, err := h.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// entryPath cleans an archive entry name relative to the version directory.
// It fails for names leaving that directory.
func entryPath(name string) (string, bool) {
	clean := path.Clean("/" + strings.TrimPrefix(name, "./"))
	if strings.Contains(name, "..") {
		for _, part := range strings.Split(name, "/") {
			if part == ".." {
				return "", false
			}
		}
	}
	return strings.TrimPrefix(clean, "/"), true
}

// maxLinkHops bounds symlink resolution, as the kernel's ELOOP limit does.
const maxLinkHops = 40

// linkTable maps the cleaned path of every symlink in an archive to its
// target.
type linkTable map[string]string

// placed reports whether name can be created without following any other
// link: none of its parent directories may be a link.
func (t linkTable) placed(name string) bool {
	dir := path.Dir(name)
	for dir != "." && dir != "/" {
		if _, ok := t[dir]; ok {
			return false
		}
		dir = path.Dir(dir)
	}
	return true
}

// resolve walks the slash separated path p from the version directory, in
// order and following the table's links, and returns where it ends. It fails
// when the walk leaves the version directory at any point, meets an absolute
// link or exceeds maxLinkHops.
func (t linkTable) resolve(p string) (string, bool) {
	var cur []string
	parts := strings.Split(p, "/")
	hops := 0
	for len(parts) > 0 {
		part := parts[0]
		parts = parts[1:]
		switch part {
		case "", ".":
			continue
		case "..":
			if len(cur) == 0 {
				return "", false
			}
			cur = cur[:len(cur)-1]
			continue
		}
		cur = append(cur, part)
		link, ok := t[strings.Join(cur, "/")]
		if !ok {
			continue
		}
		hops++
		if hops > maxLinkHops || path.IsAbs(link) {
			return "", false
		}
		cur = cur[:len(cur)-1]
		parts = append(strings.Split(link, "/"), parts...)
	}
	return strings.Join(cur, "/"), true
}
