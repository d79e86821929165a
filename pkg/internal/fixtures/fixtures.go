// Package fixtures builds published releases for tests.
package fixtures

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"sync"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/source"
	"github.com/klauspost/compress/gzip"
	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

const (
	// Deployment is the deployment version used by fixtures unless stated.
	Deployment = "fixtures-deployment"
)

// Files maps slash separated paths within an archive to their content. A
// path ending in "/" is a directory, content made by Symlink is a link.
type Files map[string]string

const symlinkPrefix = "\x00symlink:"

// Symlink is Files content for a symbolic link to target.
func Symlink(target string) string {
	return symlinkPrefix + target
}

// TarGz builds a gzip compressed tarball of files with entries in sorted
// order.
func TarGz(files Files) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		content := files[name]
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		switch {
		case name[len(name)-1] == '/':
			hdr = &tar.Header{Name: name, Mode: 0755, Typeflag: tar.TypeDir}
		case strings.HasPrefix(content, symlinkPrefix):
			hdr = &tar.Header{Name: name, Mode: 0777, Typeflag: tar.TypeSymlink,
				Linkname: strings.TrimPrefix(content, symlinkPrefix)}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			panic(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := io.WriteString(tw, content); err != nil {
				panic(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		panic(err)
	}
	if err := zw.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Remote is an in-memory source.Source.
type Remote struct {
	mu       sync.Mutex
	releases map[string]*source.Release
	archives map[string][]byte
	errs     map[string]error

	// Fetches counts archive opens.
	Fetches int
}

var _ source.Source = (*Remote)(nil)

// NewRemote returns an empty Remote.
func NewRemote() *Remote {
	return &Remote{
		releases: map[string]*source.Release{},
		archives: map[string][]byte{},
		errs:     map[string]error{},
	}
}

func key(target, deployment string) string {
	return target + "@" + deployment
}

// Publish makes version of target available for deployment with the given
// archive content.
func (r *Remote) Publish(target, deployment, version string, critical bool, files Files) *source.Release {
	archive := TarGz(files)
	rel := &source.Release{
		Target:     target,
		Deployment: deployment,
		Version:    version,
		Critical:   critical,
		Archive:    fmt.Sprintf("%s-%s.tar.gz", target, version),
		Digest:     digest.FromBytes(archive).String(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releases[key(target, deployment)] = rel
	r.archives[target+"/"+rel.Archive] = archive
	return rel.Clone()
}

// Corrupt replaces the published archive of the release with other bytes,
// leaving the descriptor's digest unchanged.
func (r *Remote) Corrupt(rel *source.Release) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := rel.Target + "/" + rel.Archive
	r.archives[k] = TarGz(Files{"tampered": "yes"})
}

// Fail makes fetching target's descriptor return err.
func (r *Remote) Fail(target, deployment string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[key(target, deployment)] = err
}

func (r *Remote) Release(ctx context.Context, target, deployment string) (*source.Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs[key(target, deployment)]; err != nil {
		return nil, err
	}
	rel, ok := r.releases[key(target, deployment)]
	if !ok {
		return nil, errors.WithMessage(source.ErrNotFound, key(target, deployment))
	}
	return rel.Clone(), nil
}

func (r *Remote) Archive(ctx context.Context, rel *source.Release) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fetches++
	raw, ok := r.archives[rel.Target+"/"+rel.Archive]
	if !ok {
		return nil, errors.WithMessage(source.ErrNotFound, rel.Archive)
	}
	return ioutil.NopCloser(bytes.NewReader(raw)), nil
}
