package source

import (
	// digests of archives are sha256 unless the descriptor says otherwise.
	_ "crypto/sha256"
	"path"
	"strings"

	"github.com/amazonlinux/bottlerocket/verdir/pkg/layout"
	digest "github.com/opencontainers/go-digest"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

const maxDescriptorSize = 64 << 10

// ErrInvalidRelease is returned for descriptors that can't be used.
var ErrInvalidRelease = errors.New("invalid release descriptor")

// Release describes the version of a target published for a deployment.
type Release struct {
	// Target and Deployment identify what the descriptor was fetched for.
	Target     string `toml:"-"`
	Deployment string `toml:"-"`

	// Version is the target's version in this deployment.
	Version string `toml:"version"`
	// Critical marks the release as one that must be picked up promptly.
	Critical bool `toml:"critical"`
	// Archive is the gzip compressed tarball holding the version's tree,
	// relative to the target's directory at the remote.
	Archive string `toml:"archive"`
	// Digest of the archive, as <algorithm>:<hex>.
	Digest string `toml:"digest"`
}

// ParseRelease decodes and validates a release descriptor.
func ParseRelease(target, deployment string, raw []byte) (*Release, error) {
	rel := &Release{}
	if err := toml.Unmarshal(raw, rel); err != nil {
		return nil, errors.WithMessagef(ErrInvalidRelease, "%s@%s: %v", target, deployment, err)
	}
	rel.Target = target
	rel.Deployment = deployment
	if err := rel.Validate(); err != nil {
		return nil, err
	}
	return rel, nil
}

// Validate checks the descriptor's fields.
func (r *Release) Validate() error {
	if !layout.ValidVersion(r.Version) {
		return errors.WithMessagef(ErrInvalidRelease, "%s@%s has unusable version %q", r.Target, r.Deployment, r.Version)
	}
	clean := path.Clean(r.Archive)
	if r.Archive == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.WithMessagef(ErrInvalidRelease, "%s@%s has unusable archive %q", r.Target, r.Deployment, r.Archive)
	}
	if _, err := r.ParsedDigest(); err != nil {
		return err
	}
	return nil
}

// ParsedDigest returns the archive's expected digest.
func (r *Release) ParsedDigest() (digest.Digest, error) {
	d, err := digest.Parse(r.Digest)
	if err != nil {
		return "", errors.WithMessagef(ErrInvalidRelease, "%s@%s has unusable digest %q: %v", r.Target, r.Deployment, r.Digest, err)
	}
	return d, nil
}

// Clone returns a copy that may be modified freely.
func (r *Release) Clone() *Release {
	c := *r
	return &c
}
