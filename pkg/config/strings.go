package config

import (
	"strings"
)

// NotEmpty returns the trimmed value or an Error naming field when nothing
// remains.
func NotEmpty(field, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", invalid(field, "must be provided")
	}
	return v, nil
}

// DeploymentVersion validates the deployment version, which names a
// descriptor file below each target on the remote. It must be a single path
// segment.
func DeploymentVersion(field, value string) (string, error) {
	v, err := NotEmpty(field, value)
	if err != nil {
		return "", err
	}
	if v == "." || v == ".." {
		return "", invalid(field, "%q is not a valid deployment version", v)
	}
	if strings.ContainsAny(v, "/\\\x00?#") {
		return "", invalid(field, "deployment version %q must be a plain name", v)
	}
	return v, nil
}

// ParseCSV splits a simple comma separated list. Entries are trimmed and may
// not be empty. Quoting isn't supported: an entry containing a quote is
// malformed.
func ParseCSV(field, value string) ([]string, error) {
	v, err := NotEmpty(field, value)
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(v, "\"\n\r") {
		return nil, invalid(field, "malformed list %q, quoting and line breaks are not supported", v)
	}
	parts := strings.Split(v, ",")
	entries := make([]string, len(parts))
	for i, part := range parts {
		entry := strings.TrimSpace(part)
		if entry == "" {
			return nil, invalid(field, "entry %d of %q is empty", i+1, v)
		}
		entries[i] = entry
	}
	return entries, nil
}

// TargetNames parses the list of target names. Each name must be usable as a
// single directory name and may only appear once.
func TargetNames(field, value string) ([]string, error) {
	names, err := ParseCSV(field, value)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, invalid(field, "at least one target is required")
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "." || name == ".." || strings.HasPrefix(name, ".") {
			return nil, invalid(field, "target %q may not start with a dot", name)
		}
		if strings.ContainsAny(name, "/\\\x00") {
			return nil, invalid(field, "target %q must be a plain directory name", name)
		}
		if _, dup := seen[name]; dup {
			return nil, invalid(field, "target %q is listed more than once", name)
		}
		seen[name] = struct{}{}
	}
	return names, nil
}
