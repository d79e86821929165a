// Package layout describes where versioned targets live on disk.
//
// Every target is a directory directly under Root. Inside it each installed
// version has its own directory named after the version, and three marker
// files record which of them is current, which was current before it, and
// which is staged to become current on the next promotion.
package layout

import (
	"path"
	"strings"
)

// Root is the shared parent of every target directory.
const Root = "/versioned"

// Marker names a file in a target directory holding a single version string.
type Marker = string

const (
	MarkerCurrent  Marker = "current"
	MarkerPrevious Marker = "previous"
	MarkerPending  Marker = "pending"
)

// Markers lists every marker file name.
var Markers = []Marker{MarkerCurrent, MarkerPrevious, MarkerPending}

const (
	stagingPrefix = ".staging-"
	tempPrefix    = ".tmp-"
)

// TargetDir is the directory of the named target.
func TargetDir(name string) string {
	return path.Join(Root, name)
}

// VersionDir is the directory holding the given version of a target.
func VersionDir(target, version string) string {
	return path.Join(TargetDir(target), version)
}

// MarkerFile is the path of a target's marker.
func MarkerFile(target string, m Marker) string {
	return path.Join(TargetDir(target), m)
}

// StagingDir is where a version is extracted before being moved into place.
func StagingDir(target, version string) string {
	return path.Join(TargetDir(target), stagingPrefix+version)
}

// TempPrefix prefixes temporary files written in a target directory.
func TempPrefix() string {
	return tempPrefix
}

// IsReserved reports whether an entry in a target directory belongs to the
// layout itself rather than an installed version.
func IsReserved(entry string) bool {
	if strings.HasPrefix(entry, ".") {
		return true
	}
	for _, m := range Markers {
		if entry == m {
			return true
		}
	}
	return false
}

// ValidVersion reports whether v can be used as a version directory name.
func ValidVersion(v string) bool {
	if v == "" || IsReserved(v) {
		return false
	}
	return !strings.ContainsAny(v, "/\\\x00") && strings.TrimSpace(v) == v
}
