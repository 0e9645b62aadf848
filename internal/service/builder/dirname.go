package builder

import (
	"errors"
	"fmt"
	"path"
	"regexp"
)

const (
	// metaDirname is the metadata directory inside a parcel root.
	metaDirname = "meta"
	// ParcelJSONFilename is the required metadata document.
	ParcelJSONFilename = "parcel.json"
	// ReleaseNotesFilename is the optional release notes document.
	ReleaseNotesFilename = "release-notes.txt"
)

// ErrInvalidParcelName is returned for file names without a platform suffix.
var ErrInvalidParcelName = errors.New("parcel name does not look like <name>-<version>-<platform>")

// dirnamePattern splits a file name into name, version and platform.
// The first group is lazy and the second greedy, so everything before the
// last hyphen is the parcel root, even when the version holds hyphens.
var dirnamePattern = regexp.MustCompile(`^(.*?)-(.*)-(.*?)$`)

// ParcelDirname returns the top-level directory expected inside the archive,
// e.g. CDH-5.0.0-el6.parcel -> CDH-5.0.0.
func ParcelDirname(fileName string) (string, error) {
	groups := dirnamePattern.FindStringSubmatch(fileName)
	if groups == nil {
		return "", fmt.Errorf("%s: %w", fileName, ErrInvalidParcelName)
	}

	return groups[1] + "-" + groups[2], nil
}

// metadataPaths returns the archive paths of parcel.json and release-notes.txt.
func metadataPaths(dirname string) (string, string) {
	return path.Join(dirname, metaDirname, ParcelJSONFilename),
		path.Join(dirname, metaDirname, ReleaseNotesFilename)
}
