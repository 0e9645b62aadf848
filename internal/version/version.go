package version

import (
	"fmt"
	"runtime"
)

// Name is the binary name reported by the version command.
const Name = "make-manifest"

// Build metadata, set with -ldflags "-X github.com/oshokin/make-manifest/internal/version.Version=...".
var (
	// Version of the make-manifest release; "dev" for local builds.
	Version = "dev"
	// Commit is the short git SHA the binary was built from.
	Commit = "none"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Short returns the release version alone.
func Short() string {
	return Version
}

// Full returns the release, commit, build time and Go toolchain of the binary.
func Full() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s/%s)",
		Name, Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
