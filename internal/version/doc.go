// Package version exposes build metadata of make-manifest.
//
// Version, Commit and BuildTime are injected with -ldflags at build time and
// default to placeholder values for local builds.
package version
