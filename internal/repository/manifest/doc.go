// Package manifest implements persistence for the parcel Manifest.
//
// FileRepository loads manifest.json from disk and replaces it atomically
// with go-update, which verifies the checksum of the new bytes before
// swapping them in.
package manifest
