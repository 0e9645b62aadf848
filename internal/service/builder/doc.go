// Package builder turns parcel archives into manifest entries.
//
// For every parcel it fingerprints the raw bytes with SHA-1, opens the
// archive, and copies the dependency metadata of <name>-<version>/meta/parcel.json
// and the optional release notes into an Entry. Parcels without usable
// metadata are logged and skipped; I/O failures abort the whole build so a
// partially scanned set never reaches the manifest.
package builder
