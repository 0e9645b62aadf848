// Package parcel contains the manifest document consumed by parcel repository clients.
//
// Manifest lists one Entry per parcel archive plus the time of the last
// change. Metadata copied from parcel.json is kept as raw JSON so it passes
// through untouched, and keys this tool does not know about survive a
// load-modify-save cycle.
package parcel
