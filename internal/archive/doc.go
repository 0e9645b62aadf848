// Package archive reads members out of parcel archives.
//
// Parcels are tar streams, usually gzip compressed. The compression is
// detected from the leading magic bytes, so plain, gzip, bzip2, zstd and xz
// archives are all accepted regardless of their file name.
package archive
