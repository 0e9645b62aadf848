// Package packager runs the manifest operations behind the command line.
//
// Every operation takes the manifest lock of the parcel directory, loads the
// current manifest when it needs one, lets the builder produce the new
// document and saves it before the lock is released. Nothing is written when
// any step fails.
package packager
