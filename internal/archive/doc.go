// Package archive turns a staging tree into the final .deb artifact.
//
// Builder runs dpkg-deb as a child process and tells apart a utility that
// cannot start, one that exits non-zero and one that exits cleanly without
// producing the archive. MoveArtifact gives the archive its versioned name.
// Inspect and Verify read the result with an ar reader to check it is a
// Debian binary package for the expected name and version, and SignFile
// writes an armored OpenPGP detached signature next to it.
package archive
