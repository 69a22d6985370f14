// Package staging builds the directory tree handed to dpkg-deb.
//
// The steps are meant to run in order, each taking the same read-only job:
// Reset, Init, StageModules, WriteControl and WriteLauncher. Reset deletes the
// staging root recursively with no check beyond the literal path, and nothing
// here locks the tree: two runs against the same base directory and package
// name corrupt each other. Serialising runs is the caller's job.
package staging
