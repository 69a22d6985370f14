// Package debpkg contains the domain types of a packaging run.
//
// Job describes one package build: where modules come from, which modules go
// in, the control metadata and the launcher location. It also derives every
// path of the staging tree so the pipeline steps never build paths themselves.
package debpkg
