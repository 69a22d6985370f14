// Package source resolves the Puppet module tree used by a run.
//
// A local path is used as is. A git URL is cloned with go-git into a
// temporary directory next to the staging tree and removed after the run.
package source
