// Command puppet-deb bundles Puppet modules into a Debian package.
package main

import "github.com/oshokin/puppet-deb/cmd/puppet-deb/cmd"

func main() {
	cmd.Execute()
}
