// Package version carries build identity, stamped via -ldflags.
package version

var (
	Version = "dev"
	Commit  = "none"
)
