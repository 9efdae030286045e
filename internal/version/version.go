// Package version carries build metadata injected at link time via
// -ldflags -X.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("aimeter %s (%s, %s)", Version, Commit, Date)
}
