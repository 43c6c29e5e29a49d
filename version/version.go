// Package version carries build information set with -ldflags.
package version //nolint:revive // package name intentionally matches build-info convention

import "fmt"

//nolint:gochecknoglobals //version information is set at build time
var (
	Repository string
	Version    string
	Commit     string
	Date       string
)

// String formats the build information for display.
func String() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	if Commit == "" {
		return v
	}
	return fmt.Sprintf("%s (%s, %s)", v, Commit, Date)
}
