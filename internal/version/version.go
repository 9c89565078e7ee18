// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/dishrec/internal/version.Version=v1.2.0
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build as "dishrec <version> (<commit>, <date>)".
func String() string {
	return "dishrec " + Version + " (" + Commit + ", " + Date + ")"
}
