// Package version provides build and version information for the animgraph engine.
package version

// Version is the current release version of the engine.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/animgraph/internal/version.Version=x.y.z"
var Version = "0.3.0"

// Commit is the source revision, set at build time.
var Commit = "dev"

// String returns the version and commit.
func String() string {
	return Version + " (" + Commit + ")"
}
