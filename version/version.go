// Package version holds the build version.
package version

// Version is overridden at link time with
// -ldflags "-X github.com/determined-ai/devicegate/version.Version=...".
var Version = "dev"
