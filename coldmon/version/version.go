// Package version carries build metadata, set with
// -ldflags "-X github.com/itohio/coldmon/coldmon/version.Version=...".
package version

// Version is the release string; "dev" for local builds.
var Version = "dev"

// BuildDate is the UTC build timestamp.
var BuildDate = "not set"
