// Package cli is the entry point used by cmd/ifmctl
package cli

import (
	cmdpkg "github.com/berrythewa/ifmctl/internal/cli/cmd"
)

// Version information - set by main
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "none"
)

// SetVersionInfo records build information for the version command
func SetVersionInfo(version, buildTime, commit string) {
	Version, BuildTime, Commit = version, buildTime, commit
	cmdpkg.SetVersionInfo(version, buildTime, commit)
}

// Execute runs the root command
func Execute() {
	cmdpkg.Execute()
}
