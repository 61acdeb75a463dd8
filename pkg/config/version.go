// Package config carries build metadata stamped in at link time.
package config

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/blue-kestrel/shipsentry/pkg/config.Version=..."
// and friends; the zero build is identified as "dev".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// VersionString formats the full build identity for logs and the
// version subcommand.
func VersionString() string {
	return fmt.Sprintf("shipsentry %s (%s) built %s, %s %s/%s",
		Version, Commit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
