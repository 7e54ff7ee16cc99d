// Package version holds the build metadata of lcmc and compares the version
// strings remote tools report.
package version

import (
	"fmt"
	"runtime"
)

// Set through -ldflags "-X" at build time.
var (
	Version   = "unknown"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// UserAgent identifies the REST client towards the server.
func UserAgent() string {
	return "lcmc/" + Version + "-g" + GitCommit
}

// Info is the build description printed by "lcmc version".
func Info() string {
	return fmt.Sprintf("lcmc version %s\nBuilt at %s with %s\nVersion control hash: %s\n",
		Version, BuildDate, runtime.Version(), GitCommit)
}
