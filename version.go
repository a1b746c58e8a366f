package afetch

import (
	"fmt"
	"runtime"
)

// Build metadata, overridable at link time with -ldflags.
var (
	Version   = "v0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns the library version.
func GetVersion() string {
	return Version
}

// GetVersionInfo returns a human-readable build description.
func GetVersionInfo() string {
	return fmt.Sprintf("afetch %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}
