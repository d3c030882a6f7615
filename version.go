package tandem

import (
	"fmt"
	"runtime"
)

var (
	// Version is the tandem release; cmd/tandem overrides it from -ldflags.
	Version = "0.3.0"
	// GitCommit is the commit the CLI was built from.
	GitCommit = "unknown"
	// BuildDate is when the CLI was built.
	BuildDate = "unknown"
	// GoVersion records the Go toolchain version used.
	GoVersion = runtime.Version()
)

// GetVersion returns the one-line banner printed by `tandem version`.
func GetVersion() string {
	return fmt.Sprintf("tandem v%s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, GoVersion)
}

// GetVersionInfo returns the tandem build metadata (version, commit, build
// date and Go toolchain) as string pairs, ready for log fields or a
// Prometheus info label set.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": GoVersion,
	}
}
