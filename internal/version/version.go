package version

import (
	"fmt"
	"runtime"
)

// Build information. Populated at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String returns a single-line version description.
func String() string {
	return fmt.Sprintf("authhub %s (commit %s, built %s, %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Println(String())
}
