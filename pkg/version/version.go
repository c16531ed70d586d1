package version

import (
	"fmt"
	"runtime"
)

var (
	// GitVersion is the git version of the build. It is set by the linker.
	GitVersion = "unknown"
	// GitCommit is the git commit hash of the build. It is set by the linker.
	GitCommit = "unknown"
)

// String describes the build for --version output and startup logs.
func String() string {
	return fmt.Sprintf("gitVersion=%s, gitCommit=%s, go=%s", GitVersion, GitCommit, runtime.Version())
}
