// Package buildinfo exposes version metadata stamped at link time.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/cordum/modhost/core/infra/logging"
)

// Set with -ldflags "-X github.com/cordum/modhost/core/infra/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// Resolved returns version and commit, falling back to the module and VCS
// data embedded by the go tool when nothing was stamped.
func Resolved() (version, commit string) {
	version, commit = Version, Commit
	info, ok := readBuildInfo()
	if !ok || info == nil {
		return version, commit
	}
	if version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	if commit == "unknown" {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		}
	}
	return version, commit
}

// Info returns a single-line build summary.
func Info() string {
	version, commit := Resolved()
	return fmt.Sprintf("version=%s commit=%s date=%s go=%s", version, commit, Date, runtime.Version())
}

// Log records the build summary for the named binary.
func Log(service string) {
	version, commit := Resolved()
	logging.Info(service, "starting", "version", version, "commit", commit, "date", Date)
}
