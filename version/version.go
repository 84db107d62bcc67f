// Package version reports the build identity of the stheno binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version of the build. It can be overridden through ldflags; the
// VCS revision is taken from the build info the Go toolchain embeds since 1.18.
var Version = "0.2.0"

// String returns the version line printed by the version command, including the VCS
// revision when the binary was built from a checkout.
func String() string {
	revision := ""
	dirty := false
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value
			case "vcs.modified":
				dirty = setting.Value == "true"
			}
		}
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		revision += "-dirty"
	}
	if revision == "" {
		return fmt.Sprintf("stheno version %s (%s)", Version, runtime.Version())
	}
	return fmt.Sprintf("stheno version %s+%s (%s)", Version, revision, runtime.Version())
}
