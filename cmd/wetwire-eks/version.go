package main

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// version is stamped into release binaries with
// -ldflags "-X main.version=v1.0.0".
var version = ""

// buildInfo describes the binary that is running.
type buildInfo struct {
	Version   string
	Revision  string
	Modified  bool
	GoVersion string
}

// String renders the info as "v1.2.3 (abc1234-dirty, go1.24.0)".
func (b buildInfo) String() string {
	var extra []string
	if b.Revision != "" {
		rev := b.Revision
		if len(rev) > 7 {
			rev = rev[:7]
		}
		if b.Modified {
			rev += "-dirty"
		}
		extra = append(extra, rev)
	}
	if b.GoVersion != "" {
		extra = append(extra, b.GoVersion)
	}
	if len(extra) == 0 {
		return b.Version
	}
	return fmt.Sprintf("%s (%s)", b.Version, strings.Join(extra, ", "))
}

// readBuildInfo fills a buildInfo from the stamped version and the module
// and VCS data the Go toolchain embeds.
func readBuildInfo() buildInfo {
	bi := buildInfo{Version: version}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		if bi.Version == "" {
			bi.Version = "dev"
		}
		return bi
	}

	bi.GoVersion = info.GoVersion
	if bi.Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		bi.Version = info.Main.Version
	}
	if bi.Version == "" {
		bi.Version = "dev"
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			bi.Revision = s.Value
		case "vcs.modified":
			bi.Modified = s.Value == "true"
		}
	}
	return bi
}

// getVersion returns the release version, or "dev" for local builds.
func getVersion() string {
	return readBuildInfo().Version
}
