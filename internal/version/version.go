// Package version reports build metadata. Version can be injected via
// ldflags; commit and dirty state fall back to the module build info
// embedded by the Go toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the semantic version, injected at build time.
var Version = "dev"

// Info is the resolved build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Dirty     bool   `json:"dirty"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get resolves version info from the injected Version and the embedded
// build info.
func Get() Info {
	info := Info{
		Version:   Version,
		GoVersion: runtime.Version(),
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		case "vcs.time":
			info.BuildDate = s.Value
		}
	}
	return info
}

// Full returns the version with a short commit suffix when known,
// e.g. "dev (a1b2c3d)" or "dev (a1b2c3d-dirty)".
func Full() string {
	info := Get()
	if info.Commit == "" {
		return info.Version
	}
	commit := info.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if info.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s)", info.Version, commit)
}

// UserAgent returns the User-Agent string for outbound HTTP clients.
func UserAgent() string {
	return fmt.Sprintf("jarvis/%s", Version)
}
