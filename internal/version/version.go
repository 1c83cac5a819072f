// Package version reports build information set with -ldflags, falling
// back to the module build info embedded by the Go toolchain.
package version

import "runtime/debug"

var (
	// Version is the release version (set via -ldflags).
	Version = ""
	// Commit is the git commit hash (set via -ldflags).
	Commit = ""
	// BuildTime is the build timestamp (set via -ldflags).
	BuildTime = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildTime string
	Modified  bool
}

// Resolve merges the -ldflags values with debug.ReadBuildInfo.
func Resolve() Info {
	return resolve(Info{Version: Version, Commit: Commit, BuildTime: BuildTime}, debug.ReadBuildInfo)
}

func resolve(info Info, read func() (*debug.BuildInfo, bool)) Info {
	if bi, ok := read(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	return info
}

// String is the version followed by the short commit, if known.
func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	s := info.Version + " (" + shortCommit(info.Commit)
	if info.Modified {
		s += "-dirty"
	}
	return s + ")"
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
