// Package version reports build information for backupctl.
package version

import "runtime/debug"

// Name is the binary name shown in help and version output.
const Name = "backupctl"

var (
	// Version is the semantic version (injected at build time).
	Version = "dev"
	// Commit is the git commit SHA (injected at build time, else read from VCS stamping).
	Commit = "unknown"
	// BuildDate is the build timestamp (injected at build time, else the commit time).
	BuildDate = "unknown"
)

var readBuildInfo = debug.ReadBuildInfo

// Info returns formatted version information.
func Info() string {
	commit, date := Commit, BuildDate
	if bi, ok := readBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "unknown":
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			case s.Key == "vcs.time" && date == "unknown":
				date = s.Value
			}
		}
	}
	return Version + " (" + commit + ", built " + date + ")"
}

// String returns the binary name followed by Info.
func String() string {
	return Name + " " + Info()
}
