package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Build-time variables (set via ldflags).
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Info contains build information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
}

var (
	infoOnce sync.Once
	info     Info
)

// Get returns the build information.
func Get() Info {
	infoOnce.Do(func() {
		info = resolve(Version, Commit, BuildTime, readBuildInfo)
	})
	return info
}

var readBuildInfo = debug.ReadBuildInfo

func resolve(version, commit, buildTime string, read func() (*debug.BuildInfo, bool)) Info {
	i := Info{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}

	if bi, ok := read(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if i.Commit == "" {
					i.Commit = s.Value
				}
			case "vcs.time":
				if i.BuildTime == "" {
					i.BuildTime = s.Value
				}
			case "vcs.modified":
				i.Modified = s.Value == "true"
			}
		}
	}

	if i.Commit == "" {
		i.Commit = "unknown"
	}
	if i.BuildTime == "" {
		i.BuildTime = "unknown"
	}
	if len(i.Commit) > 12 {
		i.Commit = i.Commit[:12]
	}
	return i
}

// String returns a formatted version string.
func String() string {
	i := Get()
	s := i.Version + " (" + i.Commit
	if i.Modified {
		s += "-dirty"
	}
	return s + ") built at " + i.BuildTime + " with " + i.GoVersion
}

// UserAgent returns the HTTP User-Agent for a fidloc binary.
func UserAgent(binary string) string {
	return binary + "/" + Get().Version
}
