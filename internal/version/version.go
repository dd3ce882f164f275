package version

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

var (
	// Version is the application version, set via ldflags during build.
	Version = "dev"
	// GitCommit is the git commit hash, set via ldflags during build.
	GitCommit = "unknown"
	// BuildDate is the build timestamp, set via ldflags during build.
	BuildDate = "unknown"
)

var (
	mu        sync.RWMutex
	engine    string
	gstreamer string
)

// Info contains build metadata and the media engine pipelines run on.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Engine    string `json:"engine,omitempty"`
	GStreamer string `json:"gstreamer,omitempty"`
}

// SetEngine records the pipeline engine kind and the GStreamer version it
// was found to run against. An empty gstVersion leaves the field unset.
func SetEngine(kind, gstVersion string) {
	mu.Lock()
	defer mu.Unlock()
	engine = kind
	gstreamer = gstVersion
}

// Get returns version and build information.
func Get() Info {
	mu.RLock()
	defer mu.RUnlock()
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Engine:    engine,
		GStreamer: gstreamer,
	}
}

// String returns the version with the short commit when one was stamped.
func String() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return Version
	}
	commit := GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return Version + " (" + commit + ")"
}

// ParseGStreamerVersion extracts "1.22.0" from `gst-launch-1.0 --version`
// output, whose first line reads "gst-launch-1.0 version 1.22.0". It
// returns "" when no version is found.
func ParseGStreamerVersion(output string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	fields := strings.Fields(first)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}
