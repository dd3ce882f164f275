package version

import "testing"

func TestParseGStreamerVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"gst-launch-1.0 version 1.22.0\nGStreamer 1.22.0\nhttps://tracker.debian.org/pkg/gstreamer1.0\n", "1.22.0"},
		{"gst-launch-1.0 version 1.24.2", "1.24.2"},
		{"sh: gst-launch-1.0: not found", ""},
		{"gst-launch-1.0 version", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseGStreamerVersion(tt.output); got != tt.want {
			t.Errorf("ParseGStreamerVersion(%q) = %q, want %q", tt.output, got, tt.want)
		}
	}
}

func TestSetEngine(t *testing.T) {
	t.Cleanup(func() { SetEngine("", "") })

	SetEngine("launch", "1.22.0")
	info := Get()
	if info.Engine != "launch" || info.GStreamer != "1.22.0" {
		t.Errorf("Get() = %+v, want engine launch and gstreamer 1.22.0", info)
	}
}

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version, GitCommit = "1.2.0", "unknown"
	if got := String(); got != "1.2.0" {
		t.Errorf("String() = %q", got)
	}
	GitCommit = "0123456789abcdef"
	if got := String(); got != "1.2.0 (0123456)" {
		t.Errorf("String() = %q", got)
	}
}
