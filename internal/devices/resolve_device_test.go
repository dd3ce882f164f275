package devices

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func withV4LRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"by-id", "by-path"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	old := v4lRoot
	v4lRoot = root
	t.Cleanup(func() { v4lRoot = old })
	return root
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveDevicePath(t *testing.T) {
	root := withV4LRoot(t)
	touch(t, filepath.Join(root, "by-id", "usb-Logitech_C920-video-index0"))
	touch(t, filepath.Join(root, "by-path", "usb-0000:00:14.0-usb-0:1:1.0-video-index0"))
	touch(t, filepath.Join(root, "by-path", "platform-fe801000.csi-video-index0"))

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"absolute path", "/dev/video2", "/dev/video2", false},
		{"usb by-id", "usb-Logitech_C920-video-index0", filepath.Join(root, "by-id", "usb-Logitech_C920-video-index0"), false},
		{"usb falls back to by-path", "usb-0000:00:14.0-usb-0:1:1.0-video-index0", filepath.Join(root, "by-path", "usb-0000:00:14.0-usb-0:1:1.0-video-index0"), false},
		{"platform", "platform-fe801000.csi-video-index0", filepath.Join(root, "by-path", "platform-fe801000.csi-video-index0"), false},
		{"missing stable id", "usb-missing", "", true},
		{"relative garbage", "video0", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDevicePath(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrDeviceNotFound) {
					t.Fatalf("expected ErrDeviceNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsStableID(t *testing.T) {
	for id, want := range map[string]bool{
		"usb-cam":        true,
		"platform-csi":   true,
		"pci-0000:00:1f": true,
		"/dev/video0":    false,
		"":               false,
	} {
		if got := IsStableID(id); got != want {
			t.Errorf("IsStableID(%q) = %v, want %v", id, got, want)
		}
	}
}
