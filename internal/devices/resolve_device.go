// Package devices maps the video device names accepted in start commands to
// device node paths.
package devices

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDevice is used when a start command names no device.
const DefaultDevice = "/dev/video0"

// ErrDeviceNotFound is returned when a stable device ID has no symlink.
var ErrDeviceNotFound = errors.New("device not found")

// v4lRoot holds the udev-maintained by-id and by-path symlink trees.
var v4lRoot = "/dev/v4l"

// IsStableID reports whether id looks like a udev stable device name.
func IsStableID(id string) bool {
	return strings.HasPrefix(id, "usb-") || strings.HasPrefix(id, "platform-") || strings.HasPrefix(id, "pci-")
}

// ResolveDevicePath converts a device reference to a usable device path.
// Absolute paths are returned as-is. Stable IDs are looked up under
// /dev/v4l/by-id and then /dev/v4l/by-path.
func ResolveDevicePath(deviceID string) (string, error) {
	if filepath.IsAbs(deviceID) {
		return deviceID, nil
	}
	if !IsStableID(deviceID) {
		return "", fmt.Errorf("%w: %q is neither a path nor a stable device ID", ErrDeviceNotFound, deviceID)
	}

	// by-id only carries USB devices
	if strings.HasPrefix(deviceID, "usb-") {
		devicePath := filepath.Join(v4lRoot, "by-id", deviceID)
		if _, err := os.Stat(devicePath); err == nil {
			return devicePath, nil
		}
	}

	devicePath := filepath.Join(v4lRoot, "by-path", deviceID)
	if _, err := os.Stat(devicePath); err == nil {
		return devicePath, nil
	}

	return "", fmt.Errorf("%w: no stable symlink for %s", ErrDeviceNotFound, deviceID)
}
