//go:build !gst

package pipeline

import "testing"

func TestNativeEngineRequiresBuildTag(t *testing.T) {
	if _, err := NewEngine(EngineNative, "", nil, 0); err == nil {
		t.Error("expected error when the gst build tag is absent")
	}
}
