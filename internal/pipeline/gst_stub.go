//go:build !gst

package pipeline

import (
	"errors"
	"time"
)

func newNativeEngine(time.Duration) (Engine, error) {
	return nil, errors.New("native GStreamer engine not compiled in (build with -tags gst)")
}
