package gstreamer

import (
	"errors"
	"fmt"
)

// DefaultStorageSizeMB is the kvssink content store size.
const DefaultStorageSizeMB = 512

// ErrInvalidParams is wrapped by every Params validation failure.
var ErrInvalidParams = errors.New("invalid pipeline parameters")

// Params describes one camera → encoder → upload pipeline.
type Params struct {
	// DevicePath is the V4L2 device node. Empty selects the synthetic test source.
	DevicePath string

	Width     int
	Height    int
	FrameRate int
	BitRate   int // kbps
	KeyIntMax int

	StreamName    string
	Region        string
	StorageSizeMB int
}

// Synthetic reports whether the pipeline uses the test pattern source.
func (p Params) Synthetic() bool {
	return p.DevicePath == ""
}

// Validate reports the first parameter that cannot produce a valid description.
func (p Params) Validate() error {
	switch {
	case p.StreamName == "":
		return fmt.Errorf("%w: stream name is empty", ErrInvalidParams)
	case p.Region == "":
		return fmt.Errorf("%w: region is empty", ErrInvalidParams)
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidParams, p.Width, p.Height)
	case p.FrameRate <= 0:
		return fmt.Errorf("%w: frame rate %d", ErrInvalidParams, p.FrameRate)
	case p.BitRate <= 0:
		return fmt.Errorf("%w: bit rate %d", ErrInvalidParams, p.BitRate)
	case p.KeyIntMax <= 0:
		return fmt.Errorf("%w: key-int-max %d", ErrInvalidParams, p.KeyIntMax)
	}
	return nil
}
