package streams

import (
	"strings"

	"github.com/smazurov/kvsnode/internal/gstreamer"
)

// Parameter defaults applied to start commands.
const (
	DefaultFrameSizeWidth  = 640
	DefaultFrameSizeHeight = 480
	DefaultFrameRate       = 30
	DefaultBitRate         = 500
	DefaultKeyIntMax       = 45
)

// ConnectionParameters are the settings a stream was started with. They are
// echoed back in status responses.
type ConnectionParameters struct {
	// VideoDevice is the capture device path. Empty selects the test source.
	VideoDevice     string `json:"videoDevice"`
	StreamName      string `json:"streamName"`
	AWSRegion       string `json:"awsRegion"`
	FrameSizeWidth  int    `json:"frameSizeWidth"`
	FrameSizeHeight int    `json:"frameSizeHeight"`
	FrameRate       int    `json:"frameRate"`
	BitRate         int    `json:"bitRate"`
	KeyIntMax       int    `json:"keyIntMax"`
}

// WithDefaults returns a copy with unset numeric fields filled in.
func (p ConnectionParameters) WithDefaults() ConnectionParameters {
	if p.FrameSizeWidth == 0 {
		p.FrameSizeWidth = DefaultFrameSizeWidth
	}
	if p.FrameSizeHeight == 0 {
		p.FrameSizeHeight = DefaultFrameSizeHeight
	}
	if p.FrameRate == 0 {
		p.FrameRate = DefaultFrameRate
	}
	if p.BitRate == 0 {
		p.BitRate = DefaultBitRate
	}
	if p.KeyIntMax == 0 {
		p.KeyIntMax = DefaultKeyIntMax
	}
	return p
}

// Validate checks required fields and numeric ranges.
func (p ConnectionParameters) Validate() error {
	if strings.TrimSpace(p.StreamName) == "" {
		return NewStreamError(ErrCodeInvalidParams, "streamName must be provided", nil)
	}
	if strings.TrimSpace(p.AWSRegion) == "" {
		return NewStreamError(ErrCodeInvalidParams, "awsRegion must be provided", nil)
	}

	numeric := []struct {
		name  string
		value int
	}{
		{"frameSizeWidth", p.FrameSizeWidth},
		{"frameSizeHeight", p.FrameSizeHeight},
		{"frameRate", p.FrameRate},
		{"bitRate", p.BitRate},
		{"keyIntMax", p.KeyIntMax},
	}
	for _, f := range numeric {
		if f.value <= 0 {
			return NewStreamError(ErrCodeInvalidParams, f.name+" must be a positive integer", nil)
		}
	}
	return nil
}

// ToGstParams converts to the pipeline builder's parameters.
func (p ConnectionParameters) ToGstParams() gstreamer.Params {
	return gstreamer.Params{
		DevicePath:    p.VideoDevice,
		Width:         p.FrameSizeWidth,
		Height:        p.FrameSizeHeight,
		FrameRate:     p.FrameRate,
		BitRate:       p.BitRate,
		KeyIntMax:     p.KeyIntMax,
		StreamName:    p.StreamName,
		Region:        p.AWSRegion,
		StorageSizeMB: gstreamer.DefaultStorageSizeMB,
	}
}
