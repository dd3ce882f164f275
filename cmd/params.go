package cmd

import (
	"errors"
	"fmt"

	"github.com/smazurov/kvsnode/internal/devices"
	"github.com/smazurov/kvsnode/internal/streams"
	"github.com/spf13/cobra"
)

// ErrStreamNameRequired is returned when -s/--stream is missing.
var ErrStreamNameRequired = errors.New("stream name is required (-s/--stream)")

// streamFlags are the connection flags shared by stream and describe.
type streamFlags struct {
	device    string
	stream    string
	region    string
	width     int
	height    int
	frameRate int
	bitRate   int
	keyIntMax int
}

func (f *streamFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.device, "device", "d", devices.DefaultDevice,
		`Video device path or stable ID, "" for the test source`)
	cmd.Flags().StringVarP(&f.stream, "stream", "s", "", "Kinesis video stream name (required)")
	cmd.Flags().StringVarP(&f.region, "region", "r", "us-west-2", "AWS region")
	cmd.Flags().IntVar(&f.width, "width", streams.DefaultFrameSizeWidth, "Frame width")
	cmd.Flags().IntVar(&f.height, "height", streams.DefaultFrameSizeHeight, "Frame height")
	cmd.Flags().IntVar(&f.frameRate, "framerate", streams.DefaultFrameRate, "Frames per second")
	cmd.Flags().IntVar(&f.bitRate, "bitrate", streams.DefaultBitRate, "Encoder bitrate in kbps")
	cmd.Flags().IntVar(&f.keyIntMax, "keyint", streams.DefaultKeyIntMax, "Maximum keyframe interval")
}

// params resolves the flags the same way a start command is resolved.
func (f *streamFlags) params() (streams.ConnectionParameters, error) {
	if f.stream == "" {
		return streams.ConnectionParameters{}, ErrStreamNameRequired
	}

	cmd := streams.ParseCommand(map[string]any{
		"task":            "start",
		"videoDevice":     f.device,
		"streamName":      f.stream,
		"awsRegion":       f.region,
		"frameSizeWidth":  f.width,
		"frameSizeHeight": f.height,
		"frameRate":       f.frameRate,
		"bitRate":         f.bitRate,
		"keyIntMax":       f.keyIntMax,
	})
	if cmd.Kind != streams.CommandStart {
		return streams.ConnectionParameters{}, errors.New(cmd.Reason)
	}
	if err := cmd.Params.Validate(); err != nil {
		return streams.ConnectionParameters{}, fmt.Errorf("invalid parameters: %w", err)
	}
	return cmd.Params, nil
}
