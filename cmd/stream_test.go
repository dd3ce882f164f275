package cmd

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/smazurov/kvsnode/internal/events"
	"github.com/smazurov/kvsnode/internal/streams"
)

func TestStreamFlagsParams(t *testing.T) {
	tests := []struct {
		name    string
		flags   streamFlags
		wantErr error
		check   func(t *testing.T, p streams.ConnectionParameters)
	}{
		{
			name:    "missing stream",
			flags:   streamFlags{device: "/dev/video0", region: "us-west-2"},
			wantErr: ErrStreamNameRequired,
		},
		{
			name: "device path kept",
			flags: streamFlags{device: "/dev/video2", stream: "cam", region: "eu-west-1",
				width: 1280, height: 720, frameRate: 15, bitRate: 800, keyIntMax: 30},
			check: func(t *testing.T, p streams.ConnectionParameters) {
				if p.VideoDevice != "/dev/video2" || p.AWSRegion != "eu-west-1" {
					t.Errorf("unexpected params: %+v", p)
				}
				if p.FrameSizeWidth != 1280 || p.FrameRate != 15 || p.KeyIntMax != 30 {
					t.Errorf("numeric flags not carried: %+v", p)
				}
			},
		},
		{
			name: "empty device selects test source",
			flags: streamFlags{stream: "cam", region: "us-west-2",
				width: 640, height: 480, frameRate: 30, bitRate: 500, keyIntMax: 45},
			check: func(t *testing.T, p streams.ConnectionParameters) {
				if p.VideoDevice != "" {
					t.Errorf("VideoDevice = %q, want synthetic", p.VideoDevice)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.flags.params()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, p)
		})
	}
}

func TestStreamFlagsRejectBadNumbers(t *testing.T) {
	f := streamFlags{device: "/dev/video0", stream: "cam", region: "us-west-2",
		width: -1, height: 480, frameRate: 30, bitRate: 500, keyIntMax: 45}
	if _, err := f.params(); err == nil {
		t.Fatal("expected an error for a negative width")
	}
}

func TestWaitForSession(t *testing.T) {
	tests := []struct {
		name   string
		events []events.PipelineEvent
		want   int
	}{
		{"end", []events.PipelineEvent{{Kind: events.PipelineEnd}}, exitOK},
		{"error", []events.PipelineEvent{{Kind: events.PipelineError, Message: "device busy"}}, exitError},
		{"warnings then end", []events.PipelineEvent{
			{Kind: events.PipelineWarning},
			{Kind: events.PipelineCredentialsExpiring},
			{Kind: events.PipelineEnd},
		}, exitOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := make(chan events.PipelineEvent, len(tt.events))
			for _, ev := range tt.events {
				ch <- ev
			}
			if got := waitForSession(context.Background(), ch, slog.Default()); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWaitForSessionSignal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if got := waitForSession(ctx, make(chan events.PipelineEvent), slog.Default()); got != exitOK {
		t.Errorf("exit code = %d, want %d", got, exitOK)
	}
}
