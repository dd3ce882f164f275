package gstreamer

import (
	"log/slog"
	"testing"
)

func TestParseBusLine(t *testing.T) {
	tests := []struct {
		line string
		want BusMessage
	}{
		{
			"ERROR: from element /GstPipeline:pipeline0/GstV4l2Src:v4l2src0: Cannot identify device '/dev/video9'.",
			BusMessage{Kind: MessageError, Source: "v4l2src0", Text: "Cannot identify device '/dev/video9'."},
		},
		{
			"WARNING: from element /GstPipeline:pipeline0/GstKvsSink:kvssink0: Stream latency pressure",
			BusMessage{Kind: MessageWarning, Source: "kvssink0", Text: "Stream latency pressure"},
		},
		{
			`Got EOS from element "pipeline0".`,
			BusMessage{Kind: MessageEOS, Source: "pipeline0"},
		},
		{
			`WARNING: erroneous pipeline: no element "kvssink"`,
			BusMessage{Kind: MessageError, Source: "pipeline", Text: `no element "kvssink"`},
		},
		{
			"ERROR: pipeline could not be constructed: syntax error.",
			BusMessage{Kind: MessageError, Source: "pipeline", Text: "syntax error."},
		},
		{
			"Setting pipeline to PLAYING ...",
			BusMessage{Kind: MessageLog, Text: "Setting pipeline to PLAYING ..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.want.Kind.String(), func(t *testing.T) {
			if got := ParseBusLine(tt.line); got != tt.want {
				t.Errorf("ParseBusLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestElementName(t *testing.T) {
	tests := map[string]string{
		"/GstPipeline:pipeline0/GstX264Enc:x264enc0": "x264enc0",
		"pipeline0": "pipeline0",
		"":          "",
	}
	for in, want := range tests {
		if got := ElementName(in); got != want {
			t.Errorf("ElementName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		line      string
		wantLevel slog.Level
		wantMsg   string
	}{
		{"ERROR: from element /GstPipeline:pipeline0/GstV4l2Src:v4l2src0: busy", slog.LevelError, "ERROR: from element /GstPipeline:pipeline0/GstV4l2Src:v4l2src0: busy"},
		{"WARNING: from element x: slow", slog.LevelWarn, "WARNING: from element x: slow"},
		{"0:00:01.234567890 4242 0x55d0c0 WARN  v4l2src gstv4l2src.c:123:probe:<v4l2src0> no caps", slog.LevelWarn, "v4l2src gstv4l2src.c:123:probe:<v4l2src0> no caps"},
		{"0:00:01.234567890 4242 0x55d0c0 DEBUG kvssink sink.c:9:put:<kvssink0> frame", slog.LevelDebug, "kvssink sink.c:9:put:<kvssink0> frame"},
		{"Pipeline is live and does not need PREROLL ...", slog.LevelInfo, "Pipeline is live and does not need PREROLL ..."},
		{"", slog.LevelInfo, ""},
	}

	for _, tt := range tests {
		level, msg := ParseLogLevel(tt.line)
		if level != tt.wantLevel || msg != tt.wantMsg {
			t.Errorf("ParseLogLevel(%q) = (%v, %q), want (%v, %q)", tt.line, level, msg, tt.wantLevel, tt.wantMsg)
		}
	}
}
