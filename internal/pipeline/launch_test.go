package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/kvsnode/internal/gstreamer"
)

// newScriptPipeline builds a launch pipeline whose "description" is a shell
// script, so gst-launch output can be simulated without GStreamer.
func newScriptPipeline(t *testing.T, script string) Pipeline {
	t.Helper()
	engine, err := NewLaunchEngine("sh -c", nil, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("NewLaunchEngine failed: %v", err)
	}
	p, err := engine.Build(script)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return p
}

type messageLog struct {
	mu   sync.Mutex
	msgs []Message
}

func (l *messageLog) report(m Message) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()
}

func (l *messageLog) all() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.msgs...)
}

func runScript(t *testing.T, script string) []Message {
	t.Helper()
	var log messageLog
	if err := newScriptPipeline(t, script).Run(context.Background(), log.report); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return log.all()
}

func TestLaunchPipelineEOS(t *testing.T) {
	msgs := runScript(t, `echo 'Setting pipeline to PLAYING ...'; echo 'Got EOS from element "pipeline0".'`)

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %+v", msgs)
	}
	if msgs[0].Kind != gstreamer.MessageEOS || msgs[0].Source != "pipeline0" {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestLaunchPipelineCleanExitIsEOS(t *testing.T) {
	msgs := runScript(t, `exit 0`)

	if len(msgs) != 1 || msgs[0].Kind != gstreamer.MessageEOS || msgs[0].Source != "pipeline" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestLaunchPipelineError(t *testing.T) {
	msgs := runScript(t, `echo 'ERROR: from element /GstPipeline:pipeline0/GstV4l2Src:v4l2src0: Device is busy' >&2
echo 'ERROR: from element /GstPipeline:pipeline0/GstKvsSink:kvssink0: follow-up' >&2
exit 1`)

	if len(msgs) != 1 {
		t.Fatalf("expected only the first error, got %+v", msgs)
	}
	want := Message{Kind: gstreamer.MessageError, Source: "v4l2src0", Code: 1, Text: "Device is busy"}
	if msgs[0] != want {
		t.Errorf("got %+v, want %+v", msgs[0], want)
	}
}

func TestLaunchPipelineErroneousDescription(t *testing.T) {
	msgs := runScript(t, `echo 'WARNING: erroneous pipeline: no element "kvssink"' >&2; exit 1`)

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %+v", msgs)
	}
	want := Message{Kind: gstreamer.MessageError, Source: "pipeline", Code: 1, Text: `no element "kvssink"`}
	if msgs[0] != want {
		t.Errorf("got %+v, want %+v", msgs[0], want)
	}
}

func TestLaunchPipelineNonZeroExit(t *testing.T) {
	msgs := runScript(t, `exit 4`)

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %+v", msgs)
	}
	if msgs[0].Kind != gstreamer.MessageError || msgs[0].Code != 4 || msgs[0].Source != "sh" {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestLaunchPipelineWarningsAreImmediate(t *testing.T) {
	msgs := runScript(t, `echo 'WARNING: from element /GstPipeline:pipeline0/GstX264Enc:x264enc0: falling behind'; exit 0`)

	if len(msgs) != 2 {
		t.Fatalf("expected warning and EOS, got %+v", msgs)
	}
	if msgs[0].Kind != gstreamer.MessageWarning || msgs[0].Source != "x264enc0" || msgs[0].Text != "falling behind" {
		t.Errorf("unexpected warning: %+v", msgs[0])
	}
	if msgs[1].Kind != gstreamer.MessageEOS {
		t.Errorf("expected EOS last, got %+v", msgs[1])
	}
}

func TestLaunchPipelineCancelReportsNothing(t *testing.T) {
	p := newScriptPipeline(t, `trap 'exit 0' INT; while :; do sleep 0.05; done`)

	ctx, cancel := context.WithCancel(context.Background())
	var log messageLog
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, log.report) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pipeline to stop")
	}
	if msgs := log.all(); len(msgs) != 0 {
		t.Errorf("expected no messages after cancel, got %+v", msgs)
	}
}

func TestLaunchEngineBuild(t *testing.T) {
	engine, err := NewLaunchEngine("/nonexistent/gst-launch-1.0 -e", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Build("videotestsrc ! fakesink"); err == nil {
		t.Error("expected error for missing launcher")
	}

	engine, err = NewLaunchEngine("sh -c", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Build("   "); err == nil {
		t.Error("expected error for empty description")
	}

	if _, err := NewLaunchEngine(`gst-launch-1.0 "-e`, nil, 0); err == nil {
		t.Error("expected error for unparsable launcher")
	}
}

func TestNewEngineKinds(t *testing.T) {
	if _, err := NewEngine("", "sh -c", nil, 0); err != nil {
		t.Errorf("default engine: %v", err)
	}
	if _, err := NewEngine(EngineLaunch, "", nil, 0); err != nil {
		t.Errorf("launch engine: %v", err)
	}
	if _, err := NewEngine("ffmpeg", "", nil, 0); err == nil {
		t.Error("expected error for unknown engine kind")
	}
}

// kvssinkMissing reports every factory as installed except kvssink.
const kvssinkMissing = `sh -c '[ "$1" != kvssink ]'`

func TestLaunchEngineChecksElements(t *testing.T) {
	engine, err := NewLaunchEngine("sh -c", nil, 0, WithInspector(kvssinkMissing))
	if err != nil {
		t.Fatal(err)
	}

	_, err = engine.Build("v4l2src device=/dev/video0 ! video/x-raw,width=640 ! x264enc ! kvssink stream-name=cam")
	if !errors.Is(err, ErrElementUnavailable) {
		t.Fatalf("expected ErrElementUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "kvssink") {
		t.Errorf("error should name the factory: %v", err)
	}

	if _, err := engine.Build("videotestsrc is-live=true ! fakesink"); err != nil {
		t.Errorf("Build with installed elements failed: %v", err)
	}
	if _, err := engine.Build("videotestsrc ! ! fakesink"); err == nil {
		t.Error("expected error for empty link")
	}
}

func TestLaunchEngineMissingInspectorSkipsCheck(t *testing.T) {
	engine, err := NewLaunchEngine("sh -c", nil, 0, WithInspector("/nonexistent/gst-inspect-1.0"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Build("kvssink stream-name=cam"); err != nil {
		t.Errorf("Build failed: %v", err)
	}
}

func TestNewLaunchEngineInspector(t *testing.T) {
	tests := []struct {
		launcher string
		opts     []LaunchOption
		want     []string
	}{
		{"", nil, []string{"gst-inspect-1.0"}},
		{"/opt/gst/bin/gst-launch-1.0 -e -q", nil, []string{"/opt/gst/bin/gst-inspect-1.0"}},
		{"sh -c", nil, nil},
		{"", []LaunchOption{WithInspector("")}, nil},
		{"sh -c", []LaunchOption{WithInspector("inspect --plugin-path /x")}, []string{"inspect", "--plugin-path", "/x"}},
	}

	for _, tt := range tests {
		engine, err := NewLaunchEngine(tt.launcher, nil, 0, tt.opts...)
		if err != nil {
			t.Fatalf("NewLaunchEngine(%q) failed: %v", tt.launcher, err)
		}
		if !reflect.DeepEqual(engine.inspector, tt.want) {
			t.Errorf("NewLaunchEngine(%q) inspector = %q, want %q", tt.launcher, engine.inspector, tt.want)
		}
	}
}

func TestElementFactories(t *testing.T) {
	got, err := ElementFactories(`v4l2src device="/dev/video 0" ! videoconvert ! video/x-raw,format=I420 ! x264enc bitrate=500 ! video/x-h264,profile=baseline ! tee name=t ! queue ! kvssink stream-name=cam t. ! queue ! fakesink`)
	if err != nil {
		t.Fatalf("ElementFactories failed: %v", err)
	}
	want := []string{"v4l2src", "videoconvert", "x264enc", "tee", "queue", "kvssink", "fakesink"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ElementFactories = %q, want %q", got, want)
	}

	for _, bad := range []string{"videotestsrc !", "! fakesink", `videotestsrc device="/dev/video0`} {
		if _, err := ElementFactories(bad); err == nil {
			t.Errorf("ElementFactories(%q) expected error", bad)
		}
	}
}

// fakeGStreamer installs gst-launch-1.0 and gst-inspect-1.0 scripts in a
// temp dir. The inspector knows every factory except kvssink.
func fakeGStreamer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	scripts := map[string]string{
		"gst-launch-1.0":  "#!/bin/sh\necho 'gst-launch-1.0 version 1.22.0'\necho 'GStreamer 1.22.0'\n",
		"gst-inspect-1.0": "#!/bin/sh\n[ \"$1\" = --exists ] && [ \"$2\" != kvssink ]\n",
	}
	for name, body := range scripts {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestLaunchEngineSiblingInspector(t *testing.T) {
	dir := fakeGStreamer(t)
	engine, err := NewLaunchEngine(filepath.Join(dir, "gst-launch-1.0")+" -e", nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Build("videotestsrc ! kvssink stream-name=cam"); !errors.Is(err, ErrElementUnavailable) {
		t.Errorf("expected ErrElementUnavailable, got %v", err)
	}
	if _, err := engine.Build("videotestsrc ! fakesink"); err != nil {
		t.Errorf("Build failed: %v", err)
	}
}

func TestLaunchEngineGStreamerVersion(t *testing.T) {
	dir := fakeGStreamer(t)
	engine, err := NewLaunchEngine(filepath.Join(dir, "gst-launch-1.0"), nil, 0)
	if err != nil {
		t.Fatal(err)
	}

	got, err := engine.GStreamerVersion(context.Background())
	if err != nil {
		t.Fatalf("GStreamerVersion failed: %v", err)
	}
	if got != "1.22.0" {
		t.Errorf("GStreamerVersion = %q, want 1.22.0", got)
	}

	missing, err := NewLaunchEngine("/nonexistent/gst-launch-1.0", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := missing.GStreamerVersion(context.Background()); err == nil {
		t.Error("expected error for missing launcher")
	}
}
