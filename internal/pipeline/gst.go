//go:build gst

package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/kvsnode/internal/gstreamer"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/tinyzimmer/go-gst/gst"
)

// gstErrorFailed is GST_CORE_ERROR_FAILED, reported for native pipeline errors.
const gstErrorFailed = 1

var gstInit sync.Once

// GstEngine builds pipelines in-process through the GStreamer C library.
type GstEngine struct {
	eosTimeout time.Duration
}

// NewGstEngine initializes GStreamer once and returns an engine that waits
// up to eosTimeout for a graceful end of stream when a pipeline is stopped.
func NewGstEngine(eosTimeout time.Duration) *GstEngine {
	gstInit.Do(func() { gst.Init(nil) })
	return &GstEngine{eosTimeout: eosTimeout}
}

// Build parses description with gst_parse_launch.
func (e *GstEngine) Build(description string) (Pipeline, error) {
	p, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	return &gstPipeline{pipeline: p, eosTimeout: e.eosTimeout}, nil
}

type gstPipeline struct {
	pipeline   *gst.Pipeline
	eosTimeout time.Duration
}

// Run sets the pipeline to PLAYING and polls its bus until EOS, an error,
// or cancellation. On cancellation an EOS event is sent so the sink can
// flush, and the pipeline is forced to NULL after eosTimeout.
func (g *gstPipeline) Run(ctx context.Context, report func(Message)) error {
	logger := logging.GetLogger("gstreamer")

	if err := g.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("set pipeline playing: %w", err)
	}
	defer func() {
		if err := g.pipeline.SetState(gst.StateNull); err != nil {
			logger.Warn("Failed to set pipeline to NULL", "error", err)
		}
	}()

	bus := g.pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			g.drain(bus)
			return nil
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			report(Message{Kind: gstreamer.MessageEOS, Source: msg.Source()})
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			logger.Debug("Pipeline error detail", "source", msg.Source(), "debug", gerr.DebugString())
			report(Message{Kind: gstreamer.MessageError, Source: msg.Source(), Code: gstErrorFailed, Text: gerr.Error()})
			return nil
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			report(Message{Kind: gstreamer.MessageWarning, Source: msg.Source(), Text: gerr.Error()})
		}
	}
}

// drain sends EOS and waits for it to reach the bus.
func (g *gstPipeline) drain(bus *gst.Bus) {
	if !g.pipeline.SendEvent(gst.NewEOSEvent()) {
		return
	}
	deadline := time.Now().Add(g.eosTimeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		if msg.Type() == gst.MessageEOS || msg.Type() == gst.MessageError {
			return
		}
	}
	logging.GetLogger("gstreamer").Warn("EOS drain timed out, forcing stop", "timeout", g.eosTimeout)
}

func newNativeEngine(eosTimeout time.Duration) (Engine, error) {
	return NewGstEngine(eosTimeout), nil
}
