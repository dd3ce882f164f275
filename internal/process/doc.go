// Package process supervises a single subprocess run.
//
// [Process] wraps os/exec for the media pipeline launcher:
//   - Run blocks until the process exits or its context is cancelled
//   - Cancellation sends SIGINT, then SIGKILL to the process group after a timeout
//   - Output lines go to an optional [OutputHandler] and to a logger with a pluggable [LogParser]
//   - Extra environment is appended to the inherited one
//
// Example:
//
//	p := process.New("pipeline", []string{"gst-launch-1.0", "-e", desc}, logger,
//		process.WithEnv("GST_PLUGIN_PATH=/opt/kvs/plugins"),
//		process.WithLogParser(logging.GetLogger("gstreamer"), gstreamer.ParseLogLevel),
//	)
//	exitCode, err := p.Run(ctx)
package process
