package gstreamer

import (
	"log/slog"
	"strings"
)

// ParseLogLevel extracts a log level from gst-launch-1.0 output.
//
// gst-launch prints "ERROR: ..." and "WARNING: ..." for bus messages, and
// GST_DEBUG output looks like
//
//	0:00:00.123456789 4242 0x55d0 WARN  v4l2src gstv4l2src.c:123:func:<v4l2src0> message
//
// Debug lines are returned starting at the category so the timestamp,
// pid and thread columns are dropped.
func ParseLogLevel(line string) (slog.Level, string) {
	switch {
	case strings.HasPrefix(line, "ERROR:"):
		return slog.LevelError, line
	case strings.HasPrefix(line, "WARNING:"):
		return slog.LevelWarn, line
	}

	fields := strings.Fields(line)
	if len(fields) < 5 || !strings.Contains(fields[0], ":") || !strings.HasPrefix(fields[2], "0x") {
		return slog.LevelInfo, line
	}

	level, ok := debugLevel(fields[3])
	if !ok {
		return slog.LevelInfo, line
	}
	idx := strings.Index(line, fields[3])
	msg := strings.TrimSpace(line[idx+len(fields[3]):])
	return level, msg
}

func debugLevel(s string) (slog.Level, bool) {
	switch s {
	case "ERROR":
		return slog.LevelError, true
	case "WARN", "FIXME":
		return slog.LevelWarn, true
	case "INFO":
		return slog.LevelInfo, true
	case "DEBUG", "LOG", "TRACE", "MEMDUMP":
		return slog.LevelDebug, true
	}
	return 0, false
}
