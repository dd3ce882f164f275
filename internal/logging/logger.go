package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Logger is a duck-typed interface satisfied by *slog.Logger.
// Use this interface instead of *slog.Logger to decouple from the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex
	logBuffer       = NewRingBuffer(defaultBufferSize)
	logCallback     LogCallback
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// Initialize sets up the logging system.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true

	globalLevelVar.Set(levelOrDefault(config.Level, slog.LevelInfo))

	// Handlers created before Initialize() use the default text format, so recreate them
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
		moduleLoggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// ApplyLevels updates global and per-module levels without recreating handlers.
// Used by the config watcher so existing loggers pick up new levels immediately.
func ApplyLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig.Level = level
	globalConfig.Modules = modules
	globalLevelVar.Set(levelOrDefault(level, slog.LevelInfo))

	for module, levelVar := range moduleLevelVars {
		levelVar.Set(moduleLevel(module))
	}
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

func currentCallback() LogCallback {
	mutex.RLock()
	defer mutex.RUnlock()
	return logCallback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(moduleLevel(module))

	format := "text"
	if isInitialized {
		format = globalConfig.Format
	}

	logger := slog.New(createHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// moduleLevel resolves the effective level for a module (must hold lock).
func moduleLevel(module string) slog.Level {
	if !isInitialized {
		return slog.LevelInfo
	}
	level := levelOrDefault(globalConfig.Level, slog.LevelInfo)
	if levelStr, exists := globalConfig.Modules[module]; exists {
		level = levelOrDefault(levelStr, level)
	}
	return level
}

// createHandler creates a slog handler with the specified format and level.
// Logs to stdout, journal (when available), and the ring buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler

	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}

	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}

	handlers = append(handlers, NewBufferHandler(logBuffer, level, currentCallbackUnlocked))

	return NewMultiHandler(handlers...)
}

// currentCallbackUnlocked is handed to buffer handlers so the callback can be
// swapped after handlers are created.
func currentCallbackUnlocked(entry LogEntry) {
	if cb := currentCallback(); cb != nil {
		cb(entry)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// Available if terminal, pipe, socket, or regular file (not /dev/null which is ModeDevice)
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

func levelOrDefault(level string, fallback slog.Level) slog.Level {
	if parsed := parseLevel(level); parsed != nil {
		return *parsed
	}
	return fallback
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil
	}
	return &l
}
