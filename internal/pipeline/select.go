package pipeline

import (
	"fmt"
	"time"
)

// Engine kinds accepted by NewEngine.
const (
	EngineLaunch = "launch"
	EngineNative = "native"
)

// NewEngine returns the engine named by kind. The launch engine is the
// default and runs launcher as a subprocess. The native engine needs the
// gst build tag.
func NewEngine(kind, launcher string, env []string, gracefulTimeout time.Duration) (Engine, error) {
	switch kind {
	case "", EngineLaunch:
		engine, err := NewLaunchEngine(launcher, env, gracefulTimeout)
		if err != nil {
			return nil, err
		}
		return engine, nil
	case EngineNative:
		return newNativeEngine(gracefulTimeout)
	default:
		return nil, fmt.Errorf("unknown pipeline engine %q", kind)
	}
}
