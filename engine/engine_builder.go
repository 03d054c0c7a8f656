package engine

import (
	"log/slog"
	"time"

	"github.com/Carmen-Shannon/oxy-readback/engine/readback"
	"github.com/Carmen-Shannon/oxy-readback/engine/renderer"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// The tick callback will be called at this rate for host logic updates.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithSystem registers a system at the given key during engine construction.
// Systems update in ascending key order each frame.
//
// Parameters:
//   - key: the order key (lower updates first)
//   - s: the System to register
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSystem(key int, s System) EngineBuilderOption {
	return func(e *engine) {
		e.systems[key] = s
	}
}

// WithFrameLimit sets an optional frame rate cap in frames per second.
// Pass 0 to uncap the frame loop (default).
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.frameLimit = 0
			return
		}
		e.frameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithMaxFrames stops Run after the given number of frames. Zero runs until Quit.
//
// Parameters:
//   - n: the frame count at which Run returns
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithMaxFrames(n uint64) EngineBuilderOption {
	return func(e *engine) {
		e.maxFrames = n
	}
}

// WithLogger sets the logger used by the engine and the profiler, and installs it as the
// package logger of the renderer and readback packages.
//
// Parameters:
//   - l: the logger to use, slog.Default() when nil
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(l *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		if l == nil {
			l = slog.Default()
		}
		e.logger = l
		renderer.SetLogger(l)
		readback.SetLogger(l)
	}
}
