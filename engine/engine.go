package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-readback/engine/profiler"
)

// System is a unit of per-frame GPU work driven by the Engine, such as a readback plugin.
// Update runs once per frame on the goroutine that called Run; Close runs once when the
// engine stops.
type System interface {
	Update() error
	Close() error
}

// engine implements the Engine interface.
// Coordinates the tick goroutine and the frame loop.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	logger *slog.Logger

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	frameCallback  func(deltaTime float32)

	mu      *sync.Mutex
	systems map[int]System

	frames     atomic.Uint64
	maxFrames  uint64
	frameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It runs a headless frame loop that updates every registered System once per frame, and a
// fixed-rate tick loop for host logic.
type Engine interface {
	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for host logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick. It runs on its own
	// goroutine and must not touch the GPU device.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetFrameCallback registers the function called each frame before the systems update.
	// It runs on the frame loop goroutine, so it may write GPU buffers.
	//
	// Parameters:
	//   - callback: function to call each frame, receiving the delta time in seconds
	SetFrameCallback(callback func(deltaTime float32))

	// SetFrameLimit sets an optional frame rate cap in frames per second.
	// Pass 0 to uncap the frame loop (default).
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetFrameLimit(fps float64)

	// AddSystem registers a system at the given key.
	// Systems update in ascending key order each frame.
	//
	// Parameters:
	//   - key: the order key (lower updates first)
	//   - s: the System to register
	AddSystem(key int, s System)

	// RemoveSystem removes the system at the given key without closing it.
	//
	// Parameters:
	//   - key: the key of the system to remove
	RemoveSystem(key int)

	// System retrieves the system registered at the given key.
	// Returns nil if no system exists at that key.
	//
	// Parameters:
	//   - key: the key of the system to retrieve
	//
	// Returns:
	//   - System: the system at the key, or nil if not found
	System(key int) System

	// Systems returns a copy of all registered systems.
	//
	// Returns:
	//   - map[int]System: a copy of the systems map
	Systems() map[int]System

	// Frames returns how many frames have completed.
	//
	// Returns:
	//   - uint64: the completed frame count
	Frames() uint64

	// Run starts the frame loop on the calling goroutine and blocks until Quit is called, the
	// frame cap is reached or a system fails. Every system is closed before Run returns.
	// Call it from the goroutine that created the GPU device.
	//
	// Returns:
	//   - error: the first system update failure joined with any close failures
	Run() error

	// Quit signals all engine loops to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		mu:               &sync.Mutex{},
		systems:          make(map[int]System),
		logger:           slog.Default(),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	e.profiler = profiler.NewProfiler(e.logger)
	return e
}

func (e *engine) Run() error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}

	e.wg.Add(1)
	go e.handleEngine()

	err := e.handleFrames()
	e.signalQuit()
	e.wg.Wait()

	return errors.Join(err, e.closeSystems())
}

func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all loops to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleFrames runs the frame loop on the calling goroutine until quit.
// Recovers from panics so the systems still get closed.
func (e *engine) handleFrames() (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("frame loop recovered from panic", "panic", r)
			err = fmt.Errorf("engine: frame loop panic: %v", r)
		}
	}()

	lastFrame := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return nil
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastFrame).Seconds())
		lastFrame = now

		if e.frameCallback != nil {
			e.frameCallback(dt)
		}

		keys, systems := e.orderedSystems()
		for i, s := range systems {
			if updateErr := s.Update(); updateErr != nil {
				e.logger.Warn("system update failed, stopping", "system", keys[i], "err", updateErr)
				return fmt.Errorf("engine: system %d: %w", keys[i], updateErr)
			}
		}

		frames := e.frames.Add(1)

		if e.profilingEnabled && e.profiler != nil {
			e.profiler.Tick(systemAttrs(keys, systems)...)
		}

		if e.maxFrames > 0 && frames >= e.maxFrames {
			return nil
		}

		// Frame rate limiting
		if e.frameLimit > 0 {
			elapsed := time.Since(now)
			if remaining := e.frameLimit - elapsed; remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// orderedSystems snapshots the registered systems in ascending key order.
func (e *engine) orderedSystems() ([]int, []System) {
	e.mu.Lock()
	defer e.mu.Unlock()

	keys := make([]int, 0, len(e.systems))
	for k := range e.systems {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	systems := make([]System, len(keys))
	for i, k := range keys {
		systems[i] = e.systems[k]
	}
	return keys, systems
}

// closeSystems closes every system in descending key order.
func (e *engine) closeSystems() error {
	keys, systems := e.orderedSystems()

	var errs []error
	for i := len(systems) - 1; i >= 0; i-- {
		if err := systems[i].Close(); err != nil {
			e.logger.Warn("system close failed", "system", keys[i], "err", err)
			errs = append(errs, fmt.Errorf("engine: close system %d: %w", keys[i], err))
		}
	}
	return errors.Join(errs...)
}

// systemAttrs collects profiler attributes from systems that can describe themselves.
func systemAttrs(keys []int, systems []System) []slog.Attr {
	var attrs []slog.Attr
	for i, s := range systems {
		if lv, ok := s.(slog.LogValuer); ok {
			attrs = append(attrs, slog.Any(fmt.Sprintf("system_%d", keys[i]), lv))
		}
	}
	return attrs
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetFrameCallback(callback func(deltaTime float32)) {
	e.frameCallback = callback
}

// SetFrameLimit sets an optional frame rate cap.
// Pass 0 to uncap the frame loop.
func (e *engine) SetFrameLimit(fps float64) {
	if fps <= 0 {
		e.frameLimit = 0
		return
	}
	e.frameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddSystem(key int, s System) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.systems[key] = s
}

func (e *engine) RemoveSystem(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.systems, key)
}

func (e *engine) System(key int) System {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.systems[key]
}

func (e *engine) Systems() map[int]System {
	e.mu.Lock()
	defer e.mu.Unlock()

	systems := make(map[int]System, len(e.systems))
	for k, s := range e.systems {
		systems[k] = s
	}
	return systems
}

func (e *engine) Frames() uint64 {
	return e.frames.Load()
}
