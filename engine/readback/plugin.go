package readback

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// closePollAttempts bounds how many blocking polls Close spends waiting for outstanding maps.
const closePollAttempts = 64

// Stats is a snapshot of a plugin's counters.
type Stats struct {
	Frames      uint64 // Update calls
	Dispatches  uint64 // dispatches recorded
	Copies      uint64 // staging copies recorded
	Completions uint64 // handler invocations
	Deferrals   uint64 // transfers deferred for lack of a staging buffer
	Skipped     uint64 // dispatches or transfers skipped for a zero extent or missing readback
	Failures    uint64 // map failures and handler panics
	Discarded   uint64 // stale transfers dropped after cancel or reset

	Active         int // instances in the active set
	Pipelines      int // cached descriptor types, failed ones included
	StagingBuffers int // idle staging buffers kept for reuse
}

// LogValue groups the counters for structured logging.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frames", s.Frames),
		slog.Uint64("dispatches", s.Dispatches),
		slog.Uint64("copies", s.Copies),
		slog.Uint64("completions", s.Completions),
		slog.Uint64("deferrals", s.Deferrals),
		slog.Uint64("skipped", s.Skipped),
		slog.Uint64("failures", s.Failures),
		slog.Uint64("discarded", s.Discarded),
		slog.Int("active", s.Active),
		slog.Int("pipelines", s.Pipelines),
		slog.Int("staging_buffers", s.StagingBuffers),
	)
}

type counters struct {
	frames      atomic.Uint64
	dispatches  atomic.Uint64
	copies      atomic.Uint64
	completions atomic.Uint64
	deferrals   atomic.Uint64
	skipped     atomic.Uint64
	failures    atomic.Uint64
	discarded   atomic.Uint64
	idle        atomic.Int64
}

// plugin is the implementation of the Plugin interface.
type plugin struct {
	// mu guards instances, nextID and closed.
	mu *sync.Mutex

	// frameMu serializes Update and Close.
	frameMu *sync.Mutex

	device gpucore.Device

	instances []*Instance
	nextID    uint64
	closed    bool

	defaultLimit            Limit
	defaultRemoveOnComplete bool
	stagingBudget           int
	decodeWorkers           int

	cache      *pipelineCache
	staging    *stagingPool
	queue      *completionQueue
	decodePool worker.DynamicWorkerPool

	// outstanding counts map requests whose completion has not been drained yet.
	outstanding int

	counters counters
}

// Plugin owns the pipeline cache, the staging buffers and every readback instance spawned on it.
// Update is meant to be called once per frame from a single goroutine, after the frame's
// resource updates and before anything else submits work that depends on the readbacks.
type Plugin interface {
	// Spawn registers a new readback instance. Instance options override the plugin defaults.
	//
	// Parameters:
	//   - desc: the descriptor value to dispatch
	//   - opts: per-instance options such as WithLimit and WithRemoveOnComplete
	//
	// Returns:
	//   - *Instance: the handle of the new instance
	//   - error: ErrPluginClosed after Close, or an error for a nil descriptor
	Spawn(desc ShaderDescriptor, opts ...InstanceOption) (*Instance, error)

	// Instances returns the active set in spawn order.
	//
	// Returns:
	//   - []*Instance: the active instances
	Instances() []*Instance

	// Update runs one frame: apply cancel and reset requests, poll the device, deliver
	// completed readbacks, drop terminated instances, then dispatch and stage the next round.
	//
	// Returns:
	//   - error: ErrPluginClosed, or a device-level failure to encode or submit. Per-instance
	//     failures are reported on the instance, never here.
	Update() error

	// Close waits for outstanding maps, discards their results and releases every pipeline,
	// bind group and staging buffer. Instances end in StateTerminated.
	//
	// Returns:
	//   - error: ErrOutstandingMaps if some maps never completed; their buffers are leaked
	Close() error

	// Stats returns a snapshot of the plugin's counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// LogValue reports the current Stats, so a plugin can be passed straight to a logger.
	LogValue() slog.Value
}

var _ Plugin = &plugin{}

// NewPlugin creates a readback plugin on a device.
//
// Parameters:
//   - device: the GPU device every pipeline, buffer and map request goes through
//   - options: a variadic list of options to configure the plugin
//
// Returns:
//   - Plugin: the new plugin
func NewPlugin(device gpucore.Device, options ...PluginBuilderOption) Plugin {
	p := &plugin{
		mu:            &sync.Mutex{},
		frameMu:       &sync.Mutex{},
		device:        device,
		defaultLimit:  Infinite(),
		decodeWorkers: runtime.NumCPU(),
		queue:         newCompletionQueue(),
	}

	for _, option := range options {
		option(p)
	}

	p.cache = newPipelineCache(device)
	p.staging = newStagingPool(device, p.stagingBudget)
	p.decodePool = worker.NewDynamicWorkerPool(max(p.decodeWorkers, 1), 256, 1*time.Second)
	return p
}

func (p *plugin) Spawn(desc ShaderDescriptor, opts ...InstanceOption) (*Instance, error) {
	if desc == nil || reflect.ValueOf(desc).Kind() == reflect.Pointer && reflect.ValueOf(desc).IsNil() {
		return nil, errors.New("readback: nil descriptor")
	}

	cfg := instanceConfig{limit: p.defaultLimit, removeOnComplete: p.defaultRemoveOnComplete}
	for _, opt := range opts {
		opt(&cfg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPluginClosed
	}
	p.nextID++
	inst := newInstance(p.nextID, desc, cfg.limit, cfg.removeOnComplete)
	p.instances = append(p.instances, inst)

	Logger().Info("readback instance spawned", "instance", inst.id, "type", typeKey(inst.descType), "limit", cfg.limit, "remove_on_complete", cfg.removeOnComplete)
	return inst, nil
}

func (p *plugin) Instances() []*Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.instances)
}

func (p *plugin) Update() error {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPluginClosed
	}
	insts := slices.Clone(p.instances)
	p.mu.Unlock()

	p.counters.frames.Add(1)

	for _, inst := range insts {
		p.applyRequests(inst)
	}

	p.device.Poll(false)
	p.drainCompletions()

	err := p.record(p.removeTerminated())
	p.counters.idle.Store(int64(p.staging.idle()))
	return err
}

// applyRequests handles cancel and reset requests, input revisions and exhaustion of
// instances that self-destruct.
func (p *plugin) applyRequests(inst *Instance) {
	desc := inst.Descriptor()
	var revision uint64
	rv, revisioned := desc.(Revisioned)
	if revisioned {
		revision = rv.Revision()
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	switch {
	case inst.cancelRequested:
		inst.cancelRequested = false
		inst.resetRequested = false
		inst.state = StateTerminated
		inst.generation++
		inst.transfer = nil
		return
	case inst.resetRequested:
		inst.resetRequested = false
		inst.remaining = inst.limit.Count()
		inst.err = nil
		inst.state = StateIdle
		inst.generation++
		inst.transfer = nil
	}

	if revisioned && (!inst.hasRevision || revision != inst.revision) {
		changed := inst.hasRevision
		inst.revision = revision
		inst.hasRevision = true
		inst.remaining = inst.limit.Count()

		// Results of the previous inputs must not spend the restored repeats.
		if changed && (inst.state == StateDispatched || inst.state == StateAwaitingMap) {
			inst.state = StateIdle
			inst.generation++
			inst.transfer = nil
			inst.dispatched = nil
		}
	}

	if inst.state == StateIdle && !inst.hasRepeats() && inst.removeOnComplete {
		inst.state = StateTerminated
	}
}

// removeTerminated drops terminated instances from the active set and releases their bind
// groups. Staging buffers of a transfer still in flight are released when it completes.
func (p *plugin) removeTerminated() []*Instance {
	p.mu.Lock()
	var removed []*Instance
	kept := p.instances[:0]
	for _, inst := range p.instances {
		if inst.State() == StateTerminated {
			removed = append(removed, inst)
			continue
		}
		kept = append(kept, inst)
	}
	clear(p.instances[len(kept):])
	p.instances = kept
	active := slices.Clone(kept)
	p.mu.Unlock()

	for _, inst := range removed {
		p.releaseBindGroup(inst)
		inst.pipeline = nil
		Logger().Info("readback instance removed", "instance", inst.id, "delivered", inst.Delivered())
	}
	return active
}

func (p *plugin) Close() error {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	insts := p.instances
	p.instances = nil
	p.mu.Unlock()

	for _, inst := range insts {
		inst.mu.Lock()
		inst.state = StateTerminated
		inst.cancelRequested = false
		inst.resetRequested = false
		inst.generation++
		inst.transfer = nil
		inst.mu.Unlock()
	}

	p.drainCompletions()
	for i := 0; p.outstanding > 0 && i < closePollAttempts; i++ {
		p.device.Poll(true)
		p.drainCompletions()
	}

	for _, inst := range insts {
		p.releaseBindGroup(inst)
		inst.pipeline = nil
	}
	p.cache.release()
	p.staging.destroy()
	p.counters.idle.Store(0)

	if p.outstanding > 0 {
		return fmt.Errorf("%w: %d", ErrOutstandingMaps, p.outstanding)
	}
	return nil
}

func (p *plugin) Stats() Stats {
	p.mu.Lock()
	active := len(p.instances)
	p.mu.Unlock()

	return Stats{
		Frames:         p.counters.frames.Load(),
		Dispatches:     p.counters.dispatches.Load(),
		Copies:         p.counters.copies.Load(),
		Completions:    p.counters.completions.Load(),
		Deferrals:      p.counters.deferrals.Load(),
		Skipped:        p.counters.skipped.Load(),
		Failures:       p.counters.failures.Load(),
		Discarded:      p.counters.discarded.Load(),
		Active:         active,
		Pipelines:      p.cache.len(),
		StagingBuffers: int(p.counters.idle.Load()),
	}
}

func (p *plugin) LogValue() slog.Value {
	return p.Stats().LogValue()
}
