package readback

import (
	"reflect"
	"sync"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/renderer/pipeline"
)

// Instance is one active readback request: a descriptor value, its repeat policy and its
// lifecycle state. It is the handle returned by Plugin.Spawn and passed to OnReadback.
// All exported methods are safe for concurrent use.
type Instance struct {
	mu *sync.Mutex

	id       uint64
	desc     ShaderDescriptor
	descType reflect.Type

	limit            Limit
	removeOnComplete bool
	remaining        uint64

	state     State
	err       error
	delivered uint64

	cancelRequested bool
	resetRequested  bool

	// The fields below are owned by the plugin's Update goroutine.

	// generation increments whenever outstanding transfers stop belonging to the instance.
	generation uint64

	// transfer is the live transfer, nil when nothing is outstanding.
	transfer *transfer

	// slots tracks staging buffers held per readback binding, stale transfers included.
	slots map[uint32]*stagingSlot

	pipeline        pipeline.Pipeline
	bindGroup       gpucore.BindGroupID
	bindGroupLayout gpucore.BindGroupLayoutID
	bindGroupInput  []gpucore.BoundResource

	// dispatched holds the resources of the last recorded dispatch, copied from once staged.
	dispatched []gpucore.BoundResource

	revision    uint64
	hasRevision bool
}

func newInstance(id uint64, desc ShaderDescriptor, limit Limit, removeOnComplete bool) *Instance {
	inst := &Instance{
		mu:               &sync.Mutex{},
		id:               id,
		desc:             desc,
		descType:         reflect.TypeOf(desc),
		limit:            limit,
		removeOnComplete: removeOnComplete,
		remaining:        limit.Count(),
		state:            StateIdle,
		slots:            make(map[uint32]*stagingSlot),
	}
	if rv, ok := desc.(Revisioned); ok {
		inst.revision = rv.Revision()
		inst.hasRevision = true
	}
	return inst
}

// ID returns the instance's identifier, unique within its plugin.
func (i *Instance) ID() uint64 {
	return i.id
}

// State returns the current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Err returns the error that moved the instance to StateFailed, or nil.
// A *ShaderCompilationError, *ReadbackMapError or *HandlerPanicError.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Limit returns the instance's repeat policy.
func (i *Instance) Limit() Limit {
	return i.limit
}

// RemoveOnComplete reports whether the instance terminates once its limit is exhausted.
func (i *Instance) RemoveOnComplete() bool {
	return i.removeOnComplete
}

// Remaining returns how many readbacks are left.
//
// Returns:
//   - uint64: readbacks left before the limit is exhausted, 0 for Infinite limits
//   - bool: true when the limit is Infinite and the count is meaningless
func (i *Instance) Remaining() (uint64, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.remaining, i.limit.IsInfinite()
}

// Delivered returns the number of times OnReadback has been invoked for this instance.
func (i *Instance) Delivered() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.delivered
}

// Descriptor returns the descriptor value the instance dispatches.
func (i *Instance) Descriptor() ShaderDescriptor {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.desc
}

// SetDescriptor replaces the descriptor value used from the next dispatch on.
// The bind group is rebuilt when the bound resources differ.
//
// Parameters:
//   - desc: the new value, of the same concrete type as the original
//
// Returns:
//   - error: ErrDescriptorType if the type differs
func (i *Instance) SetDescriptor(desc ShaderDescriptor) error {
	if reflect.TypeOf(desc) != i.descType {
		return ErrDescriptorType
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.desc = desc
	return nil
}

// Cancel requests removal of the instance. It takes effect at the start of the next Update:
// the instance becomes StateTerminated and leaves the active set, and a transfer still in
// flight is discarded without invoking the handler once it completes. No dispatch is recorded
// after the request, including one from the handler of the current frame.
func (i *Instance) Cancel() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateTerminated {
		i.cancelRequested = true
	}
}

// Reset requests a restart at the next Update: the repeat counter is restored, the error
// cleared and the state returned to StateIdle. A transfer in flight is discarded.
// Reset has no effect on a terminated instance.
func (i *Instance) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateTerminated {
		i.resetRequested = true
	}
}

// hasRepeats reports whether the limit allows another dispatch. Caller holds mu.
func (i *Instance) hasRepeats() bool {
	return i.limit.IsInfinite() || i.remaining > 0
}

func (i *Instance) setState(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}

func (i *Instance) fail(err error) {
	i.mu.Lock()
	i.state = StateFailed
	i.err = err
	i.mu.Unlock()
}

// snapshot returns the fields the frame loop needs under a single lock. runnable is false
// while a cancel or reset request waits for the next Update.
func (i *Instance) snapshot() (desc ShaderDescriptor, state State, repeats bool, runnable bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.desc, i.state, i.hasRepeats(), !i.cancelRequested && !i.resetRequested
}
