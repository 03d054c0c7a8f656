package engine

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore/gpucoretest"
	"github.com/Carmen-Shannon/oxy-readback/engine/readback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSystem records updates and closes into a shared log.
type countingSystem struct {
	name     string
	log      *[]string
	updates  int
	closed   int
	failAt   int
	closeErr error
}

func (s *countingSystem) Update() error {
	s.updates++
	*s.log = append(*s.log, "update "+s.name)
	if s.failAt != 0 && s.updates == s.failAt {
		return errors.New("boom")
	}
	return nil
}

func (s *countingSystem) Close() error {
	s.closed++
	*s.log = append(*s.log, "close "+s.name)
	return s.closeErr
}

func TestRunStopsAtMaxFrames(t *testing.T) {
	var log []string
	a := &countingSystem{name: "a", log: &log}
	b := &countingSystem{name: "b", log: &log}

	e := NewEngine(WithMaxFrames(3), WithSystem(2, b), WithSystem(1, a))
	require.NoError(t, e.Run())

	assert.Equal(t, uint64(3), e.Frames())
	assert.Equal(t, 3, a.updates)
	assert.Equal(t, 3, b.updates)
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, []string{
		"update a", "update b",
		"update a", "update b",
		"update a", "update b",
		"close b", "close a",
	}, log)
}

func TestRunStopsOnSystemFailure(t *testing.T) {
	var log []string
	a := &countingSystem{name: "a", log: &log, failAt: 2}
	b := &countingSystem{name: "b", log: &log, closeErr: errors.New("leak")}

	e := NewEngine(WithMaxFrames(10))
	e.AddSystem(0, a)
	e.AddSystem(1, b)

	err := e.Run()
	require.Error(t, err)
	assert.ErrorContains(t, err, "boom")
	assert.ErrorContains(t, err, "leak")
	assert.Equal(t, uint64(1), e.Frames())
	assert.Equal(t, 1, b.updates, "systems after the failing one do not run that frame")
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestQuitFromFrameCallback(t *testing.T) {
	e := NewEngine()
	var frames int
	e.SetFrameCallback(func(float32) {
		frames++
		if frames == 4 {
			e.Quit()
		}
	})

	require.NoError(t, e.Run())
	assert.Equal(t, 4, frames)
	assert.Equal(t, uint64(4), e.Frames(), "the quitting frame still completes its systems")

	e.Quit()
}

func TestRunTwiceFails(t *testing.T) {
	e := NewEngine(WithMaxFrames(1))
	require.NoError(t, e.Run())
	assert.Error(t, e.Run())
}

func TestFramePanicIsRecovered(t *testing.T) {
	var log []string
	a := &countingSystem{name: "a", log: &log}
	e := NewEngine(WithSystem(0, a), WithLogger(slog.New(slog.DiscardHandler)))
	e.SetFrameCallback(func(float32) { panic("bad frame") })

	err := e.Run()
	assert.ErrorContains(t, err, "bad frame")
	assert.Equal(t, 1, a.closed)
}

func TestSystemRegistry(t *testing.T) {
	var log []string
	a := &countingSystem{name: "a", log: &log}

	e := NewEngine()
	e.AddSystem(5, a)
	assert.Same(t, a, e.System(5))
	assert.Nil(t, e.System(6))

	systems := e.Systems()
	delete(systems, 5)
	assert.Len(t, e.Systems(), 1, "Systems returns a copy")

	e.RemoveSystem(5)
	assert.Empty(t, e.Systems())
}

func TestTickCallbackRuns(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	e := NewEngine(WithTickRate(1000))

	e.SetTickCallback(func(float32) {
		mu.Lock()
		defer mu.Unlock()
		ticks++
		if ticks == 3 {
			e.Quit()
		}
	})

	require.NoError(t, e.Run())
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, ticks, 3)
}

const counterSource = `
@group(0) @binding(0) var<storage, read_write> values: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    values[id.x] = values[id.x] + 1u;
}
`

type counterDesc struct {
	resources []gpucore.BoundResource
	calls     *int
}

func (d counterDesc) ShaderSource() readback.ShaderSource {
	return readback.ShaderSource{Code: counterSource}
}
func (d counterDesc) WorkgroupSize() [3]uint32                          { return [3]uint32{64, 1, 1} }
func (d counterDesc) Resources() []gpucore.BoundResource                { return d.resources }
func (d counterDesc) Readbacks() []uint32                               { return []uint32{0} }
func (d counterDesc) OnReadback(*readback.Instance, []readback.Payload) { *d.calls++ }

func TestEngineDrivesReadbackPlugin(t *testing.T) {
	dev := gpucoretest.NewDevice()
	buf, err := dev.CreateBuffer(&gpucore.BufferDescriptor{
		Size:  256,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc,
	})
	require.NoError(t, err)

	calls := 0
	desc := counterDesc{
		resources: []gpucore.BoundResource{{
			Binding: 0,
			Kind:    gpucore.BindingKindStorageBuffer,
			Access:  gpucore.AccessReadWrite,
			Extent:  gpucore.Extent3D{Width: 64, Height: 1, DepthOrArrayLayers: 1},
			Size:    256,
			Buffer:  buf,
		}},
		calls: &calls,
	}

	plugin := readback.NewPlugin(dev)
	inst, err := plugin.Spawn(desc, readback.WithLimit(readback.Finite(2)), readback.WithRemoveOnComplete(true))
	require.NoError(t, err)

	e := NewEngine(WithMaxFrames(6), WithSystem(0, plugin), WithProfiling(true))
	require.NoError(t, e.Run())

	assert.Equal(t, 2, calls)
	assert.Equal(t, readback.StateTerminated, inst.State())
	assert.Zero(t, plugin.Stats().Active)

	_, err = plugin.Spawn(desc)
	assert.ErrorIs(t, err, readback.ErrPluginClosed, "Run closes its systems")
}
