package readback

import (
	"runtime"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore/gpucoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pairSource = `
@group(0) @binding(0) var<storage, read_write> evens: array<u32>;
@group(0) @binding(1) var<storage, read_write> odds: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    evens[id.x] = id.x * 2u;
    odds[id.x] = id.x * 2u + 1u;
}
`

// newPairDesc reads back two storage buffers of different sizes.
func newPairDesc(t *testing.T, dev *gpucoretest.Device) counterDesc {
	t.Helper()
	desc := newCounterDesc(t, dev)
	odds, err := dev.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "odds",
		Size:  128,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc,
	})
	require.NoError(t, err)
	desc.source = ShaderSource{Code: pairSource}
	desc.resources = append(desc.resources, gpucore.BoundResource{
		Binding: 1,
		Kind:    gpucore.BindingKindStorageBuffer,
		Access:  gpucore.AccessReadWrite,
		Extent:  gpucore.Extent3D{Width: 32, Height: 1, DepthOrArrayLayers: 1},
		Size:    128,
		Buffer:  odds,
	})
	desc.readbacks = []uint32{0, 1}
	return desc
}

func TestTransferWaitsForEveryMap(t *testing.T) {
	dev := gpucoretest.NewDevice()
	dev.HoldMaps = true
	desc := newPairDesc(t, dev)
	p := NewPlugin(dev)
	defer p.Close()

	inst, err := p.Spawn(desc, WithLimit(Finite(1)))
	require.NoError(t, err)
	require.NoError(t, p.Update())

	staging := dev.PendingBuffers()
	require.Len(t, staging, 2)

	dev.CompleteMap(staging[1], gpucore.MapStatusSuccess)
	require.NoError(t, p.Update())
	assert.Equal(t, StateAwaitingMap, inst.State())
	assert.Zero(t, desc.rec.count())

	dev.CompleteMap(staging[0], gpucore.MapStatusSuccess)
	runFrames(t, p, 2)

	require.Equal(t, 1, desc.rec.count())
	payloads := desc.rec.payloads[0]
	require.Len(t, payloads, 2)
	assert.Equal(t, uint32(0), payloads[0].Binding)
	assert.Len(t, payloads[0].Bytes, 256)
	assert.Equal(t, uint32(1), payloads[1].Binding)
	assert.Len(t, payloads[1].Bytes, 128)
	assert.Equal(t, StateIdle, inst.State())
	assert.Len(t, dev.Dispatches(), 1)
}

func TestPartialMapFailureUnmapsTheRest(t *testing.T) {
	dev := gpucoretest.NewDevice()
	dev.HoldMaps = true
	desc := newPairDesc(t, dev)
	p := NewPlugin(dev)
	defer p.Close()

	inst, err := p.Spawn(desc, WithLimit(Finite(1)))
	require.NoError(t, err)
	require.NoError(t, p.Update())

	staging := dev.PendingBuffers()
	require.Len(t, staging, 2)
	dev.CompleteMap(staging[0], gpucore.MapStatusSuccess)
	dev.CompleteMap(staging[1], gpucore.MapStatusDeviceLost)
	require.NoError(t, p.Update())

	assert.Equal(t, StateFailed, inst.State())
	var mapErr *ReadbackMapError
	require.ErrorAs(t, inst.Err(), &mapErr)
	assert.Equal(t, uint32(1), mapErr.Binding)
	assert.Equal(t, 2, p.Stats().StagingBuffers)

	// Both staging buffers are reused, so the successful one must have been unmapped.
	inst.Reset()
	require.NoError(t, p.Update())
	require.ElementsMatch(t, staging, dev.PendingBuffers())
	dev.CompleteMaps()
	require.NoError(t, p.Update())

	assert.Equal(t, 1, desc.rec.count())
	assert.NoError(t, inst.Err())
}

func TestStagingIsAllOrNothing(t *testing.T) {
	dev := gpucoretest.NewDevice()
	desc := newPairDesc(t, dev)
	p := NewPlugin(dev, WithStagingBudget(1))
	defer p.Close()

	inst, err := p.Spawn(desc)
	require.NoError(t, err)
	runFrames(t, p, 3)

	assert.Equal(t, StateDispatched, inst.State())
	assert.Zero(t, dev.PendingMaps(), "no copy is issued unless every readback has a buffer")
	assert.Equal(t, 1, p.Stats().StagingBuffers, "the acquired buffer went back to the pool")
	assert.Equal(t, uint64(3), p.Stats().Deferrals)
	assert.Len(t, dev.Dispatches(), 1)
	assert.Zero(t, desc.rec.count())
}

func TestMapCallbacksFromAnotherGoroutine(t *testing.T) {
	dev := gpucoretest.NewDevice()
	dev.HoldMaps = true
	desc := newCounterDesc(t, dev)
	stampDispatches(dev, desc.resources[0].Buffer)
	p := NewPlugin(dev)
	defer p.Close()

	inst, err := p.Spawn(desc)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			dev.CompleteMaps()
			_ = inst.State()
			runtime.Gosched()
		}
	}()

	runFrames(t, p, 1000)
	close(stop)
	wg.Wait()

	dev.CompleteMaps()
	require.NoError(t, p.Update())

	seqs := desc.rec.sequences()
	assert.NotEmpty(t, seqs)
	assert.IsIncreasing(t, seqs)
	assert.Equal(t, uint64(len(seqs)), p.Stats().Completions)
	assert.NoError(t, inst.Err())
}
