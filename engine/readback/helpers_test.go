package readback

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore/gpucoretest"
	"github.com/stretchr/testify/require"
)

const counterSource = `
@group(0) @binding(0) var<storage, read_write> values: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    values[id.x] = values[id.x] + 1u;
}
`

const paintSource = `
@group(0) @binding(0) var<uniform> color: vec4<f32>;
@group(0) @binding(1) var canvas: texture_storage_2d<rgba32float, write>;

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    textureStore(canvas, vec2<i32>(i32(id.x), i32(id.y)), color);
}
`

// recorder collects handler invocations.
type recorder struct {
	mu       sync.Mutex
	calls    int
	payloads [][]Payload
	panicAt  int
}

func (r *recorder) record(payloads []Payload) {
	r.mu.Lock()
	r.calls++
	r.payloads = append(r.payloads, payloads)
	n := r.calls
	r.mu.Unlock()
	if r.panicAt != 0 && n == r.panicAt {
		panic("handler exploded")
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// sequences returns the first u32 of the first payload of every delivery.
func (r *recorder) sequences() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, 0, len(r.payloads))
	for _, p := range r.payloads {
		out = append(out, binary.LittleEndian.Uint32(p[0].Bytes))
	}
	return out
}

// counterDesc reads back one storage buffer of u32 values.
type counterDesc struct {
	source    ShaderSource
	workgroup [3]uint32
	resources []gpucore.BoundResource
	readbacks []uint32
	rec       *recorder
}

func (d counterDesc) ShaderSource() ShaderSource           { return d.source }
func (d counterDesc) WorkgroupSize() [3]uint32             { return d.workgroup }
func (d counterDesc) Resources() []gpucore.BoundResource   { return d.resources }
func (d counterDesc) Readbacks() []uint32                  { return d.readbacks }
func (d counterDesc) OnReadback(_ *Instance, ps []Payload) { d.rec.record(ps) }

// brokenDesc is a separate descriptor type whose shader does not parse.
type brokenDesc struct {
	counterDesc
}

func (brokenDesc) ShaderSource() ShaderSource {
	return ShaderSource{Code: "@compute @workgroup_size(64) fn main( {"}
}

// revisionedDesc restarts its limit whenever rev changes.
type revisionedDesc struct {
	counterDesc
	rev *uint64
}

func (d revisionedDesc) Revision() uint64 { return *d.rev }

// extentDesc overrides the dispatch extent.
type extentDesc struct {
	counterDesc
	extent gpucore.Extent3D
}

func (d extentDesc) DispatchExtent() gpucore.Extent3D { return d.extent }

// paintDesc writes a colour into a storage texture and reads the texture back.
type paintDesc struct {
	resources []gpucore.BoundResource
	rec       *recorder
}

func (d paintDesc) ShaderSource() ShaderSource           { return ShaderSource{Code: paintSource} }
func (d paintDesc) WorkgroupSize() [3]uint32             { return [3]uint32{8, 8, 1} }
func (d paintDesc) Resources() []gpucore.BoundResource   { return d.resources }
func (d paintDesc) Readbacks() []uint32                  { return []uint32{1} }
func (d paintDesc) OnReadback(_ *Instance, ps []Payload) { d.rec.record(ps) }

// newCounterDesc allocates a 64 element storage buffer on dev.
func newCounterDesc(t *testing.T, dev *gpucoretest.Device) counterDesc {
	t.Helper()
	buf, err := dev.CreateBuffer(&gpucore.BufferDescriptor{
		Label: "values",
		Size:  256,
		Usage: gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc,
	})
	require.NoError(t, err)
	return counterDesc{
		source:    ShaderSource{Code: counterSource},
		workgroup: [3]uint32{64, 1, 1},
		resources: []gpucore.BoundResource{{
			Binding: 0,
			Kind:    gpucore.BindingKindStorageBuffer,
			Access:  gpucore.AccessReadWrite,
			Extent:  gpucore.Extent3D{Width: 64, Height: 1, DepthOrArrayLayers: 1},
			Size:    256,
			Buffer:  buf,
		}},
		readbacks: []uint32{0},
		rec:       &recorder{},
	}
}

// newPaintDesc allocates a colour uniform and a storage texture of the given size on dev.
func newPaintDesc(t *testing.T, dev *gpucoretest.Device, extent gpucore.Extent3D) paintDesc {
	t.Helper()
	color, err := dev.CreateBuffer(&gpucore.BufferDescriptor{Size: 16, Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst})
	require.NoError(t, err)
	tex, err := dev.CreateTexture(&gpucore.TextureDescriptor{
		Extent: extent,
		Format: gpucore.TextureFormatRGBA32Float,
		Usage:  gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc,
	})
	require.NoError(t, err)
	return paintDesc{
		resources: []gpucore.BoundResource{
			{
				Binding: 0,
				Kind:    gpucore.BindingKindUniformBuffer,
				Access:  gpucore.AccessRead,
				Extent:  gpucore.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
				Size:    16,
				Buffer:  color,
			},
			{
				Binding: 1,
				Kind:    gpucore.BindingKindStorageTexture,
				Access:  gpucore.AccessWrite,
				Format:  gpucore.TextureFormatRGBA32Float,
				Extent:  extent,
				Texture: tex,
			},
		},
		rec: &recorder{},
	}
}

// stampDispatches makes every dispatch write its sequence number into the first word of
// each bound storage buffer.
func stampDispatches(dev *gpucoretest.Device, buffers ...gpucore.BufferID) {
	var seq uint32
	dev.OnDispatch = func(d *gpucoretest.Device, _ gpucoretest.DispatchCall) {
		seq++
		word := make([]byte, 4)
		binary.LittleEndian.PutUint32(word, seq)
		for _, b := range buffers {
			d.SetBufferData(b, word)
		}
	}
}

func runFrames(t *testing.T, p Plugin, n int) {
	t.Helper()
	for range n {
		require.NoError(t, p.Update())
	}
}
