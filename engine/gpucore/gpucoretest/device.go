// Package gpucoretest provides an in-memory gpucore.Device for tests. It executes copies
// on the host, records every dispatch, and lets a test decide when and how each
// asynchronous map request completes.
package gpucoretest

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// DispatchCall is one recorded compute dispatch.
type DispatchCall struct {
	Pipeline   gpucore.ComputePipelineID
	BindGroup  gpucore.BindGroupID
	Workgroups [3]uint32
}

// Buffer is the host-side state of a fake buffer.
type Buffer struct {
	Label   string
	Usage   gpucore.BufferUsage
	Data    []byte
	Mapped  bool
	Pending bool
}

// Texture is the host-side state of a fake texture. Data is tightly packed.
type Texture struct {
	Label  string
	Extent gpucore.Extent3D
	Format gpucore.TextureFormat
	Data   []byte
}

type pendingMap struct {
	buffer   gpucore.BufferID
	size     uint64
	callback func(gpucore.MapStatus)
}

// Device is a fake gpucore.Device.
//
// By default map requests complete successfully on the next Poll. Set HoldMaps to keep them
// pending until CompleteMaps or FailMaps is called.
type Device struct {
	mu *sync.Mutex

	nextID uint64

	buffers    map[gpucore.BufferID]*Buffer
	textures   map[gpucore.TextureID]*Texture
	pipelines  map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDescriptor
	bindGroups map[gpucore.BindGroupID]*gpucore.BindGroupDescriptor
	pending    []pendingMap

	dispatches  []DispatchCall
	submissions int

	// HoldMaps keeps map requests pending across Poll calls.
	HoldMaps bool

	// CompileErr, when set, is returned for pipelines whose label it matches.
	CompileErr func(desc *gpucore.ComputePipelineDescriptor) error

	// OnDispatch runs for every submitted dispatch before any later copy in the same
	// submission, standing in for the shader writing its outputs.
	OnDispatch func(d *Device, call DispatchCall)
}

var _ gpucore.Device = &Device{}

// NewDevice creates an empty fake device.
func NewDevice() *Device {
	return &Device{
		mu:         &sync.Mutex{},
		buffers:    make(map[gpucore.BufferID]*Buffer),
		textures:   make(map[gpucore.TextureID]*Texture),
		pipelines:  make(map[gpucore.ComputePipelineID]*gpucore.ComputePipelineDescriptor),
		bindGroups: make(map[gpucore.BindGroupID]*gpucore.BindGroupDescriptor),
	}
}

func (d *Device) id() uint64 {
	d.nextID++
	return d.nextID
}

func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDescriptor) (gpucore.ComputePipelineID, gpucore.BindGroupLayoutID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.CompileErr != nil {
		if err := d.CompileErr(desc); err != nil {
			return gpucore.InvalidID, gpucore.InvalidID, err
		}
	}
	cp := *desc
	id := gpucore.ComputePipelineID(d.id())
	d.pipelines[id] = &cp
	return id, gpucore.BindGroupLayoutID(id), nil
}

func (d *Device) ReleaseComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelines, id)
}

func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if desc.Size == 0 {
		return gpucore.InvalidID, errors.New("gpucoretest: zero-sized buffer")
	}
	id := gpucore.BufferID(d.id())
	d.buffers[id] = &Buffer{Label: desc.Label, Usage: desc.Usage, Data: make([]byte, desc.Size)}
	return id, nil
}

func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("gpucoretest: unknown buffer %d", id)
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("gpucoretest: write of %d bytes at %d overflows buffer %d", len(data), offset, id)
	}
	copy(b.Data[offset:], data)
	return nil
}

func (d *Device) ReleaseBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, id)
}

func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := uint64(desc.Extent.Width) * uint64(desc.Extent.Height) *
		uint64(desc.Extent.DepthOrArrayLayers) * uint64(desc.Format.BytesPerPixel())
	id := gpucore.TextureID(d.id())
	d.textures[id] = &Texture{Label: desc.Label, Extent: desc.Extent, Format: desc.Format, Data: make([]byte, size)}
	return id, nil
}

func (d *Device) ReleaseTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDescriptor) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range desc.Entries {
		if e.Buffer != gpucore.InvalidID {
			if _, ok := d.buffers[e.Buffer]; !ok {
				return gpucore.InvalidID, fmt.Errorf("gpucoretest: binding %d references unknown buffer %d", e.Binding, e.Buffer)
			}
		}
	}
	cp := *desc
	id := gpucore.BindGroupID(d.id())
	d.bindGroups[id] = &cp
	return id, nil
}

func (d *Device) ReleaseBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bindGroups, id)
}

func (d *Device) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	return &encoder{label: label}, nil
}

func (d *Device) Submit(enc gpucore.CommandEncoder) error {
	e, ok := enc.(*encoder)
	if !ok {
		return errors.New("gpucoretest: foreign command encoder")
	}
	d.mu.Lock()
	d.submissions++
	d.mu.Unlock()

	for _, cmd := range e.commands {
		if err := cmd(d); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) MapReadAsync(id gpucore.BufferID, size uint64, callback func(gpucore.MapStatus)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("gpucoretest: unknown buffer %d", id)
	}
	if b.Pending || b.Mapped {
		return fmt.Errorf("gpucoretest: buffer %d already mapped or pending", id)
	}
	b.Pending = true
	d.pending = append(d.pending, pendingMap{buffer: id, size: size, callback: callback})
	return nil
}

func (d *Device) MappedRange(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok || !b.Mapped {
		return nil, fmt.Errorf("gpucoretest: buffer %d is not mapped", id)
	}
	if offset+size > uint64(len(b.Data)) {
		return nil, fmt.Errorf("gpucoretest: range %d+%d out of bounds", offset, size)
	}
	return b.Data[offset : offset+size], nil
}

func (d *Device) Unmap(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		b.Mapped = false
	}
}

func (d *Device) Poll(wait bool) {
	d.mu.Lock()
	hold := d.HoldMaps
	d.mu.Unlock()
	if hold {
		return
	}
	d.CompleteMaps()
}

// CompleteMaps completes every pending map request successfully.
func (d *Device) CompleteMaps() {
	d.finish(gpucore.MapStatusSuccess, nil)
}

// FailMaps fails every pending map request with the given status.
func (d *Device) FailMaps(status gpucore.MapStatus) {
	d.finish(status, nil)
}

// CompleteMap completes the pending map request of one buffer.
func (d *Device) CompleteMap(id gpucore.BufferID, status gpucore.MapStatus) {
	d.finish(status, &id)
}

func (d *Device) finish(status gpucore.MapStatus, only *gpucore.BufferID) {
	d.mu.Lock()
	var done []pendingMap
	keep := d.pending[:0]
	for _, p := range d.pending {
		if only != nil && p.buffer != *only {
			keep = append(keep, p)
			continue
		}
		if b, ok := d.buffers[p.buffer]; ok {
			b.Pending = false
			b.Mapped = status == gpucore.MapStatusSuccess
		}
		done = append(done, p)
	}
	d.pending = keep
	d.mu.Unlock()

	for _, p := range done {
		p.callback(status)
	}
}

// PendingMaps returns the number of outstanding map requests.
func (d *Device) PendingMaps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// PendingBuffers returns the buffers with an outstanding map request in request order.
func (d *Device) PendingBuffers() []gpucore.BufferID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]gpucore.BufferID, 0, len(d.pending))
	for _, p := range d.pending {
		out = append(out, p.buffer)
	}
	return out
}

// Dispatches returns every dispatch submitted so far.
func (d *Device) Dispatches() []DispatchCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DispatchCall, len(d.dispatches))
	copy(out, d.dispatches)
	return out
}

// Submissions returns the number of Submit calls.
func (d *Device) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}

// Pipelines returns the descriptors of the live pipelines ordered by ID.
func (d *Device) Pipelines() []gpucore.ComputePipelineDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]gpucore.ComputePipelineID, 0, len(d.pipelines))
	for id := range d.pipelines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]gpucore.ComputePipelineDescriptor, 0, len(ids))
	for _, id := range ids {
		out = append(out, *d.pipelines[id])
	}
	return out
}

// LiveBuffers returns the number of buffers not yet released.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// LiveBindGroups returns the number of bind groups not yet released.
func (d *Device) LiveBindGroups() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.bindGroups)
}

// BufferData returns a copy of a buffer's contents.
func (d *Device) BufferData(id gpucore.BufferID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil
	}
	return append([]byte(nil), b.Data...)
}

// SetBufferData overwrites the start of a buffer, as a shader would.
func (d *Device) SetBufferData(id gpucore.BufferID, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		copy(b.Data, data)
	}
}

// SetTextureData overwrites the tightly packed contents of a texture.
func (d *Device) SetTextureData(id gpucore.TextureID, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[id]; ok {
		copy(t.Data, data)
	}
}
