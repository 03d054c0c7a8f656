package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrUnknownResource is returned when an ID does not name a live backend object.
	ErrUnknownResource = errors.New("renderer: unknown resource")

	// ErrBufferNotMapped is returned by MappedRange for a buffer with no completed mapping.
	ErrBufferNotMapped = errors.New("renderer: buffer is not mapped")
)

type wgpuBackendConfig struct {
	forceFallbackAdapter        bool
	deviceLabel                 string
	maxStorageBufferBindingSize uint64
}

type wgpuBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
	mapped bool
}

type wgpuTexture struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
	extent  gpucore.Extent3D
	format  gpucore.TextureFormat
}

type wgpuPipeline struct {
	module   *wgpu.ShaderModule
	layout   *wgpu.PipelineLayout
	pipeline *wgpu.ComputePipeline
	group0   gpucore.BindGroupLayoutID
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	fallback bool

	nextID     uint64
	buffers    map[gpucore.BufferID]*wgpuBuffer
	textures   map[gpucore.TextureID]*wgpuTexture
	pipelines  map[gpucore.ComputePipelineID]*wgpuPipeline
	layouts    map[gpucore.BindGroupLayoutID]*wgpu.BindGroupLayout
	bindGroups map[gpucore.BindGroupID]*wgpu.BindGroup
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend acquires an adapter and device with no surface attached.
//
// Parameters:
//   - cfg: the adapter and device configuration collected from builder options
//
// Returns:
//   - *wgpuRendererBackendImpl: the backend
//   - error: error if no adapter or device is available
func newWGPURendererBackend(cfg wgpuBackendConfig) (*wgpuRendererBackendImpl, error) {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:         &sync.Mutex{},
		instance:   wgpu.CreateInstance(nil),
		fallback:   cfg.forceFallbackAdapter,
		buffers:    make(map[gpucore.BufferID]*wgpuBuffer),
		textures:   make(map[gpucore.TextureID]*wgpuTexture),
		pipelines:  make(map[gpucore.ComputePipelineID]*wgpuPipeline),
		layouts:    make(map[gpucore.BindGroupLayoutID]*wgpu.BindGroupLayout),
		bindGroups: make(map[gpucore.BindGroupID]*wgpu.BindGroup),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.forceFallbackAdapter,
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("renderer: request adapter: %w", err)
	}
	w.adapter = a

	limits := wgpu.DefaultLimits()
	if cfg.maxStorageBufferBindingSize > 0 {
		limits.MaxStorageBufferBindingSize = cfg.maxStorageBufferBindingSize
	}

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: cfg.deviceLabel,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		a.Release()
		w.instance.Release()
		return nil, fmt.Errorf("renderer: request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	return w, nil
}

func (b *wgpuRendererBackendImpl) AdapterName() string {
	if b.fallback {
		return "wgpu software fallback"
	}
	return "wgpu hardware"
}

// allocID must be called with b.mu held.
func (b *wgpuRendererBackendImpl) allocID() uint64 {
	b.nextID++
	return b.nextID
}

func (b *wgpuRendererBackendImpl) CreateComputePipeline(desc *gpucore.ComputePipelineDescriptor) (gpucore.ComputePipelineID, gpucore.BindGroupLayoutID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return gpucore.InvalidID, gpucore.InvalidID, err
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.Bindings))
	for _, bl := range desc.Bindings {
		entry, entryErr := bindGroupLayoutEntry(bl)
		if entryErr != nil {
			s.Release()
			return gpucore.InvalidID, gpucore.InvalidID, entryErr
		}
		entries = append(entries, entry)
	}

	bgl, err := b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label + " Bind Group Layout",
		Entries: entries,
	})
	if err != nil {
		s.Release()
		return gpucore.InvalidID, gpucore.InvalidID, fmt.Errorf("failed to create bind group layout for group 0: %w", err)
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		s.Release()
		return gpucore.InvalidID, gpucore.InvalidID, err
	}

	created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label + " Compute Pipeline",
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		layout.Release()
		bgl.Release()
		s.Release()
		return gpucore.InvalidID, gpucore.InvalidID, err
	}

	layoutID := gpucore.BindGroupLayoutID(b.allocID())
	b.layouts[layoutID] = bgl
	id := gpucore.ComputePipelineID(b.allocID())
	b.pipelines[id] = &wgpuPipeline{
		module:   s,
		layout:   layout,
		pipeline: created,
		group0:   layoutID,
	}

	Logger().Debug("compute pipeline created", "label", desc.Label, "pipeline", uint64(id))
	return id, layoutID, nil
}

func (b *wgpuRendererBackendImpl) ReleaseComputePipeline(id gpucore.ComputePipelineID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pipelines[id]
	if !ok {
		return
	}
	delete(b.pipelines, id)
	p.pipeline.Release()
	p.layout.Release()
	p.module.Release()
	if bgl, ok := b.layouts[p.group0]; ok {
		bgl.Release()
		delete(b.layouts, p.group0)
	}
}

func (b *wgpuRendererBackendImpl) CreateBuffer(desc *gpucore.BufferDescriptor) (gpucore.BufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            bufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return gpucore.InvalidID, err
	}

	id := gpucore.BufferID(b.allocID())
	b.buffers[id] = &wgpuBuffer{buffer: buf, size: desc.Size}
	return id, nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("renderer: write of %d bytes at offset %d overflows buffer %d of %d bytes", len(data), offset, id, buf.size)
	}
	return b.queue.WriteBuffer(buf.buffer, offset, data)
}

func (b *wgpuRendererBackendImpl) ReleaseBuffer(id gpucore.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[id]
	if !ok {
		return
	}
	delete(b.buffers, id)
	if buf.mapped {
		buf.buffer.Unmap()
	}
	buf.buffer.Release()
}

func (b *wgpuRendererBackendImpl) CreateTexture(desc *gpucore.TextureDescriptor) (gpucore.TextureID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	format, ok := textureFormat(desc.Format)
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("renderer: unsupported texture format %s", desc.Format)
	}

	if desc.Extent.DepthOrArrayLayers != 1 {
		return gpucore.InvalidID, fmt.Errorf("renderer: only 2D storage textures are supported, got extent %s", desc.Extent)
	}

	t, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          extent3D(desc.Extent),
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, err
	}
	vw, err := t.CreateView(nil)
	if err != nil {
		t.Release()
		return gpucore.InvalidID, err
	}

	id := gpucore.TextureID(b.allocID())
	b.textures[id] = &wgpuTexture{
		texture: t,
		view:    vw,
		extent:  desc.Extent,
		format:  desc.Format,
	}
	return id, nil
}

func (b *wgpuRendererBackendImpl) ReleaseTexture(id gpucore.TextureID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.textures[id]
	if !ok {
		return
	}
	delete(b.textures, id)
	t.view.Release()
	t.texture.Release()
}

func (b *wgpuRendererBackendImpl) CreateBindGroup(desc *gpucore.BindGroupDescriptor) (gpucore.BindGroupID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	layout, ok := b.layouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", ErrUnknownResource, desc.Layout)
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(desc.Entries))
	for i, entry := range desc.Entries {
		if entry.Texture != gpucore.InvalidID {
			t, ok := b.textures[entry.Texture]
			if !ok {
				return gpucore.InvalidID, fmt.Errorf("%w: texture %d at binding %d", ErrUnknownResource, entry.Texture, entry.Binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: t.view,
			}
			continue
		}

		buf, ok := b.buffers[entry.Buffer]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: buffer %d at binding %d", ErrUnknownResource, entry.Buffer, entry.Binding)
		}
		bindGroupEntries[i] = wgpu.BindGroupEntry{
			Binding: entry.Binding,
			Buffer:  buf.buffer,
			Offset:  0,
			Size:    wgpu.WholeSize,
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return gpucore.InvalidID, err
	}

	id := gpucore.BindGroupID(b.allocID())
	b.bindGroups[id] = bindGroup
	return id, nil
}

func (b *wgpuRendererBackendImpl) ReleaseBindGroup(id gpucore.BindGroupID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if bg, ok := b.bindGroups[id]; ok {
		delete(b.bindGroups, id)
		bg.Release()
	}
}

func (b *wgpuRendererBackendImpl) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, err
	}
	return &wgpuCommandEncoder{backend: b, encoder: encoder}, nil
}

func (b *wgpuRendererBackendImpl) Submit(enc gpucore.CommandEncoder) error {
	e, ok := enc.(*wgpuCommandEncoder)
	if !ok || e.backend != b {
		return fmt.Errorf("renderer: encoder %T was not created by this backend", enc)
	}
	if e.encoder == nil {
		return errors.New("renderer: encoder already submitted or released")
	}

	// No lock here: the queue may fire map callbacks during Submit.
	commandBuffer, err := e.encoder.Finish(nil)
	if err != nil {
		e.release()
		Logger().Warn("command encoder finish failed", "err", err)
		return err
	}

	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	e.release()
	return nil
}

func (b *wgpuRendererBackendImpl) MapReadAsync(id gpucore.BufferID, size uint64, callback func(gpucore.MapStatus)) error {
	b.mu.Lock()
	buf, ok := b.buffers[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}

	return buf.buffer.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		s := mapStatus(status)
		if s == gpucore.MapStatusSuccess {
			b.mu.Lock()
			buf.mapped = true
			b.mu.Unlock()
		}
		callback(s)
	})
}

func (b *wgpuRendererBackendImpl) MappedRange(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if !buf.mapped {
		return nil, fmt.Errorf("%w: buffer %d", ErrBufferNotMapped, id)
	}
	if offset+size > buf.size {
		return nil, fmt.Errorf("renderer: mapped range %d+%d exceeds buffer %d of %d bytes", offset, size, id, buf.size)
	}
	return buf.buffer.GetMappedRange(uint(offset), uint(size)), nil
}

func (b *wgpuRendererBackendImpl) Unmap(id gpucore.BufferID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[id]
	if !ok || !buf.mapped {
		return
	}
	buf.buffer.Unmap()
	buf.mapped = false
}

// Poll runs without b.mu held: map callbacks fire from inside device.Poll and take the lock.
func (b *wgpuRendererBackendImpl) Poll(wait bool) {
	b.device.Poll(wait, nil)
}

func (b *wgpuRendererBackendImpl) Release() {
	b.device.Poll(true, nil)

	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.buffers) + len(b.textures) + len(b.pipelines) + len(b.bindGroups); n > 0 {
		Logger().Warn("releasing device with live resources",
			"buffers", len(b.buffers),
			"textures", len(b.textures),
			"pipelines", len(b.pipelines),
			"bindGroups", len(b.bindGroups),
		)
	}

	for id, bg := range b.bindGroups {
		bg.Release()
		delete(b.bindGroups, id)
	}
	for id, p := range b.pipelines {
		p.pipeline.Release()
		p.layout.Release()
		p.module.Release()
		delete(b.pipelines, id)
	}
	for id, bgl := range b.layouts {
		bgl.Release()
		delete(b.layouts, id)
	}
	for id, t := range b.textures {
		t.view.Release()
		t.texture.Release()
		delete(b.textures, id)
	}
	for id, buf := range b.buffers {
		if buf.mapped {
			buf.buffer.Unmap()
		}
		buf.buffer.Release()
		delete(b.buffers, id)
	}

	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
}

// wgpuCommandEncoder records compute passes and copies into a single wgpu command encoder.
type wgpuCommandEncoder struct {
	backend *wgpuRendererBackendImpl
	encoder *wgpu.CommandEncoder
}

var _ gpucore.CommandEncoder = &wgpuCommandEncoder{}

func (e *wgpuCommandEncoder) Dispatch(pipeline gpucore.ComputePipelineID, bindGroup gpucore.BindGroupID, workgroups [3]uint32) error {
	if e.encoder == nil {
		return errors.New("renderer: dispatch on a finished encoder")
	}

	e.backend.mu.Lock()
	p, okP := e.backend.pipelines[pipeline]
	bg, okB := e.backend.bindGroups[bindGroup]
	e.backend.mu.Unlock()
	if !okP {
		return fmt.Errorf("%w: pipeline %d", ErrUnknownResource, pipeline)
	}
	if !okB {
		return fmt.Errorf("%w: bind group %d", ErrUnknownResource, bindGroup)
	}

	pass := e.encoder.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(workgroups[0], workgroups[1], workgroups[2])
	pass.End()
	pass.Release()
	return nil
}

func (e *wgpuCommandEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) error {
	if e.encoder == nil {
		return errors.New("renderer: copy on a finished encoder")
	}

	e.backend.mu.Lock()
	s, okS := e.backend.buffers[src]
	d, okD := e.backend.buffers[dst]
	e.backend.mu.Unlock()
	if !okS || !okD {
		return fmt.Errorf("%w: copy %d -> %d", ErrUnknownResource, src, dst)
	}

	e.encoder.CopyBufferToBuffer(s.buffer, srcOffset, d.buffer, dstOffset, size)
	return nil
}

func (e *wgpuCommandEncoder) CopyTextureToBuffer(src gpucore.TextureID, dst gpucore.BufferID, layout gpucore.TextureCopyLayout) error {
	if e.encoder == nil {
		return errors.New("renderer: copy on a finished encoder")
	}
	if layout.BytesPerRow%gpucore.CopyBytesPerRowAlignment != 0 {
		return fmt.Errorf("renderer: bytes per row %d is not a multiple of %d", layout.BytesPerRow, gpucore.CopyBytesPerRowAlignment)
	}

	e.backend.mu.Lock()
	t, okT := e.backend.textures[src]
	d, okD := e.backend.buffers[dst]
	e.backend.mu.Unlock()
	if !okT || !okD {
		return fmt.Errorf("%w: copy texture %d -> buffer %d", ErrUnknownResource, src, dst)
	}

	size := extent3D(layout.Extent)
	e.encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Aspect:   wgpu.TextureAspectAll,
			Texture:  t.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
		},
		&wgpu.ImageCopyBuffer{
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  layout.BytesPerRow,
				RowsPerImage: layout.RowsPerImage,
			},
			Buffer: d.buffer,
		},
		&size,
	)
	return nil
}

func (e *wgpuCommandEncoder) Release() {
	e.release()
}

func (e *wgpuCommandEncoder) release() {
	if e.encoder == nil {
		return
	}
	e.encoder.Release()
	e.encoder = nil
}
