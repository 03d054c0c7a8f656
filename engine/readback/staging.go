package readback

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-readback/common"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// slotDepth is the number of staging buffers one readback slot may hold at once: the one a
// live transfer uses and one left behind by a transfer that was reset while in flight.
const slotDepth = 2

// stagingSlot counts the staging buffers an instance holds for one readback binding.
type stagingSlot struct {
	binding uint32
	held    int
}

// stagingCopy is one resource copied into one staging buffer as part of a transfer.
type stagingCopy struct {
	resource    gpucore.BoundResource
	buffer      gpucore.BufferID
	size        uint64
	bytesPerRow uint32

	status gpucore.MapStatus
	done   bool
	data   []byte
}

// transfer is the set of copies issued for one dispatch of one instance. It completes when
// every copy's map request has been answered.
type transfer struct {
	inst       *Instance
	generation uint64
	copies     []*stagingCopy
	answered   int
	payloads   []Payload
}

func (t *transfer) complete() bool {
	return t.answered == len(t.copies)
}

// stagingPool hands out map-readable buffers and keeps released ones for reuse by size.
// A non-zero budget caps the number of staging buffers alive at once.
type stagingPool struct {
	alloc  gpucore.ResourceAllocator
	budget int
	live   int
	free   map[uint64][]gpucore.BufferID
}

func newStagingPool(alloc gpucore.ResourceAllocator, budget int) *stagingPool {
	return &stagingPool{
		alloc:  alloc,
		budget: budget,
		free:   make(map[uint64][]gpucore.BufferID),
	}
}

// acquire returns a buffer of exactly size bytes. ok is false when the budget is exhausted.
func (p *stagingPool) acquire(size uint64) (gpucore.BufferID, bool, error) {
	if ids := p.free[size]; len(ids) > 0 {
		id := ids[len(ids)-1]
		p.free[size] = ids[:len(ids)-1]
		return id, true, nil
	}
	if p.budget > 0 && p.live >= p.budget {
		if !p.evictFree() {
			return gpucore.InvalidID, false, nil
		}
	}
	id, err := p.alloc.CreateBuffer(&gpucore.BufferDescriptor{
		Label: fmt.Sprintf("Readback Staging Buffer %d", size),
		Size:  size,
		Usage: gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		return gpucore.InvalidID, false, err
	}
	p.live++
	return id, true, nil
}

// evictFree destroys one idle buffer of another size to make room under the budget.
func (p *stagingPool) evictFree() bool {
	for size, ids := range p.free {
		if len(ids) == 0 {
			continue
		}
		p.alloc.ReleaseBuffer(ids[len(ids)-1])
		p.free[size] = ids[:len(ids)-1]
		p.live--
		return true
	}
	return false
}

// release returns an unmapped buffer to the free list.
func (p *stagingPool) release(id gpucore.BufferID, size uint64) {
	p.free[size] = append(p.free[size], id)
}

// destroy frees every idle buffer. Buffers still held by transfers are not touched.
func (p *stagingPool) destroy() {
	for size, ids := range p.free {
		for _, id := range ids {
			p.alloc.ReleaseBuffer(id)
			p.live--
		}
		delete(p.free, size)
	}
}

// idle returns the number of buffers waiting in the free list.
func (p *stagingPool) idle() int {
	n := 0
	for _, ids := range p.free {
		n += len(ids)
	}
	return n
}

// stagingLayout computes the staging buffer size and row pitch for a readback resource.
// Buffer sizes must be a multiple of 4 and texture rows are padded to
// gpucore.CopyBytesPerRowAlignment.
func stagingLayout(r gpucore.BoundResource) (size uint64, bytesPerRow uint32, err error) {
	switch {
	case r.Kind.IsBuffer():
		if r.Size == 0 || r.Size%4 != 0 {
			return 0, 0, &ResourceDimensionError{Binding: r.Binding, Extent: r.Extent}
		}
		return r.Size, 0, nil
	case r.Kind == gpucore.BindingKindStorageTexture:
		bpp := r.Format.BytesPerPixel()
		if bpp == 0 || r.Extent.IsZero() {
			return 0, 0, &ResourceDimensionError{Binding: r.Binding, Extent: r.Extent}
		}
		bytesPerRow = uint32(common.AlignUp(uint64(r.Extent.Width)*uint64(bpp), gpucore.CopyBytesPerRowAlignment))
		size = uint64(bytesPerRow) * uint64(r.Extent.Height) * uint64(r.Extent.DepthOrArrayLayers)
		return size, bytesPerRow, nil
	default:
		return 0, 0, &ResourceDimensionError{Binding: r.Binding, Extent: r.Extent}
	}
}

// stage acquires one staging buffer per readback binding and records the copies into enc.
// It is all-or-nothing: when any slot is full or the pool is exhausted nothing is recorded,
// the acquired buffers go back to the pool and ok is false.
func (p *plugin) stage(enc gpucore.CommandEncoder, inst *Instance, desc ShaderDescriptor, resources []gpucore.BoundResource) (*transfer, bool, error) {
	readbacks := desc.Readbacks()
	t := &transfer{inst: inst, generation: inst.generation}

	giveBack := func() {
		for _, c := range t.copies {
			p.staging.release(c.buffer, c.size)
			inst.slots[c.resource.Binding].held--
		}
	}

	for _, b := range readbacks {
		r, ok := findResource(resources, b)
		if !ok {
			giveBack()
			return nil, false, &ResourceDimensionError{Binding: b}
		}
		size, bytesPerRow, err := stagingLayout(r)
		if err != nil {
			giveBack()
			return nil, false, err
		}

		slot, ok := inst.slots[b]
		if !ok {
			slot = &stagingSlot{binding: b}
			inst.slots[b] = slot
		}
		if slot.held >= slotDepth {
			giveBack()
			return nil, false, nil
		}

		buf, ok, err := p.staging.acquire(size)
		if err != nil {
			giveBack()
			return nil, false, err
		}
		if !ok {
			giveBack()
			return nil, false, nil
		}
		slot.held++
		t.copies = append(t.copies, &stagingCopy{
			resource:    r,
			buffer:      buf,
			size:        size,
			bytesPerRow: bytesPerRow,
		})
	}

	for _, c := range t.copies {
		var err error
		if c.resource.Kind.IsBuffer() {
			err = enc.CopyBufferToBuffer(c.resource.Buffer, 0, c.buffer, 0, c.size)
		} else {
			err = enc.CopyTextureToBuffer(c.resource.Texture, c.buffer, gpucore.TextureCopyLayout{
				Extent:       c.resource.Extent,
				BytesPerRow:  c.bytesPerRow,
				RowsPerImage: c.resource.Extent.Height,
			})
		}
		if err != nil {
			giveBack()
			return nil, false, err
		}
	}
	return t, true, nil
}

// releaseTransfer unmaps and returns every buffer of a transfer to the pool.
func (p *plugin) releaseTransfer(t *transfer) {
	for _, c := range t.copies {
		if c.status == gpucore.MapStatusSuccess && c.done {
			p.device.Unmap(c.buffer)
		}
		p.staging.release(c.buffer, c.size)
		if slot, ok := t.inst.slots[c.resource.Binding]; ok && slot.held > 0 {
			slot.held--
		}
	}
}
