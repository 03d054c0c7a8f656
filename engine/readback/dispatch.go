package readback

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-readback/common"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/renderer/pipeline"
)

// WorkgroupCount returns ceil(extent / workgroupSize) per axis.
//
// Parameters:
//   - extent: the size of the work along each axis
//   - workgroupSize: the threads per workgroup along each axis
//
// Returns:
//   - [3]uint32: the number of workgroups to dispatch
func WorkgroupCount(extent gpucore.Extent3D, workgroupSize [3]uint32) [3]uint32 {
	axes := extent.Axes()
	return [3]uint32{
		common.CeilDiv(axes[0], workgroupSize[0]),
		common.CeilDiv(axes[1], workgroupSize[1]),
		common.CeilDiv(axes[2], workgroupSize[2]),
	}
}

// frameEncoder creates the frame's command encoder on first use.
type frameEncoder struct {
	device gpucore.Transfer
	enc    gpucore.CommandEncoder
}

func (f *frameEncoder) get() (gpucore.CommandEncoder, error) {
	if f.enc != nil {
		return f.enc, nil
	}
	enc, err := f.device.CreateCommandEncoder("Readback Compute Encoder")
	if err != nil {
		return nil, err
	}
	f.enc = enc
	return enc, nil
}

// record dispatches every idle instance that still has repeats, stages copies for instances
// that are dispatched, submits, and requests the maps. Instances held back by staging
// pressure on an earlier frame get first claim on free staging buffers.
func (p *plugin) record(insts []*Instance) error {
	frame := &frameEncoder{device: p.device}
	var staged []*transfer

	for _, inst := range insts {
		desc, state, _, runnable := inst.snapshot()
		if state != StateDispatched || !runnable {
			continue
		}
		t, err := p.transfer(frame, inst, desc)
		if err != nil {
			return err
		}
		if t != nil {
			staged = append(staged, t)
		}
	}

	for _, inst := range insts {
		desc, state, repeats, runnable := inst.snapshot()
		if state != StateIdle || !repeats || !runnable {
			continue
		}
		dispatched, err := p.dispatch(frame, inst, desc)
		if err != nil {
			return err
		}
		if !dispatched {
			continue
		}
		t, err := p.transfer(frame, inst, desc)
		if err != nil {
			return err
		}
		if t != nil {
			staged = append(staged, t)
		}
	}

	if frame.enc == nil {
		return nil
	}
	if err := p.device.Submit(frame.enc); err != nil {
		for _, t := range staged {
			p.releaseTransfer(t)
			t.inst.fail(err)
		}
		return fmt.Errorf("readback: submit: %w", err)
	}

	for _, t := range staged {
		p.requestMaps(t)
	}
	return nil
}

// dispatch records one dispatch for an idle instance. It reports false when the instance was
// skipped this frame or failed.
func (p *plugin) dispatch(frame *frameEncoder, inst *Instance, desc ShaderDescriptor) (bool, error) {
	pl, err := p.cache.getOrCompile(desc)
	if err != nil {
		inst.fail(err)
		return false, nil
	}
	inst.pipeline = pl

	resources := desc.Resources()
	if err := checkExtents(desc, resources); err != nil {
		p.counters.skipped.Add(1)
		Logger().Debug("readback dispatch skipped", "instance", inst.id, "reason", err)
		return false, nil
	}

	bg, err := p.bindGroupFor(inst, pl, resources)
	if err != nil {
		inst.fail(err)
		return false, nil
	}

	enc, err := frame.get()
	if err != nil {
		return false, fmt.Errorf("readback: command encoder: %w", err)
	}
	extent, _ := dispatchExtent(desc, resources)
	if err := enc.Dispatch(pl.ComputePipeline(), bg, WorkgroupCount(extent, desc.WorkgroupSize())); err != nil {
		inst.fail(err)
		return false, nil
	}

	inst.dispatched = resources
	inst.setState(StateDispatched)
	p.counters.dispatches.Add(1)
	return true, nil
}

// transfer stages the readback copies of a dispatched instance. A nil transfer with a nil
// error means the staging pool pushed back and the instance stays dispatched.
func (p *plugin) transfer(frame *frameEncoder, inst *Instance, desc ShaderDescriptor) (*transfer, error) {
	if len(desc.Readbacks()) == 0 {
		return &transfer{inst: inst, generation: inst.generation}, nil
	}

	enc, err := frame.get()
	if err != nil {
		return nil, fmt.Errorf("readback: command encoder: %w", err)
	}
	t, ok, err := p.stage(enc, inst, desc, inst.dispatched)
	var dimErr *ResourceDimensionError
	if errors.As(err, &dimErr) {
		// The readback set changed since the dispatch; its output is dropped and the
		// instance dispatches again with the current resources.
		inst.dispatched = nil
		inst.setState(StateIdle)
		p.counters.skipped.Add(1)
		Logger().Debug("readback transfer skipped", "instance", inst.id, "reason", err)
		return nil, nil
	}
	if err != nil {
		inst.fail(err)
		return nil, nil
	}
	if !ok {
		p.counters.deferrals.Add(1)
		Logger().Debug("readback backpressure, transfer deferred", "instance", inst.id)
		return nil, nil
	}
	p.counters.copies.Add(uint64(len(t.copies)))
	return t, nil
}

// requestMaps moves a submitted transfer to AwaitingMap and asks for every staging buffer to
// be mapped. Callbacks only enqueue.
func (p *plugin) requestMaps(t *transfer) {
	t.inst.transfer = t
	t.inst.setState(StateAwaitingMap)

	if len(t.copies) == 0 {
		p.queue.push(completion{t: t, index: -1, status: gpucore.MapStatusSuccess})
		return
	}
	for i, c := range t.copies {
		index := i
		p.outstanding++
		err := p.device.MapReadAsync(c.buffer, c.size, func(status gpucore.MapStatus) {
			p.queue.push(completion{t: t, index: index, status: status})
		})
		if err != nil {
			Logger().Warn("readback map request rejected", "instance", t.inst.id, "binding", c.resource.Binding, "error", err)
			p.queue.push(completion{t: t, index: index, status: gpucore.MapStatusValidationError})
		}
	}
}

// checkExtents rejects a dispatch whose extent or readback resources have a zero axis.
func checkExtents(desc ShaderDescriptor, resources []gpucore.BoundResource) error {
	extent, binding := dispatchExtent(desc, resources)
	if extent.IsZero() {
		return &ResourceDimensionError{Binding: binding, Extent: extent}
	}
	for _, b := range desc.Readbacks() {
		r, ok := findResource(resources, b)
		if !ok {
			return &ResourceDimensionError{Binding: b}
		}
		if r.Extent.IsZero() {
			return &ResourceDimensionError{Binding: b, Extent: r.Extent}
		}
		if _, _, err := stagingLayout(r); err != nil {
			return err
		}
	}
	return nil
}

// bindGroupFor returns the instance's bind group, rebuilding it when the resources or the
// pipeline changed since it was created.
func (p *plugin) bindGroupFor(inst *Instance, pl pipeline.Pipeline, resources []gpucore.BoundResource) (gpucore.BindGroupID, error) {
	if inst.bindGroup != gpucore.InvalidID && inst.bindGroupLayout == pl.BindGroupLayout() && slices.Equal(inst.bindGroupInput, resources) {
		return inst.bindGroup, nil
	}
	p.releaseBindGroup(inst)

	entries := make([]gpucore.BindGroupEntry, 0, len(resources))
	for _, r := range resources {
		entries = append(entries, gpucore.BindGroupEntry{Binding: r.Binding, Buffer: r.Buffer, Texture: r.Texture})
	}
	bg, err := p.device.CreateBindGroup(&gpucore.BindGroupDescriptor{
		Label:   pl.PipelineKey() + " Bind Group",
		Layout:  pl.BindGroupLayout(),
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, errors.Join(ErrDescriptorMismatch, err)
	}
	inst.bindGroup = bg
	inst.bindGroupLayout = pl.BindGroupLayout()
	inst.bindGroupInput = slices.Clone(resources)
	return bg, nil
}

func (p *plugin) releaseBindGroup(inst *Instance) {
	if inst.bindGroup == gpucore.InvalidID {
		return
	}
	p.device.ReleaseBindGroup(inst.bindGroup)
	inst.bindGroup = gpucore.InvalidID
	inst.bindGroupInput = nil
}
