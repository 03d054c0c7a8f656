package gpucoretest

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

type command func(d *Device) error

// encoder defers every recorded command until Submit so that ordering within a
// submission matches a real queue.
type encoder struct {
	label    string
	commands []command
	released bool
}

var _ gpucore.CommandEncoder = &encoder{}

func (e *encoder) Dispatch(pipeline gpucore.ComputePipelineID, bindGroup gpucore.BindGroupID, workgroups [3]uint32) error {
	if e.released {
		return fmt.Errorf("gpucoretest: encoder %q released", e.label)
	}
	call := DispatchCall{Pipeline: pipeline, BindGroup: bindGroup, Workgroups: workgroups}
	e.commands = append(e.commands, func(d *Device) error {
		d.mu.Lock()
		if _, ok := d.pipelines[pipeline]; !ok {
			d.mu.Unlock()
			return fmt.Errorf("gpucoretest: unknown pipeline %d", pipeline)
		}
		d.dispatches = append(d.dispatches, call)
		hook := d.OnDispatch
		d.mu.Unlock()
		if hook != nil {
			hook(d, call)
		}
		return nil
	})
	return nil
}

func (e *encoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) error {
	if e.released {
		return fmt.Errorf("gpucoretest: encoder %q released", e.label)
	}
	e.commands = append(e.commands, func(d *Device) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		s, ok := d.buffers[src]
		if !ok {
			return fmt.Errorf("gpucoretest: unknown source buffer %d", src)
		}
		t, ok := d.buffers[dst]
		if !ok {
			return fmt.Errorf("gpucoretest: unknown destination buffer %d", dst)
		}
		if t.Pending || t.Mapped {
			return fmt.Errorf("gpucoretest: copy into mapped buffer %d", dst)
		}
		copy(t.Data[dstOffset:dstOffset+size], s.Data[srcOffset:srcOffset+size])
		return nil
	})
	return nil
}

func (e *encoder) CopyTextureToBuffer(src gpucore.TextureID, dst gpucore.BufferID, layout gpucore.TextureCopyLayout) error {
	if e.released {
		return fmt.Errorf("gpucoretest: encoder %q released", e.label)
	}
	if layout.BytesPerRow%gpucore.CopyBytesPerRowAlignment != 0 {
		return fmt.Errorf("gpucoretest: bytes per row %d not aligned", layout.BytesPerRow)
	}
	e.commands = append(e.commands, func(d *Device) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		tex, ok := d.textures[src]
		if !ok {
			return fmt.Errorf("gpucoretest: unknown texture %d", src)
		}
		buf, ok := d.buffers[dst]
		if !ok {
			return fmt.Errorf("gpucoretest: unknown destination buffer %d", dst)
		}
		row := uint64(tex.Extent.Width) * uint64(tex.Format.BytesPerPixel())
		rows := uint64(layout.Extent.Height) * uint64(layout.Extent.DepthOrArrayLayers)
		for r := uint64(0); r < rows; r++ {
			copy(buf.Data[r*uint64(layout.BytesPerRow):], tex.Data[r*row:(r+1)*row])
		}
		return nil
	})
	return nil
}

func (e *encoder) Release() {
	e.released = true
	e.commands = nil
}
