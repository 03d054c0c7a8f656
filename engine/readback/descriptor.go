package readback

import (
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// ShaderSource references the WGSL a descriptor runs. Code wins over Path when both are set.
type ShaderSource struct {
	Path string
	Code string
}

// IsZero reports whether neither a path nor inline code is set.
func (s ShaderSource) IsZero() bool {
	return s.Path == "" && s.Code == ""
}

// ShaderDescriptor is implemented by the caller's type to declare a compute workload.
// Every value of one concrete type must use the same shader source, workgroup size and
// binding layout: the pipeline is compiled once per type from the first value seen.
// Resource handles and extents may change between frames.
type ShaderDescriptor interface {
	// ShaderSource returns the WGSL to compile.
	ShaderSource() ShaderSource

	// WorkgroupSize returns the @workgroup_size declared by the shader's entry point.
	WorkgroupSize() [3]uint32

	// Resources returns the resources bound to group 0, one per binding slot.
	Resources() []gpucore.BoundResource

	// Readbacks returns the binding slots whose contents are copied to the host after
	// each dispatch. It may be empty, in which case OnReadback receives no payloads.
	Readbacks() []uint32

	// OnReadback is called on the frame goroutine once per completed transfer, with one
	// payload per readback slot in Readbacks order. Payload bytes stay valid after return.
	OnReadback(inst *Instance, payloads []Payload)
}

// DispatchExtenter lets a descriptor size its dispatch explicitly. Without it the extent of
// the first readback resource is used, or the first bound resource when nothing is read back.
type DispatchExtenter interface {
	DispatchExtent() gpucore.Extent3D
}

// Revisioned is implemented by descriptors whose inputs change over time. When the revision
// differs from the one seen on the previous frame the instance's repeat counter is restored,
// so a Finite limit runs again for the new inputs.
type Revisioned interface {
	Revision() uint64
}

// dispatchExtent resolves the extent a descriptor's workgroup count is computed from.
func dispatchExtent(desc ShaderDescriptor, resources []gpucore.BoundResource) (gpucore.Extent3D, uint32) {
	if de, ok := desc.(DispatchExtenter); ok {
		return de.DispatchExtent(), 0
	}
	for _, b := range desc.Readbacks() {
		if r, ok := findResource(resources, b); ok {
			return r.Extent, r.Binding
		}
	}
	if len(resources) > 0 {
		return resources[0].Extent, resources[0].Binding
	}
	return gpucore.Extent3D{}, 0
}

// findResource returns the resource bound at a binding slot.
func findResource(resources []gpucore.BoundResource, binding uint32) (gpucore.BoundResource, bool) {
	for _, r := range resources {
		if r.Binding == binding {
			return r, true
		}
	}
	return gpucore.BoundResource{}, false
}
