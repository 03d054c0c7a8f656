package renderer

import "github.com/Carmen-Shannon/oxy-readback/engine/gpucore"

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based compute backend.
	BackendTypeWGPU RendererBackendType = iota
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	default:
		return "unknown"
	}
}

// RendererBackend is the top-level backend interface for the Renderer.
// Every backend is a complete gpucore.Device plus the lifecycle hooks the Renderer needs.
type RendererBackend interface {
	gpucore.Device

	// AdapterName returns a human readable description of the adapter in use.
	AdapterName() string

	// Release destroys every resource the backend still owns, then the device itself.
	Release()
}
