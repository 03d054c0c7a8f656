package renderer

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Useful on headless CI machines without a GPU.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithDeviceLabel sets the debug label given to the GPU device.
//
// Parameters:
//   - label: the device label
//
// Returns:
//   - RendererBuilderOption: a function that applies the label option to a renderer
func WithDeviceLabel(label string) RendererBuilderOption {
	return func(r *renderer) {
		r.deviceLabel = label
	}
}

// WithMaxStorageBufferBindingSize raises the storage buffer binding limit requested from the
// adapter. Zero keeps the WebGPU default.
//
// Parameters:
//   - size: the limit in bytes
//
// Returns:
//   - RendererBuilderOption: a function that applies the limit option to a renderer
func WithMaxStorageBufferBindingSize(size uint64) RendererBuilderOption {
	return func(r *renderer) {
		r.maxStorageBufferBindingSize = size
	}
}
