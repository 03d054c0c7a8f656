package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-readback/common"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	RendererBackend

	mu       *sync.Mutex
	released bool

	backendType RendererBackendType

	// Pre-creation config collected from builder options
	forceFallbackAdapter        bool
	deviceLabel                 string
	maxStorageBufferBindingSize uint64
}

// Renderer is a headless GPU device. It owns the adapter, device and queue, and exposes
// them through the backend-neutral gpucore.Device interface so the readback orchestrator
// never touches driver types directly.
//
// All methods must be called from the goroutine that created the Renderer, since the
// underlying driver binds the device to its OS thread.
type Renderer interface {
	gpucore.Device

	// Backend returns the type of backend the Renderer was created with.
	//
	// Returns:
	//   - RendererBackendType: the backend type
	Backend() RendererBackendType

	// AdapterName returns a human readable description of the adapter in use.
	//
	// Returns:
	//   - string: the adapter description
	AdapterName() string

	// Release destroys all resources still owned by the Renderer and then the device.
	// It is safe to call more than once.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new headless Renderer with the given backend and options.
//
// Parameters:
//   - backendType: the GPU backend to use
//   - options: the builder options to apply
//
// Returns:
//   - Renderer: the created Renderer
//   - error: error if no adapter or device could be acquired
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	switch backendType {
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(wgpuBackendConfig{
			forceFallbackAdapter:        r.forceFallbackAdapter,
			deviceLabel:                 common.Coalesce(r.deviceLabel, "Readback Device"),
			maxStorageBufferBindingSize: r.maxStorageBufferBindingSize,
		})
		if err != nil {
			return nil, err
		}
		r.RendererBackend = b
	default:
		return nil, fmt.Errorf("renderer: unsupported backend %s", backendType)
	}

	Logger().Info("renderer created", "backend", backendType.String(), "adapter", r.AdapterName())
	return r, nil
}

func (r *renderer) Backend() RendererBackendType {
	return r.backendType
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return
	}
	r.released = true
	r.RendererBackend.Release()
	Logger().Info("renderer released", "backend", r.backendType.String())
}
