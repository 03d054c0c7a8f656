package bind_group_provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	mu *sync.Mutex

	// label is a debug label added for convenience.
	label string

	// resources holds the bound GPU resources keyed by binding index.
	resources map[uint32]gpucore.BoundResource

	// owned marks the bindings whose resources were allocated by Init and are freed by Release.
	owned map[uint32]bool
}

// BindGroupProvider holds the caller-owned GPU resources bound to a compute shader's group 0.
// A shader descriptor usually embeds one and returns Resources() as its bound resources.
//
// Usage pattern:
//  1. Create a provider, optionally attaching existing resources with WithResource
//  2. Call Init with the shader's layout to allocate whatever is still missing
//  3. Write inputs with WriteBuffers
//  4. Hand Resources() to the readback orchestrator
//  5. Call Release once nothing references the resources any more
type BindGroupProvider interface {
	// Label returns the debug label for this provider.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Resource returns the resource bound at a binding index.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpucore.BoundResource: the resource
	//   - bool: false if nothing is bound there
	Resource(binding uint32) (gpucore.BoundResource, bool)

	// Resources returns every bound resource sorted by binding index.
	//
	// Returns:
	//   - []gpucore.BoundResource: the bound resources
	Resources() []gpucore.BoundResource

	// Buffer returns the buffer bound at a binding index, or gpucore.InvalidID.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpucore.BufferID: the buffer handle
	Buffer(binding uint32) gpucore.BufferID

	// Texture returns the texture bound at a binding index, or gpucore.InvalidID.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpucore.TextureID: the texture handle
	Texture(binding uint32) gpucore.TextureID

	// SetResource binds an externally owned resource, replacing any previous binding.
	// Release will not free it.
	//
	// Parameters:
	//   - r: the resource to bind
	SetResource(r gpucore.BoundResource)

	// Init allocates a resource for every layout entry that has nothing bound yet. Buffers are
	// sized from bufferSizes or the entry's MinBindingSize; textures take their extent from
	// textureExtents and fail without one.
	//
	// Parameters:
	//   - alloc: the allocator that creates buffers and textures
	//   - layouts: the bind group 0 layout, typically shader.Bindings()
	//   - bufferSizes: byte sizes keyed by binding index (nil safe)
	//   - textureExtents: texture sizes keyed by binding index (nil safe)
	//
	// Returns:
	//   - error: an error if an allocation fails or a size is missing
	Init(alloc gpucore.ResourceAllocator, layouts []gpucore.BindingLayout, bufferSizes map[uint32]uint64, textureExtents map[uint32]gpucore.Extent3D) error

	// Release frees every resource Init allocated and forgets all bindings.
	//
	// Parameters:
	//   - alloc: the allocator that created the resources
	Release(alloc gpucore.ResourceAllocator)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: debug label used when naming allocated resources
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		mu:        &sync.Mutex{},
		label:     label,
		resources: make(map[uint32]gpucore.BoundResource),
		owned:     make(map[uint32]bool),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Resource(binding uint32) (gpucore.BoundResource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.resources[binding]
	return r, ok
}

func (p *bindGroupProvider) Resources() []gpucore.BoundResource {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]gpucore.BoundResource, 0, len(p.resources))
	for _, r := range p.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Binding < out[j].Binding })
	return out
}

func (p *bindGroupProvider) Buffer(binding uint32) gpucore.BufferID {
	r, _ := p.Resource(binding)
	return r.Buffer
}

func (p *bindGroupProvider) Texture(binding uint32) gpucore.TextureID {
	r, _ := p.Resource(binding)
	return r.Texture
}

func (p *bindGroupProvider) SetResource(r gpucore.BoundResource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resources[r.Binding] = r
	delete(p.owned, r.Binding)
}

func (p *bindGroupProvider) Init(alloc gpucore.ResourceAllocator, layouts []gpucore.BindingLayout, bufferSizes map[uint32]uint64, textureExtents map[uint32]gpucore.Extent3D) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, entry := range layouts {
		if _, ok := p.resources[entry.Binding]; ok {
			continue
		}

		r := gpucore.BoundResource{
			Binding: entry.Binding,
			Kind:    entry.Kind,
			Access:  entry.Access,
			Format:  entry.Format,
		}

		switch {
		case entry.Kind.IsBuffer():
			size := entry.MinBindingSize
			if override, ok := bufferSizes[entry.Binding]; ok {
				size = override
			}
			if size == 0 {
				return fmt.Errorf("buffer binding %d has no size, pass one in bufferSizes", entry.Binding)
			}
			usage := gpucore.BufferUsageStorage | gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc
			if entry.Kind == gpucore.BindingKindUniformBuffer {
				usage = gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst
			}
			buf, err := alloc.CreateBuffer(&gpucore.BufferDescriptor{
				Label: fmt.Sprintf("%s Buffer %d", p.label, entry.Binding),
				Size:  size,
				Usage: usage,
			})
			if err != nil {
				return err
			}
			stride := max(entry.MinBindingSize, 1)
			if entry.Kind == gpucore.BindingKindStorageBuffer && entry.MinBindingSize == 0 {
				stride = 4
			}
			r.Buffer = buf
			r.Size = size
			r.Extent = gpucore.Extent3D{Width: uint32(size / stride), Height: 1, DepthOrArrayLayers: 1}
		case entry.Kind == gpucore.BindingKindStorageTexture:
			extent, ok := textureExtents[entry.Binding]
			if !ok {
				return fmt.Errorf("texture binding %d has no extent, pass one in textureExtents", entry.Binding)
			}
			tex, err := alloc.CreateTexture(&gpucore.TextureDescriptor{
				Label:  fmt.Sprintf("%s Texture %d", p.label, entry.Binding),
				Extent: extent,
				Format: entry.Format,
				Usage:  gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc | gpucore.TextureUsageCopyDst,
			})
			if err != nil {
				return err
			}
			r.Texture = tex
			r.Extent = extent
		default:
			return fmt.Errorf("binding %d has unsupported kind %s", entry.Binding, entry.Kind)
		}

		p.resources[entry.Binding] = r
		p.owned[entry.Binding] = true
	}

	return nil
}

func (p *bindGroupProvider) Release(alloc gpucore.ResourceAllocator) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for binding, r := range p.resources {
		if p.owned[binding] {
			if r.Buffer != gpucore.InvalidID {
				alloc.ReleaseBuffer(r.Buffer)
			}
			if r.Texture != gpucore.InvalidID {
				alloc.ReleaseTexture(r.Texture)
			}
		}
		delete(p.resources, binding)
		delete(p.owned, binding)
	}
}
