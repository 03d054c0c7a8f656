package bind_group_provider

import "github.com/Carmen-Shannon/oxy-readback/engine/gpucore"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithResource binds an externally owned resource at its binding index.
//
// Parameters:
//   - r: the resource to bind
//
// Returns:
//   - BindGroupProviderOption: a function that binds the resource on this provider
func WithResource(r gpucore.BoundResource) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.resources[r.Binding] = r
	}
}

// WithResources binds several externally owned resources.
//
// Parameters:
//   - resources: the resources to bind
//
// Returns:
//   - BindGroupProviderOption: a function that binds the resources on this provider
func WithResources(resources ...gpucore.BoundResource) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for _, r := range resources {
			p.resources[r.Binding] = r
		}
	}
}
