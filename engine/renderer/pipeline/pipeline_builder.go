package pipeline

import (
	"slices"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithComputeShader sets the compute shader for this pipeline.
//
// Parameters:
//   - s: the compute shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute shader for this pipeline
func WithComputeShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.computeShader = s
	}
}

// WithBindings overrides the bind group 0 layout derived from the shader. Entries are sorted
// by binding index.
//
// Parameters:
//   - bindings: the layout entries to compile the pipeline with
//
// Returns:
//   - PipelineBuilderOption: a function that sets the layout for this pipeline
func WithBindings(bindings []gpucore.BindingLayout) PipelineBuilderOption {
	return func(p *pipeline) {
		sorted := slices.Clone(bindings)
		slices.SortFunc(sorted, func(a, b gpucore.BindingLayout) int {
			return int(a.Binding) - int(b.Binding)
		})
		p.bindings = sorted
	}
}
