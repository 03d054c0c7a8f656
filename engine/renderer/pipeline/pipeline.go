package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-readback/common"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/renderer/shader"
)

// ErrNoComputeShader is returned when compiling a pipeline that has no compute shader set.
var ErrNoComputeShader = errors.New("pipeline: compute shader must be set to create a compute pipeline")

// pipeline is the implementation of the Pipeline interface.
// It holds the backend handles of a compiled compute pipeline and the shader it was built from.
type pipeline struct {
	mu *sync.Mutex

	// pipelineKey is the unique identifier for this pipeline, used for labels and lookups
	pipelineKey string

	computeShader shader.Shader

	// bindings overrides the shader's own layout, letting callers pin formats and access modes
	bindings []gpucore.BindingLayout

	computePipeline gpucore.ComputePipelineID
	bindGroupLayout gpucore.BindGroupLayoutID
}

// Pipeline is a compute pipeline built from a single compute shader with one bind group.
// It is created uncompiled; Compile creates the backend objects exactly once.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader returns the compute shader of this pipeline, or nil if not set.
	//
	// Returns:
	//   - shader.Shader: the compute shader
	Shader() shader.Shader

	// Bindings returns the bind group 0 layout the pipeline is compiled with.
	//
	// Returns:
	//   - []gpucore.BindingLayout: the layout entries sorted by binding
	Bindings() []gpucore.BindingLayout

	// ComputePipeline returns the compiled backend pipeline, or gpucore.InvalidID before Compile.
	//
	// Returns:
	//   - gpucore.ComputePipelineID: the compiled pipeline handle
	ComputePipeline() gpucore.ComputePipelineID

	// BindGroupLayout returns the layout bind groups for this pipeline must be created against.
	//
	// Returns:
	//   - gpucore.BindGroupLayoutID: the bind group 0 layout handle
	BindGroupLayout() gpucore.BindGroupLayoutID

	// Compiled reports whether Compile has succeeded and Release has not been called since.
	//
	// Returns:
	//   - bool: true if the backend objects exist
	Compiled() bool

	// Compile creates the backend pipeline. Calling it on a compiled pipeline is a no-op.
	//
	// Parameters:
	//   - compiler: the backend that compiles the shader
	//
	// Returns:
	//   - error: ErrNoComputeShader, or the backend's compilation error
	Compile(compiler gpucore.PipelineCompiler) error

	// Release frees the backend pipeline. The pipeline may be compiled again afterwards.
	//
	// Parameters:
	//   - compiler: the backend that compiled the pipeline
	Release(compiler gpucore.PipelineCompiler)
}

var _ Pipeline = &pipeline{}

// NewPipeline creates an uncompiled compute Pipeline.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance
func NewPipeline(pipelineKey string, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		mu:          &sync.Mutex{},
		pipelineKey: pipelineKey,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.computeShader
}

func (p *pipeline) Bindings() []gpucore.BindingLayout {
	if p.bindings != nil {
		return p.bindings
	}
	if p.computeShader == nil {
		return nil
	}
	return p.computeShader.Bindings()
}

func (p *pipeline) ComputePipeline() gpucore.ComputePipelineID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computePipeline
}

func (p *pipeline) BindGroupLayout() gpucore.BindGroupLayoutID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindGroupLayout
}

func (p *pipeline) Compiled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computePipeline != gpucore.InvalidID
}

func (p *pipeline) Compile(compiler gpucore.PipelineCompiler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.computePipeline != gpucore.InvalidID {
		return nil
	}
	if p.computeShader == nil {
		return ErrNoComputeShader
	}

	created, layout, err := compiler.CreateComputePipeline(&gpucore.ComputePipelineDescriptor{
		Label:      p.pipelineKey + " Compute Pipeline",
		Source:     p.computeShader.Source(),
		EntryPoint: common.Coalesce(p.computeShader.EntryPoint(), shader.DefaultEntryPoint),
		Bindings:   p.Bindings(),
	})
	if err != nil {
		return fmt.Errorf("pipeline %s: %w", p.pipelineKey, err)
	}

	p.computePipeline = created
	p.bindGroupLayout = layout
	return nil
}

func (p *pipeline) Release(compiler gpucore.PipelineCompiler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.computePipeline == gpucore.InvalidID {
		return
	}
	compiler.ReleaseComputePipeline(p.computePipeline)
	p.computePipeline = gpucore.InvalidID
	p.bindGroupLayout = gpucore.InvalidID
}
