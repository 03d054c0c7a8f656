package readback

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-readback/engine/renderer/shader"
)

// cacheEntry is the compiled pipeline of one descriptor type, or the error that prevented it.
type cacheEntry struct {
	pipeline pipeline.Pipeline
	err      error
}

// pipelineCache compiles one compute pipeline per descriptor type. Entries are written once
// and never change until release.
type pipelineCache struct {
	mu       *sync.Mutex
	compiler gpucore.PipelineCompiler
	entries  map[reflect.Type]*cacheEntry
}

func newPipelineCache(compiler gpucore.PipelineCompiler) *pipelineCache {
	return &pipelineCache{
		mu:       &sync.Mutex{},
		compiler: compiler,
		entries:  make(map[reflect.Type]*cacheEntry),
	}
}

// getOrCompile returns the pipeline for desc's type, compiling it on first use.
// A failure is cached as a *ShaderCompilationError and returned for every later call.
func (c *pipelineCache) getOrCompile(desc ShaderDescriptor) (pipeline.Pipeline, error) {
	t := reflect.TypeOf(desc)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[t]; ok {
		return e.pipeline, e.err
	}

	key := typeKey(t)
	p, err := c.compile(key, desc)
	entry := &cacheEntry{pipeline: p}
	if err != nil {
		entry.pipeline = nil
		entry.err = &ShaderCompilationError{Type: t, Key: key, Err: err}
		Logger().Warn("compute pipeline failed", "type", key, "error", err)
	} else {
		Logger().Info("compute pipeline compiled", "type", key, "entry_point", p.Shader().EntryPoint())
	}
	c.entries[t] = entry
	return entry.pipeline, entry.err
}

func (c *pipelineCache) compile(key string, desc ShaderDescriptor) (pipeline.Pipeline, error) {
	src := desc.ShaderSource()
	var (
		s   shader.Shader
		err error
	)
	switch {
	case src.Code != "":
		s, err = shader.NewShader(key, src.Code)
	case src.Path != "":
		s, err = shader.NewShaderFromPath(key, src.Path)
	default:
		return nil, ErrMissingShaderSource
	}
	if err != nil {
		return nil, err
	}

	layouts, err := deriveLayout(s, desc)
	if err != nil {
		return nil, err
	}

	p := pipeline.NewPipeline(key,
		pipeline.WithComputeShader(s),
		pipeline.WithBindings(layouts),
	)
	if err := p.Compile(c.compiler); err != nil {
		return nil, err
	}
	return p, nil
}

// deriveLayout builds the bind group layout from the descriptor's resources and checks it
// against the interface the shader declares.
func deriveLayout(s shader.Shader, desc ShaderDescriptor) ([]gpucore.BindingLayout, error) {
	if wg := desc.WorkgroupSize(); wg != s.WorkgroupSize() {
		return nil, fmt.Errorf("%w: workgroup size %v, shader declares %v", ErrDescriptorMismatch, wg, s.WorkgroupSize())
	}

	resources := desc.Resources()
	seen := make(map[uint32]bool, len(resources))
	layouts := make([]gpucore.BindingLayout, 0, len(resources))
	for _, r := range resources {
		if seen[r.Binding] {
			return nil, fmt.Errorf("%w: binding %d declared twice", ErrDescriptorMismatch, r.Binding)
		}
		seen[r.Binding] = true

		declared, ok := s.Binding(r.Binding)
		if !ok {
			return nil, fmt.Errorf("%w: binding %d is not declared by the shader", ErrDescriptorMismatch, r.Binding)
		}
		if declared.Kind != r.Kind {
			return nil, fmt.Errorf("%w: binding %d is %s, shader declares %s", ErrDescriptorMismatch, r.Binding, r.Kind, declared.Kind)
		}
		if declared.Access != r.Access {
			return nil, fmt.Errorf("%w: binding %d access %s, shader declares %s", ErrDescriptorMismatch, r.Binding, r.Access, declared.Access)
		}
		if r.Kind == gpucore.BindingKindStorageTexture && declared.Format != r.Format {
			return nil, fmt.Errorf("%w: binding %d format %s, shader declares %s", ErrDescriptorMismatch, r.Binding, r.Format, declared.Format)
		}

		l := r.Layout()
		l.MinBindingSize = declared.MinBindingSize
		layouts = append(layouts, l)
	}

	for _, declared := range s.Bindings() {
		if !seen[declared.Binding] {
			return nil, fmt.Errorf("%w: shader binding %d (%s) has no resource", ErrDescriptorMismatch, declared.Binding, s.BindingVarName(declared.Binding))
		}
	}
	for _, b := range desc.Readbacks() {
		if !seen[b] {
			return nil, fmt.Errorf("%w: readback binding %d is not bound", ErrDescriptorMismatch, b)
		}
	}

	sort.Slice(layouts, func(i, j int) bool { return layouts[i].Binding < layouts[j].Binding })
	return layouts, nil
}

// release frees every compiled pipeline and empties the cache.
func (c *pipelineCache) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for t, e := range c.entries {
		if e.pipeline != nil {
			e.pipeline.Release(c.compiler)
		}
		delete(c.entries, t)
	}
}

// len returns the number of cached entries, failures included.
func (c *pipelineCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// typeKey names a descriptor type for labels and logs.
func typeKey(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
