package readback

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore/gpucoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineCacheCompilesOncePerType(t *testing.T) {
	dev := gpucoretest.NewDevice()
	cache := newPipelineCache(dev)

	first := newCounterDesc(t, dev)
	second := newCounterDesc(t, dev)

	p1, err := cache.getOrCompile(first)
	require.NoError(t, err)
	p2, err := cache.getOrCompile(second)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	p3, err := cache.getOrCompile(extentDesc{counterDesc: first})
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)

	pipelines := dev.Pipelines()
	require.Len(t, pipelines, 2)
	assert.Equal(t, "readback.counterDesc Compute Pipeline", pipelines[0].Label)
	assert.Equal(t, "main", pipelines[0].EntryPoint)
	assert.Equal(t, uint64(4), pipelines[0].Bindings[0].MinBindingSize)

	cache.release()
	assert.Empty(t, dev.Pipelines())
	assert.Zero(t, cache.len())
}

func TestPipelineCacheCachesFailure(t *testing.T) {
	dev := gpucoretest.NewDevice()
	rejected := errors.New("driver rejected pipeline")
	calls := 0
	dev.CompileErr = func(*gpucore.ComputePipelineDescriptor) error {
		calls++
		return rejected
	}
	cache := newPipelineCache(dev)
	desc := newCounterDesc(t, dev)

	_, err := cache.getOrCompile(desc)
	var compileErr *ShaderCompilationError
	require.ErrorAs(t, err, &compileErr)
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, "readback.counterDesc", compileErr.Key)

	_, err = cache.getOrCompile(desc)
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, 1, calls)
}

func TestDeriveLayoutRejectsDuplicateBinding(t *testing.T) {
	dev := gpucoretest.NewDevice()
	desc := newCounterDesc(t, dev)
	desc.resources = append(desc.resources, desc.resources[0])

	_, err := newPipelineCache(dev).getOrCompile(desc)
	assert.ErrorIs(t, err, ErrDescriptorMismatch)
}
