package shader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doubleSource = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`

func TestNewShader(t *testing.T) {
	s, err := NewShader("double", doubleSource)
	require.NoError(t, err)

	assert.Equal(t, "double", s.Key())
	assert.Equal(t, "main", s.EntryPoint())
	assert.Equal(t, [3]uint32{64, 1, 1}, s.WorkgroupSize())
	require.Len(t, s.Bindings(), 1)

	b, ok := s.Binding(0)
	require.True(t, ok)
	assert.Equal(t, gpucore.BindingKindStorageBuffer, b.Kind)
	assert.Equal(t, gpucore.AccessReadWrite, b.Access)

	_, ok = s.Binding(5)
	assert.False(t, ok)

	assert.Equal(t, "data", s.BindingVarName(0))
	binding, ok := s.BindingFromVarName("data")
	assert.True(t, ok)
	assert.Equal(t, uint32(0), binding)
}

func TestNewShaderErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		target error
	}{
		{
			name:   "empty",
			source: "",
		},
		{
			name:   "malformed",
			source: "@compute @workgroup_size(1) fn main( {",
		},
		{
			name:   "no compute entry point",
			source: "fn helper() -> u32 { return 1u; }",
			target: ErrNoComputeEntryPoint,
		},
		{
			name: "second bind group",
			source: `@group(1) @binding(0) var<storage, read_write> data: array<u32>;
@compute @workgroup_size(1) fn main() { data[0] = 1u; }`,
			target: ErrUnsupportedBindGroup,
		},
		{
			name: "sampler binding",
			source: `@group(0) @binding(0) var s: sampler;
@compute @workgroup_size(1) fn main() {}`,
			target: ErrUnsupportedBinding,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewShader(tt.name, tt.source)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestNewShaderFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "double.wgsl")
	require.NoError(t, os.WriteFile(path, []byte(doubleSource), 0o600))

	s, err := NewShaderFromPath("double", path)
	require.NoError(t, err)
	assert.Equal(t, doubleSource, s.Source())

	_, err = NewShaderFromPath("missing", filepath.Join(t.TempDir(), "missing.wgsl"))
	assert.Error(t, err)
}
