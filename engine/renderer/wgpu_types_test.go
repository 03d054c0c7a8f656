package renderer

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextureFormatCoversEveryStorageFormat(t *testing.T) {
	for f := gpucore.TextureFormatRGBA8Unorm; f <= gpucore.TextureFormatRGBA32Float; f++ {
		_, ok := textureFormat(f)
		assert.True(t, ok, "format %s has no wgpu mapping", f)
	}
	_, ok := textureFormat(gpucore.TextureFormatUndefined)
	assert.False(t, ok)
}

func TestBufferUsage(t *testing.T) {
	got := bufferUsage(gpucore.BufferUsageMapRead | gpucore.BufferUsageCopyDst)
	assert.Equal(t, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst, got)

	got = bufferUsage(gpucore.BufferUsageStorage | gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst)
	assert.Equal(t, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst, got)
}

func TestTextureUsage(t *testing.T) {
	got := textureUsage(gpucore.TextureUsageStorageBinding | gpucore.TextureUsageCopySrc)
	assert.Equal(t, wgpu.TextureUsageStorageBinding|wgpu.TextureUsageCopySrc, got)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, gpucore.MapStatusSuccess, mapStatus(wgpu.BufferMapAsyncStatusSuccess))
	assert.Equal(t, gpucore.MapStatusOutOfRange, mapStatus(wgpu.BufferMapAsyncStatusSizeOutOfRange))
	assert.Equal(t, gpucore.MapStatusDeviceLost, mapStatus(wgpu.BufferMapAsyncStatusDeviceLost))
	assert.Equal(t, gpucore.MapStatusUnknown, mapStatus(wgpu.BufferMapAsyncStatusUnknown))
}

func TestBindGroupLayoutEntry(t *testing.T) {
	tests := []struct {
		name    string
		in      gpucore.BindingLayout
		check   func(t *testing.T, e wgpu.BindGroupLayoutEntry)
		wantErr bool
	}{
		{
			name: "uniform",
			in:   gpucore.BindingLayout{Binding: 0, Kind: gpucore.BindingKindUniformBuffer, Access: gpucore.AccessRead, MinBindingSize: 16},
			check: func(t *testing.T, e wgpu.BindGroupLayoutEntry) {
				assert.Equal(t, wgpu.BufferBindingTypeUniform, e.Buffer.Type)
				assert.Equal(t, uint64(16), e.Buffer.MinBindingSize)
			},
		},
		{
			name: "read only storage",
			in:   gpucore.BindingLayout{Binding: 1, Kind: gpucore.BindingKindStorageBuffer, Access: gpucore.AccessRead},
			check: func(t *testing.T, e wgpu.BindGroupLayoutEntry) {
				assert.Equal(t, wgpu.BufferBindingTypeReadOnlyStorage, e.Buffer.Type)
			},
		},
		{
			name: "read write storage",
			in:   gpucore.BindingLayout{Binding: 2, Kind: gpucore.BindingKindStorageBuffer, Access: gpucore.AccessReadWrite},
			check: func(t *testing.T, e wgpu.BindGroupLayoutEntry) {
				assert.Equal(t, wgpu.BufferBindingTypeStorage, e.Buffer.Type)
			},
		},
		{
			name: "storage texture",
			in:   gpucore.BindingLayout{Binding: 3, Kind: gpucore.BindingKindStorageTexture, Access: gpucore.AccessWrite, Format: gpucore.TextureFormatRGBA32Float},
			check: func(t *testing.T, e wgpu.BindGroupLayoutEntry) {
				assert.Equal(t, wgpu.StorageTextureAccessWriteOnly, e.StorageTexture.Access)
				assert.Equal(t, wgpu.TextureFormatRGBA32Float, e.StorageTexture.Format)
				assert.Equal(t, wgpu.TextureViewDimension2D, e.StorageTexture.ViewDimension)
			},
		},
		{
			name:    "texture without format",
			in:      gpucore.BindingLayout{Binding: 4, Kind: gpucore.BindingKindStorageTexture, Access: gpucore.AccessWrite},
			wantErr: true,
		},
		{
			name:    "undefined kind",
			in:      gpucore.BindingLayout{Binding: 5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := bindGroupLayoutEntry(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.in.Binding, e.Binding)
			assert.Equal(t, wgpu.ShaderStageCompute, e.Visibility)
			tt.check(t, e)
		})
	}
}

func TestBackendTypeString(t *testing.T) {
	assert.Equal(t, "wgpu", BackendTypeWGPU.String())
	assert.Equal(t, "unknown", RendererBackendType(7).String())
}
