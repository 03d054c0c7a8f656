package readback

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore/gpucoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingLayout(t *testing.T) {
	tests := []struct {
		name        string
		resource    gpucore.BoundResource
		size        uint64
		bytesPerRow uint32
		wantErr     bool
	}{
		{
			name:     "buffer",
			resource: gpucore.BoundResource{Kind: gpucore.BindingKindStorageBuffer, Size: 256},
			size:     256,
		},
		{
			name:     "unaligned buffer",
			resource: gpucore.BoundResource{Kind: gpucore.BindingKindStorageBuffer, Size: 6},
			wantErr:  true,
		},
		{
			name: "padded texture rows",
			resource: gpucore.BoundResource{
				Kind:   gpucore.BindingKindStorageTexture,
				Format: gpucore.TextureFormatRGBA8Unorm,
				Extent: gpucore.Extent3D{Width: 10, Height: 3, DepthOrArrayLayers: 1},
			},
			size:        256 * 3,
			bytesPerRow: 256,
		},
		{
			name: "64x64 rgba32float",
			resource: gpucore.BoundResource{
				Kind:   gpucore.BindingKindStorageTexture,
				Format: gpucore.TextureFormatRGBA32Float,
				Extent: gpucore.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
			},
			size:        1024 * 64,
			bytesPerRow: 1024,
		},
		{
			name: "texture without format",
			resource: gpucore.BoundResource{
				Kind:   gpucore.BindingKindStorageTexture,
				Extent: gpucore.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, bytesPerRow, err := stagingLayout(tt.resource)
			if tt.wantErr {
				var dimErr *ResourceDimensionError
				assert.ErrorAs(t, err, &dimErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, size)
			assert.Equal(t, tt.bytesPerRow, bytesPerRow)
		})
	}
}

func TestStagingPoolBudget(t *testing.T) {
	dev := gpucoretest.NewDevice()
	pool := newStagingPool(dev, 2)

	a, ok, err := pool.acquire(64)
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = pool.acquire(128)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = pool.acquire(64)
	require.NoError(t, err)
	assert.False(t, ok, "budget exhausted")

	pool.release(a, 64)
	reused, ok, err := pool.acquire(64)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a, reused)

	pool.release(reused, 64)
	_, ok, err = pool.acquire(32)
	require.NoError(t, err)
	assert.True(t, ok, "an idle buffer of another size is evicted")
	assert.Equal(t, 2, dev.LiveBuffers())

	pool.destroy()
	assert.Equal(t, 2, dev.LiveBuffers(), "buffers in use are not destroyed")
	assert.Zero(t, pool.idle())
}
