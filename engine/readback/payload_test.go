package readback

import (
	"image"
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/common"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelBufferImage(t *testing.T) {
	t.Run("rgba32float clamps", func(t *testing.T) {
		pb := &PixelBuffer{
			Width:  2,
			Height: 1,
			Depth:  1,
			Format: gpucore.TextureFormatRGBA32Float,
			Pix:    common.SliceToBytes([]float32{1, 0.5, 0, 1, 2, -1, 0.25, 1}),
		}
		img, err := pb.Image()
		require.NoError(t, err)
		nrgba, ok := img.(*image.NRGBA)
		require.True(t, ok)
		assert.Equal(t, []uint8{255, 128, 0, 255, 255, 0, 64, 255}, nrgba.Pix)
	})

	t.Run("bgra8unorm swizzles", func(t *testing.T) {
		pb := &PixelBuffer{Width: 1, Height: 1, Depth: 1, Format: gpucore.TextureFormatBGRA8Unorm, Pix: []byte{1, 2, 3, 4}}
		img, err := pb.Image()
		require.NoError(t, err)
		assert.Equal(t, []uint8{3, 2, 1, 4}, img.(*image.NRGBA).Pix)
	})

	t.Run("rgba16float", func(t *testing.T) {
		// 1.0, 0.5, 0.0, 1.0 as binary16
		pb := &PixelBuffer{Width: 1, Height: 1, Depth: 1, Format: gpucore.TextureFormatRGBA16Float, Pix: []byte{0x00, 0x3c, 0x00, 0x38, 0x00, 0x00, 0x00, 0x3c}}
		img, err := pb.Image()
		require.NoError(t, err)
		assert.Equal(t, []uint8{255, 128, 0, 255}, img.(*image.NRGBA).Pix)
	})

	t.Run("r32float is gray", func(t *testing.T) {
		pb := &PixelBuffer{Width: 2, Height: 1, Depth: 1, Format: gpucore.TextureFormatR32Float, Pix: common.SliceToBytes([]float32{0, 1})}
		img, err := pb.Image()
		require.NoError(t, err)
		assert.Equal(t, []uint8{0, 255}, img.(*image.Gray).Pix)
	})

	t.Run("integer formats are rejected", func(t *testing.T) {
		pb := &PixelBuffer{Width: 1, Height: 1, Depth: 1, Format: gpucore.TextureFormatRGBA32Uint, Pix: make([]byte, 16)}
		_, err := pb.Image()
		assert.ErrorIs(t, err, ErrUnsupportedImageFormat)
	})
}

func TestPixelBufferTypedViews(t *testing.T) {
	u := &PixelBuffer{Width: 2, Height: 1, Depth: 1, Format: gpucore.TextureFormatR32Uint, Pix: common.SliceToBytes([]uint32{7, 9})}
	assert.Equal(t, []uint32{7, 9}, u.Uint32s())
	assert.Nil(t, u.Float32s())
	assert.Nil(t, u.Int32s())

	i := &PixelBuffer{Width: 1, Height: 1, Depth: 1, Format: gpucore.TextureFormatRG32Sint, Pix: common.SliceToBytes([]int32{-3, 4})}
	assert.Equal(t, []int32{-3, 4}, i.Int32s())
	assert.Equal(t, 8, i.Stride())
}

func TestHalfToFloat32(t *testing.T) {
	assert.Equal(t, float32(1), halfToFloat32(0x3c00))
	assert.Equal(t, float32(-2), halfToFloat32(0xc000))
	assert.Equal(t, float32(0.5), halfToFloat32(0x3800))
	assert.Equal(t, float32(0), halfToFloat32(0))
	assert.InDelta(t, 5.96e-8, halfToFloat32(0x0001), 1e-9)
}

func TestDecodeCopy(t *testing.T) {
	buf := &stagingCopy{
		resource: gpucore.BoundResource{Binding: 2, Kind: gpucore.BindingKindStorageBuffer, Size: 8},
		data:     []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	p := decodeCopy(buf)
	assert.Equal(t, uint32(2), p.Binding)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, p.Bytes)
	assert.Nil(t, p.Image)

	data := make([]byte, 512)
	for i := range 4 {
		data[i] = byte(i + 1)
		data[256+i] = byte(i + 11)
	}
	tex := &stagingCopy{
		resource: gpucore.BoundResource{
			Binding: 1,
			Kind:    gpucore.BindingKindStorageTexture,
			Format:  gpucore.TextureFormatRGBA8Unorm,
			Extent:  gpucore.Extent3D{Width: 1, Height: 2, DepthOrArrayLayers: 1},
		},
		bytesPerRow: 256,
		data:        data,
	}
	p = decodeCopy(tex)
	assert.Equal(t, []byte{1, 2, 3, 4, 11, 12, 13, 14}, p.Bytes)
	require.NotNil(t, p.Image)
	assert.Equal(t, uint32(2), p.Image.Height)
}
