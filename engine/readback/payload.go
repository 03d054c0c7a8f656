package readback

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"honnef.co/go/safeish"
)

// ErrUnsupportedImageFormat is returned by PixelBuffer.Image for formats with no image.Image mapping.
var ErrUnsupportedImageFormat = errors.New("readback: texture format has no image conversion")

// Payload is the decoded contents of one readback binding.
type Payload struct {
	// Binding is the binding slot the data was copied from.
	Binding uint32

	// Bytes holds the tightly packed contents: the buffer's bytes, or the texture's texels
	// row-major with row padding removed.
	Bytes []byte

	// Image is set for storage texture readbacks and shares Bytes as its Pix.
	Image *PixelBuffer
}

// PixelBuffer is a row-major texture readback. Layers follow each other for 3D or array textures.
type PixelBuffer struct {
	Width  uint32
	Height uint32
	Depth  uint32
	Format gpucore.TextureFormat
	Pix    []byte
}

// Stride returns the byte length of one tightly packed row.
func (p *PixelBuffer) Stride() int {
	return int(p.Width * p.Format.BytesPerPixel())
}

// Float32s reinterprets the pixels of a 32-bit float format as one float32 per channel.
// It returns nil for other formats.
func (p *PixelBuffer) Float32s() []float32 {
	switch p.Format {
	case gpucore.TextureFormatR32Float, gpucore.TextureFormatRG32Float, gpucore.TextureFormatRGBA32Float:
		return cast32[float32](p.Pix)
	}
	return nil
}

// Uint32s reinterprets the pixels of a 32-bit unsigned format as one uint32 per channel.
// It returns nil for other formats.
func (p *PixelBuffer) Uint32s() []uint32 {
	switch p.Format {
	case gpucore.TextureFormatR32Uint, gpucore.TextureFormatRG32Uint, gpucore.TextureFormatRGBA32Uint:
		return cast32[uint32](p.Pix)
	}
	return nil
}

// Int32s reinterprets the pixels of a 32-bit signed format as one int32 per channel.
// It returns nil for other formats.
func (p *PixelBuffer) Int32s() []int32 {
	switch p.Format {
	case gpucore.TextureFormatR32Sint, gpucore.TextureFormatRG32Sint, gpucore.TextureFormatRGBA32Sint:
		return cast32[int32](p.Pix)
	}
	return nil
}

func cast32[T float32 | uint32 | int32](b []byte) []T {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	return safeish.SliceCast[[]T](b)
}

// Image converts the first layer to an 8-bit image. Float channels are clamped to [0, 1].
//
// Returns:
//   - image.Image: an *image.NRGBA for colour formats, *image.Gray for single channel floats
//   - error: ErrUnsupportedImageFormat for integer formats other than rgba8unorm and bgra8unorm
func (p *PixelBuffer) Image() (image.Image, error) {
	w, h := int(p.Width), int(p.Height)
	rect := image.Rect(0, 0, w, h)
	texels := w * h

	switch p.Format {
	case gpucore.TextureFormatRGBA8Unorm:
		img := image.NewNRGBA(rect)
		copy(img.Pix, p.Pix[:texels*4])
		return img, nil

	case gpucore.TextureFormatBGRA8Unorm:
		img := image.NewNRGBA(rect)
		for i := range texels {
			s := p.Pix[i*4 : i*4+4]
			img.Pix[i*4+0] = s[2]
			img.Pix[i*4+1] = s[1]
			img.Pix[i*4+2] = s[0]
			img.Pix[i*4+3] = s[3]
		}
		return img, nil

	case gpucore.TextureFormatRGBA32Float:
		f := p.Float32s()
		img := image.NewNRGBA(rect)
		for i := range texels * 4 {
			img.Pix[i] = unorm8(f[i])
		}
		return img, nil

	case gpucore.TextureFormatRGBA16Float:
		img := image.NewNRGBA(rect)
		for i := range texels * 4 {
			half := uint16(p.Pix[i*2]) | uint16(p.Pix[i*2+1])<<8
			img.Pix[i] = unorm8(halfToFloat32(half))
		}
		return img, nil

	case gpucore.TextureFormatR32Float:
		f := p.Float32s()
		img := image.NewGray(rect)
		for i := range texels {
			img.SetGray(i%w, i/w, color.Gray{Y: unorm8(f[i])})
		}
		return img, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnsupportedImageFormat, p.Format)
}

func unorm8(v float32) uint8 {
	if math.IsNaN(float64(v)) || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}

// halfToFloat32 widens an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch exp {
	case 0:
		f := float32(mant) / (1 << 24)
		if sign != 0 {
			f = -f
		}
		return f
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
}

// decodeCopy turns the mapped bytes of one staging copy into a Payload.
func decodeCopy(c *stagingCopy) Payload {
	r := c.resource
	if r.Kind.IsBuffer() {
		return Payload{Binding: r.Binding, Bytes: c.data[:r.Size]}
	}

	rowBytes := int(r.Extent.Width * r.Format.BytesPerPixel())
	rows := int(r.Extent.Height * r.Extent.DepthOrArrayLayers)
	pix := c.data
	if int(c.bytesPerRow) != rowBytes {
		pix = make([]byte, rowBytes*rows)
		for y := range rows {
			src := y * int(c.bytesPerRow)
			copy(pix[y*rowBytes:(y+1)*rowBytes], c.data[src:src+rowBytes])
		}
	} else {
		pix = pix[:rowBytes*rows]
	}

	return Payload{
		Binding: r.Binding,
		Bytes:   pix,
		Image: &PixelBuffer{
			Width:  r.Extent.Width,
			Height: r.Extent.Height,
			Depth:  r.Extent.DepthOrArrayLayers,
			Format: r.Format,
			Pix:    pix,
		},
	}
}
