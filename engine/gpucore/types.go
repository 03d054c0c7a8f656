package gpucore

import "fmt"

// Resource IDs are opaque handles. Each Device implementation maps them to its own
// backend objects. The zero value never names a live resource.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// TextureID is an opaque handle to a GPU texture.
type TextureID uint64

// ComputePipelineID is an opaque handle to a compiled compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// CopyBytesPerRowAlignment is the row pitch alignment required for texture to buffer copies.
const CopyBytesPerRowAlignment = 256

// Extent3D is the size of a resource along each axis. Buffers use Width as their element
// count and leave Height and DepthOrArrayLayers at 1.
type Extent3D struct {
	Width              uint32
	Height             uint32
	DepthOrArrayLayers uint32
}

// Axes returns the extent as an [x, y, z] array.
func (e Extent3D) Axes() [3]uint32 {
	return [3]uint32{e.Width, e.Height, e.DepthOrArrayLayers}
}

// IsZero reports whether any axis of the extent is zero.
func (e Extent3D) IsZero() bool {
	return e.Width == 0 || e.Height == 0 || e.DepthOrArrayLayers == 0
}

func (e Extent3D) String() string {
	return fmt.Sprintf("%dx%dx%d", e.Width, e.Height, e.DepthOrArrayLayers)
}

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

const (
	// BufferUsageMapRead marks a buffer that the host maps for reading.
	BufferUsageMapRead BufferUsage = 1 << iota
	// BufferUsageCopySrc marks a buffer usable as a copy source.
	BufferUsageCopySrc
	// BufferUsageCopyDst marks a buffer usable as a copy destination.
	BufferUsageCopyDst
	// BufferUsageUniform marks a buffer bindable as a uniform buffer.
	BufferUsageUniform
	// BufferUsageStorage marks a buffer bindable as a storage buffer.
	BufferUsageStorage
)

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

const (
	// TextureUsageCopySrc marks a texture usable as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << iota
	// TextureUsageCopyDst marks a texture usable as a copy destination.
	TextureUsageCopyDst
	// TextureUsageStorageBinding marks a texture bindable as a storage texture.
	TextureUsageStorageBinding
	// TextureUsageTextureBinding marks a texture bindable as a sampled texture.
	TextureUsageTextureBinding
)

// TextureFormat is the texel format of a storage texture. Only formats valid for WGSL
// storage textures are listed.
type TextureFormat uint32

const (
	TextureFormatUndefined TextureFormat = iota
	TextureFormatRGBA8Unorm
	TextureFormatRGBA8Snorm
	TextureFormatRGBA8Uint
	TextureFormatRGBA8Sint
	TextureFormatBGRA8Unorm
	TextureFormatRGBA16Uint
	TextureFormatRGBA16Sint
	TextureFormatRGBA16Float
	TextureFormatR32Uint
	TextureFormatR32Sint
	TextureFormatR32Float
	TextureFormatRG32Uint
	TextureFormatRG32Sint
	TextureFormatRG32Float
	TextureFormatRGBA32Uint
	TextureFormatRGBA32Sint
	TextureFormatRGBA32Float
)

var textureFormatInfo = map[TextureFormat]struct {
	name          string
	bytesPerPixel uint32
	channels      uint32
}{
	TextureFormatRGBA8Unorm:  {"rgba8unorm", 4, 4},
	TextureFormatRGBA8Snorm:  {"rgba8snorm", 4, 4},
	TextureFormatRGBA8Uint:   {"rgba8uint", 4, 4},
	TextureFormatRGBA8Sint:   {"rgba8sint", 4, 4},
	TextureFormatBGRA8Unorm:  {"bgra8unorm", 4, 4},
	TextureFormatRGBA16Uint:  {"rgba16uint", 8, 4},
	TextureFormatRGBA16Sint:  {"rgba16sint", 8, 4},
	TextureFormatRGBA16Float: {"rgba16float", 8, 4},
	TextureFormatR32Uint:     {"r32uint", 4, 1},
	TextureFormatR32Sint:     {"r32sint", 4, 1},
	TextureFormatR32Float:    {"r32float", 4, 1},
	TextureFormatRG32Uint:    {"rg32uint", 8, 2},
	TextureFormatRG32Sint:    {"rg32sint", 8, 2},
	TextureFormatRG32Float:   {"rg32float", 8, 2},
	TextureFormatRGBA32Uint:  {"rgba32uint", 16, 4},
	TextureFormatRGBA32Sint:  {"rgba32sint", 16, 4},
	TextureFormatRGBA32Float: {"rgba32float", 16, 4},
}

// BytesPerPixel returns the size of one texel in bytes, or 0 for an unknown format.
func (f TextureFormat) BytesPerPixel() uint32 {
	return textureFormatInfo[f].bytesPerPixel
}

// Channels returns the number of components per texel, or 0 for an unknown format.
func (f TextureFormat) Channels() uint32 {
	return textureFormatInfo[f].channels
}

// String returns the WGSL texel format name.
func (f TextureFormat) String() string {
	if info, ok := textureFormatInfo[f]; ok {
		return info.name
	}
	return fmt.Sprintf("TextureFormat(%d)", uint32(f))
}

// ParseTextureFormat resolves a WGSL texel format keyword such as "rgba32float".
//
// Parameters:
//   - name: the WGSL texel format keyword
//
// Returns:
//   - TextureFormat: the matching format
//   - bool: false if the keyword is not a storage texel format
func ParseTextureFormat(name string) (TextureFormat, bool) {
	for f, info := range textureFormatInfo {
		if info.name == name {
			return f, true
		}
	}
	return TextureFormatUndefined, false
}

// AccessMode describes how a compute shader touches a bound resource.
type AccessMode uint8

const (
	AccessRead AccessMode = iota + 1
	AccessWrite
	AccessReadWrite
)

// Writes reports whether the mode lets the shader write the resource.
func (a AccessMode) Writes() bool {
	return a == AccessWrite || a == AccessReadWrite
}

func (a AccessMode) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "read_write"
	default:
		return fmt.Sprintf("AccessMode(%d)", uint8(a))
	}
}

// BindingKind is the category of a bound resource.
type BindingKind uint8

const (
	BindingKindUndefined BindingKind = iota
	BindingKindUniformBuffer
	BindingKindStorageBuffer
	BindingKindStorageTexture
)

// IsBuffer reports whether the kind is backed by a buffer.
func (k BindingKind) IsBuffer() bool {
	return k == BindingKindUniformBuffer || k == BindingKindStorageBuffer
}

func (k BindingKind) String() string {
	switch k {
	case BindingKindUniformBuffer:
		return "uniform"
	case BindingKindStorageBuffer:
		return "storage"
	case BindingKindStorageTexture:
		return "storage_texture"
	default:
		return "undefined"
	}
}

// BindingLayout describes one entry of a compute bind group layout.
type BindingLayout struct {
	Binding        uint32
	Kind           BindingKind
	Access         AccessMode
	Format         TextureFormat // storage textures only
	MinBindingSize uint64        // buffers only, 0 when unknown
}

// BoundResource is a concrete GPU resource attached to a binding slot, together with the
// metadata the orchestrator needs to size dispatches and staging copies.
type BoundResource struct {
	Binding uint32
	Kind    BindingKind
	Access  AccessMode
	Format  TextureFormat // storage textures only
	Extent  Extent3D
	Size    uint64 // byte size for buffers
	Buffer  BufferID
	Texture TextureID
}

// Layout returns the layout entry matching this resource.
func (r BoundResource) Layout() BindingLayout {
	return BindingLayout{
		Binding: r.Binding,
		Kind:    r.Kind,
		Access:  r.Access,
		Format:  r.Format,
	}
}

// ByteSize returns the tightly packed size of the resource contents.
func (r BoundResource) ByteSize() uint64 {
	if r.Kind.IsBuffer() {
		return r.Size
	}
	return uint64(r.Extent.Width) * uint64(r.Format.BytesPerPixel()) *
		uint64(r.Extent.Height) * uint64(r.Extent.DepthOrArrayLayers)
}

// MapStatus is the result of an asynchronous map-for-read request.
type MapStatus int

const (
	MapStatusSuccess MapStatus = iota
	MapStatusValidationError
	MapStatusDeviceLost
	MapStatusDestroyedBeforeCallback
	MapStatusUnmappedBeforeCallback
	MapStatusAlreadyPending
	MapStatusOutOfRange
	MapStatusUnknown
)

func (s MapStatus) String() string {
	switch s {
	case MapStatusSuccess:
		return "Success"
	case MapStatusValidationError:
		return "ValidationError"
	case MapStatusDeviceLost:
		return "DeviceLost"
	case MapStatusDestroyedBeforeCallback:
		return "DestroyedBeforeCallback"
	case MapStatusUnmappedBeforeCallback:
		return "UnmappedBeforeCallback"
	case MapStatusAlreadyPending:
		return "AlreadyPending"
	case MapStatusOutOfRange:
		return "OutOfRange"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}
