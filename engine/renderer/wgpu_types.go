package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/cogentcore/webgpu/wgpu"
)

var wgpuTextureFormatMap = map[gpucore.TextureFormat]wgpu.TextureFormat{
	gpucore.TextureFormatRGBA8Unorm:  wgpu.TextureFormatRGBA8Unorm,
	gpucore.TextureFormatRGBA8Snorm:  wgpu.TextureFormatRGBA8Snorm,
	gpucore.TextureFormatRGBA8Uint:   wgpu.TextureFormatRGBA8Uint,
	gpucore.TextureFormatRGBA8Sint:   wgpu.TextureFormatRGBA8Sint,
	gpucore.TextureFormatBGRA8Unorm:  wgpu.TextureFormatBGRA8Unorm,
	gpucore.TextureFormatRGBA16Uint:  wgpu.TextureFormatRGBA16Uint,
	gpucore.TextureFormatRGBA16Sint:  wgpu.TextureFormatRGBA16Sint,
	gpucore.TextureFormatRGBA16Float: wgpu.TextureFormatRGBA16Float,
	gpucore.TextureFormatR32Uint:     wgpu.TextureFormatR32Uint,
	gpucore.TextureFormatR32Sint:     wgpu.TextureFormatR32Sint,
	gpucore.TextureFormatR32Float:    wgpu.TextureFormatR32Float,
	gpucore.TextureFormatRG32Uint:    wgpu.TextureFormatRG32Uint,
	gpucore.TextureFormatRG32Sint:    wgpu.TextureFormatRG32Sint,
	gpucore.TextureFormatRG32Float:   wgpu.TextureFormatRG32Float,
	gpucore.TextureFormatRGBA32Uint:  wgpu.TextureFormatRGBA32Uint,
	gpucore.TextureFormatRGBA32Sint:  wgpu.TextureFormatRGBA32Sint,
	gpucore.TextureFormatRGBA32Float: wgpu.TextureFormatRGBA32Float,
}

var wgpuStorageAccessMap = map[gpucore.AccessMode]wgpu.StorageTextureAccess{
	gpucore.AccessRead:      wgpu.StorageTextureAccessReadOnly,
	gpucore.AccessWrite:     wgpu.StorageTextureAccessWriteOnly,
	gpucore.AccessReadWrite: wgpu.StorageTextureAccessReadWrite,
}

var wgpuMapStatusMap = map[wgpu.BufferMapAsyncStatus]gpucore.MapStatus{
	wgpu.BufferMapAsyncStatusSuccess:                 gpucore.MapStatusSuccess,
	wgpu.BufferMapAsyncStatusValidationError:         gpucore.MapStatusValidationError,
	wgpu.BufferMapAsyncStatusDeviceLost:              gpucore.MapStatusDeviceLost,
	wgpu.BufferMapAsyncStatusDestroyedBeforeCallback: gpucore.MapStatusDestroyedBeforeCallback,
	wgpu.BufferMapAsyncStatusUnmappedBeforeCallback:  gpucore.MapStatusUnmappedBeforeCallback,
	wgpu.BufferMapAsyncStatusMappingAlreadyPending:   gpucore.MapStatusAlreadyPending,
	wgpu.BufferMapAsyncStatusOffsetOutOfRange:        gpucore.MapStatusOutOfRange,
	wgpu.BufferMapAsyncStatusSizeOutOfRange:          gpucore.MapStatusOutOfRange,
}

func textureFormat(f gpucore.TextureFormat) (wgpu.TextureFormat, bool) {
	tf, ok := wgpuTextureFormatMap[f]
	return tf, ok
}

func mapStatus(s wgpu.BufferMapAsyncStatus) gpucore.MapStatus {
	if ms, ok := wgpuMapStatusMap[s]; ok {
		return ms
	}
	return gpucore.MapStatusUnknown
}

func extent3D(e gpucore.Extent3D) wgpu.Extent3D {
	return wgpu.Extent3D{
		Width:              e.Width,
		Height:             e.Height,
		DepthOrArrayLayers: e.DepthOrArrayLayers,
	}
}

func bufferUsage(u gpucore.BufferUsage) wgpu.BufferUsage {
	var usage wgpu.BufferUsage
	if u&gpucore.BufferUsageMapRead != 0 {
		usage |= wgpu.BufferUsageMapRead
	}
	if u&gpucore.BufferUsageCopySrc != 0 {
		usage |= wgpu.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageCopyDst != 0 {
		usage |= wgpu.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageUniform != 0 {
		usage |= wgpu.BufferUsageUniform
	}
	if u&gpucore.BufferUsageStorage != 0 {
		usage |= wgpu.BufferUsageStorage
	}
	return usage
}

func textureUsage(u gpucore.TextureUsage) wgpu.TextureUsage {
	var usage wgpu.TextureUsage
	if u&gpucore.TextureUsageCopySrc != 0 {
		usage |= wgpu.TextureUsageCopySrc
	}
	if u&gpucore.TextureUsageCopyDst != 0 {
		usage |= wgpu.TextureUsageCopyDst
	}
	if u&gpucore.TextureUsageStorageBinding != 0 {
		usage |= wgpu.TextureUsageStorageBinding
	}
	if u&gpucore.TextureUsageTextureBinding != 0 {
		usage |= wgpu.TextureUsageTextureBinding
	}
	return usage
}

// bindGroupLayoutEntry converts one binding of a compute layout to its wgpu form.
// Every entry is visible to the compute stage only.
//
// Parameters:
//   - bl: the backend-neutral layout entry
//
// Returns:
//   - wgpu.BindGroupLayoutEntry: the wgpu layout entry
//   - error: error if the kind, access or format has no wgpu equivalent
func bindGroupLayoutEntry(bl gpucore.BindingLayout) (wgpu.BindGroupLayoutEntry, error) {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    bl.Binding,
		Visibility: wgpu.ShaderStageCompute,
	}

	switch bl.Kind {
	case gpucore.BindingKindUniformBuffer:
		entry.Buffer = wgpu.BufferBindingLayout{
			Type:           wgpu.BufferBindingTypeUniform,
			MinBindingSize: bl.MinBindingSize,
		}
	case gpucore.BindingKindStorageBuffer:
		bindingType := wgpu.BufferBindingTypeStorage
		if !bl.Access.Writes() {
			bindingType = wgpu.BufferBindingTypeReadOnlyStorage
		}
		entry.Buffer = wgpu.BufferBindingLayout{
			Type:           bindingType,
			MinBindingSize: bl.MinBindingSize,
		}
	case gpucore.BindingKindStorageTexture:
		format, ok := textureFormat(bl.Format)
		if !ok {
			return entry, fmt.Errorf("renderer: binding %d has unsupported storage format %s", bl.Binding, bl.Format)
		}
		access, ok := wgpuStorageAccessMap[bl.Access]
		if !ok {
			return entry, fmt.Errorf("renderer: binding %d has unsupported access %s", bl.Binding, bl.Access)
		}
		entry.StorageTexture = wgpu.StorageTextureBindingLayout{
			Access:        access,
			Format:        format,
			ViewDimension: wgpu.TextureViewDimension2D,
		}
	default:
		return entry, fmt.Errorf("renderer: binding %d has unsupported kind %s", bl.Binding, bl.Kind)
	}

	return entry, nil
}
