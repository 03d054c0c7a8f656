package bind_group_provider

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore/gpucoretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var layouts = []gpucore.BindingLayout{
	{Binding: 0, Kind: gpucore.BindingKindUniformBuffer, Access: gpucore.AccessRead, MinBindingSize: 16},
	{Binding: 1, Kind: gpucore.BindingKindStorageTexture, Access: gpucore.AccessWrite, Format: gpucore.TextureFormatRGBA32Float},
	{Binding: 2, Kind: gpucore.BindingKindStorageBuffer, Access: gpucore.AccessReadWrite, MinBindingSize: 4},
}

func TestInitAllocatesMissingResources(t *testing.T) {
	dev := gpucoretest.NewDevice()
	p := NewBindGroupProvider("compute")

	err := p.Init(dev, layouts,
		map[uint32]uint64{2: 256},
		map[uint32]gpucore.Extent3D{1: {Width: 64, Height: 64, DepthOrArrayLayers: 1}},
	)
	require.NoError(t, err)

	resources := p.Resources()
	require.Len(t, resources, 3)

	assert.Equal(t, uint64(16), resources[0].Size)
	assert.Equal(t, gpucore.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1}, resources[0].Extent)

	assert.NotEqual(t, gpucore.TextureID(gpucore.InvalidID), resources[1].Texture)
	assert.Equal(t, gpucore.TextureFormatRGBA32Float, resources[1].Format)
	assert.Equal(t, uint32(64), resources[1].Extent.Height)

	assert.Equal(t, uint64(256), resources[2].Size)
	assert.Equal(t, uint32(64), resources[2].Extent.Width)
	assert.Equal(t, 2, dev.LiveBuffers())

	p.Release(dev)
	assert.Empty(t, p.Resources())
	assert.Equal(t, 0, dev.LiveBuffers())
}

func TestInitKeepsExistingResources(t *testing.T) {
	dev := gpucoretest.NewDevice()
	external, err := dev.CreateBuffer(&gpucore.BufferDescriptor{Size: 64})
	require.NoError(t, err)

	p := NewBindGroupProvider("compute", WithResource(gpucore.BoundResource{
		Binding: 2,
		Kind:    gpucore.BindingKindStorageBuffer,
		Access:  gpucore.AccessReadWrite,
		Size:    64,
		Buffer:  external,
	}))
	require.NoError(t, p.Init(dev, layouts[2:], nil, nil))
	assert.Equal(t, external, p.Buffer(2))

	p.Release(dev)
	assert.Equal(t, 1, dev.LiveBuffers(), "external buffers are not released")
}

func TestInitErrors(t *testing.T) {
	dev := gpucoretest.NewDevice()

	err := NewBindGroupProvider("tex").Init(dev, layouts[1:2], nil, nil)
	assert.ErrorContains(t, err, "no extent")

	err = NewBindGroupProvider("buf").Init(dev, []gpucore.BindingLayout{
		{Binding: 0, Kind: gpucore.BindingKindStorageBuffer},
	}, nil, nil)
	assert.ErrorContains(t, err, "no size")
}

func TestWriteBuffers(t *testing.T) {
	dev := gpucoretest.NewDevice()
	p := NewBindGroupProvider("compute")
	require.NoError(t, p.Init(dev, layouts[:1], nil, nil))

	require.NoError(t, WriteBuffers(dev, []BufferWrite{
		{Provider: p, Binding: 0, Offset: 4, Data: []byte{1, 2, 3, 4}},
		{Provider: p, Binding: 7, Data: []byte{9}},
	}))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, dev.BufferData(p.Buffer(0))[:8])

	err := WriteBuffers(dev, []BufferWrite{{Provider: p, Binding: 0, Offset: 16, Data: []byte{1}}})
	assert.Error(t, err)
}
