package gpucore

// ComputePipelineDescriptor describes a compute pipeline with a single bind group (group 0).
type ComputePipelineDescriptor struct {
	Label      string
	Source     string // WGSL source
	EntryPoint string
	Bindings   []BindingLayout
}

// BufferDescriptor describes a buffer allocation.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

// TextureDescriptor describes a 2D or 3D texture allocation.
type TextureDescriptor struct {
	Label  string
	Extent Extent3D
	Format TextureFormat
	Usage  TextureUsage
}

// BindGroupEntry attaches a buffer or texture to one binding of a bind group.
// Exactly one of Buffer or Texture is set.
type BindGroupEntry struct {
	Binding uint32
	Buffer  BufferID
	Texture TextureID
}

// BindGroupDescriptor describes a bind group created against a compiled layout.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayoutID
	Entries []BindGroupEntry
}

// TextureCopyLayout describes where a texture copy lands inside a buffer.
// BytesPerRow must be a multiple of CopyBytesPerRowAlignment.
type TextureCopyLayout struct {
	Extent       Extent3D
	BytesPerRow  uint32
	RowsPerImage uint32
}

// PipelineCompiler creates and releases compute pipelines.
type PipelineCompiler interface {
	// CreateComputePipeline compiles the WGSL source and creates the pipeline together with
	// the layout of bind group 0.
	//
	// Parameters:
	//   - desc: the pipeline description
	//
	// Returns:
	//   - ComputePipelineID: the compiled pipeline
	//   - BindGroupLayoutID: the layout of group 0, used to create bind groups
	//   - error: error if the backend rejects the shader or layout
	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipelineID, BindGroupLayoutID, error)

	// ReleaseComputePipeline releases a pipeline and its bind group layout.
	ReleaseComputePipeline(id ComputePipelineID)
}

// ResourceAllocator creates, writes and releases buffers, textures and bind groups.
type ResourceAllocator interface {
	CreateBuffer(desc *BufferDescriptor) (BufferID, error)
	WriteBuffer(id BufferID, offset uint64, data []byte) error
	ReleaseBuffer(id BufferID)

	CreateTexture(desc *TextureDescriptor) (TextureID, error)
	ReleaseTexture(id TextureID)

	CreateBindGroup(desc *BindGroupDescriptor) (BindGroupID, error)
	ReleaseBindGroup(id BindGroupID)
}

// CommandEncoder records GPU work for a single submission.
type CommandEncoder interface {
	// Dispatch records a compute pass running the pipeline with bind group 0 set.
	Dispatch(pipeline ComputePipelineID, bindGroup BindGroupID, workgroups [3]uint32) error

	// CopyBufferToBuffer records a copy of size bytes between two buffers.
	CopyBufferToBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset uint64, size uint64) error

	// CopyTextureToBuffer records a copy of a whole texture into a buffer using the given row pitch.
	CopyTextureToBuffer(src TextureID, dst BufferID, layout TextureCopyLayout) error

	// Release drops the encoder without submitting it.
	Release()
}

// Transfer covers submission and the asynchronous map-for-read path.
type Transfer interface {
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit finishes the encoder and submits it to the queue. The encoder must not be
	// used afterwards.
	Submit(enc CommandEncoder) error

	// MapReadAsync requests a host mapping of the first size bytes of a MapRead buffer.
	// The callback fires exactly once, from within Poll, on whatever goroutine calls Poll.
	MapReadAsync(id BufferID, size uint64, callback func(MapStatus)) error

	// MappedRange returns the mapped bytes. The slice is only valid until Unmap.
	MappedRange(id BufferID, offset, size uint64) ([]byte, error)

	// Unmap releases the host mapping of a buffer.
	Unmap(id BufferID)

	// Poll drives pending callbacks. When wait is true it blocks until queued work finishes.
	Poll(wait bool)
}

// Device is everything the orchestrator needs from a GPU backend.
type Device interface {
	PipelineCompiler
	ResourceAllocator
	Transfer
}
