package bind_group_provider

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  uint32
	Offset   uint64
	Data     []byte
}

// WriteBuffers uploads every write to its target buffer. Writes whose binding holds no buffer
// are skipped; the first allocator error stops the batch.
//
// Parameters:
//   - alloc: the allocator that owns the buffers
//   - writes: the writes to perform in order
//
// Returns:
//   - error: the first write error
func WriteBuffers(alloc gpucore.ResourceAllocator, writes []BufferWrite) error {
	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == gpucore.InvalidID {
			continue
		}
		if err := alloc.WriteBuffer(buf, w.Offset, w.Data); err != nil {
			return fmt.Errorf("%s binding %d: %w", w.Provider.Label(), w.Binding, err)
		}
	}
	return nil
}
