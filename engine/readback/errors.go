package readback

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

var (
	// ErrPluginClosed is returned by Update and Spawn after Close.
	ErrPluginClosed = errors.New("readback: plugin closed")

	// ErrMissingShaderSource is wrapped by a ShaderCompilationError when a descriptor names no source.
	ErrMissingShaderSource = errors.New("readback: descriptor has no shader source")

	// ErrDescriptorMismatch is wrapped by a ShaderCompilationError when the descriptor's resources
	// or workgroup size disagree with the shader's declared interface.
	ErrDescriptorMismatch = errors.New("readback: descriptor does not match shader interface")

	// ErrDescriptorType is returned by SetDescriptor when the new value has a different type.
	ErrDescriptorType = errors.New("readback: descriptor type cannot change")

	// ErrOutstandingMaps is returned by Close when map requests never completed.
	ErrOutstandingMaps = errors.New("readback: map requests still outstanding")
)

// ShaderCompilationError reports that a descriptor type cannot be compiled. It is cached:
// no instance of Type dispatches for the lifetime of the plugin.
type ShaderCompilationError struct {
	Type reflect.Type
	Key  string
	Err  error
}

func (e *ShaderCompilationError) Error() string {
	return fmt.Sprintf("readback: compiling %s: %v", e.Key, e.Err)
}

func (e *ShaderCompilationError) Unwrap() error {
	return e.Err
}

// ReadbackMapError reports that a staging buffer could not be mapped for reading.
// The instance it belongs to moves to StateFailed.
type ReadbackMapError struct {
	Instance uint64
	Binding  uint32
	Status   gpucore.MapStatus
}

func (e *ReadbackMapError) Error() string {
	return fmt.Sprintf("readback: instance %d binding %d: map failed: %s", e.Instance, e.Binding, e.Status)
}

// ResourceDimensionError describes a resource whose extent cannot be dispatched or copied.
// It only ever reaches the log: the frame is skipped and the instance stays idle.
type ResourceDimensionError struct {
	Binding uint32
	Extent  gpucore.Extent3D
}

func (e *ResourceDimensionError) Error() string {
	return fmt.Sprintf("readback: binding %d has unusable extent %s", e.Binding, e.Extent)
}

// HandlerPanicError records a panic recovered from OnReadback.
type HandlerPanicError struct {
	Instance uint64
	Value    any
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("readback: instance %d: handler panicked: %v", e.Instance, e.Value)
}
