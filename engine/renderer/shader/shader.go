package shader

import (
	"fmt"
	"os"
	"sort"

	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// DefaultEntryPoint is the compute entry point name selected when a module declares several.
const DefaultEntryPoint = "main"

// shader is the implementation of the Shader interface.
// It holds the parsed and validated compute shader data required for pipeline creation.
type shader struct {
	key           string
	source        string
	entryPoint    string
	workGroupSize [3]uint32
	bindings      []gpucore.BindingLayout
	varNames      map[uint32]string
}

// Shader is a parsed and validated WGSL compute shader. It exposes the data needed to compile
// a compute pipeline and to check a caller's resource declarations against the shader's own
// interface: the entry point, workgroup size and the bind group 0 layout.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for labels and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the WGSL shader source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// EntryPoint returns the compute entry point name.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// WorkgroupSize returns the @workgroup_size of the entry point, [1, 1, 1] when omitted.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Bindings returns the bind group 0 layout entries sorted by binding index.
	//
	// Returns:
	//   - []gpucore.BindingLayout: the layout entries
	Bindings() []gpucore.BindingLayout

	// Binding retrieves the layout entry for a binding index.
	//
	// Parameters:
	//   - binding: the binding index within group 0
	//
	// Returns:
	//   - gpucore.BindingLayout: the layout entry
	//   - bool: false if the shader does not declare the binding
	Binding(binding uint32) (gpucore.BindingLayout, bool)

	// BindingVarName retrieves the variable name declared at a binding index.
	//
	// Parameters:
	//   - binding: the binding index within group 0
	//
	// Returns:
	//   - string: the variable name, or an empty string if not found
	BindingVarName(binding uint32) string

	// BindingFromVarName retrieves the binding index of a declared variable.
	//
	// Parameters:
	//   - varName: the WGSL variable name
	//
	// Returns:
	//   - uint32: the binding index
	//   - bool: false if no binding declares the variable
	BindingFromVarName(varName string) (uint32, bool)
}

var _ Shader = &shader{}

// NewShader parses and validates WGSL compute source. The source must declare a @compute
// entry point, bind only group 0, and use only uniform buffers, storage buffers and storage
// textures.
//
// Parameters:
//   - key: a unique identifier for the shader, used as a label
//   - source: the WGSL source text
//
// Returns:
//   - Shader: the parsed shader
//   - error: a description of why the source cannot be used for a compute readback
func NewShader(key, source string) (Shader, error) {
	if source == "" {
		return nil, fmt.Errorf("shader %s: empty source", key)
	}
	s := &shader{
		key:      key,
		source:   source,
		varNames: make(map[uint32]string),
	}
	if err := s.parse(); err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return s, nil
}

// NewShaderFromPath reads WGSL source from disk and calls NewShader.
//
// Parameters:
//   - key: a unique identifier for the shader, used as a label
//   - path: the file path to read WGSL source from
//
// Returns:
//   - Shader: the parsed shader
//   - error: a read, parse or validation error
func NewShaderFromPath(key, path string) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader %s: failed to read source file %q: %w", key, path, err)
	}
	return NewShader(key, string(data))
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Bindings() []gpucore.BindingLayout {
	out := make([]gpucore.BindingLayout, len(s.bindings))
	copy(out, s.bindings)
	return out
}

func (s *shader) Binding(binding uint32) (gpucore.BindingLayout, bool) {
	i := sort.Search(len(s.bindings), func(i int) bool { return s.bindings[i].Binding >= binding })
	if i < len(s.bindings) && s.bindings[i].Binding == binding {
		return s.bindings[i], true
	}
	return gpucore.BindingLayout{}, false
}

func (s *shader) BindingVarName(binding uint32) string {
	return s.varNames[binding]
}

func (s *shader) BindingFromVarName(varName string) (uint32, bool) {
	for binding, name := range s.varNames {
		if name == varName {
			return binding, true
		}
	}
	return 0, false
}

// parse extracts the layout from the source text, compiles the module to confirm the text is
// valid WGSL, then checks that both views of the interface agree.
func (s *shader) parse() error {
	groups, varNames := parseBindGroupLayouts(s.source)
	for g := range groups {
		if g != 0 {
			return fmt.Errorf("%w: found group %d", ErrUnsupportedBindGroup, g)
		}
	}
	s.bindings = groups[0]
	for binding, name := range varNames[0] {
		s.varNames[uint32(binding)] = name
	}
	for _, b := range s.bindings {
		if b.Kind == gpucore.BindingKindUndefined {
			return fmt.Errorf("%w: binding %d (%s)", ErrUnsupportedBinding, b.Binding, s.varNames[b.Binding])
		}
	}

	info, err := compileModule(s.source, DefaultEntryPoint)
	if err != nil {
		return err
	}
	s.entryPoint = info.entryPoint
	s.workGroupSize = info.workgroupSize
	if s.workGroupSize[0] == 0 || s.workGroupSize[1] == 0 || s.workGroupSize[2] == 0 {
		// sizes given through override constants are not resolved by the front end
		s.workGroupSize = parseWorkgroupSize(s.source)
	}

	if parsed := parseEntryPoint(s.source); parsed == "" {
		return ErrNoComputeEntryPoint
	}
	if len(info.bindings) != len(s.bindings) {
		return fmt.Errorf("%w: compiled module binds %d resources, source declares %d",
			ErrInterfaceMismatch, len(info.bindings), len(s.bindings))
	}
	for _, b := range s.bindings {
		name, ok := info.bindings[[2]uint32{0, b.Binding}]
		if !ok || name != s.varNames[b.Binding] {
			return fmt.Errorf("%w: binding %d", ErrInterfaceMismatch, b.Binding)
		}
	}
	return nil
}
