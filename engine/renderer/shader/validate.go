package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

var (
	// ErrNoComputeEntryPoint is returned when the source declares no @compute function.
	ErrNoComputeEntryPoint = errors.New("shader: no @compute entry point")

	// ErrUnsupportedBindGroup is returned for resources declared outside bind group 0.
	ErrUnsupportedBindGroup = errors.New("shader: only bind group 0 is supported")

	// ErrUnsupportedBinding is returned for resources a compute readback cannot bind.
	ErrUnsupportedBinding = errors.New("shader: unsupported binding type")

	// ErrInterfaceMismatch is returned when the compiled module disagrees with the parsed declarations.
	ErrInterfaceMismatch = errors.New("shader: interface mismatch")
)

// moduleInfo is the part of the compiled IR the shader cross-checks against its parsed layout.
type moduleInfo struct {
	entryPoint    string
	workgroupSize [3]uint32
	bindings      map[[2]uint32]string
}

// compileModule runs the WGSL front end over the source, validates the resulting IR and
// extracts the compute entry point and resource bindings. The preferred entry point name
// wins when several compute entry points exist.
//
// Parameters:
//   - source: WGSL source text
//   - preferred: the entry point name to select when present
//
// Returns:
//   - moduleInfo: entry point, workgroup size and bindings as the compiler sees them
//   - error: parse, lowering or validation failure, or ErrNoComputeEntryPoint
func compileModule(source, preferred string) (moduleInfo, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return moduleInfo{}, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return moduleInfo{}, err
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return moduleInfo{}, err
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, v.Error())
		}
		return moduleInfo{}, fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}

	info := moduleInfo{bindings: make(map[[2]uint32]string)}
	found := false
	for _, ep := range module.EntryPoints {
		if ep.Stage != ir.StageCompute {
			continue
		}
		if !found || ep.Name == preferred {
			info.entryPoint = ep.Name
			info.workgroupSize = ep.Workgroup
			found = true
		}
	}
	if !found {
		return moduleInfo{}, ErrNoComputeEntryPoint
	}

	for _, gv := range module.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		info.bindings[[2]uint32{gv.Binding.Group, gv.Binding.Binding}] = gv.Name
	}
	return info, nil
}
