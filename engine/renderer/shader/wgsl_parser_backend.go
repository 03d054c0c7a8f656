package shader

import (
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-readback/common"
	"github.com/Carmen-Shannon/oxy-readback/engine/gpucore"
)

// wgslPrimitiveLayoutMap maps WGSL scalar, vector, matrix and atomic type names to their
// byte size and alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},
	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},
	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},
	"vec2<f16>": {4, 4},
	"vec2h":     {4, 4},
	"vec4<f16>": {8, 8},
	"vec4h":     {8, 8},

	// matCxR<f32>: C columns of vecR<f32>
	"mat2x2<f32>": {16, 8},
	"mat3x3<f32>": {48, 16},
	"mat4x4<f32>": {64, 16},

	"atomic<u32>": {4, 4},
	"atomic<i32>": {4, 4},
}

// wgslStorageAccessMap maps WGSL access mode keywords to gpucore access modes
var wgslStorageAccessMap = map[string]gpucore.AccessMode{
	"write":      gpucore.AccessWrite,
	"read":       gpucore.AccessRead,
	"read_write": gpucore.AccessReadWrite,
}

// arrayElement splits array<T> or array<T, N> into its element type and optional count.
func arrayElement(typeName string) (elem string, count string, ok bool) {
	inner, found := strings.CutPrefix(typeName, "array<")
	if !found || !strings.HasSuffix(inner, ">") {
		return "", "", false
	}
	inner = strings.TrimSuffix(inner, ">")
	elem, count, _ = strings.Cut(inner, ",")
	return strings.TrimSpace(elem), strings.TrimSpace(count), true
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using primitives
// and previously computed struct layouts. A runtime-sized array resolves to one element
// stride, which is the smallest useful binding size.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "Params", "array<vec4f, 64>"
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: true if the type could be resolved
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	elem, count, ok := arrayElement(typeName)
	if !ok {
		return wgslTypeLayout{}, false
	}
	elemLayout, ok := resolveTypeLayout(elem, knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	stride := common.AlignUp(elemLayout.size, elemLayout.align)
	if count == "" {
		return wgslTypeLayout{stride, elemLayout.align}, true
	}
	n, err := strconv.ParseUint(count, 10, 64)
	if err != nil {
		return wgslTypeLayout{}, false
	}
	return wgslTypeLayout{n * stride, elemLayout.align}, true
}

// computeStructLayout computes the byte size and alignment of a single WGSL struct: each
// field sits at the next aligned offset and the total is rounded up to the largest field
// alignment. A trailing runtime-sized array contributes one element.
//
// Parameters:
//   - ps: the parsed struct whose layout to compute
//   - knownTypes: a map of already-resolved type names to their layouts
//
// Returns:
//   - wgslTypeLayout: the computed layout
//   - bool: true if all fields could be resolved
func computeStructLayout(ps parsedStruct, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	var offset uint64
	maxAlign := uint64(1)

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return wgslTypeLayout{}, false
		}
		offset = common.AlignUp(offset, fieldLayout.align) + fieldLayout.size
		maxAlign = max(maxAlign, fieldLayout.align)
	}

	return wgslTypeLayout{common.AlignUp(offset, maxAlign), maxAlign}, true
}

// computeStructSizes computes the layout of every parsed struct, iterating until no more
// structs resolve so that structs nesting other structs are handled in any order.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]wgslTypeLayout: a map from struct name to computed layout
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := append([]parsedStruct(nil), structs...)

	for len(remaining) > 0 {
		next := remaining[:0]
		for _, ps := range remaining {
			if layout, ok := computeStructLayout(ps, resolved); ok {
				resolved[ps.name] = layout
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}

	return resolved
}

// classifyResource creates a gpucore.BindingLayout from a parsed WGSL resource declaration.
// Bindings a compute readback cannot serve (samplers, sampled textures) come back with
// BindingKindUndefined.
//
// Parameters:
//   - binding: the binding index from @binding(N)
//   - addressSpace: the address space qualifier (e.g. "uniform", "storage, read_write"), empty for handle types
//   - typeName: the WGSL type string (e.g. "Params", "texture_storage_2d<rgba32float, write>")
//
// Returns:
//   - gpucore.BindingLayout: the layout entry for the resource
func classifyResource(binding uint32, addressSpace, typeName string) gpucore.BindingLayout {
	entry := gpucore.BindingLayout{Binding: binding}

	switch {
	case addressSpace == "uniform":
		entry.Kind = gpucore.BindingKindUniformBuffer
		entry.Access = gpucore.AccessRead
	case strings.HasPrefix(addressSpace, "storage"):
		entry.Kind = gpucore.BindingKindStorageBuffer
		entry.Access = gpucore.AccessRead
		if strings.Contains(addressSpace, "read_write") {
			entry.Access = gpucore.AccessReadWrite
		}
	case strings.HasPrefix(typeName, "texture_storage_"):
		classifyStorageTexture(typeName, &entry)
	}

	return entry
}

// classifyStorageTexture parses a storage texture type (e.g. "texture_storage_2d<rgba8unorm, write>")
// and populates the format and access of the entry
//
// Parameters:
//   - typeName: the full WGSL storage texture type string
//   - entry: the layout entry to populate
func classifyStorageTexture(typeName string, entry *gpucore.BindingLayout) {
	_, params := splitTypeParams(typeName)
	formatStr, accessStr, _ := strings.Cut(params, ",")

	format, ok := gpucore.ParseTextureFormat(strings.TrimSpace(formatStr))
	if !ok {
		return
	}
	entry.Kind = gpucore.BindingKindStorageTexture
	entry.Format = format
	entry.Access = gpucore.AccessWrite
	if access, ok := wgslStorageAccessMap[strings.TrimSpace(accessStr)]; ok {
		entry.Access = access
	}
}

// splitTypeParams splits a WGSL parameterized type into its base name and parameter string.
// For "texture_storage_2d<r32float, write>" returns ("texture_storage_2d", "r32float, write").
//
// Parameters:
//   - typeName: the WGSL type string to split
//
// Returns:
//   - base: the type name before the first angle bracket
//   - params: the content between angle brackets, or empty if none
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
// Block comments may be nested per the WGSL specification.
//
// Parameters:
//   - source: raw WGSL source string
//
// Returns:
//   - string: source with all comments removed
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i++
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i++
				continue
			case source[i] == '/' && source[i+1] == '/' && depth == 0:
				for i < len(source) && source[i] != '\n' {
					i++
				}
				if i < len(source) {
					sb.WriteByte('\n')
				}
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets,
// so array<T, N> stays one field type.
//
// Parameters:
//   - s: the string to split (typically the body of a WGSL struct)
//
// Returns:
//   - []string: substrings between top-level commas
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
