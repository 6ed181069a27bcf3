package loader

import (
	_ "embed"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/qmuntal/gltf"
	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var schemaSource []byte

// loadSchema parses the embedded schema once and expands every local reference.
var loadSchema = sync.OnceValues(func() (map[string]any, error) {
	var root map[string]any
	if err := yaml.Unmarshal(schemaSource, &root); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	defs, _ := root["$defs"].(map[string]any)
	delete(root, "$defs")
	expanded, err := expandRefs(root, defs, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return expanded.(map[string]any), nil
})

// Schema returns the glTF document schema with every "$ref" expanded in place and the "$defs"
// table removed, so it can be consumed by validators that do not follow references.
// Each call returns a fresh copy.
//
// Returns:
//   - map[string]any: the inlined schema
//   - error: error if the embedded schema cannot be loaded
func Schema() (map[string]any, error) {
	s, err := loadSchema()
	if err != nil {
		return nil, err
	}
	return deepCopyValue(s).(map[string]any), nil
}

// expandRefs returns a copy of node with local "#/$defs/<name>" references replaced by the
// referenced definition. Sibling keywords next to a $ref win over the definition's.
func expandRefs(node any, defs map[string]any, visiting map[string]bool) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		if ref, ok := v["$ref"].(string); ok {
			key, found := strings.CutPrefix(ref, "#/$defs/")
			def, exists := defs[key].(map[string]any)
			if !found || !exists {
				return nil, fmt.Errorf("schema: unresolvable reference %q", ref)
			}
			if visiting[key] {
				return nil, fmt.Errorf("schema: cyclic reference %q", ref)
			}
			visiting[key] = true
			resolved, err := expandRefs(def, defs, visiting)
			delete(visiting, key)
			if err != nil {
				return nil, err
			}
			for k, rv := range resolved.(map[string]any) {
				out[k] = rv
			}
		}
		for k, child := range v {
			if k == "$ref" {
				continue
			}
			expanded, err := expandRefs(child, defs, visiting)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			expanded, err := expandRefs(child, defs, visiting)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopyValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopyValue(child)
		}
		return out
	default:
		return v
	}
}

// Validate checks a document against the schema and against the binary layout rules
// (references in range, accessors inside their views, views inside their buffers, aligned and
// non-overlapping views). Every problem is reported, not just the first.
//
// Parameters:
//   - doc: the document to check
//
// Returns:
//   - []Violation: all violations, empty when the document is valid
//   - error: error if the document cannot be serialized or the schema cannot be loaded
func Validate(doc *gltf.Document) ([]Violation, error) {
	schema, err := loadSchema()
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to reparse document: %w", err)
	}

	v := &validator{}
	v.check("", tree, schema)
	v.checkLayout(doc)
	return v.violations, nil
}

type validator struct {
	violations []Violation
}

func (v *validator) add(path, format string, args ...any) {
	v.violations = append(v.violations, Violation{Path: pointer(path), Reason: fmt.Sprintf(format, args...)})
}

// pointer maps the empty path onto the document root.
func pointer(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// check validates value against schema, recursing into properties and items.
func (v *validator) check(path string, value any, schema map[string]any) {
	if t, ok := schema["type"].(string); ok && !matchesType(value, t) {
		v.add(path, "expected %s, got %s", t, typeName(value))
		return
	}

	if enum, ok := schema["enum"].([]any); ok {
		if !slices.ContainsFunc(enum, func(e any) bool { return equalScalar(e, value) }) {
			v.add(path, "value %v is not one of %v", value, enum)
		}
	}

	if minimum, ok := toFloat(schema["minimum"]); ok {
		if n, isNum := toFloat(value); isNum && n < minimum {
			v.add(path, "value %v is below the minimum %v", n, minimum)
		}
	}

	switch val := value.(type) {
	case []any:
		if n, ok := toFloat(schema["minItems"]); ok && float64(len(val)) < n {
			v.add(path, "array has %d items, needs at least %v", len(val), n)
		}
		if n, ok := toFloat(schema["maxItems"]); ok && float64(len(val)) > n {
			v.add(path, "array has %d items, allows at most %v", len(val), n)
		}
		if items, ok := schema["items"].(map[string]any); ok {
			for i, item := range val {
				v.check(path+"/"+strconv.Itoa(i), item, items)
			}
		}
	case map[string]any:
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				if name, _ := r.(string); name != "" {
					if _, present := val[name]; !present {
						v.add(path, "missing required property %q", name)
					}
				}
			}
		}
		props, _ := schema["properties"].(map[string]any)
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child := path + "/" + k
			if ps, ok := props[k].(map[string]any); ok {
				v.check(child, val[k], ps)
				continue
			}
			switch extra := schema["additionalProperties"].(type) {
			case bool:
				if !extra {
					v.add(child, "property %q is not allowed", k)
				}
			case map[string]any:
				v.check(child, val[k], extra)
			}
		}
	}
}

func matchesType(value any, t string) bool {
	switch t {
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := toFloat(value)
		return ok
	case "integer":
		n, ok := toFloat(value)
		return ok && n == math.Trunc(n)
	default:
		return true
	}
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		if _, ok := toFloat(value); ok {
			return "number"
		}
		return fmt.Sprintf("%T", value)
	}
}

// toFloat converts the numeric types produced by the YAML and JSON decoders.
func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func equalScalar(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return a == b
}

// --- Layout Checks ---

func (v *validator) checkLayout(doc *gltf.Document) {
	inRange := func(path string, idx *int, n int, what string) {
		if idx != nil && (*idx < 0 || *idx >= n) {
			v.add(path, "%s index %d out of range [0,%d)", what, *idx, n)
		}
	}

	inRange("/scene", doc.Scene, len(doc.Scenes), "scene")
	for i, s := range doc.Scenes {
		for j, n := range s.Nodes {
			inRange(fmt.Sprintf("/scenes/%d/nodes/%d", i, j), &n, len(doc.Nodes), "node")
		}
	}

	for i, n := range doc.Nodes {
		p := fmt.Sprintf("/nodes/%d", i)
		inRange(p+"/mesh", n.Mesh, len(doc.Meshes), "mesh")
		inRange(p+"/camera", n.Camera, len(doc.Cameras), "camera")
		inRange(p+"/skin", n.Skin, len(doc.Skins), "skin")
		for j, c := range n.Children {
			inRange(fmt.Sprintf("%s/children/%d", p, j), &c, len(doc.Nodes), "node")
		}
	}

	for i, m := range doc.Meshes {
		for j, prim := range m.Primitives {
			p := fmt.Sprintf("/meshes/%d/primitives/%d", i, j)
			for name, a := range prim.Attributes {
				inRange(p+"/attributes/"+name, &a, len(doc.Accessors), "accessor")
			}
			inRange(p+"/indices", prim.Indices, len(doc.Accessors), "accessor")
			inRange(p+"/material", prim.Material, len(doc.Materials), "material")
		}
	}

	for i, m := range doc.Materials {
		p := fmt.Sprintf("/materials/%d", i)
		if pbr := m.PBRMetallicRoughness; pbr != nil {
			if pbr.BaseColorTexture != nil {
				inRange(p+"/pbrMetallicRoughness/baseColorTexture/index", &pbr.BaseColorTexture.Index, len(doc.Textures), "texture")
			}
			if pbr.MetallicRoughnessTexture != nil {
				inRange(p+"/pbrMetallicRoughness/metallicRoughnessTexture/index", &pbr.MetallicRoughnessTexture.Index, len(doc.Textures), "texture")
			}
		}
		if m.NormalTexture != nil {
			inRange(p+"/normalTexture/index", m.NormalTexture.Index, len(doc.Textures), "texture")
		}
	}

	for i, t := range doc.Textures {
		inRange(fmt.Sprintf("/textures/%d/source", i), t.Source, len(doc.Images), "image")
		inRange(fmt.Sprintf("/textures/%d/sampler", i), t.Sampler, len(doc.Samplers), "sampler")
	}
	for i, img := range doc.Images {
		inRange(fmt.Sprintf("/images/%d/bufferView", i), img.BufferView, len(doc.BufferViews), "bufferView")
	}

	for i, a := range doc.Accessors {
		p := fmt.Sprintf("/accessors/%d", i)
		if a.BufferView == nil {
			continue
		}
		inRange(p+"/bufferView", a.BufferView, len(doc.BufferViews), "bufferView")
		if *a.BufferView < 0 || *a.BufferView >= len(doc.BufferViews) || a.Count == 0 {
			continue
		}
		view := doc.BufferViews[*a.BufferView]
		elem := gltfElementSize(a.ComponentType, a.Type)
		stride := view.ByteStride
		if stride == 0 {
			stride = elem
		}
		if !gltfAccessorFits(a.ByteOffset, a.Count, stride, elem, view.ByteLength) {
			v.add(p, "%d elements of %d bytes at offset %d (stride %d) do not fit a %d-byte view",
				a.Count, elem, a.ByteOffset, stride, view.ByteLength)
		}
	}

	byBuffer := make(map[int][]*gltf.BufferView)
	for i, view := range doc.BufferViews {
		p := fmt.Sprintf("/bufferViews/%d", i)
		if view.Buffer < 0 || view.Buffer >= len(doc.Buffers) {
			v.add(p+"/buffer", "buffer index %d out of range [0,%d)", view.Buffer, len(doc.Buffers))
			continue
		}
		if view.ByteOffset%4 != 0 {
			v.add(p+"/byteOffset", "offset %d is not 4-byte aligned", view.ByteOffset)
		}
		if end := view.ByteOffset + view.ByteLength; end > doc.Buffers[view.Buffer].ByteLength {
			v.add(p, "view ends at %d past its buffer length %d", end, doc.Buffers[view.Buffer].ByteLength)
		}
		byBuffer[view.Buffer] = append(byBuffer[view.Buffer], view)
	}

	for b, views := range byBuffer {
		slices.SortFunc(views, func(x, y *gltf.BufferView) int { return x.ByteOffset - y.ByteOffset })
		for i := 1; i < len(views); i++ {
			if prev := views[i-1]; prev.ByteOffset+prev.ByteLength > views[i].ByteOffset {
				v.add(fmt.Sprintf("/buffers/%d", b), "views at offsets %d and %d overlap", prev.ByteOffset, views[i].ByteOffset)
			}
		}
	}
	slices.SortStableFunc(v.violations, func(x, y Violation) int { return strings.Compare(x.Path, y.Path) })
}
