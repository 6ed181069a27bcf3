package loader

import (
	"fmt"
	"maps"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
	"github.com/qmuntal/gltf"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser    gltfParser
	materials gltfMaterialExtractor
}

// gltfMeshExtractor defines the interface for extracting mesh data from a parsed glTF document.
// It converts raw glTF accessor data into model.Geometry values.
type gltfMeshExtractor interface {
	// ExtractMesh extracts the geometries of a mesh, one per supported primitive.
	// Meshes with more than one primitive name their geometries "<mesh>_<i>" and flag them
	// with the from_gltf_primitive metadata key. With merge set, all primitives are concatenated
	// into one geometry carrying a material group per source primitive.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh in the document
	//   - merge: true to merge all primitives into one geometry
	//
	// Returns:
	//   - []*model.Geometry: the extracted geometries, possibly empty when every primitive was skipped
	//   - error: error if extraction fails
	ExtractMesh(meshIndex int, merge bool) ([]*model.Geometry, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

// newGLTFMeshExtractor creates a new mesh extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//   - materials: the extractor resolving primitive materials
//
// Returns:
//   - gltfMeshExtractor: the mesh extractor
func newGLTFMeshExtractor(parser gltfParser, materials gltfMaterialExtractor) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser, materials: materials}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int, merge bool) ([]*model.Geometry, error) {
	doc := e.parser.Document()
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return nil, formatErrorf("mesh index %d out of range", meshIndex)
	}

	mesh := doc.Meshes[meshIndex]
	name := common.Coalesce(mesh.Name, fmt.Sprintf("geometry_%d", meshIndex))
	split := len(mesh.Primitives) > 1
	extras, _ := mesh.Extras.(map[string]any)

	var geoms []*model.Geometry
	for i, prim := range mesh.Primitives {
		g, err := e.extractPrimitive(prim, meshIndex, i)
		if err != nil {
			return nil, fmt.Errorf("mesh %q primitive %d: %w", name, i, err)
		}
		if g == nil {
			continue
		}

		g.Name = name
		if split {
			g.Name = fmt.Sprintf("%s_%d", name, i)
		}
		g.Extras = maps.Clone(extras)
		g.Metadata = map[string]any{FromPrimitiveKey: split}
		geoms = append(geoms, g)
	}

	if merge && len(geoms) > 1 {
		merged, ok := mergeGeometries(name, geoms)
		if !ok {
			e.parser.Warn("mesh %q: primitives with mixed topology kept separate", name)
			return geoms, nil
		}
		merged.Extras = maps.Clone(extras)
		merged.Metadata = map[string]any{FromPrimitiveKey: false}
		return []*model.Geometry{merged}, nil
	}

	return geoms, nil
}

// extractPrimitive extracts a single primitive as a Geometry. Unsupported primitives return nil.
func (e *gltfMeshExtractorImpl) extractPrimitive(prim *gltf.Primitive, meshIndex, primIndex int) (*model.Geometry, error) {
	doc := e.parser.Document()
	g := &model.Geometry{}

	switch prim.Mode {
	case gltf.PrimitiveTriangles:
		g.Mode = model.ModeTriangles
	case gltf.PrimitivePoints:
		g.Mode = model.ModePoints
	default:
		e.parser.Warn("mesh %d primitive %d: skipping unsupported mode %v", meshIndex, primIndex, prim.Mode)
		return nil, nil
	}

	posIdx, ok := prim.Attributes[gltfAttrPosition]
	if !ok {
		e.parser.Warn("mesh %d primitive %d: skipping primitive without POSITION", meshIndex, primIndex)
		return nil, nil
	}

	var err error
	if g.Positions, err = e.parser.ReadVec3Accessor(posIdx); err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}

	renamed := gltfAttributeNames(prim.Extras)
	for attr, accIdx := range prim.Attributes {
		if accIdx < 0 || accIdx >= len(doc.Accessors) {
			return nil, formatErrorf("attribute %s: accessor index %d out of range", attr, accIdx)
		}
		acc := doc.Accessors[accIdx]
		if acc.Count != len(g.Positions) {
			return nil, formatErrorf("attribute %s has %d elements, POSITION has %d", attr, acc.Count, len(g.Positions))
		}

		switch {
		case attr == gltfAttrPosition:
		case attr == gltfAttrNormal && acc.Type == gltf.AccessorVec3 && acc.ComponentType == gltf.ComponentFloat:
			if g.Normals, err = e.parser.ReadVec3Accessor(accIdx); err != nil {
				return nil, fmt.Errorf("failed to read normals: %w", err)
			}
		case attr == gltfAttrTexCoord0 && acc.Type == gltf.AccessorVec2 && acc.ComponentType == gltf.ComponentFloat:
			if g.TexCoords, err = e.parser.ReadVec2Accessor(accIdx); err != nil {
				return nil, fmt.Errorf("failed to read texcoords: %w", err)
			}
		case attr == gltfAttrColor0:
			if g.Colors, err = e.parser.ReadColorAccessor(accIdx); err != nil {
				return nil, fmt.Errorf("failed to read colors: %w", err)
			}
		default:
			// custom semantics and core ones stored in a layout the fixed fields cannot hold
			a, err := e.parser.ReadAttribute(accIdx)
			if err != nil {
				return nil, fmt.Errorf("failed to read attribute %s: %w", attr, err)
			}
			if g.VertexAttributes == nil {
				g.VertexAttributes = make(map[string]*model.AttributeArray)
			}
			g.VertexAttributes[common.Coalesce(renamed[attr], attr)] = a
		}
	}

	if prim.Indices != nil && g.Mode == model.ModeTriangles {
		if g.Indices, err = e.parser.ReadIndicesAccessor(*prim.Indices); err != nil {
			return nil, fmt.Errorf("failed to read indices: %w", err)
		}
		for _, idx := range g.Indices {
			if int(idx) >= len(g.Positions) {
				return nil, formatErrorf("index %d references vertex out of range (%d vertices)", idx, len(g.Positions))
			}
		}
		if len(g.Indices)%3 != 0 {
			return nil, formatErrorf("triangle index count %d is not a multiple of 3", len(g.Indices))
		}
	}

	if prim.Material != nil {
		if g.Material, err = e.materials.ExtractMaterial(*prim.Material); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// mergeGeometries concatenates geometries of one topology into a single geometry. Optional arrays
// survive only when every part has them. Each triangle part becomes one material group.
// Returns false when the parts mix topologies.
func mergeGeometries(name string, parts []*model.Geometry) (*model.Geometry, bool) {
	mode := parts[0].Mode
	for _, p := range parts {
		if p.Mode != mode {
			return nil, false
		}
	}

	out := &model.Geometry{Name: name, Mode: mode, Material: parts[0].Material}
	all := func(has func(g *model.Geometry) bool) bool {
		for _, p := range parts {
			if !has(p) {
				return false
			}
		}
		return true
	}
	keepNormals := all(func(g *model.Geometry) bool { return g.Normals != nil })
	keepUVs := all(func(g *model.Geometry) bool { return g.TexCoords != nil })
	keepColors := all(func(g *model.Geometry) bool { return g.Colors != nil })

	var attrNames []string
	for attr, a := range parts[0].VertexAttributes {
		if all(func(g *model.Geometry) bool {
			b, ok := g.VertexAttributes[attr]
			return ok && b.ComponentType == a.ComponentType && b.ElementType == a.ElementType && b.Normalized == a.Normalized
		}) {
			attrNames = append(attrNames, attr)
		}
	}

	for _, p := range parts {
		base := uint32(len(out.Positions))
		out.Positions = append(out.Positions, p.Positions...)
		if keepNormals {
			out.Normals = append(out.Normals, p.Normals...)
		}
		if keepUVs {
			out.TexCoords = append(out.TexCoords, p.TexCoords...)
		}
		if keepColors {
			out.Colors = append(out.Colors, p.Colors...)
		}
		for _, attr := range attrNames {
			if out.VertexAttributes == nil {
				out.VertexAttributes = make(map[string]*model.AttributeArray, len(attrNames))
			}
			src := p.VertexAttributes[attr]
			dst, ok := out.VertexAttributes[attr]
			if !ok {
				dst = &model.AttributeArray{ComponentType: src.ComponentType, ElementType: src.ElementType, Normalized: src.Normalized}
				out.VertexAttributes[attr] = dst
			}
			dst.Data = append(dst.Data, src.Data...)
			dst.Count += src.Count
		}

		if mode != model.ModeTriangles {
			continue
		}
		start := len(out.Indices)
		if p.Indices == nil {
			for i := range p.Positions {
				out.Indices = append(out.Indices, base+uint32(i))
			}
		} else {
			for _, idx := range p.Indices {
				out.Indices = append(out.Indices, base+idx)
			}
		}
		out.Groups = append(out.Groups, model.PrimitiveGroup{
			Start:    start,
			Count:    len(out.Indices) - start,
			Material: p.Material,
		})
	}

	return out, true
}

// gltfAttributeNames reads the attribute rename table from primitive extras. Entries that do not
// map back onto their exported name are ignored.
func gltfAttributeNames(extras any) map[string]string {
	m, ok := extras.(map[string]any)
	if !ok {
		return nil
	}
	table, ok := m[AttributeNamesKey].(map[string]any)
	if !ok {
		return nil
	}
	names := make(map[string]string, len(table))
	for attr, v := range table {
		if orig, ok := v.(string); ok && orig != attr && gltfExportAttributeName(orig) == attr {
			names[attr] = orig
		}
	}
	return names
}
