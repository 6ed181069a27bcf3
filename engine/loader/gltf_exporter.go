package loader

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/material"
	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
	"github.com/Carmen-Shannon/oxy-gltf/engine/scene"
	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	"github.com/qmuntal/gltf"
)

// ExportResult is the outcome of a successful export.
type ExportResult struct {
	// Document is the assembled document, after post-processing.
	Document *gltf.Document

	// Files holds the text form: DocumentFileName plus buffer and image files. Nil for binary exports.
	Files map[string][]byte

	// GLB holds the binary form. Nil for text exports.
	GLB []byte
}

// gltfExporterImpl is the implementation of the gltfExporter interface.
type gltfExporterImpl struct {
	logger    *slog.Logger
	generator string
}

// gltfExporter defines the interface for turning a scene graph into a glTF document and its container.
type gltfExporter interface {
	// Export assembles a document from the scene and serializes it into the requested container.
	//
	// Parameters:
	//   - sc: the scene to export
	//   - kind: the target container
	//   - cfg: the export options
	//
	// Returns:
	//   - *ExportResult: the document and its serialized form
	//   - error: error if assembly, post-processing, validation or serialization fails
	Export(sc scene.Scene, kind ContainerKind, cfg *exportConfig) (*ExportResult, error)
}

var _ gltfExporter = &gltfExporterImpl{}

// newGLTFExporter creates a new glTF exporter.
//
// Parameters:
//   - logger: the logger receiving packing statistics
//   - generator: the asset generator string written to every document
//
// Returns:
//   - gltfExporter: the exporter
func newGLTFExporter(logger *slog.Logger, generator string) gltfExporter {
	return &gltfExporterImpl{logger: logger, generator: generator}
}

func (e *gltfExporterImpl) Export(sc scene.Scene, kind ContainerKind, cfg *exportConfig) (*ExportResult, error) {
	binaryForm := kind == ContainerBinary

	doc := &gltf.Document{Asset: gltf.Asset{Version: "2.0", Generator: e.generator}}
	packer := newBufferPacker(doc, binaryForm || cfg.mergeBuffers)
	w := &gltfSceneWriter{
		sc:        sc,
		doc:       doc,
		cfg:       cfg,
		logger:    e.logger,
		packer:    packer,
		materials: newMaterialRegistry(doc, packer, binaryForm || cfg.mergeBuffers),
		meshes:    make(map[string]int),
	}

	roots, err := w.writeNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to export scene %q: %w", sc.Name(), err)
	}
	roots = w.writeCamera(roots)

	sceneExtras, err := w.sceneExtras()
	if err != nil {
		return nil, err
	}
	doc.Scenes = []*gltf.Scene{{Name: sc.Name(), Nodes: roots, Extras: sceneExtras}}
	doc.Scene = common.Ptr(0)

	if docExtras, ok := sc.Metadata()[DocumentExtrasKey]; ok && docExtras != nil {
		if doc.Extras, err = copyExtrasValue(docExtras); err != nil {
			return nil, err
		}
	}

	files := w.materials.Files()
	bufs := packer.Buffers()
	for i, data := range bufs {
		b := &gltf.Buffer{ByteLength: len(data), Data: data}
		if !binaryForm {
			b.URI = fmt.Sprintf(gltfBufferNameFormat, i)
			if cfg.mergeBuffers {
				b.URI = gltfMergedBufferName
			}
			files[b.URI] = data
		}
		doc.Buffers = append(doc.Buffers, b)
	}

	if cfg.postprocessor != nil {
		if err := cfg.postprocessor.Process(doc); err != nil {
			return nil, fmt.Errorf("tree postprocessor failed: %w", err)
		}
	}

	if cfg.strict {
		violations, err := Validate(doc)
		if err != nil {
			return nil, err
		}
		if len(violations) > 0 {
			return nil, &ValidationError{Violations: violations}
		}
	}

	e.logger.Debug("gltf export",
		"scene", sc.Name(),
		"container", kind.String(),
		"nodes", len(doc.Nodes),
		"meshes", len(doc.Meshes),
		"materials", len(doc.Materials),
		"arrays", packer.stats.arrays,
		"arrays_deduped", packer.stats.deduped,
		"blobs", packer.stats.blobs,
		"blobs_deduped", packer.stats.blobsDeDup,
		"buffers", len(bufs),
		"bytes", packer.stats.bytes,
	)

	result := &ExportResult{Document: doc}
	if binaryForm {
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode glTF JSON: %w", err)
		}
		var bin []byte
		if len(bufs) > 0 {
			bin = bufs[0]
		}
		if result.GLB, err = FrameGLB(data, bin); err != nil {
			return nil, err
		}
		return result, nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode glTF JSON: %w", err)
	}
	files[DocumentFileName] = data
	result.Files = files
	return result, nil
}

// gltfSceneWriter holds the per-call state of one export.
type gltfSceneWriter struct {
	sc     scene.Scene
	doc    *gltf.Document
	cfg    *exportConfig
	logger *slog.Logger

	packer    *bufferPacker
	materials *materialRegistry

	// meshes maps scene geometry names to mesh indices so instanced geometry shares one mesh.
	meshes map[string]int

	nodeIndex map[string]int
}

// writeNodes emits every node below the root in breadth-first order and returns the indices of
// the root's children. The root itself is the scene frame and gets no node; a non-identity root
// transform is folded into its children.
func (w *gltfSceneWriter) writeNodes() ([]int, error) {
	root := w.sc.Root()
	rootNode, _ := w.sc.Node(root)

	var order []string
	queue := w.sc.Children(root)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)
		queue = append(queue, w.sc.Children(name)...)
	}

	w.nodeIndex = make(map[string]int, len(order))
	for i, name := range order {
		w.nodeIndex[name] = i
	}

	var roots []int
	for _, name := range order {
		n, _ := w.sc.Node(name)
		out := &gltf.Node{Name: name}

		transform := n.Transform
		if n.Parent == root {
			roots = append(roots, w.nodeIndex[name])
			if !common.IsIdentity(rootNode.Transform) {
				common.Mul4(transform[:], rootNode.Transform[:], n.Transform[:])
			}
		}
		gltfSetNodeTransform(out, transform)

		for _, c := range n.Children {
			out.Children = append(out.Children, w.nodeIndex[c])
		}

		if len(n.Extras) > 0 {
			extras, err := copyExtras(n.Extras)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", name, err)
			}
			out.Extras = extras
		}

		if n.Geometry != "" {
			mesh, ok, err := w.meshFor(n.Geometry)
			if err != nil {
				return nil, fmt.Errorf("node %q: %w", name, err)
			}
			if ok {
				out.Mesh = common.Ptr(mesh)
			}
		}

		w.doc.Nodes = append(w.doc.Nodes, out)
	}
	return roots, nil
}

// meshFor returns the mesh index of a geometry, writing the mesh on first use.
// Geometry without vertices has no mesh and reports false.
func (w *gltfSceneWriter) meshFor(geomName string) (int, bool, error) {
	if idx, ok := w.meshes[geomName]; ok {
		return idx, true, nil
	}

	g := w.sc.Geometry(geomName)
	if g == nil || g.VertexCount() == 0 {
		return 0, false, nil
	}

	w.packer.BeginSegment()

	attrs, names, err := w.writeAttributes(g)
	if err != nil {
		return 0, false, fmt.Errorf("geometry %q: %w", geomName, err)
	}

	mesh := &gltf.Mesh{Name: g.Name}
	if len(g.Extras) > 0 {
		if mesh.Extras, err = copyExtras(g.Extras); err != nil {
			return 0, false, fmt.Errorf("geometry %q: %w", geomName, err)
		}
	}

	if mesh.Primitives, err = w.writePrimitives(g, attrs, names); err != nil {
		return 0, false, fmt.Errorf("geometry %q: %w", geomName, err)
	}

	w.doc.Meshes = append(w.doc.Meshes, mesh)
	idx := len(w.doc.Meshes) - 1
	w.meshes[geomName] = idx
	return idx, true, nil
}

// writeAttributes packs the vertex arrays of a geometry and returns the shared attribute map, along
// with the original name of every custom attribute that had to be renamed.
func (w *gltfSceneWriter) writeAttributes(g *model.Geometry) (map[string]int, map[string]any, error) {
	n := g.VertexCount()
	attrs := make(map[string]int)
	names := make(map[string]any)

	add := func(name string, a *packedArray) error {
		idx, err := w.packer.AddAccessor(a)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		attrs[name] = idx
		return nil
	}

	if err := add(gltfAttrPosition, packVec3(g.Positions, gltf.TargetArrayBuffer, true)); err != nil {
		return nil, nil, err
	}
	if len(g.Normals) == n {
		if err := add(gltfAttrNormal, packVec3(g.Normals, gltf.TargetArrayBuffer, false)); err != nil {
			return nil, nil, err
		}
	}
	if len(g.TexCoords) == n {
		if err := add(gltfAttrTexCoord0, packVec2(g.TexCoords)); err != nil {
			return nil, nil, err
		}
	}
	if len(g.Colors) == n {
		if err := add(gltfAttrColor0, packColors(g.Colors)); err != nil {
			return nil, nil, err
		}
	}

	for _, name := range slices.Sorted(maps.Keys(g.VertexAttributes)) {
		a := g.VertexAttributes[name]
		if a == nil {
			continue
		}
		attr := gltfExportAttributeName(name)
		if _, taken := attrs[attr]; taken {
			w.logger.Warn("gltf export: attribute shadowed by a built-in array, skipped", "geometry", g.Name, "attribute", name)
			continue
		}
		if err := add(attr, &packedArray{
			componentType: gltfComponentFromModel(a.ComponentType),
			accessorType:  gltfAccessorFromModel(a.ElementType),
			normalized:    a.Normalized,
			count:         a.Count,
			data:          a.Data,
			target:        gltf.TargetArrayBuffer,
		}); err != nil {
			return nil, nil, err
		}
		if attr != name {
			names[attr] = name
		}
	}
	return attrs, names, nil
}

// writePrimitives emits one primitive per material group, or a single one when the geometry has no
// groups, is a point cloud or primitives are merged. Renamed attributes are recorded in each
// primitive's extras so import can restore them.
func (w *gltfSceneWriter) writePrimitives(g *model.Geometry, attrs map[string]int, names map[string]any) ([]*gltf.Primitive, error) {
	primExtras := func(split bool) any {
		if !split && len(names) == 0 {
			return nil
		}
		extras := make(map[string]any, 2)
		if split {
			extras[FromPrimitiveKey] = true
		}
		if len(names) > 0 {
			extras[AttributeNamesKey] = names
		}
		return extras
	}

	if g.Mode == model.ModePoints {
		prim := &gltf.Primitive{Attributes: attrs, Mode: gltf.PrimitivePoints, Extras: primExtras(false)}
		if err := w.setMaterial(prim, g.Material); err != nil {
			return nil, err
		}
		return []*gltf.Primitive{prim}, nil
	}

	if len(g.Groups) == 0 || w.cfg.mergePrimitives {
		prim := &gltf.Primitive{Attributes: attrs, Extras: primExtras(false)}
		if len(g.Indices) > 0 {
			idx, err := w.packer.AddAccessor(packIndices(g.Indices))
			if err != nil {
				return nil, fmt.Errorf("indices: %w", err)
			}
			prim.Indices = common.Ptr(idx)
		}
		mat := g.Material
		for _, grp := range g.Groups {
			if mat != nil {
				break
			}
			mat = grp.Material
		}
		if err := w.setMaterial(prim, mat); err != nil {
			return nil, err
		}
		return []*gltf.Primitive{prim}, nil
	}

	prims := make([]*gltf.Primitive, 0, len(g.Groups))
	for i, grp := range g.Groups {
		prim := &gltf.Primitive{
			Attributes: attrs,
			Extras:     primExtras(true),
		}
		if grp.Count > 0 {
			idx, err := w.packer.AddAccessor(packIndices(g.Indices[grp.Start : grp.Start+grp.Count]))
			if err != nil {
				return nil, fmt.Errorf("group %d indices: %w", i, err)
			}
			prim.Indices = common.Ptr(idx)
		}
		if err := w.setMaterial(prim, common.Coalesce(grp.Material, g.Material)); err != nil {
			return nil, err
		}
		prims = append(prims, prim)
	}
	return prims, nil
}

// setMaterial interns mat and points the primitive at it. A nil material leaves the primitive without one.
func (w *gltfSceneWriter) setMaterial(prim *gltf.Primitive, mat material.Material) error {
	if mat == nil {
		return nil
	}
	idx, err := w.materials.Intern(mat)
	if err != nil {
		return err
	}
	prim.Material = common.Ptr(idx)
	return nil
}

// writeCamera emits the scene camera when one has been materialized. The camera goes on the node
// named by the scene, or on a new top-level node when no such node exists.
func (w *gltfSceneWriter) writeCamera(roots []int) []int {
	if !w.sc.HasCamera() {
		return roots
	}

	cam := w.sc.Camera()
	persp := &gltf.Perspective{
		Yfov:  float64(cam.Fov()),
		Znear: float64(cam.Near()),
	}
	if cam.Aspect() > 0 {
		persp.AspectRatio = common.Ptr(float64(cam.Aspect()))
	}
	if cam.Far() > 0 {
		persp.Zfar = common.Ptr(float64(cam.Far()))
	}
	w.doc.Cameras = append(w.doc.Cameras, &gltf.Camera{Name: cam.Name(), Perspective: persp})
	camIdx := len(w.doc.Cameras) - 1

	name := common.Coalesce(w.sc.CameraNode(), scene.DefaultCameraNode)
	if idx, ok := w.nodeIndex[name]; ok {
		w.doc.Nodes[idx].Camera = common.Ptr(camIdx)
		return roots
	}

	node := &gltf.Node{Name: name, Camera: common.Ptr(camIdx)}
	gltfSetNodeTransform(node, common.IdentityMatrix())
	w.doc.Nodes = append(w.doc.Nodes, node)
	w.nodeIndex[name] = len(w.doc.Nodes) - 1
	return append(roots, len(w.doc.Nodes)-1)
}

// sceneExtras builds scenes[0].extras: the scene's stored extras, overlaid by the export option
// extras, plus the declared unit. It returns an untyped nil when there is nothing to write so
// the scene serializes without an extras member.
func (w *gltfSceneWriter) sceneExtras() (any, error) {
	merged := make(map[string]any)
	if stored, ok := w.sc.Metadata()[ExtrasKey].(map[string]any); ok {
		maps.Copy(merged, stored)
	}
	maps.Copy(merged, w.cfg.extras)
	if units := w.sc.Units(); units != "" {
		merged[UnitsKey] = units
	}
	if len(merged) == 0 {
		return nil, nil
	}
	extras, err := copyExtras(merged)
	if err != nil {
		return nil, err
	}
	return extras, nil
}

// gltfSetNodeTransform writes a local transform the compact way: nothing for identity,
// translation for pure translations, the full matrix otherwise.
func gltfSetNodeTransform(n *gltf.Node, m [16]float32) {
	n.Matrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	n.Rotation = [4]float64{0, 0, 0, 1}
	n.Scale = [3]float64{1, 1, 1}

	switch {
	case common.IsIdentity(m):
	case common.IsTranslationOnly(m):
		t := common.MatrixTranslation(m)
		n.Translation = [3]float64{float64(t[0]), float64(t[1]), float64(t[2])}
	default:
		for i, v := range m {
			n.Matrix[i] = float64(v)
		}
	}
}

// copyExtras deep-copies an extras bag so the document never aliases scene state.
func copyExtras(src map[string]any) (map[string]any, error) {
	dst := make(map[string]any, len(src))
	if err := copier.CopyWithOption(&dst, &src, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy extras: %w", err)
	}
	return dst, nil
}

// copyExtrasValue deep-copies an extras value of any JSON shape.
func copyExtrasValue(v any) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return copyExtras(m)
	}
	return v, nil
}
