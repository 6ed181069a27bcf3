package loader

import (
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/camera"
	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
	"github.com/Carmen-Shannon/oxy-gltf/engine/scene"
	"github.com/qmuntal/gltf"
)

// ImportResult is the outcome of a successful decode.
type ImportResult struct {
	// Scene is the rebuilt scene graph.
	Scene scene.Scene

	// Document is the parsed document the scene was built from.
	Document *gltf.Document

	// Warnings lists the soft problems met while decoding (renamed nodes, skipped primitives,
	// ignored buffers). Every warning is also logged.
	Warnings []string
}

// gltfImporterImpl is the implementation of the gltfImporter interface.
type gltfImporterImpl struct {
	logger *slog.Logger
}

// gltfImporter defines the interface for orchestrating a full glTF/GLB decode.
// It combines the parser and all extractors to produce a scene graph.
type gltfImporter interface {
	// Import parses a document and rebuilds its default scene.
	//
	// Parameters:
	//   - document: the JSON document bytes
	//   - bin: the GLB BIN chunk, nil for the text form
	//   - resolver: the resolver for external buffers and images
	//   - merge: true to merge the primitives of every mesh into one geometry
	//
	// Returns:
	//   - *ImportResult: the decoded scene and warnings
	//   - error: error if import fails
	Import(document, bin []byte, resolver Resolver, merge bool) (*ImportResult, error)
}

var _ gltfImporter = &gltfImporterImpl{}

// newGLTFImporter creates a new glTF importer.
//
// Parameters:
//   - logger: the logger receiving decode warnings
//
// Returns:
//   - gltfImporter: the importer
func newGLTFImporter(logger *slog.Logger) gltfImporter {
	return &gltfImporterImpl{logger: logger}
}

func (imp *gltfImporterImpl) Import(document, bin []byte, resolver Resolver, merge bool) (*ImportResult, error) {
	parser := newGLTFParser(resolver, imp.logger)
	if err := parser.Parse(document, bin); err != nil {
		return nil, fmt.Errorf("failed to parse glTF document: %w", err)
	}

	materials := newGLTFMaterialExtractor(parser)
	a := &gltfSceneAssembler{
		parser: parser,
		meshes: newGLTFMeshExtractor(parser, materials),
		merge:  merge,
		scene:  scene.NewScene(),
		placed: make(map[int]*gltfMeshPlacement),
	}

	if err := a.assemble(); err != nil {
		return nil, err
	}

	return &ImportResult{
		Scene:    a.scene,
		Document: parser.Document(),
		Warnings: parser.Warnings(),
	}, nil
}

// gltfMeshPlacement caches the geometries of one mesh so every node instancing it shares them.
type gltfMeshPlacement struct {
	geoms []*model.Geometry
	// names holds the scene geometry names once the mesh has been placed the first time.
	names []string
}

// gltfSceneAssembler walks the node hierarchy of one document and fills a scene.
type gltfSceneAssembler struct {
	parser gltfParser
	meshes gltfMeshExtractor
	merge  bool

	scene  scene.Scene
	placed map[int]*gltfMeshPlacement
}

type gltfQueuedNode struct {
	index  int
	parent string
}

func (a *gltfSceneAssembler) assemble() error {
	doc := a.parser.Document()

	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			if c < 0 || c >= len(doc.Nodes) {
				return formatErrorf("node %d: child index %d out of range", i, c)
			}
		}
	}

	sceneIndex, roots, err := gltfSceneRoots(doc)
	if err != nil {
		return err
	}
	if sceneIndex >= 0 {
		a.applySceneExtras(doc.Scenes[sceneIndex])
	}
	if doc.Extras != nil {
		a.scene.Metadata()[DocumentExtrasKey] = doc.Extras
	}

	// Breadth-first so a node shared by several parents stays with the first one reached.
	visited := make([]bool, len(doc.Nodes))
	queue := make([]gltfQueuedNode, 0, len(doc.Nodes))
	for _, r := range roots {
		if visited[r] {
			continue
		}
		visited[r] = true
		queue = append(queue, gltfQueuedNode{index: r, parent: a.scene.Root()})
	}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		name, err := a.addNode(item.index, item.parent)
		if err != nil {
			return err
		}

		for _, c := range doc.Nodes[item.index].Children {
			if visited[c] {
				a.parser.Warn("node %d is reachable from several parents, kept under the first", c)
				continue
			}
			visited[c] = true
			queue = append(queue, gltfQueuedNode{index: c, parent: name})
		}
	}

	return nil
}

// gltfSceneRoots returns the index of the default scene and its root nodes. Documents without
// scenes use every node that is nobody's child, and report scene index -1.
func gltfSceneRoots(doc *gltf.Document) (int, []int, error) {
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil {
			idx = *doc.Scene
		}
		if idx < 0 || idx >= len(doc.Scenes) {
			return -1, nil, formatErrorf("scene index %d out of range", idx)
		}
		for _, r := range doc.Scenes[idx].Nodes {
			if r < 0 || r >= len(doc.Nodes) {
				return -1, nil, formatErrorf("scene %d: node index %d out of range", idx, r)
			}
		}
		return idx, doc.Scenes[idx].Nodes, nil
	}

	parented := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			parented[c] = true
		}
	}
	var roots []int
	for i, p := range parented {
		if !p {
			roots = append(roots, i)
		}
	}
	return -1, roots, nil
}

// applySceneExtras restores the scene name, units and scene-level extras.
func (a *gltfSceneAssembler) applySceneExtras(sc *gltf.Scene) {
	if sc.Name != "" {
		a.scene.SetName(sc.Name)
	}
	if sc.Extras == nil {
		return
	}

	extras, ok := sc.Extras.(map[string]any)
	if !ok {
		a.scene.Metadata()[ExtrasKey] = sc.Extras
		return
	}
	if units, ok := extras[UnitsKey].(string); ok {
		a.scene.SetUnits(units)
		delete(extras, UnitsKey)
	}
	if len(extras) > 0 {
		a.scene.Metadata()[ExtrasKey] = extras
	}
}

// addNode adds one document node under parent and returns its scene name.
func (a *gltfSceneAssembler) addNode(index int, parent string) (string, error) {
	doc := a.parser.Document()
	n := doc.Nodes[index]

	var geoms []*model.Geometry
	if n.Mesh != nil {
		var err error
		if geoms, err = a.meshGeometries(*n.Mesh); err != nil {
			return "", err
		}
	}

	requested := n.Name
	if requested == "" {
		requested = fmt.Sprintf("node_%d", index)
		if n.Mesh != nil && doc.Meshes[*n.Mesh].Name != "" {
			requested = doc.Meshes[*n.Mesh].Name
		}
	}

	extras, ok := n.Extras.(map[string]any)
	if n.Extras != nil && !ok {
		a.parser.Warn("node %q: extras are not an object, dropped", requested)
	}
	opts := []scene.NodeOption{
		scene.WithParent(parent),
		scene.WithTransform(gltfNodeTransform(n)),
		scene.WithExtras(extras),
	}

	var name string
	var err error
	switch len(geoms) {
	case 0:
		name, err = a.scene.AddNode(requested, opts...)
	case 1:
		name, err = a.placeGeometry(*n.Mesh, 0, requested, opts...)
	default:
		// One transform node carrying the node's transform, one child per primitive.
		if name, err = a.scene.AddNode(requested, opts...); err != nil {
			break
		}
		for i := range geoms {
			if _, err = a.placeGeometry(*n.Mesh, i, fmt.Sprintf("%s_%d", name, i), scene.WithParent(name)); err != nil {
				break
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to add node %q: %w", requested, err)
	}

	if name != requested {
		a.parser.Warn("duplicate node name %q renamed to %q", requested, name)
	}

	if n.Camera != nil {
		a.attachCamera(*n.Camera, name)
	}
	return name, nil
}

// meshGeometries extracts a mesh once per decode.
func (a *gltfSceneAssembler) meshGeometries(meshIndex int) ([]*model.Geometry, error) {
	if p, ok := a.placed[meshIndex]; ok {
		return p.geoms, nil
	}
	geoms, err := a.meshes.ExtractMesh(meshIndex, a.merge)
	if err != nil {
		return nil, err
	}
	a.placed[meshIndex] = &gltfMeshPlacement{geoms: geoms}
	return geoms, nil
}

// placeGeometry adds a node showing geometry i of a mesh. The first placement stores the geometry
// in the scene, later ones instance it by name.
func (a *gltfSceneAssembler) placeGeometry(meshIndex, i int, nodeName string, opts ...scene.NodeOption) (string, error) {
	p := a.placed[meshIndex]
	if p.names == nil {
		p.names = make([]string, len(p.geoms))
	}

	if p.names[i] != "" {
		return a.scene.AddNode(nodeName, append(opts, scene.WithGeometry(p.names[i]))...)
	}

	name, err := a.scene.AddGeometry(p.geoms[i], append(opts, scene.WithNodeName(nodeName))...)
	if err != nil {
		return "", err
	}
	p.names[i] = p.geoms[i].Name
	return name, nil
}

// attachCamera materializes the scene camera from a document camera. Only the first camera node is kept.
func (a *gltfSceneAssembler) attachCamera(cameraIndex int, node string) {
	doc := a.parser.Document()
	if cameraIndex < 0 || cameraIndex >= len(doc.Cameras) {
		a.parser.Warn("node %q: camera index %d out of range, ignored", node, cameraIndex)
		return
	}
	if a.scene.HasCamera() {
		a.parser.Warn("node %q: scene already has a camera, ignored", node)
		return
	}

	c := doc.Cameras[cameraIndex]
	if c.Perspective == nil {
		a.parser.Warn("camera %d: only perspective cameras are supported, ignored", cameraIndex)
		return
	}

	p := c.Perspective
	opts := []camera.CameraBuilderOption{
		camera.WithFov(float32(p.Yfov)),
		camera.WithNear(float32(p.Znear)),
	}
	if c.Name != "" {
		opts = append(opts, camera.WithName(c.Name))
	}
	if p.AspectRatio != nil {
		opts = append(opts, camera.WithAspect(float32(*p.AspectRatio)))
	}
	if p.Zfar != nil {
		opts = append(opts, camera.WithFar(float32(*p.Zfar)))
	}

	a.scene.SetCamera(camera.NewCamera(opts...))
	a.scene.SetCameraNode(node)
}

// gltfNodeTransform returns the local transform of a node. A non-identity matrix wins,
// otherwise translation, rotation and scale are composed.
func gltfNodeTransform(n *gltf.Node) [16]float32 {
	var m [16]float32
	zero := true
	for i, v := range n.Matrix {
		m[i] = float32(v)
		zero = zero && v == 0
	}
	if !zero && !common.IsIdentity(m) {
		return m
	}

	t := [3]float32{float32(n.Translation[0]), float32(n.Translation[1]), float32(n.Translation[2])}
	r := [4]float32{float32(n.Rotation[0]), float32(n.Rotation[1]), float32(n.Rotation[2]), float32(n.Rotation[3])}
	s := [3]float32{float32(n.Scale[0]), float32(n.Scale[1]), float32(n.Scale[2])}
	if r == [4]float32{} {
		r[3] = 1
	}
	if s == [3]float32{} {
		s = [3]float32{1, 1, 1}
	}
	return common.ComposeTRS(t, r, s)
}
