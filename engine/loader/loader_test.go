package loader

import (
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/camera"
	"github.com/Carmen-Shannon/oxy-gltf/engine/material"
	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
	"github.com/Carmen-Shannon/oxy-gltf/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testColors = [][4]uint8{{255, 0, 0, 255}, {0, 255, 0, 128}, {0, 0, 255, 0}}

// newTestScene builds a scene with an instanced box carrying a custom matrix attribute and a
// point cloud below a transform node.
func newTestScene(t *testing.T) scene.Scene {
	t.Helper()

	sc := scene.NewScene(
		scene.WithName("demo"),
		scene.WithUnits("mm"),
		scene.WithMetadata(map[string]any{
			ExtrasKey:         map[string]any{"project": "bridge", "revision": 3.0},
			DocumentExtrasKey: map[string]any{"author": "qa"},
		}),
	)

	box := model.NewBox("box", [3]float32{1, 2, 3})
	box.Material = material.NewMaterial(material.WithName("red"), material.WithBaseColor([4]float32{1, 0, 0, 1}))
	box.Extras = map[string]any{"kind": "box", "dims": map[string]any{"x": 1.0}}
	box.VertexAttributes = map[string]*model.AttributeArray{"_frame": testFrames(t, box.VertexCount())}

	_, err := sc.AddGeometry(box, scene.WithExtras(map[string]any{"id": "n1", "visible": true}))
	require.NoError(t, err)
	_, err = sc.AddNode("box_copy", scene.WithGeometry("box"), scene.WithTransform(common.TranslationMatrix(2, 0, 0)))
	require.NoError(t, err)

	group, err := sc.AddNode("group", scene.WithTransform(common.TranslationMatrix(0, 5, 0)))
	require.NoError(t, err)
	cloud := model.NewPointCloud("cloud", [][3]float32{{0, 0, 0}, {1, 1, 1}, {2, 0, 1}}, testColors)
	_, err = sc.AddGeometry(cloud, scene.WithParent(group))
	require.NoError(t, err)

	return sc
}

// testFrames returns one translation matrix per vertex as a MAT4 attribute.
func testFrames(t *testing.T, n int) *model.AttributeArray {
	t.Helper()
	values := make([]float32, 0, 16*n)
	for i := range n {
		m := common.TranslationMatrix(float32(i), 0, 0)
		values = append(values, m[:]...)
	}
	a, err := model.NewAttribute(model.ElementMat4, values)
	require.NoError(t, err)
	return a
}

// assertTestScene checks a decoded newTestScene.
func assertTestScene(t *testing.T, sc scene.Scene) {
	t.Helper()

	assert.Equal(t, "demo", sc.Name())
	assert.Equal(t, "mm", sc.Units())
	assert.Equal(t, map[string]any{"project": "bridge", "revision": 3.0}, sc.Metadata()[ExtrasKey])
	assert.Equal(t, map[string]any{"author": "qa"}, sc.Metadata()[DocumentExtrasKey])

	assert.ElementsMatch(t, []string{"box", "cloud"}, sc.GeometryNames())
	assert.ElementsMatch(t, []string{scene.DefaultRoot, "box", "box_copy", "group", "cloud"}, sc.NodeNames())

	boxNode, ok := sc.Node("box")
	require.True(t, ok)
	assert.Equal(t, "box", boxNode.Geometry)
	assert.Equal(t, scene.DefaultRoot, boxNode.Parent)
	assert.Equal(t, map[string]any{"id": "n1", "visible": true}, boxNode.Extras)
	assert.Equal(t, common.IdentityMatrix(), boxNode.Transform)

	copyNode, ok := sc.Node("box_copy")
	require.True(t, ok)
	assert.Equal(t, "box", copyNode.Geometry)
	assert.Equal(t, common.TranslationMatrix(2, 0, 0), copyNode.Transform)

	groupNode, ok := sc.Node("group")
	require.True(t, ok)
	assert.Empty(t, groupNode.Geometry)
	assert.Equal(t, common.TranslationMatrix(0, 5, 0), groupNode.Transform)
	assert.Equal(t, []string{"cloud"}, groupNode.Children)

	box := sc.Geometry("box")
	require.NotNil(t, box)
	want := model.NewBox("box", [3]float32{1, 2, 3})
	assert.Equal(t, want.Positions, box.Positions)
	assert.Equal(t, want.Indices, box.Indices)
	assert.Equal(t, model.ModeTriangles, box.Mode)
	assert.Equal(t, map[string]any{"kind": "box", "dims": map[string]any{"x": 1.0}}, box.Extras)
	assert.Equal(t, false, box.Metadata[FromPrimitiveKey])

	require.Contains(t, box.VertexAttributes, "_frame")
	frame := box.VertexAttributes["_frame"]
	wantFrame := testFrames(t, 8)
	assert.Equal(t, wantFrame.ComponentType, frame.ComponentType)
	assert.Equal(t, wantFrame.ElementType, frame.ElementType)
	assert.Equal(t, wantFrame.Count, frame.Count)
	assert.Equal(t, wantFrame.Data, frame.Data)

	require.NotNil(t, box.Material)
	assert.Equal(t, "red", box.Material.Name())
	assert.Equal(t, [4]float32{1, 0, 0, 1}, box.Material.BaseColor())

	cloud := sc.Geometry("cloud")
	require.NotNil(t, cloud)
	assert.Equal(t, model.ModePoints, cloud.Mode)
	assert.Equal(t, testColors, cloud.Colors)
	assert.Empty(t, cloud.Indices)
	assert.Nil(t, cloud.Material)
}

func hasWarning(warnings []string, substr string) bool {
	return slices.ContainsFunc(warnings, func(w string) bool { return strings.Contains(w, substr) })
}

func TestRoundTripText(t *testing.T) {
	l := NewLoader()
	files, err := l.ExportGLTF(newTestScene(t))
	require.NoError(t, err)

	names := slices.Sorted(maps.Keys(files))
	assert.Equal(t, []string{"gltf_buffer_0.bin", "gltf_buffer_1.bin", DocumentFileName}, names)

	res, err := l.Decode(files[DocumentFileName], ContainerText, MapResolver(files))
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assertTestScene(t, res.Scene)
}

func TestRoundTripBinary(t *testing.T) {
	l := NewLoader()
	glb, err := l.ExportGLB(newTestScene(t))
	require.NoError(t, err)

	res, err := l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assertTestScene(t, res.Scene)
	require.Len(t, res.Document.Buffers, 1)
	assert.Empty(t, res.Document.Buffers[0].URI)
}

func TestRoundTripMergedBuffers(t *testing.T) {
	l := NewLoader()
	files, err := l.ExportGLTF(newTestScene(t), WithMergeBuffers(true))
	require.NoError(t, err)

	assert.Len(t, files, 2)
	assert.Contains(t, files, DocumentFileName)
	assert.Contains(t, files, "gltf_buffer.bin")

	// nil data reads the document from the resolver
	res, err := l.Decode(nil, ContainerText, MapResolver(files))
	require.NoError(t, err)
	assertTestScene(t, res.Scene)
}

func TestExportDocumentShape(t *testing.T) {
	sc := newTestScene(t)
	res, err := NewLoader(WithGenerator("test-suite")).Export(sc, ContainerText)
	require.NoError(t, err)
	doc := res.Document

	assert.Equal(t, "2.0", doc.Asset.Version)
	assert.Equal(t, "test-suite", doc.Asset.Generator)
	require.Len(t, doc.Nodes, 4)
	assert.Len(t, doc.Meshes, 2)
	assert.Len(t, doc.Materials, 1)
	assert.Empty(t, doc.Cameras)

	require.Len(t, doc.Scenes, 1)
	assert.Equal(t, []int{0, 1, 2}, doc.Scenes[0].Nodes)
	assert.Equal(t, "group", doc.Nodes[2].Name)
	assert.Equal(t, []int{3}, doc.Nodes[2].Children)
	assert.Equal(t, [3]float64{0, 5, 0}, doc.Nodes[2].Translation)
	assert.Equal(t, *doc.Nodes[0].Mesh, *doc.Nodes[1].Mesh)

	boxPrim := doc.Meshes[*doc.Nodes[0].Mesh].Primitives
	require.Len(t, boxPrim, 1)
	assert.Contains(t, boxPrim[0].Attributes, "POSITION")
	assert.Contains(t, boxPrim[0].Attributes, "_frame")
	require.NotNil(t, boxPrim[0].Indices)
	assert.Equal(t, gltf.ComponentUint, doc.Accessors[*boxPrim[0].Indices].ComponentType)
	pos := doc.Accessors[boxPrim[0].Attributes["POSITION"]]
	assert.Equal(t, []float64{-0.5, -1, -1.5}, pos.Min)
	assert.Equal(t, []float64{0.5, 1, 1.5}, pos.Max)

	cloudPrim := doc.Meshes[*doc.Nodes[3].Mesh].Primitives
	require.Len(t, cloudPrim, 1)
	assert.Equal(t, gltf.PrimitivePoints, cloudPrim[0].Mode)
	assert.Nil(t, cloudPrim[0].Indices)
	colors := doc.Accessors[cloudPrim[0].Attributes["COLOR_0"]]
	assert.Equal(t, gltf.ComponentUbyte, colors.ComponentType)
	assert.Equal(t, gltf.AccessorVec4, colors.Type)
	assert.True(t, colors.Normalized)

	extras, ok := doc.Scenes[0].Extras.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mm", extras[UnitsKey])
	assert.Equal(t, "bridge", extras["project"])

	// the document never aliases scene state
	extras["project"] = "changed"
	assert.Equal(t, "bridge", sc.Metadata()[ExtrasKey].(map[string]any)["project"])
}

func TestExportExtrasOption(t *testing.T) {
	sc := newTestScene(t)
	res, err := NewLoader().Export(sc, ContainerBinary,
		WithExtras(map[string]any{"project": "override"}),
		WithExtras(map[string]any{"batch": "b1"}),
	)
	require.NoError(t, err)

	extras := res.Document.Scenes[0].Extras.(map[string]any)
	assert.Equal(t, "override", extras["project"])
	assert.Equal(t, "b1", extras["batch"])
	assert.Equal(t, 3.0, extras["revision"])
	assert.Equal(t, "bridge", sc.Metadata()[ExtrasKey].(map[string]any)["project"])
}

func TestCustomAttributeNaming(t *testing.T) {
	sc := scene.NewScene()
	g := model.NewBox("box", [3]float32{1, 1, 1})
	density, err := model.NewAttribute(model.ElementScalar, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	weights, err := model.NewAttribute(model.ElementVec4, make([]uint16, 32))
	require.NoError(t, err)
	g.VertexAttributes = map[string]*model.AttributeArray{"density": density, "WEIGHTS_0": weights}
	_, err = sc.AddGeometry(g)
	require.NoError(t, err)

	l := NewLoader()
	res, err := l.Export(sc, ContainerBinary)
	require.NoError(t, err)
	attrs := res.Document.Meshes[0].Primitives[0].Attributes
	assert.Contains(t, attrs, "_density")
	assert.Contains(t, attrs, "WEIGHTS_0")
	assert.NotContains(t, attrs, "density")
	assert.Equal(t, map[string]any{AttributeNamesKey: map[string]any{"_density": "density"}},
		res.Document.Meshes[0].Primitives[0].Extras)

	decoded, err := l.Decode(res.GLB, ContainerBinary, nil)
	require.NoError(t, err)
	got := decoded.Scene.Geometry("box").VertexAttributes
	require.Contains(t, got, "density")
	assert.NotContains(t, got, "_density")
	assert.Equal(t, density.Data, got["density"].Data)
	require.Contains(t, got, "WEIGHTS_0")
	assert.Equal(t, model.ComponentUint16, got["WEIGHTS_0"].ComponentType)
	assert.Equal(t, model.ElementVec4, got["WEIGHTS_0"].ElementType)
}

func TestAttributeNamesIgnoresForeignEntries(t *testing.T) {
	names := gltfAttributeNames(map[string]any{AttributeNamesKey: map[string]any{
		"_density": "density",
		"_speed":   "POSITION",
		"_mass":    7,
	}})
	assert.Equal(t, map[string]string{"_density": "density"}, names)
	assert.Nil(t, gltfAttributeNames(nil))
	assert.Nil(t, gltfAttributeNames(map[string]any{FromPrimitiveKey: true}))
}

func TestExportMaterialDedupe(t *testing.T) {
	sc := scene.NewScene()
	for i := range 3 {
		g := model.NewBox("box", [3]float32{float32(i + 1), 1, 1})
		g.Material = material.NewMaterial(
			material.WithName(strings.Repeat("m", i+1)),
			material.WithBaseColor([4]float32{0.2, 0.4, 0.6, 1}),
		)
		_, err := sc.AddGeometry(g)
		require.NoError(t, err)
	}

	l := NewLoader()
	res, err := l.Export(sc, ContainerText)
	require.NoError(t, err)
	assert.Len(t, res.Document.Materials, 1)
	assert.Len(t, res.Document.Meshes, 3)
	assert.LessOrEqual(t, len(res.Document.Buffers), 3)

	merged, err := l.Export(sc, ContainerText, WithMergeBuffers(true))
	require.NoError(t, err)
	assert.Len(t, merged.Document.Buffers, 1)
	assert.Len(t, merged.Files, 2)
}

func TestInstancedGeometryAllocatesOnce(t *testing.T) {
	sc := scene.NewScene()
	_, err := sc.AddGeometry(model.NewBox("a", [3]float32{1, 1, 1}))
	require.NoError(t, err)
	// same arrays under another geometry name dedupe to the same accessors
	_, err = sc.AddGeometry(model.NewBox("b", [3]float32{1, 1, 1}))
	require.NoError(t, err)

	res, err := NewLoader().Export(sc, ContainerText)
	require.NoError(t, err)
	assert.Len(t, res.Document.Meshes, 2)
	assert.Len(t, res.Document.Buffers, 1)
	assert.Len(t, res.Document.Accessors, 2)
}

// newPartsScene builds one box whose triangles are split over two materials.
func newPartsScene(t *testing.T) scene.Scene {
	t.Helper()
	g := model.NewBox("parts", [3]float32{1, 1, 1})
	red := material.NewMaterial(material.WithName("red"), material.WithBaseColor([4]float32{1, 0, 0, 1}))
	blue := material.NewMaterial(material.WithName("blue"), material.WithBaseColor([4]float32{0, 0, 1, 1}))
	g.Groups = []model.PrimitiveGroup{
		{Start: 0, Count: 18, Material: red},
		{Start: 18, Count: 18, Material: blue},
	}

	sc := scene.NewScene()
	_, err := sc.AddGeometry(g)
	require.NoError(t, err)
	return sc
}

func TestMultiPrimitiveExport(t *testing.T) {
	l := NewLoader()
	res, err := l.Export(newPartsScene(t), ContainerBinary)
	require.NoError(t, err)

	require.Len(t, res.Document.Meshes, 1)
	prims := res.Document.Meshes[0].Primitives
	require.Len(t, prims, 2)
	assert.Len(t, res.Document.Materials, 2)
	for _, p := range prims {
		assert.Equal(t, map[string]any{FromPrimitiveKey: true}, p.Extras)
		assert.Equal(t, prims[0].Attributes["POSITION"], p.Attributes["POSITION"])
		require.NotNil(t, p.Indices)
		assert.Equal(t, 18, res.Document.Accessors[*p.Indices].Count)
	}

	flat, err := l.Export(newPartsScene(t), ContainerBinary, WithMergePrimitives(true))
	require.NoError(t, err)
	flatPrims := flat.Document.Meshes[0].Primitives
	require.Len(t, flatPrims, 1)
	assert.Nil(t, flatPrims[0].Extras)
	assert.Equal(t, 36, flat.Document.Accessors[*flatPrims[0].Indices].Count)
	assert.Len(t, flat.Document.Materials, 1)
	assert.Equal(t, "red", flat.Document.Materials[0].Name)
}

func TestMultiPrimitiveDecodeSplit(t *testing.T) {
	l := NewLoader()
	glb, err := l.ExportGLB(newPartsScene(t))
	require.NoError(t, err)

	res, err := l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	sc := res.Scene

	assert.Equal(t, []string{"parts_0", "parts_1"}, sc.GeometryNames())
	parent, ok := sc.Node("parts")
	require.True(t, ok)
	assert.Empty(t, parent.Geometry)
	assert.Equal(t, []string{"parts_0", "parts_1"}, parent.Children)

	box := model.NewBox("parts", [3]float32{1, 1, 1})
	for i, name := range []string{"parts_0", "parts_1"} {
		g := sc.Geometry(name)
		require.NotNil(t, g)
		assert.Equal(t, true, g.Metadata[FromPrimitiveKey])
		assert.Equal(t, 8, g.VertexCount())
		assert.Equal(t, box.Indices[i*18:(i+1)*18], g.Indices)

		n, ok := sc.Node(name)
		require.True(t, ok)
		assert.Equal(t, name, n.Geometry)
	}
	assert.Equal(t, "red", sc.Geometry("parts_0").Material.Name())
	assert.Equal(t, "blue", sc.Geometry("parts_1").Material.Name())
}

func TestMultiPrimitiveDecodeMerged(t *testing.T) {
	l := NewLoader()
	glb, err := l.ExportGLB(newPartsScene(t))
	require.NoError(t, err)

	res, err := l.Decode(glb, ContainerBinary, nil, WithDecodeMergePrimitives(true))
	require.NoError(t, err)
	sc := res.Scene

	assert.Equal(t, []string{"parts"}, sc.GeometryNames())
	g := sc.Geometry("parts")
	require.NotNil(t, g)
	assert.Equal(t, false, g.Metadata[FromPrimitiveKey])
	assert.Equal(t, 16, g.VertexCount())
	require.Len(t, g.Indices, 36)

	box := model.NewBox("parts", [3]float32{1, 1, 1})
	want := slices.Clone(box.Indices[:18])
	for _, idx := range box.Indices[18:] {
		want = append(want, idx+8)
	}
	assert.Equal(t, want, g.Indices)

	require.Len(t, g.Groups, 2)
	assert.Equal(t, 0, g.Groups[0].Start)
	assert.Equal(t, 18, g.Groups[1].Start)
	assert.Equal(t, "red", g.Groups[0].Material.Name())
	assert.Equal(t, "blue", g.Groups[1].Material.Name())

	n, ok := sc.Node("parts")
	require.True(t, ok)
	assert.Equal(t, "parts", n.Geometry)
	assert.Empty(t, n.Children)
}

func TestCameraExport(t *testing.T) {
	l := NewLoader()
	sc := scene.NewScene()
	_, err := sc.AddGeometry(model.NewBox("box", [3]float32{1, 1, 1}))
	require.NoError(t, err)

	res, err := l.Export(sc, ContainerBinary)
	require.NoError(t, err)
	assert.Empty(t, res.Document.Cameras)

	sc.SetCamera(camera.NewCamera(
		camera.WithName("main"),
		camera.WithFov(0.75),
		camera.WithAspect(1.5),
		camera.WithNear(0.5),
		camera.WithFar(250),
	))
	sc.SetCameraNode("box")

	res, err = l.Export(sc, ContainerBinary)
	require.NoError(t, err)
	require.Len(t, res.Document.Cameras, 1)
	require.Len(t, res.Document.Nodes, 1)
	require.NotNil(t, res.Document.Nodes[0].Camera)
	assert.Equal(t, 0, *res.Document.Nodes[0].Camera)

	decoded, err := l.Decode(res.GLB, ContainerBinary, nil)
	require.NoError(t, err)
	require.True(t, decoded.Scene.HasCamera())
	assert.Equal(t, "box", decoded.Scene.CameraNode())
	cam := decoded.Scene.Camera()
	assert.Equal(t, "main", cam.Name())
	assert.Equal(t, float32(0.75), cam.Fov())
	assert.Equal(t, float32(1.5), cam.Aspect())
	assert.Equal(t, float32(0.5), cam.Near())
	assert.Equal(t, float32(250), cam.Far())
}

func TestCameraMaterializedOnAccess(t *testing.T) {
	l := NewLoader()
	sc := scene.NewScene()
	_, err := sc.AddGeometry(model.NewBox("box", [3]float32{1, 1, 1}))
	require.NoError(t, err)

	// reading the camera materializes a default one
	sc.Camera()

	res, err := l.Export(sc, ContainerBinary)
	require.NoError(t, err)
	require.Len(t, res.Document.Cameras, 1)
	require.Len(t, res.Document.Nodes, 2)
	assert.Equal(t, scene.DefaultCameraNode, res.Document.Nodes[1].Name)
	assert.Equal(t, []int{0, 1}, res.Document.Scenes[0].Nodes)

	decoded, err := l.Decode(res.GLB, ContainerBinary, nil)
	require.NoError(t, err)
	assert.True(t, decoded.Scene.HasCamera())
	assert.Equal(t, scene.DefaultCameraNode, decoded.Scene.CameraNode())
	assert.Contains(t, decoded.Scene.NodeNames(), scene.DefaultCameraNode)
}

func TestTreePostprocessor(t *testing.T) {
	l := NewLoader()
	calls := 0
	pp := TreePostprocessorFunc(func(doc *gltf.Document) error {
		calls++
		doc.ExtensionsUsed = append(doc.ExtensionsUsed, "EXT_oxy_test")
		doc.Extensions = gltf.Extensions{"EXT_oxy_test": map[string]any{"v": 1.0}}
		return nil
	})

	glb, err := l.ExportGLB(newTestScene(t), WithTreePostprocessor(pp))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	res, err := l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"EXT_oxy_test"}, res.Document.ExtensionsUsed)
	assert.Contains(t, res.Document.Extensions, "EXT_oxy_test")

	failing := TreePostprocessorFunc(func(*gltf.Document) error { return errors.New("boom") })
	out, err := l.Export(newTestScene(t), ContainerBinary, WithTreePostprocessor(failing))
	assert.ErrorContains(t, err, "boom")
	assert.Nil(t, out)
}

func TestStrictExport(t *testing.T) {
	l := NewLoader()
	_, err := l.Export(newTestScene(t), ContainerBinary, WithStrictExport(true))
	require.NoError(t, err)
	_, err = l.Export(newTestScene(t), ContainerText, WithStrictExport(true))
	require.NoError(t, err)

	breakIt := WithTreePostprocessor(TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Nodes[0].Mesh = common.Ptr(42)
		doc.Accessors[0].Count = 0
		doc.BufferViews[0].ByteOffset = 2
		return nil
	}))

	res, err := l.Export(newTestScene(t), ContainerBinary, breakIt, WithStrictExport(true))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.GreaterOrEqual(t, len(verr.Violations), 3)

	// non-strict exports do not look
	_, err = l.Export(newTestScene(t), ContainerBinary, breakIt)
	assert.NoError(t, err)

	strict := NewLoader(WithStrict(true))
	_, err = strict.Export(newTestScene(t), ContainerBinary, breakIt)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = strict.Export(newTestScene(t), ContainerBinary, breakIt, WithStrictExport(false))
	assert.NoError(t, err)
}

func TestDecodeDuplicateNodeNames(t *testing.T) {
	l := NewLoader()
	rename := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Nodes[1].Name = doc.Nodes[0].Name
		return nil
	})
	glb, err := l.ExportGLB(newTestScene(t), WithTreePostprocessor(rename))
	require.NoError(t, err)

	res, err := l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{scene.DefaultRoot, "box", "box_1", "group", "cloud"}, res.Scene.NodeNames())
	assert.True(t, hasWarning(res.Warnings, "duplicate node name"))

	n, ok := res.Scene.Node("box_1")
	require.True(t, ok)
	assert.Equal(t, "box", n.Geometry)
}

func TestDecodeSharedChildKeepsFirstParent(t *testing.T) {
	l := NewLoader()
	share := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Nodes[0].Children = append(doc.Nodes[0].Children, 3)
		return nil
	})
	glb, err := l.ExportGLB(newTestScene(t), WithTreePostprocessor(share))
	require.NoError(t, err)

	res, err := l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	cloud, ok := res.Scene.Node("cloud")
	require.True(t, ok)
	assert.Equal(t, "box", cloud.Parent)
	assert.Empty(t, res.Scene.Children("group"))
	assert.True(t, hasWarning(res.Warnings, "several parents"))
}

func TestDecodeWithoutScenes(t *testing.T) {
	l := NewLoader()
	drop := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Scenes = nil
		doc.Scene = nil
		return nil
	})
	glb, err := l.ExportGLB(newTestScene(t), WithTreePostprocessor(drop))
	require.NoError(t, err)

	res, err := l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{scene.DefaultRoot, "box", "box_copy", "group", "cloud"}, res.Scene.NodeNames())
	assert.Empty(t, res.Scene.Units())
}

func TestDecodeRejectsCorruptGLB(t *testing.T) {
	l := NewLoader()
	glb, err := l.ExportGLB(newTestScene(t))
	require.NoError(t, err)

	badMagic := slices.Clone(glb)
	badMagic[0] = 'x'
	res, err := l.Decode(badMagic, ContainerBinary, nil)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Nil(t, res)

	res, err = l.Decode(append(slices.Clone(glb), 0, 0, 0, 0), ContainerBinary, nil)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Nil(t, res)
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	l := NewLoader()

	res, err := l.Decode([]byte("{not json"), ContainerText, nil)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Nil(t, res)

	oldVersion := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Asset.Version = "1.0"
		return nil
	})
	glb, err := l.ExportGLB(newTestScene(t), WithTreePostprocessor(oldVersion))
	require.NoError(t, err)
	_, err = l.Decode(glb, ContainerBinary, nil)
	assert.ErrorIs(t, err, ErrFormat)

	badIndex := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Nodes[0].Mesh = common.Ptr(9)
		return nil
	})
	glb, err = l.ExportGLB(newTestScene(t), WithTreePostprocessor(badIndex))
	require.NoError(t, err)
	_, err = l.Decode(glb, ContainerBinary, nil)
	assert.ErrorIs(t, err, ErrFormat)

	overflow := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Accessors[0].Count += 100
		return nil
	})
	glb, err = l.ExportGLB(newTestScene(t), WithTreePostprocessor(overflow))
	require.NoError(t, err)
	_, err = l.Decode(glb, ContainerBinary, nil)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecodeRejectsWrappingAccessorCount(t *testing.T) {
	l := NewLoader()
	// 2^61 elements overflow the byte length in 64 bits
	huge := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Accessors[0].Count = 2305843009213693952
		return nil
	})
	glb, err := l.ExportGLB(newTestScene(t), WithTreePostprocessor(huge))
	require.NoError(t, err)

	var res *ImportResult
	assert.NotPanics(t, func() {
		res, err = l.Decode(glb, ContainerBinary, nil)
	})
	assert.ErrorIs(t, err, ErrFormat)
	assert.Nil(t, res)

	viewless := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Accessors[0].BufferView = nil
		doc.Accessors[0].Count = 2305843009213693952
		return nil
	})
	glb, err = l.ExportGLB(newTestScene(t), WithTreePostprocessor(viewless))
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		res, err = l.Decode(glb, ContainerBinary, nil)
	})
	assert.ErrorIs(t, err, ErrFormat)
	assert.Nil(t, res)
}

func TestDecodeMissingBuffer(t *testing.T) {
	l := NewLoader()
	files, err := l.ExportGLTF(newTestScene(t))
	require.NoError(t, err)
	delete(files, "gltf_buffer_1.bin")

	res, err := l.Decode(files[DocumentFileName], ContainerText, MapResolver(files))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrResolution)
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "gltf_buffer_1.bin", rerr.Name)
}

func TestDecodeIgnoresUnreferencedBuffer(t *testing.T) {
	l := NewLoader()
	extra := TreePostprocessorFunc(func(doc *gltf.Document) error {
		doc.Buffers = append(doc.Buffers, &gltf.Buffer{URI: "unused.bin", ByteLength: 4})
		return nil
	})
	files, err := l.ExportGLTF(newTestScene(t), WithTreePostprocessor(extra))
	require.NoError(t, err)

	res, err := l.Decode(files[DocumentFileName], ContainerText, MapResolver(files))
	require.NoError(t, err)
	assert.True(t, hasWarning(res.Warnings, "unreferenced buffer"))
	assertTestScene(t, res.Scene)
}

func TestTexturesRoundTrip(t *testing.T) {
	sampler := common.DefaultSamplerStagingData()
	sampler.AddressModeU = wgpu.AddressModeClampToEdge
	sampler.MagFilter = wgpu.FilterModeNearest

	sc := scene.NewScene()
	g := model.NewBox("box", [3]float32{1, 1, 1})
	g.Material = material.NewMaterial(material.WithDiffuseTexture(&common.ImportedTexture{
		Name:        "albedo",
		Data:        testPNG,
		SamplerData: sampler,
	}))
	_, err := sc.AddGeometry(g)
	require.NoError(t, err)

	l := NewLoader()

	files, err := l.ExportGLTF(sc)
	require.NoError(t, err)
	assert.Equal(t, testPNG, files["gltf_image_0.png"])
	res, err := l.Decode(files[DocumentFileName], ContainerText, MapResolver(files))
	require.NoError(t, err)
	tex := res.Scene.Geometry("box").Material.DiffuseTexture()
	require.NotNil(t, tex)
	assert.Equal(t, "gltf_image_0.png", tex.URI)
	assert.Equal(t, testPNG, tex.Data)
	assert.Equal(t, "image/png", tex.MimeType)
	assert.Equal(t, wgpu.AddressModeClampToEdge, tex.SamplerData.AddressModeU)
	assert.Equal(t, wgpu.AddressModeRepeat, tex.SamplerData.AddressModeV)
	assert.Equal(t, wgpu.FilterModeNearest, tex.SamplerData.MagFilter)

	glb, err := l.ExportGLB(sc)
	require.NoError(t, err)
	res, err = l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	tex = res.Scene.Geometry("box").Material.DiffuseTexture()
	require.NotNil(t, tex)
	assert.Empty(t, tex.URI)
	assert.Equal(t, "albedo", tex.Name)
	assert.Equal(t, testPNG, tex.Data)
	assert.Equal(t, "image/png", tex.MimeType)
}

func TestMergedTextExportEmbedsImages(t *testing.T) {
	sc := scene.NewScene()
	g := model.NewBox("box", [3]float32{1, 1, 1})
	g.Material = material.NewMaterial(material.WithDiffuseTexture(&common.ImportedTexture{
		Name: "albedo",
		Data: testPNG,
	}))
	_, err := sc.AddGeometry(g)
	require.NoError(t, err)

	l := NewLoader()
	res, err := l.Export(sc, ContainerText, WithMergeBuffers(true))
	require.NoError(t, err)
	assert.Len(t, res.Files, 2)
	assert.Contains(t, res.Files, DocumentFileName)
	assert.Contains(t, res.Files, "gltf_buffer.bin")
	require.Len(t, res.Document.Images, 1)
	assert.Empty(t, res.Document.Images[0].URI)
	assert.NotNil(t, res.Document.Images[0].BufferView)

	decoded, err := l.Decode(res.Files[DocumentFileName], ContainerText, MapResolver(res.Files))
	require.NoError(t, err)
	tex := decoded.Scene.Geometry("box").Material.DiffuseTexture()
	require.NotNil(t, tex)
	assert.Equal(t, testPNG, tex.Data)
	assert.Equal(t, "image/png", tex.MimeType)
}

func TestDecodeSharesEqualMaterials(t *testing.T) {
	sc := scene.NewScene()
	for i, name := range []string{"a", "b"} {
		g := model.NewBox(name, [3]float32{float32(i + 1), 1, 1})
		g.Material = material.NewMaterial(
			material.WithName("paint_"+name),
			material.WithBaseColor([4]float32{0.8, 0.1, 0.1, 1}),
		)
		_, err := sc.AddGeometry(g)
		require.NoError(t, err)
	}

	l := NewLoader()
	glb, err := l.ExportGLB(sc)
	require.NoError(t, err)

	res, err := l.Decode(glb, ContainerBinary, nil)
	require.NoError(t, err)
	g1, g2 := res.Scene.Geometry("a"), res.Scene.Geometry("b")
	require.NotNil(t, g1)
	require.NotNil(t, g2)
	require.NotNil(t, g1.Material)
	assert.Same(t, g1.Material, g2.Material)
}

func TestSceneWithoutExtrasOmitsMember(t *testing.T) {
	sc := scene.NewScene()
	_, err := sc.AddGeometry(model.NewBox("box", [3]float32{1, 1, 1}))
	require.NoError(t, err)

	res, err := NewLoader().Export(sc, ContainerText)
	require.NoError(t, err)
	require.Len(t, res.Document.Scenes, 1)
	assert.Nil(t, res.Document.Scenes[0].Extras)
	assert.NotContains(t, string(res.Files[DocumentFileName]), `"extras": null`)
}

func TestEmptyGeometryExportsBareNode(t *testing.T) {
	sc := scene.NewScene()
	_, err := sc.AddGeometry(&model.Geometry{Name: "empty"})
	require.NoError(t, err)

	l := NewLoader()
	res, err := l.Export(sc, ContainerBinary)
	require.NoError(t, err)
	require.Len(t, res.Document.Nodes, 1)
	assert.Nil(t, res.Document.Nodes[0].Mesh)
	assert.Empty(t, res.Document.Meshes)
	assert.Empty(t, res.Document.Buffers)

	decoded, err := l.Decode(res.GLB, ContainerBinary, nil)
	require.NoError(t, err)
	n, ok := decoded.Scene.Node("empty")
	require.True(t, ok)
	assert.Empty(t, n.Geometry)
}

func TestRootTransformIsFolded(t *testing.T) {
	sc := scene.NewScene()
	require.NoError(t, sc.SetTransform(scene.DefaultRoot, common.TranslationMatrix(1, 0, 0)))
	_, err := sc.AddGeometry(model.NewBox("box", [3]float32{1, 1, 1}), scene.WithTransform(common.TranslationMatrix(0, 2, 0)))
	require.NoError(t, err)

	res, err := NewLoader().Export(sc, ContainerBinary)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{1, 2, 0}, res.Document.Nodes[0].Translation)
}

func TestLoadFromDisk(t *testing.T) {
	l := NewLoader()
	sc := newTestScene(t)
	dir := t.TempDir()

	files, err := l.ExportGLTF(sc)
	require.NoError(t, err)
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}

	glb, err := l.ExportGLB(sc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.glb"), glb, 0o644))

	archive, err := ArchiveFiles(files)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.zip"), archive, 0o644))

	for _, name := range []string{DocumentFileName, "demo.glb", "demo.zip"} {
		t.Run(name, func(t *testing.T) {
			res, err := l.Load(filepath.Join(dir, name))
			require.NoError(t, err)
			assertTestScene(t, res.Scene)
		})
	}

	_, err = l.Load(filepath.Join(dir, "model.obj"))
	assert.Error(t, err)
	_, err = l.Load(filepath.Join(dir, "missing.glb"))
	assert.Error(t, err)
}

func TestExportNilScene(t *testing.T) {
	_, err := NewLoader().Export(nil, ContainerBinary)
	assert.Error(t, err)
}

func TestConcurrentExports(t *testing.T) {
	l := NewLoader()
	scenes := make([]scene.Scene, 4)
	for i := range scenes {
		scenes[i] = newTestScene(t)
	}

	var wg sync.WaitGroup
	results := make([][]byte, len(scenes))
	errs := make([]error, len(scenes))
	for i, sc := range scenes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = l.ExportGLB(sc)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}
