package model

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-gltf/engine/material"
	"github.com/chewxy/math32"
)

var (
	errGeometryShape  = errors.New("vertex arrays have inconsistent lengths")
	errIndexRange     = errors.New("index references a vertex out of range")
	errGroupRange     = errors.New("primitive group exceeds the index buffer")
	errTriangleStride = errors.New("triangle indices are not a multiple of three")
)

// PrimitiveMode is the topology used to interpret a geometry's vertices.
type PrimitiveMode int

const (
	// ModeTriangles draws indexed (or sequential) triangle lists.
	ModeTriangles PrimitiveMode = iota
	// ModePoints draws every vertex as a point. Point clouds carry no indices.
	ModePoints
)

// PrimitiveGroup is a contiguous range of a geometry's index buffer drawn with one material.
// Geometries loaded with several material assignments carry one group per assignment.
type PrimitiveGroup struct {
	// Start is the first index of the range.
	Start int

	// Count is the number of indices in the range.
	Count int

	// Material is the material for this range. When nil the geometry material is used.
	Material material.Material
}

// Geometry is a single mesh as held by the scene graph: vertex arrays, topology, material
// assignment, custom attributes and free-form metadata.
type Geometry struct {
	// Name is the geometry identifier, unique within a scene.
	Name string

	// Positions are the vertex positions. Every other per-vertex array matches its length.
	Positions [][3]float32

	// Normals are optional per-vertex normals.
	Normals [][3]float32

	// TexCoords are optional per-vertex UVs.
	TexCoords [][2]float32

	// Colors are optional per-vertex RGBA8 colors.
	Colors [][4]uint8

	// Indices are triangle indices. Empty for point clouds and for sequential triangle lists.
	Indices []uint32

	// Mode is the primitive topology.
	Mode PrimitiveMode

	// Groups split the index buffer into material ranges. Empty means a single range.
	Groups []PrimitiveGroup

	// Material is the geometry-wide material.
	Material material.Material

	// VertexAttributes are custom per-vertex arrays keyed by attribute name.
	VertexAttributes map[string]*AttributeArray

	// Extras is an application-defined bag that is written to the mesh extras on export.
	Extras map[string]any

	// Metadata holds loader-derived facts about the geometry (e.g. "from_gltf_primitive").
	Metadata map[string]any
}

// VertexCount returns the number of vertices in the geometry.
func (g *Geometry) VertexCount() int {
	return len(g.Positions)
}

// Bounds calculates the axis-aligned bounding box of the geometry's positions.
//
// Returns:
//   - [3]float32: the minimum corner
//   - [3]float32: the maximum corner
func (g *Geometry) Bounds() ([3]float32, [3]float32) {
	if len(g.Positions) == 0 {
		return [3]float32{}, [3]float32{}
	}

	bmin := [3]float32{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32}
	bmax := [3]float32{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32}
	for _, p := range g.Positions {
		for i := 0; i < 3; i++ {
			bmin[i] = math32.Min(bmin[i], p[i])
			bmax[i] = math32.Max(bmax[i], p[i])
		}
	}
	return bmin, bmax
}

// Validate checks the internal consistency of the geometry's arrays.
//
// Returns:
//   - error: error describing the first inconsistency found
func (g *Geometry) Validate() error {
	n := len(g.Positions)
	if (g.Normals != nil && len(g.Normals) != n) ||
		(g.TexCoords != nil && len(g.TexCoords) != n) ||
		(g.Colors != nil && len(g.Colors) != n) {
		return fmt.Errorf("geometry %q: %w", g.Name, errGeometryShape)
	}
	for name, attr := range g.VertexAttributes {
		if attr.Count != n {
			return fmt.Errorf("geometry %q attribute %q: %w", g.Name, name, errGeometryShape)
		}
		if err := attr.Validate(); err != nil {
			return fmt.Errorf("geometry %q attribute %q: %w", g.Name, name, err)
		}
	}
	for _, idx := range g.Indices {
		if int(idx) >= n {
			return fmt.Errorf("geometry %q index %d: %w", g.Name, idx, errIndexRange)
		}
	}
	if g.Mode == ModeTriangles && len(g.Indices)%3 != 0 {
		return fmt.Errorf("geometry %q: %w", g.Name, errTriangleStride)
	}
	for i, grp := range g.Groups {
		if grp.Start < 0 || grp.Count < 0 || grp.Start+grp.Count > len(g.Indices) {
			return fmt.Errorf("geometry %q group %d: %w", g.Name, i, errGroupRange)
		}
	}
	return nil
}

// NewPointCloud creates a point geometry from positions and optional colors.
//
// Parameters:
//   - name: the geometry name
//   - positions: the point positions
//   - colors: optional per-point colors, nil for none
//
// Returns:
//   - *Geometry: the point cloud geometry
func NewPointCloud(name string, positions [][3]float32, colors [][4]uint8) *Geometry {
	return &Geometry{
		Name:      name,
		Positions: positions,
		Colors:    colors,
		Mode:      ModePoints,
	}
}
