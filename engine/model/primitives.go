package model

// boxCorners are the unit cube corners, indexed by the bit pattern (x, y, z).
var boxCorners = [8][3]float32{
	{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {-0.5, 0.5, -0.5}, {0.5, 0.5, -0.5},
	{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {-0.5, 0.5, 0.5}, {0.5, 0.5, 0.5},
}

// boxFaces lists the 12 outward-wound triangles of the cube.
var boxFaces = []uint32{
	0, 2, 1, 1, 2, 3, // -z
	4, 5, 6, 5, 7, 6, // +z
	0, 1, 4, 1, 5, 4, // -y
	2, 6, 3, 3, 6, 7, // +y
	0, 4, 2, 2, 4, 6, // -x
	1, 3, 5, 3, 7, 5, // +x
}

// NewBox creates an axis-aligned box centred on the origin with shared corner vertices.
//
// Parameters:
//   - name: the geometry name
//   - extents: the edge lengths along x, y and z
//
// Returns:
//   - *Geometry: the box geometry
func NewBox(name string, extents [3]float32) *Geometry {
	positions := make([][3]float32, len(boxCorners))
	for i, c := range boxCorners {
		positions[i] = [3]float32{c[0] * extents[0], c[1] * extents[1], c[2] * extents[2]}
	}
	indices := make([]uint32, len(boxFaces))
	copy(indices, boxFaces)

	return &Geometry{
		Name:      name,
		Positions: positions,
		Indices:   indices,
		Mode:      ModeTriangles,
	}
}
