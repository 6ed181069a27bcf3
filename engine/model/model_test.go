package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttributeFloat(t *testing.T) {
	attr, err := NewAttribute(ElementVec2, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, ComponentFloat32, attr.ComponentType)
	assert.Equal(t, 3, attr.Count)
	assert.Equal(t, 8, attr.ElementSize())
	assert.Len(t, attr.Data, 24)

	vals, err := attr.Float32s()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, vals)

	_, err = attr.Uint32s()
	assert.ErrorIs(t, err, errAttributeComponent)
}

func TestNewAttributeIntegers(t *testing.T) {
	tests := []struct {
		name string
		make func() (*AttributeArray, error)
		ct   ComponentType
		size int
	}{
		{"uint8", func() (*AttributeArray, error) { return NewAttribute(ElementScalar, []uint8{1, 2, 3}) }, ComponentUint8, 3},
		{"uint16", func() (*AttributeArray, error) { return NewAttribute(ElementScalar, []uint16{1, 2, 3}) }, ComponentUint16, 6},
		{"uint32", func() (*AttributeArray, error) { return NewAttribute(ElementScalar, []uint32{1, 2, 3}) }, ComponentUint32, 12},
		{"int16", func() (*AttributeArray, error) { return NewAttribute(ElementScalar, []int16{-1, 2, 3}) }, ComponentInt16, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr, err := tt.make()
			require.NoError(t, err)
			assert.Equal(t, tt.ct, attr.ComponentType)
			assert.Len(t, attr.Data, tt.size)
			assert.Equal(t, 3, attr.Count)
		})
	}

	attr, err := NewAttribute(ElementScalar, []uint16{7, 65535})
	require.NoError(t, err)
	vals, err := attr.Uint32s()
	require.NoError(t, err)
	assert.Equal(t, []uint32{7, 65535}, vals)
}

func TestNewAttributeShapeMismatch(t *testing.T) {
	_, err := NewAttribute(ElementMat4, make([]float32, 17))
	assert.ErrorIs(t, err, errAttributeShape)
}

func TestAttributeEqual(t *testing.T) {
	a, err := NewAttribute(ElementMat4, make([]float32, 32))
	require.NoError(t, err)
	b, err := NewAttribute(ElementMat4, make([]float32, 32))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	b.Data[0] = 1
	assert.False(t, a.Equal(b))

	c, err := NewAttribute(ElementMat4, make([]float32, 32))
	require.NoError(t, err)
	c.Normalized = true
	assert.False(t, a.Equal(c))
	assert.True(t, (*AttributeArray)(nil).Equal(nil))
}

func TestGeometryBounds(t *testing.T) {
	g := NewBox("box", [3]float32{2, 4, 6})
	bmin, bmax := g.Bounds()
	assert.Equal(t, [3]float32{-1, -2, -3}, bmin)
	assert.Equal(t, [3]float32{1, 2, 3}, bmax)

	empty := &Geometry{}
	bmin, bmax = empty.Bounds()
	assert.Equal(t, [3]float32{}, bmin)
	assert.Equal(t, [3]float32{}, bmax)
}

func TestGeometryValidate(t *testing.T) {
	assert.NoError(t, NewBox("box", [3]float32{1, 1, 1}).Validate())

	bad := NewBox("box", [3]float32{1, 1, 1})
	bad.Indices[0] = 99
	assert.ErrorIs(t, bad.Validate(), errIndexRange)

	shape := NewBox("box", [3]float32{1, 1, 1})
	shape.Normals = make([][3]float32, 2)
	assert.ErrorIs(t, shape.Validate(), errGeometryShape)

	group := NewBox("box", [3]float32{1, 1, 1})
	group.Groups = []PrimitiveGroup{{Start: 30, Count: 12}}
	assert.ErrorIs(t, group.Validate(), errGroupRange)

	attr, err := NewAttribute(ElementScalar, []float32{1, 2})
	require.NoError(t, err)
	custom := NewBox("box", [3]float32{1, 1, 1})
	custom.VertexAttributes = map[string]*AttributeArray{"_weight": attr}
	assert.ErrorIs(t, custom.Validate(), errGeometryShape)
}

func TestPointCloud(t *testing.T) {
	pc := NewPointCloud("pts", [][3]float32{{0, 0, 0}, {1, 1, 1}}, nil)
	assert.Equal(t, ModePoints, pc.Mode)
	assert.Equal(t, 2, pc.VertexCount())
	assert.NoError(t, pc.Validate())
}
