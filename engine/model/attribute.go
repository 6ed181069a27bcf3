package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	errAttributeShape     = errors.New("attribute value count is not a multiple of the element size")
	errAttributeComponent = errors.New("attribute component type does not match the requested read")
	errAttributeLength    = errors.New("attribute data length does not match count")
)

// ComponentType is the numeric type of a single attribute component.
type ComponentType int

const (
	ComponentFloat32 ComponentType = iota
	ComponentInt8
	ComponentUint8
	ComponentInt16
	ComponentUint16
	ComponentUint32
)

// Size returns the byte size of one component.
func (c ComponentType) Size() int {
	switch c {
	case ComponentInt8, ComponentUint8:
		return 1
	case ComponentInt16, ComponentUint16:
		return 2
	default:
		return 4
	}
}

// ElementType is the shape of one attribute element.
type ElementType int

const (
	ElementScalar ElementType = iota
	ElementVec2
	ElementVec3
	ElementVec4
	ElementMat2
	ElementMat3
	ElementMat4
)

// Components returns the number of components in one element.
func (e ElementType) Components() int {
	switch e {
	case ElementVec2:
		return 2
	case ElementVec3:
		return 3
	case ElementVec4, ElementMat2:
		return 4
	case ElementMat3:
		return 9
	case ElementMat4:
		return 16
	default:
		return 1
	}
}

// AttributeArray is a typed per-vertex array stored as tightly packed little-endian bytes.
// It carries custom vertex attributes through export and import without losing the
// numeric type or shape.
type AttributeArray struct {
	// ComponentType is the numeric type of each component.
	ComponentType ComponentType

	// ElementType is the element shape (scalar, vector or matrix).
	ElementType ElementType

	// Normalized marks integer data that maps onto [0, 1] or [-1, 1].
	Normalized bool

	// Count is the number of elements.
	Count int

	// Data holds Count * ElementSize() bytes in little-endian order.
	Data []byte
}

// attributeComponent constrains the Go types that map onto a ComponentType.
type attributeComponent interface {
	float32 | int8 | uint8 | int16 | uint16 | uint32
}

// NewAttribute packs a flat slice of components into an AttributeArray.
//
// Parameters:
//   - elem: the element shape; len(values) must be a multiple of its component count
//   - values: the flat component values
//
// Returns:
//   - *AttributeArray: the packed attribute
//   - error: error if the values do not form whole elements
func NewAttribute[T attributeComponent](elem ElementType, values []T) (*AttributeArray, error) {
	n := elem.Components()
	if len(values)%n != 0 {
		return nil, fmt.Errorf("%d values for %d-component elements: %w", len(values), n, errAttributeShape)
	}

	var ct ComponentType
	switch any(values).(type) {
	case []float32:
		ct = ComponentFloat32
	case []int8:
		ct = ComponentInt8
	case []uint8:
		ct = ComponentUint8
	case []int16:
		ct = ComponentInt16
	case []uint16:
		ct = ComponentUint16
	case []uint32:
		ct = ComponentUint32
	}

	buf := new(bytes.Buffer)
	buf.Grow(len(values) * ct.Size())
	if err := binary.Write(buf, binary.LittleEndian, values); err != nil {
		return nil, fmt.Errorf("failed to pack attribute: %w", err)
	}

	return &AttributeArray{
		ComponentType: ct,
		ElementType:   elem,
		Count:         len(values) / n,
		Data:          buf.Bytes(),
	}, nil
}

// ElementSize returns the byte size of one element.
func (a *AttributeArray) ElementSize() int {
	return a.ComponentType.Size() * a.ElementType.Components()
}

// Validate checks that Data holds exactly Count elements.
//
// Returns:
//   - error: error if the byte length is inconsistent
func (a *AttributeArray) Validate() error {
	if want := a.Count * a.ElementSize(); len(a.Data) != want {
		return fmt.Errorf("have %d bytes, want %d: %w", len(a.Data), want, errAttributeLength)
	}
	return nil
}

// Float32s decodes a float attribute into a flat component slice.
//
// Returns:
//   - []float32: the flat component values
//   - error: error if the attribute is not float data
func (a *AttributeArray) Float32s() ([]float32, error) {
	if a.ComponentType != ComponentFloat32 {
		return nil, errAttributeComponent
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	out := make([]float32, len(a.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[i*4:]))
	}
	return out, nil
}

// Uint32s decodes an unsigned integer attribute into a flat component slice, widening as needed.
//
// Returns:
//   - []uint32: the flat component values
//   - error: error if the attribute is not unsigned integer data
func (a *AttributeArray) Uint32s() ([]uint32, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	size := a.ComponentType.Size()
	out := make([]uint32, len(a.Data)/size)
	switch a.ComponentType {
	case ComponentUint8:
		for i := range out {
			out[i] = uint32(a.Data[i])
		}
	case ComponentUint16:
		for i := range out {
			out[i] = uint32(binary.LittleEndian.Uint16(a.Data[i*2:]))
		}
	case ComponentUint32:
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(a.Data[i*4:])
		}
	default:
		return nil, errAttributeComponent
	}
	return out, nil
}

// Equal reports whether two attributes have the same type, shape and bytes.
func (a *AttributeArray) Equal(b *AttributeArray) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ComponentType == b.ComponentType &&
		a.ElementType == b.ElementType &&
		a.Normalized == b.Normalized &&
		a.Count == b.Count &&
		bytes.Equal(a.Data, b.Data)
}
