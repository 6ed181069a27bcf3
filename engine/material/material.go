package material

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/Carmen-Shannon/oxy-gltf/common"
)

// AlphaMode selects how the alpha channel of the base color is interpreted.
type AlphaMode int

const (
	// AlphaOpaque ignores alpha entirely.
	AlphaOpaque AlphaMode = iota
	// AlphaMask renders fully opaque or fully transparent depending on AlphaCutoff.
	AlphaMask
	// AlphaBlend blends using the alpha value.
	AlphaBlend
)

// String returns the glTF spelling of the alpha mode.
func (a AlphaMode) String() string {
	switch a {
	case AlphaMask:
		return "MASK"
	case AlphaBlend:
		return "BLEND"
	default:
		return "OPAQUE"
	}
}

// material is the implementation of the Material interface.
type material struct {
	name                     string
	baseColor                [4]float32
	metallic                 float32
	roughness                float32
	emissive                 [3]float32
	alphaMode                AlphaMode
	alphaCutoff              float32
	doubleSided              bool
	diffuseTexture           *common.ImportedTexture
	normalTexture            *common.ImportedTexture
	metallicRoughnessTexture *common.ImportedTexture
}

// Material defines the interface for a PBR metallic-roughness material.
//
// All properties are set at construction time and are read-only through this interface,
// which lets exporters intern materials by content: Hash is computed from the surface
// properties alone, so two independently built materials that look the same hash equal.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo/diffuse RGBA color of the material.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Metallic retrieves the metallic factor of the material.
	// A value of 0.0 represents a dielectric surface, 1.0 represents a fully metallic surface.
	//
	// Returns:
	//   - float32: the metallic factor
	Metallic() float32

	// Roughness retrieves the roughness factor of the material.
	// A value of 0.0 represents a perfectly smooth surface, 1.0 represents a fully rough surface.
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// Emissive retrieves the RGB emissive factor.
	//
	// Returns:
	//   - [3]float32: the emissive color
	Emissive() [3]float32

	// AlphaMode retrieves how the base color alpha is interpreted.
	//
	// Returns:
	//   - AlphaMode: the alpha mode
	AlphaMode() AlphaMode

	// AlphaCutoff retrieves the alpha threshold used in AlphaMask mode.
	//
	// Returns:
	//   - float32: the cutoff value
	AlphaCutoff() float32

	// DoubleSided reports whether back-face culling is disabled for this material.
	//
	// Returns:
	//   - bool: true if the material is double sided
	DoubleSided() bool

	// DiffuseTexture retrieves the diffuse/albedo texture data reference, or nil if none is set.
	//
	// Returns:
	//   - *common.ImportedTexture: the diffuse texture, or nil
	DiffuseTexture() *common.ImportedTexture

	// NormalTexture retrieves the normal map texture data reference, or nil if none is set.
	//
	// Returns:
	//   - *common.ImportedTexture: the normal texture, or nil
	NormalTexture() *common.ImportedTexture

	// MetallicRoughnessTexture retrieves the metallic-roughness texture data reference, or nil if none is set.
	//
	// Returns:
	//   - *common.ImportedTexture: the metallic-roughness texture, or nil
	MetallicRoughnessTexture() *common.ImportedTexture

	// Hash returns a stable structural digest of every property that affects appearance.
	// The name and object identity are excluded.
	//
	// Returns:
	//   - string: hex-encoded SHA-256 digest
	Hash() string
}

var _ Material = &material{}

// NewMaterial creates a new Material instance configured with the provided options.
// Defaults follow glTF: white base color, metallic 1, roughness 1, opaque, cutoff 0.5.
//
// Parameters:
//   - options: variadic list of MaterialBuilderOption functions to configure the material
//
// Returns:
//   - Material: a new Material instance
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{
		baseColor:   [4]float32{1, 1, 1, 1},
		metallic:    1.0,
		roughness:   1.0,
		alphaCutoff: 0.5,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *material) Name() string {
	return m.name
}

func (m *material) BaseColor() [4]float32 {
	return m.baseColor
}

func (m *material) Metallic() float32 {
	return m.metallic
}

func (m *material) Roughness() float32 {
	return m.roughness
}

func (m *material) Emissive() [3]float32 {
	return m.emissive
}

func (m *material) AlphaMode() AlphaMode {
	return m.alphaMode
}

func (m *material) AlphaCutoff() float32 {
	return m.alphaCutoff
}

func (m *material) DoubleSided() bool {
	return m.doubleSided
}

func (m *material) DiffuseTexture() *common.ImportedTexture {
	return m.diffuseTexture
}

func (m *material) NormalTexture() *common.ImportedTexture {
	return m.normalTexture
}

func (m *material) MetallicRoughnessTexture() *common.ImportedTexture {
	return m.metallicRoughnessTexture
}

func (m *material) Hash() string {
	h := sha256.New()
	var buf [4]byte
	writeFloat := func(f float32) {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		h.Write(buf[:])
	}

	for _, f := range m.baseColor {
		writeFloat(f)
	}
	writeFloat(m.metallic)
	writeFloat(m.roughness)
	for _, f := range m.emissive {
		writeFloat(f)
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(m.alphaMode))
	h.Write(buf[:])
	// the cutoff only matters in mask mode
	if m.alphaMode == AlphaMask {
		writeFloat(m.alphaCutoff)
	}
	if m.doubleSided {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}

	for _, tex := range []*common.ImportedTexture{m.diffuseTexture, m.metallicRoughnessTexture, m.normalTexture} {
		h.Write([]byte(tex.ContentHash()))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
