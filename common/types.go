// package common contains common types that are used throughout this codec. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/cogentcore/webgpu/wgpu"
)

// SamplerStagingData holds the configuration for a texture sampler in render-ready form.
// Imported glTF samplers are converted into this struct, and exported materials are converted back from it.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// Compare specifies the comparison function for comparison samplers.
	Compare wgpu.CompareFunction
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// DefaultSamplerStagingData returns the glTF default sampler: linear filtering and repeat wrapping.
//
// Returns:
//   - *SamplerStagingData: a new sampler with default settings
func DefaultSamplerStagingData() *SamplerStagingData {
	return &SamplerStagingData{
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
}

// ImportedTexture represents texture data carried by a material.
// For embedded textures the Data field contains raw, undecoded image bytes.
// For external textures the URI field contains the relative reference from the document.
type ImportedTexture struct {
	// Name is an identifier for this texture (e.g., "diffuse", "normal").
	Name string

	// URI is the reference of an external image, empty when the image is embedded.
	URI string

	// Data contains raw image bytes (PNG/JPEG/...). Pixel decoding is left to the caller.
	Data []byte

	// MimeType indicates the image format (e.g., "image/png", "image/jpeg").
	MimeType string

	// SamplerData holds sampler parameters. When nil the glTF defaults apply.
	SamplerData *SamplerStagingData
}

// ContentHash returns a stable hex digest of the texture's image bytes and sampler settings.
// The texture name is not part of the hash, so two textures carrying the same image hash equal.
//
// Returns:
//   - string: the hex-encoded SHA-256 digest, or "" for a nil texture
func (t *ImportedTexture) ContentHash() string {
	if t == nil {
		return ""
	}

	h := sha256.New()
	h.Write([]byte(t.MimeType))
	h.Write([]byte{0})
	if len(t.Data) > 0 {
		h.Write(t.Data)
	} else {
		h.Write([]byte(t.URI))
	}
	h.Write([]byte{0})

	s := t.SamplerData
	if s == nil {
		s = DefaultSamplerStagingData()
	}
	var buf [4]byte
	for _, v := range []uint32{
		uint32(s.AddressModeU), uint32(s.AddressModeV), uint32(s.AddressModeW),
		uint32(s.MagFilter), uint32(s.MinFilter), uint32(s.MipmapFilter),
	} {
		binary.LittleEndian.PutUint32(buf[:], v)
		h.Write(buf[:])
	}

	return hex.EncodeToString(h.Sum(nil))
}
