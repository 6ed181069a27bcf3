package loader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/material"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/qmuntal/gltf"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser gltfParser
	cache  map[int]material.Material
}

// gltfMaterialExtractor defines the interface for turning document materials into material.Material
// values, loading any texture images they reference.
type gltfMaterialExtractor interface {
	// ExtractMaterial returns the material at an index. Every index is converted once per
	// decode, so primitives sharing a material index share one material object.
	//
	// Parameters:
	//   - materialIndex: the index of the material in the document
	//
	// Returns:
	//   - material.Material: the extracted material
	//   - error: error if the index is out of range or a texture cannot be loaded
	ExtractMaterial(materialIndex int) (material.Material, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

// newGLTFMaterialExtractor creates a new material extractor for a parsed document.
//
// Parameters:
//   - parser: the parser containing a loaded document
//
// Returns:
//   - gltfMaterialExtractor: the material extractor
func newGLTFMaterialExtractor(parser gltfParser) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{parser: parser, cache: make(map[int]material.Material)}
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(materialIndex int) (material.Material, error) {
	if mat, ok := e.cache[materialIndex]; ok {
		return mat, nil
	}

	doc := e.parser.Document()
	if materialIndex < 0 || materialIndex >= len(doc.Materials) {
		return nil, formatErrorf("material index %d out of range", materialIndex)
	}
	mat := doc.Materials[materialIndex]

	opts := []material.MaterialBuilderOption{
		material.WithName(mat.Name),
		material.WithDoubleSided(mat.DoubleSided),
		material.WithEmissive([3]float32{float32(mat.EmissiveFactor[0]), float32(mat.EmissiveFactor[1]), float32(mat.EmissiveFactor[2])}),
	}

	switch mat.AlphaMode {
	case gltf.AlphaMask:
		cutoff := float32(0.5)
		if mat.AlphaCutoff != nil {
			cutoff = float32(*mat.AlphaCutoff)
		}
		opts = append(opts, material.WithAlphaMode(material.AlphaMask, cutoff))
	case gltf.AlphaBlend:
		opts = append(opts, material.WithAlphaMode(material.AlphaBlend, 0.5))
	}

	if pbr := mat.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			c := pbr.BaseColorFactor
			opts = append(opts, material.WithBaseColor([4]float32{float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3])}))
		}
		if pbr.MetallicFactor != nil {
			opts = append(opts, material.WithMetallic(float32(*pbr.MetallicFactor)))
		}
		if pbr.RoughnessFactor != nil {
			opts = append(opts, material.WithRoughness(float32(*pbr.RoughnessFactor)))
		}

		// Base color / diffuse texture
		if pbr.BaseColorTexture != nil {
			tex, err := e.loadTexture(pbr.BaseColorTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("material %q: base color texture: %w", mat.Name, err)
			}
			opts = append(opts, material.WithDiffuseTexture(tex))
		}

		// Metallic-roughness texture
		if pbr.MetallicRoughnessTexture != nil {
			tex, err := e.loadTexture(pbr.MetallicRoughnessTexture.Index)
			if err != nil {
				return nil, fmt.Errorf("material %q: metallic-roughness texture: %w", mat.Name, err)
			}
			opts = append(opts, material.WithMetallicRoughnessTexture(tex))
		}
	}

	// Normal map
	if mat.NormalTexture != nil && mat.NormalTexture.Index != nil {
		tex, err := e.loadTexture(*mat.NormalTexture.Index)
		if err != nil {
			return nil, fmt.Errorf("material %q: normal texture: %w", mat.Name, err)
		}
		opts = append(opts, material.WithNormalTexture(tex))
	}

	result := material.NewMaterial(opts...)
	e.cache[materialIndex] = result
	return result, nil
}

// loadTexture resolves a glTF texture index into an ImportedTexture with loaded image data.
// Images come from a buffer view (common in GLB), a data URI or the resolver.
func (e *gltfMaterialExtractorImpl) loadTexture(textureIndex int) (*common.ImportedTexture, error) {
	doc := e.parser.Document()
	if textureIndex < 0 || textureIndex >= len(doc.Textures) {
		return nil, formatErrorf("texture index %d out of range", textureIndex)
	}

	tex := doc.Textures[textureIndex]
	if tex.Source == nil {
		return nil, nil
	}

	// Resolve glTF sampler parameters if this texture references one.
	samplerData := common.DefaultSamplerStagingData()
	if tex.Sampler != nil {
		if *tex.Sampler < 0 || *tex.Sampler >= len(doc.Samplers) {
			return nil, formatErrorf("sampler index %d out of range", *tex.Sampler)
		}
		samplerData = gltfSamplerToStagingData(doc.Samplers[*tex.Sampler])
	}

	imageIndex := *tex.Source
	if imageIndex < 0 || imageIndex >= len(doc.Images) {
		return nil, formatErrorf("image index %d out of range", imageIndex)
	}
	img := doc.Images[imageIndex]

	result := &common.ImportedTexture{
		Name:        img.Name,
		MimeType:    img.MimeType,
		SamplerData: samplerData,
	}

	switch {
	case img.BufferView != nil:
		data, err := e.parser.ReadBufferView(*img.BufferView)
		if err != nil {
			return nil, fmt.Errorf("failed to read image buffer view: %w", err)
		}
		result.Data = data
	case img.URI != "":
		data, mimeType, err := e.parser.ResolveURI(img.URI)
		if err != nil {
			return nil, err
		}
		result.Data = data
		if !strings.HasPrefix(img.URI, "data:") {
			result.URI = img.URI
		}
		result.MimeType = common.Coalesce(result.MimeType, mimeType)
	default:
		return nil, nil
	}

	if result.MimeType == "" {
		result.MimeType, _ = imageKind(result.Data, "")
	}
	return result, nil
}

// gltfSamplerToStagingData converts a glTF sampler definition into render-ready SamplerStagingData.
// Any unset fields in the glTF sampler fall back to the glTF defaults (linear filtering, repeat wrapping).
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#reference-sampler
//
// Parameters:
//   - s: the glTF sampler to convert
//
// Returns:
//   - *common.SamplerStagingData: the converted sampler staging data
func gltfSamplerToStagingData(s *gltf.Sampler) *common.SamplerStagingData {
	result := common.DefaultSamplerStagingData()

	switch s.MagFilter {
	case gltf.MagNearest:
		result.MagFilter = wgpu.FilterModeNearest
	case gltf.MagLinear:
		result.MagFilter = wgpu.FilterModeLinear
	}

	switch s.MinFilter {
	case gltf.MinNearest, gltf.MinNearestMipMapNearest, gltf.MinNearestMipMapLinear:
		result.MinFilter = wgpu.FilterModeNearest
	case gltf.MinLinear, gltf.MinLinearMipMapNearest, gltf.MinLinearMipMapLinear:
		result.MinFilter = wgpu.FilterModeLinear
	}
	// Also set the mipmap filter based on the minification filter variant
	switch s.MinFilter {
	case gltf.MinNearestMipMapNearest, gltf.MinLinearMipMapNearest:
		result.MipmapFilter = wgpu.MipmapFilterModeNearest
	case gltf.MinNearestMipMapLinear, gltf.MinLinearMipMapLinear:
		result.MipmapFilter = wgpu.MipmapFilterModeLinear
	case gltf.MinNearest, gltf.MinLinear:
		// Non-mipmapped filters: set mipmap to nearest as a conservative default
		result.MipmapFilter = wgpu.MipmapFilterModeNearest
	}

	result.AddressModeU = gltfWrapToAddressMode(s.WrapS)
	result.AddressModeV = gltfWrapToAddressMode(s.WrapT)
	return result
}

// gltfWrapToAddressMode converts a glTF wrap mode constant to a wgpu AddressMode.
//
// Parameters:
//   - wrap: the glTF wrap mode constant
//
// Returns:
//   - wgpu.AddressMode: the corresponding wgpu address mode
func gltfWrapToAddressMode(wrap gltf.WrappingMode) wgpu.AddressMode {
	switch wrap {
	case gltf.WrapClampToEdge:
		return wgpu.AddressModeClampToEdge
	case gltf.WrapMirroredRepeat:
		return wgpu.AddressModeMirrorRepeat
	default:
		return wgpu.AddressModeRepeat
	}
}
