package loader

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/material"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/h2non/filetype"
	"github.com/qmuntal/gltf"
)

// samplerKey is the comparable part of a glTF sampler.
type samplerKey struct {
	mag          gltf.MagFilter
	min          gltf.MinFilter
	wrapS, wrapT gltf.WrappingMode
}

// materialRegistry interns materials, textures, images and samplers into a document by content.
// One registry lives for exactly one export call.
type materialRegistry struct {
	doc    *gltf.Document
	packer *bufferPacker

	// embedImages stores images as buffer views instead of external files.
	embedImages bool

	materials map[string]int
	textures  map[string]int
	images    map[string]int
	samplers  map[samplerKey]int

	// files receives external image files keyed by their logical name.
	files map[string][]byte
}

// newMaterialRegistry creates a registry writing into doc.
//
// Parameters:
//   - doc: the document receiving materials and textures
//   - packer: the packer used for embedded images
//   - embedImages: true to embed images in buffer views
//
// Returns:
//   - *materialRegistry: the registry
func newMaterialRegistry(doc *gltf.Document, packer *bufferPacker, embedImages bool) *materialRegistry {
	return &materialRegistry{
		doc:         doc,
		packer:      packer,
		embedImages: embedImages,
		materials:   make(map[string]int),
		textures:    make(map[string]int),
		images:      make(map[string]int),
		samplers:    make(map[samplerKey]int),
		files:       make(map[string][]byte),
	}
}

// Intern returns the document index of a material, adding it on first sight. Materials with
// equal Hash share one index no matter their name or object identity.
//
// Parameters:
//   - mat: the material to intern
//
// Returns:
//   - int: the material index
//   - error: error if a referenced texture cannot be exported
func (r *materialRegistry) Intern(mat material.Material) (int, error) {
	key := mat.Hash()
	if idx, ok := r.materials[key]; ok {
		return idx, nil
	}

	base := mat.BaseColor()
	out := &gltf.Material{
		Name: mat.Name(),
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float64{float64(base[0]), float64(base[1]), float64(base[2]), float64(base[3])},
			MetallicFactor:  common.Ptr(float64(mat.Metallic())),
			RoughnessFactor: common.Ptr(float64(mat.Roughness())),
		},
		DoubleSided: mat.DoubleSided(),
	}

	em := mat.Emissive()
	out.EmissiveFactor = [3]float64{float64(em[0]), float64(em[1]), float64(em[2])}

	switch mat.AlphaMode() {
	case material.AlphaMask:
		out.AlphaMode = gltf.AlphaMask
		out.AlphaCutoff = common.Ptr(float64(mat.AlphaCutoff()))
	case material.AlphaBlend:
		out.AlphaMode = gltf.AlphaBlend
	default:
		out.AlphaMode = gltf.AlphaOpaque
	}

	if tex := mat.DiffuseTexture(); tex != nil {
		idx, err := r.internTexture(tex)
		if err != nil {
			return 0, fmt.Errorf("material %q: base color texture: %w", mat.Name(), err)
		}
		out.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{Index: idx}
	}
	if tex := mat.MetallicRoughnessTexture(); tex != nil {
		idx, err := r.internTexture(tex)
		if err != nil {
			return 0, fmt.Errorf("material %q: metallic-roughness texture: %w", mat.Name(), err)
		}
		out.PBRMetallicRoughness.MetallicRoughnessTexture = &gltf.TextureInfo{Index: idx}
	}
	if tex := mat.NormalTexture(); tex != nil {
		idx, err := r.internTexture(tex)
		if err != nil {
			return 0, fmt.Errorf("material %q: normal texture: %w", mat.Name(), err)
		}
		out.NormalTexture = &gltf.NormalTexture{Index: common.Ptr(idx)}
	}

	r.doc.Materials = append(r.doc.Materials, out)
	idx := len(r.doc.Materials) - 1
	r.materials[key] = idx
	return idx, nil
}

// Files returns the external image files written so far.
func (r *materialRegistry) Files() map[string][]byte {
	return r.files
}

// internTexture returns the texture index for an (image, sampler) pair.
func (r *materialRegistry) internTexture(tex *common.ImportedTexture) (int, error) {
	key := tex.ContentHash()
	if idx, ok := r.textures[key]; ok {
		return idx, nil
	}

	img, err := r.internImage(tex)
	if err != nil {
		return 0, err
	}

	r.doc.Textures = append(r.doc.Textures, &gltf.Texture{
		Source:  common.Ptr(img),
		Sampler: common.Ptr(r.internSampler(tex.SamplerData)),
	})
	idx := len(r.doc.Textures) - 1
	r.textures[key] = idx
	return idx, nil
}

// internImage returns the image index for the texture's image bytes. URI-only textures keep
// their reference; byte-backed ones are embedded or written as gltf_image_<i>.<ext>.
func (r *materialRegistry) internImage(tex *common.ImportedTexture) (int, error) {
	if len(tex.Data) == 0 {
		if tex.URI == "" {
			return 0, fmt.Errorf("texture %q has neither data nor URI", tex.Name)
		}
		key := "uri:" + tex.URI
		if idx, ok := r.images[key]; ok {
			return idx, nil
		}
		r.doc.Images = append(r.doc.Images, &gltf.Image{Name: tex.Name, URI: tex.URI, MimeType: tex.MimeType})
		idx := len(r.doc.Images) - 1
		r.images[key] = idx
		return idx, nil
	}

	mime, ext := imageKind(tex.Data, tex.MimeType)
	digest := sha256.Sum256(tex.Data)
	sum := mime + ":" + string(digest[:])
	if idx, ok := r.images[sum]; ok {
		return idx, nil
	}

	out := &gltf.Image{Name: tex.Name, MimeType: mime}
	if r.embedImages {
		out.BufferView = common.Ptr(r.packer.AddBlob(tex.Data))
	} else {
		name := fmt.Sprintf(gltfImageNameFormat, len(r.doc.Images), ext)
		out.URI = name
		r.files[name] = tex.Data
	}

	r.doc.Images = append(r.doc.Images, out)
	idx := len(r.doc.Images) - 1
	r.images[sum] = idx
	return idx, nil
}

// internSampler returns the sampler index for the staging data. Nil means the glTF defaults.
func (r *materialRegistry) internSampler(s *common.SamplerStagingData) int {
	if s == nil {
		s = common.DefaultSamplerStagingData()
	}
	sampler := stagingDataToGLTFSampler(s)
	key := samplerKey{sampler.MagFilter, sampler.MinFilter, sampler.WrapS, sampler.WrapT}
	if idx, ok := r.samplers[key]; ok {
		return idx
	}
	r.doc.Samplers = append(r.doc.Samplers, sampler)
	idx := len(r.doc.Samplers) - 1
	r.samplers[key] = idx
	return idx
}

// imageKind sniffs the image bytes, falling back on the declared mime type.
//
// Returns:
//   - string: the mime type, "image/png" when nothing is known
//   - string: the file extension without a dot
func imageKind(data []byte, declared string) (string, string) {
	if kind, err := filetype.Match(data); err == nil && kind.MIME.Value != "" {
		return kind.MIME.Value, kind.Extension
	}
	switch strings.ToLower(declared) {
	case "", "image/png":
		return "image/png", "png"
	case "image/jpeg":
		return declared, "jpg"
	}
	_, sub, _ := strings.Cut(declared, "/")
	return declared, common.Coalesce(sub, "bin")
}

// stagingDataToGLTFSampler converts render-ready sampler settings back into a glTF sampler.
//
// Parameters:
//   - s: the sampler staging data
//
// Returns:
//   - *gltf.Sampler: the equivalent glTF sampler
func stagingDataToGLTFSampler(s *common.SamplerStagingData) *gltf.Sampler {
	out := &gltf.Sampler{
		WrapS: addressModeToGLTFWrap(s.AddressModeU),
		WrapT: addressModeToGLTFWrap(s.AddressModeV),
	}

	if s.MagFilter == wgpu.FilterModeNearest {
		out.MagFilter = gltf.MagNearest
	} else {
		out.MagFilter = gltf.MagLinear
	}

	nearest := s.MinFilter == wgpu.FilterModeNearest
	mipNearest := s.MipmapFilter == wgpu.MipmapFilterModeNearest
	switch {
	case nearest && mipNearest:
		out.MinFilter = gltf.MinNearestMipMapNearest
	case nearest:
		out.MinFilter = gltf.MinNearestMipMapLinear
	case mipNearest:
		out.MinFilter = gltf.MinLinearMipMapNearest
	default:
		out.MinFilter = gltf.MinLinearMipMapLinear
	}
	return out
}

// addressModeToGLTFWrap converts a wgpu AddressMode to a glTF wrap mode.
func addressModeToGLTFWrap(mode wgpu.AddressMode) gltf.WrappingMode {
	switch mode {
	case wgpu.AddressModeClampToEdge:
		return gltf.WrapClampToEdge
	case wgpu.AddressModeMirrorRepeat:
		return gltf.WrapMirroredRepeat
	default:
		return gltf.WrapRepeat
	}
}
