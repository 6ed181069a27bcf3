package loader

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"

	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
	"github.com/goccy/go-json"
	"github.com/qmuntal/gltf"
)

// gltfParserImpl is the implementation of the gltfParser interface.
type gltfParserImpl struct {
	document *gltf.Document
	resolver Resolver
	logger   *slog.Logger

	// buffers holds the resolved bytes per buffer index, nil when a buffer was not needed.
	buffers  [][]byte
	warnings []string
}

// gltfParser defines the interface for parsing a glTF document and reading its binary data.
// Buffers are resolved eagerly during Parse so every later read is a pure memory access.
// This is internal to the loader package.
type gltfParser interface {
	// Parse deserializes the document JSON and resolves every buffer it references.
	//
	// Parameters:
	//   - document: the glTF JSON (a GLB JSON chunk may carry trailing padding)
	//   - bin: the GLB BIN chunk, nil for the text form
	//
	// Returns:
	//   - error: a FormatError for malformed input, a ResolutionError for missing buffers
	Parse(document, bin []byte) error

	// Document returns the parsed document, nil before a successful Parse.
	Document() *gltf.Document

	// Warnings returns the soft problems found while parsing.
	Warnings() []string

	// Warn records a soft problem and logs it.
	//
	// Parameters:
	//   - format: the message format
	//   - args: the format arguments
	Warn(format string, args ...any)

	// ReadBufferView returns a copy of the bytes of a buffer view.
	//
	// Parameters:
	//   - viewIndex: the index of the buffer view
	//
	// Returns:
	//   - []byte: the view bytes
	//   - error: error if the view is out of range
	ReadBufferView(viewIndex int) ([]byte, error)

	// ReadAccessorData reads the tightly packed bytes of an accessor, removing any view stride.
	//
	// Parameters:
	//   - accessorIndex: the index of the accessor
	//
	// Returns:
	//   - []byte: count * element size bytes
	//   - error: error if the accessor does not fit its view
	ReadAccessorData(accessorIndex int) ([]byte, error)

	// ReadVec2Accessor reads an accessor as vec2 float data.
	ReadVec2Accessor(accessorIndex int) ([][2]float32, error)

	// ReadVec3Accessor reads an accessor as vec3 float data.
	ReadVec3Accessor(accessorIndex int) ([][3]float32, error)

	// ReadColorAccessor reads any legal COLOR_n layout (VEC3/VEC4 of float, ubyte or ushort) as RGBA8.
	ReadColorAccessor(accessorIndex int) ([][4]uint8, error)

	// ReadIndicesAccessor reads an accessor as index data.
	// Handles UNSIGNED_BYTE, UNSIGNED_SHORT, and UNSIGNED_INT component types.
	ReadIndicesAccessor(accessorIndex int) ([]uint32, error)

	// ReadAttribute reads an accessor into a typed AttributeArray, keeping its exact layout.
	ReadAttribute(accessorIndex int) (*model.AttributeArray, error)

	// ResolveURI fetches an external or data URI.
	//
	// Parameters:
	//   - uri: the URI as written in the document
	//
	// Returns:
	//   - []byte: the referenced bytes
	//   - string: the media type of a data URI, "" otherwise
	//   - error: a ResolutionError if the resolver fails
	ResolveURI(uri string) ([]byte, string, error)
}

var _ gltfParser = &gltfParserImpl{}

// newGLTFParser creates a new glTF parser.
//
// Parameters:
//   - resolver: the resolver for external URIs, may be nil for self-contained input
//   - logger: the logger receiving warnings
//
// Returns:
//   - gltfParser: a new parser instance
func newGLTFParser(resolver Resolver, logger *slog.Logger) gltfParser {
	return &gltfParserImpl{resolver: resolver, logger: logger}
}

func (p *gltfParserImpl) Document() *gltf.Document {
	return p.document
}

func (p *gltfParserImpl) Warnings() []string {
	return p.warnings
}

func (p *gltfParserImpl) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.warnings = append(p.warnings, msg)
	p.logger.Warn("gltf decode", "warning", msg)
}

func (p *gltfParserImpl) Parse(document, bin []byte) error {
	var doc gltf.Document
	if err := json.Unmarshal(document, &doc); err != nil {
		return formatErrorf("failed to parse glTF JSON: %w", err)
	}

	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return formatErrorf("unsupported asset version %q: must be 2.x", doc.Asset.Version)
	}

	if err := p.loadBuffers(&doc, bin); err != nil {
		return err
	}

	p.document = &doc
	return nil
}

// loadBuffers resolves the buffers that back an accessor or image. A buffer nothing reads is
// only a warning when it cannot be resolved.
func (p *gltfParserImpl) loadBuffers(doc *gltf.Document, bin []byte) error {
	usedViews := make(map[int]bool)
	for i, acc := range doc.Accessors {
		if acc.BufferView == nil {
			continue
		}
		if *acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews) {
			return formatErrorf("accessor %d: bufferView index %d out of range", i, *acc.BufferView)
		}
		usedViews[*acc.BufferView] = true
	}
	for i, img := range doc.Images {
		if img.BufferView == nil {
			continue
		}
		if *img.BufferView < 0 || *img.BufferView >= len(doc.BufferViews) {
			return formatErrorf("image %d: bufferView index %d out of range", i, *img.BufferView)
		}
		usedViews[*img.BufferView] = true
	}

	usedBuffers := make(map[int]bool)
	for i, bv := range doc.BufferViews {
		if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
			return formatErrorf("bufferView %d: buffer index %d out of range", i, bv.Buffer)
		}
		if usedViews[i] {
			usedBuffers[bv.Buffer] = true
		}
	}

	p.buffers = make([][]byte, len(doc.Buffers))
	for i, buf := range doc.Buffers {
		var data []byte
		var err error
		switch {
		case buf.URI == "" && i == 0 && bin != nil:
			data = bin
		case buf.URI == "":
			err = formatErrorf("buffer %d has no URI and no binary chunk", i)
		default:
			data, _, err = p.ResolveURI(buf.URI)
		}

		if err == nil && len(data) < buf.ByteLength {
			err = formatErrorf("buffer %d holds %d bytes, declares %d", i, len(data), buf.ByteLength)
		}

		if err != nil {
			if usedBuffers[i] {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			p.Warn("ignoring unreferenced buffer %d: %v", i, err)
			continue
		}
		p.buffers[i] = data
	}

	for i := range usedViews {
		bv := doc.BufferViews[i]
		if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset+bv.ByteLength > len(p.buffers[bv.Buffer]) {
			return formatErrorf("bufferView %d (offset %d, length %d) exceeds buffer %d of %d bytes",
				i, bv.ByteOffset, bv.ByteLength, bv.Buffer, len(p.buffers[bv.Buffer]))
		}
	}

	return nil
}

func (p *gltfParserImpl) ResolveURI(uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, "data:") {
		data, mimeType, err := gltfDecodeDataURI(uri)
		if err != nil {
			return nil, "", formatErrorf("malformed data URI: %w", err)
		}
		return data, mimeType, nil
	}

	name, err := url.PathUnescape(uri)
	if err != nil {
		name = uri
	}
	if p.resolver == nil {
		return nil, "", &ResolutionError{Name: uri, Err: fmt.Errorf("no resolver for external reference")}
	}
	data, err := p.resolver.Resolve(name)
	if err != nil {
		return nil, "", &ResolutionError{Name: uri, Err: err}
	}
	return data, "", nil
}

// gltfDecodeDataURI decodes a data URI into raw bytes and extracts the MIME type.
// Format: data:[<mediatype>][;base64],<data>
func gltfDecodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("no comma found")
	}

	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		data, err := url.PathUnescape(payload)
		return []byte(data), mimeType, err
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64: %w", err)
	}
	return data, mimeType, nil
}

// --- Accessor Data Reading ---

func (p *gltfParserImpl) ReadBufferView(viewIndex int) ([]byte, error) {
	if viewIndex < 0 || viewIndex >= len(p.document.BufferViews) {
		return nil, formatErrorf("bufferView index %d out of range", viewIndex)
	}
	bv := p.document.BufferViews[viewIndex]
	buf := p.buffers[bv.Buffer]
	if bv.ByteOffset < 0 || bv.ByteLength < 0 || bv.ByteOffset+bv.ByteLength > len(buf) {
		return nil, formatErrorf("bufferView %d exceeds buffer bounds", viewIndex)
	}

	data := make([]byte, bv.ByteLength)
	copy(data, buf[bv.ByteOffset:bv.ByteOffset+bv.ByteLength])
	return data, nil
}

func (p *gltfParserImpl) ReadAccessorData(accessorIndex int) ([]byte, error) {
	if accessorIndex < 0 || accessorIndex >= len(p.document.Accessors) {
		return nil, formatErrorf("accessor index %d out of range", accessorIndex)
	}

	acc := p.document.Accessors[accessorIndex]
	if acc.Sparse != nil {
		return nil, formatErrorf("accessor %d: sparse accessors are not supported", accessorIndex)
	}
	if acc.Count < 0 {
		return nil, formatErrorf("accessor %d: negative count", accessorIndex)
	}

	elementSize := gltfElementSize(acc.ComponentType, acc.Type)
	if elementSize == 0 {
		return nil, formatErrorf("accessor %d: unknown layout %v %v", accessorIndex, acc.Type, acc.ComponentType)
	}

	// an accessor without a view reads as zeros
	if acc.BufferView == nil || acc.Count == 0 {
		if acc.Count > math.MaxInt32/elementSize {
			return nil, formatErrorf("accessor %d: count %d is too large", accessorIndex, acc.Count)
		}
		return make([]byte, acc.Count*elementSize), nil
	}

	view, err := p.ReadBufferView(*acc.BufferView)
	if err != nil {
		return nil, fmt.Errorf("accessor %d: %w", accessorIndex, err)
	}

	stride := elementSize
	if bv := p.document.BufferViews[*acc.BufferView]; bv.ByteStride > 0 {
		stride = bv.ByteStride
	}
	if stride < elementSize {
		return nil, formatErrorf("accessor %d: stride %d smaller than element size %d", accessorIndex, stride, elementSize)
	}

	if !gltfAccessorFits(acc.ByteOffset, acc.Count, stride, elementSize, len(view)) {
		return nil, formatErrorf("accessor %d (offset %d, count %d) exceeds its %d-byte view",
			accessorIndex, acc.ByteOffset, acc.Count, len(view))
	}

	result := make([]byte, acc.Count*elementSize)
	for i := 0; i < acc.Count; i++ {
		src := acc.ByteOffset + i*stride
		copy(result[i*elementSize:(i+1)*elementSize], view[src:src+elementSize])
	}
	return result, nil
}

// readFloats reads a float accessor of the given shape as a flat slice.
func (p *gltfParserImpl) readFloats(accessorIndex int, want gltf.AccessorType) ([]float32, error) {
	if accessorIndex < 0 || accessorIndex >= len(p.document.Accessors) {
		return nil, formatErrorf("accessor index %d out of range", accessorIndex)
	}
	acc := p.document.Accessors[accessorIndex]
	if acc.Type != want || acc.ComponentType != gltf.ComponentFloat {
		return nil, formatErrorf("accessor %d is not %v FLOAT: type=%v, componentType=%v",
			accessorIndex, want, acc.Type, acc.ComponentType)
	}

	data, err := p.ReadAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}

	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

func (p *gltfParserImpl) ReadVec2Accessor(accessorIndex int) ([][2]float32, error) {
	flat, err := p.readFloats(accessorIndex, gltf.AccessorVec2)
	if err != nil {
		return nil, err
	}
	result := make([][2]float32, len(flat)/2)
	for i := range result {
		result[i] = [2]float32(flat[i*2 : i*2+2])
	}
	return result, nil
}

func (p *gltfParserImpl) ReadVec3Accessor(accessorIndex int) ([][3]float32, error) {
	flat, err := p.readFloats(accessorIndex, gltf.AccessorVec3)
	if err != nil {
		return nil, err
	}
	result := make([][3]float32, len(flat)/3)
	for i := range result {
		result[i] = [3]float32(flat[i*3 : i*3+3])
	}
	return result, nil
}

func (p *gltfParserImpl) ReadColorAccessor(accessorIndex int) ([][4]uint8, error) {
	if accessorIndex < 0 || accessorIndex >= len(p.document.Accessors) {
		return nil, formatErrorf("accessor index %d out of range", accessorIndex)
	}
	acc := p.document.Accessors[accessorIndex]

	channels := 4
	switch acc.Type {
	case gltf.AccessorVec4:
	case gltf.AccessorVec3:
		channels = 3
	default:
		return nil, formatErrorf("color accessor %d is not VEC3 or VEC4: type=%v", accessorIndex, acc.Type)
	}

	data, err := p.ReadAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}

	var channel func(i int) uint8
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		channel = func(i int) uint8 { return data[i] }
	case gltf.ComponentUshort:
		channel = func(i int) uint8 { return uint8(binary.LittleEndian.Uint16(data[i*2:]) >> 8) }
	case gltf.ComponentFloat:
		channel = func(i int) uint8 {
			f := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
			return uint8(math.Round(math.Max(0, math.Min(1, float64(f))) * 255))
		}
	default:
		return nil, formatErrorf("color accessor %d has unsupported component type %v", accessorIndex, acc.ComponentType)
	}

	result := make([][4]uint8, acc.Count)
	for i := range result {
		result[i][3] = 255
		for c := 0; c < channels; c++ {
			result[i][c] = channel(i*channels + c)
		}
	}
	return result, nil
}

func (p *gltfParserImpl) ReadIndicesAccessor(accessorIndex int) ([]uint32, error) {
	if accessorIndex < 0 || accessorIndex >= len(p.document.Accessors) {
		return nil, formatErrorf("accessor index %d out of range", accessorIndex)
	}
	acc := p.document.Accessors[accessorIndex]
	if acc.Type != gltf.AccessorScalar {
		return nil, formatErrorf("index accessor %d is not SCALAR: type=%v", accessorIndex, acc.Type)
	}

	data, err := p.ReadAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}

	result := make([]uint32, acc.Count)
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		for i := range result {
			result[i] = uint32(data[i])
		}
	case gltf.ComponentUshort:
		for i := range result {
			result[i] = uint32(binary.LittleEndian.Uint16(data[i*2:]))
		}
	case gltf.ComponentUint:
		for i := range result {
			result[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
	default:
		return nil, formatErrorf("index accessor %d has unsupported component type %v", accessorIndex, acc.ComponentType)
	}
	return result, nil
}

func (p *gltfParserImpl) ReadAttribute(accessorIndex int) (*model.AttributeArray, error) {
	data, err := p.ReadAccessorData(accessorIndex)
	if err != nil {
		return nil, err
	}
	acc := p.document.Accessors[accessorIndex]
	return &model.AttributeArray{
		ComponentType: gltfComponentToModel(acc.ComponentType),
		ElementType:   gltfAccessorToModel(acc.Type),
		Normalized:    acc.Normalized,
		Count:         acc.Count,
		Data:          data,
	}, nil
}
