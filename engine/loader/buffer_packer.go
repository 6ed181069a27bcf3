package loader

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/qmuntal/gltf"
)

// packedArray is one typed array waiting to be laid out in a buffer.
type packedArray struct {
	componentType gltf.ComponentType
	accessorType  gltf.AccessorType
	normalized    bool
	count         int
	data          []byte
	target        gltf.Target
	min, max      []float64
}

// key is the dedupe identity of the array: layout plus a digest of the bytes.
func (a *packedArray) key() string {
	h := sha256.New()
	var hdr [20]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(a.componentType))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(a.accessorType))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(a.count))
	binary.LittleEndian.PutUint32(hdr[12:], uint32(a.target))
	if a.normalized {
		hdr[16] = 1
	}
	h.Write(hdr[:])
	h.Write(a.data)
	return string(h.Sum(nil))
}

// packerStats counts what the packer did, for debug logging.
type packerStats struct {
	arrays     int
	deduped    int
	blobs      int
	blobsDeDup int
	bytes      int
}

// bufferPacker lays typed arrays out as 4-byte aligned buffer views and accessors on a document.
// Without merge mode every segment becomes its own buffer, and a segment is only allocated once
// something is actually written to it, so geometry whose arrays are all deduplicated costs nothing.
type bufferPacker struct {
	doc   *gltf.Document
	merge bool

	segments [][]byte
	current  int
	pending  bool

	accessors map[string]int
	views     map[string]int

	stats packerStats
}

// newBufferPacker creates a packer writing into doc.
//
// Parameters:
//   - doc: the document receiving buffer views and accessors
//   - merge: true to pack everything into a single buffer
//
// Returns:
//   - *bufferPacker: the packer
func newBufferPacker(doc *gltf.Document, merge bool) *bufferPacker {
	return &bufferPacker{
		doc:       doc,
		merge:     merge,
		current:   -1,
		pending:   true,
		accessors: make(map[string]int),
		views:     make(map[string]int),
	}
}

// BeginSegment closes the current buffer so the next write opens a new one. Ignored in merge mode.
func (p *bufferPacker) BeginSegment() {
	if !p.merge {
		p.pending = true
	}
}

// AddAccessor packs an array and returns its accessor index. Arrays identical in layout and
// bytes to one packed earlier in the same call return the earlier accessor.
//
// Parameters:
//   - a: the array to pack
//
// Returns:
//   - int: the accessor index
//   - error: error if the data length does not match the declared layout
func (p *bufferPacker) AddAccessor(a *packedArray) (int, error) {
	if want := a.count * gltfElementSize(a.componentType, a.accessorType); len(a.data) != want {
		return 0, fmt.Errorf("array has %d bytes, layout needs %d", len(a.data), want)
	}

	p.stats.arrays++
	key := a.key()
	if idx, ok := p.accessors[key]; ok {
		p.stats.deduped++
		return idx, nil
	}

	view := p.writeView(a.data, a.target)
	p.doc.Accessors = append(p.doc.Accessors, &gltf.Accessor{
		BufferView:    common.Ptr(view),
		ComponentType: a.componentType,
		Type:          a.accessorType,
		Normalized:    a.normalized,
		Count:         a.count,
		Min:           a.min,
		Max:           a.max,
	})
	idx := len(p.doc.Accessors) - 1
	p.accessors[key] = idx
	return idx, nil
}

// AddBlob packs raw bytes (e.g. an encoded image) into a buffer view without an accessor.
// Identical blobs share one view.
//
// Parameters:
//   - data: the raw bytes
//
// Returns:
//   - int: the buffer view index
func (p *bufferPacker) AddBlob(data []byte) int {
	p.stats.blobs++
	sum := sha256.Sum256(data)
	key := string(sum[:])
	if idx, ok := p.views[key]; ok {
		p.stats.blobsDeDup++
		return idx
	}
	idx := p.writeView(data, gltf.TargetNone)
	p.views[key] = idx
	return idx
}

// writeView appends data to the current segment at a 4-byte boundary and records the view.
func (p *bufferPacker) writeView(data []byte, target gltf.Target) int {
	if p.pending || p.current < 0 {
		p.segments = append(p.segments, nil)
		p.current = len(p.segments) - 1
		p.pending = false
	}

	seg := p.segments[p.current]
	offset := common.AlignTo(len(seg), 4)
	seg = append(seg, make([]byte, offset-len(seg))...)
	seg = append(seg, data...)
	p.segments[p.current] = seg
	p.stats.bytes += len(data)

	p.doc.BufferViews = append(p.doc.BufferViews, &gltf.BufferView{
		Buffer:     p.current,
		ByteOffset: offset,
		ByteLength: len(data),
		Target:     target,
	})
	return len(p.doc.BufferViews) - 1
}

// Buffers pads every segment to 4 bytes and returns them in buffer index order.
//
// Returns:
//   - [][]byte: one byte slice per buffer
func (p *bufferPacker) Buffers() [][]byte {
	out := make([][]byte, len(p.segments))
	for i, seg := range p.segments {
		if pad := common.AlignTo(len(seg), 4) - len(seg); pad > 0 {
			seg = append(seg, make([]byte, pad)...)
		}
		out[i] = seg
	}
	return out
}

// --- Array Encoding ---

// packVec3 encodes float vec3 data. When withBounds is set the per-component min and max are
// computed as well, which glTF requires for POSITION.
func packVec3(values [][3]float32, target gltf.Target, withBounds bool) *packedArray {
	data := make([]byte, 0, len(values)*12)
	for _, v := range values {
		for _, c := range v {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(c))
		}
	}
	a := &packedArray{
		componentType: gltf.ComponentFloat,
		accessorType:  gltf.AccessorVec3,
		count:         len(values),
		data:          data,
		target:        target,
	}
	if withBounds && len(values) > 0 {
		a.min = []float64{math.Inf(1), math.Inf(1), math.Inf(1)}
		a.max = []float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
		for _, v := range values {
			for i, c := range v {
				a.min[i] = math.Min(a.min[i], float64(c))
				a.max[i] = math.Max(a.max[i], float64(c))
			}
		}
	}
	return a
}

// packVec2 encodes float vec2 data.
func packVec2(values [][2]float32) *packedArray {
	data := make([]byte, 0, len(values)*8)
	for _, v := range values {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v[0]))
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v[1]))
	}
	return &packedArray{
		componentType: gltf.ComponentFloat,
		accessorType:  gltf.AccessorVec2,
		count:         len(values),
		data:          data,
		target:        gltf.TargetArrayBuffer,
	}
}

// packColors encodes RGBA8 colors as normalized unsigned byte vec4.
func packColors(values [][4]uint8) *packedArray {
	data := make([]byte, 0, len(values)*4)
	for _, v := range values {
		data = append(data, v[:]...)
	}
	return &packedArray{
		componentType: gltf.ComponentUbyte,
		accessorType:  gltf.AccessorVec4,
		normalized:    true,
		count:         len(values),
		data:          data,
		target:        gltf.TargetArrayBuffer,
	}
}

// packIndices encodes triangle indices as unsigned int scalars.
func packIndices(values []uint32) *packedArray {
	data := make([]byte, 0, len(values)*4)
	for _, v := range values {
		data = binary.LittleEndian.AppendUint32(data, v)
	}
	return &packedArray{
		componentType: gltf.ComponentUint,
		accessorType:  gltf.AccessorScalar,
		count:         len(values),
		data:          data,
		target:        gltf.TargetElementArrayBuffer,
	}
}
