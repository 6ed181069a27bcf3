package loader

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/Carmen-Shannon/oxy-gltf/common"
)

// gltfGLBHeader is the 12-byte GLB file header.
type gltfGLBHeader struct {
	Magic   uint32
	Version uint32
	Length  uint32
}

// gltfGLBChunkHeader precedes every GLB chunk.
type gltfGLBChunkHeader struct {
	ChunkLength uint32
	ChunkType   uint32
}

// FrameGLB packs a serialized document and an optional binary payload into a GLB stream.
// The JSON chunk is padded with spaces and the BIN chunk with zeros, both to 4 bytes.
// A nil or empty bin omits the BIN chunk entirely.
//
// Parameters:
//   - document: the serialized glTF JSON
//   - bin: the binary payload, or nil
//
// Returns:
//   - []byte: the GLB stream
//   - error: error if the payload exceeds the 4 GiB container limit
func FrameGLB(document, bin []byte) ([]byte, error) {
	jsonLen := common.AlignTo(len(document), 4)
	binLen := common.AlignTo(len(bin), 4)

	total := gltfGLBHeaderSize + gltfGLBChunkSize + jsonLen
	if len(bin) > 0 {
		total += gltfGLBChunkSize + binLen
	}
	if int64(total) > math.MaxUint32 {
		return nil, formatErrorf("GLB payload of %d bytes exceeds the container limit", total)
	}

	buf := bytes.NewBuffer(make([]byte, 0, total))
	// bytes.Buffer writes cannot fail
	_ = binary.Write(buf, binary.LittleEndian, gltfGLBHeader{
		Magic:   gltfGLBMagic,
		Version: gltfGLBVersion,
		Length:  uint32(total),
	})

	_ = binary.Write(buf, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(jsonLen), ChunkType: gltfGLBChunkJSON})
	buf.Write(document)
	buf.Write(bytes.Repeat([]byte{' '}, jsonLen-len(document)))

	if len(bin) > 0 {
		_ = binary.Write(buf, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(binLen), ChunkType: gltfGLBChunkBIN})
		buf.Write(bin)
		buf.Write(make([]byte, binLen-len(bin)))
	}

	return buf.Bytes(), nil
}

// UnframeGLB splits a GLB stream into its JSON document and optional BIN payload.
// Magic and version are checked first, then the declared length against the stream length.
// Unknown chunk types are skipped. Any failure returns a FormatError and no data.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
//
// Parameters:
//   - data: the GLB stream
//
// Returns:
//   - []byte: the JSON chunk (padding included)
//   - []byte: the BIN chunk, nil when absent
//   - error: error if the stream is malformed
func UnframeGLB(data []byte) ([]byte, []byte, error) {
	if len(data) < gltfGLBHeaderSize {
		return nil, nil, formatErrorf("GLB stream too small: %d bytes", len(data))
	}

	r := bytes.NewReader(data)

	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, nil, formatErrorf("failed to read GLB header: %w", err)
	}

	if header.Magic != gltfGLBMagic {
		return nil, nil, formatErrorf("invalid GLB magic number 0x%08X", header.Magic)
	}
	if header.Version != gltfGLBVersion {
		return nil, nil, formatErrorf("invalid GLB version %d: must be 2", header.Version)
	}
	if int(header.Length) != len(data) {
		return nil, nil, formatErrorf("GLB header declares %d bytes but stream has %d", header.Length, len(data))
	}

	var jsonData []byte
	var binData []byte

	for first := true; ; first = false {
		var chunkHeader gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &chunkHeader); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, formatErrorf("failed to read chunk header: %w", err)
		}

		if int64(chunkHeader.ChunkLength) > int64(r.Len()) {
			return nil, nil, formatErrorf("chunk length %d exceeds remaining %d bytes", chunkHeader.ChunkLength, r.Len())
		}
		if first && chunkHeader.ChunkType != gltfGLBChunkJSON {
			return nil, nil, formatErrorf("first GLB chunk is not JSON")
		}

		chunkData := make([]byte, chunkHeader.ChunkLength)
		if _, err := io.ReadFull(r, chunkData); err != nil {
			return nil, nil, formatErrorf("failed to read chunk data: %w", err)
		}

		switch chunkHeader.ChunkType {
		case gltfGLBChunkJSON:
			if jsonData == nil {
				jsonData = chunkData
			}
		case gltfGLBChunkBIN:
			if binData == nil {
				binData = chunkData
			}
		}
	}

	if jsonData == nil {
		return nil, nil, formatErrorf("GLB stream missing JSON chunk")
	}

	return jsonData, binData, nil
}
