package loader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
	"github.com/qmuntal/gltf"
)

// GLB constants
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
const (
	gltfGLBMagic      uint32 = 0x46546C67 // "glTF" in little-endian
	gltfGLBVersion    uint32 = 2
	gltfGLBChunkJSON  uint32 = 0x4E4F534A // "JSON" in little-endian
	gltfGLBChunkBIN   uint32 = 0x004E4942 // "BIN\0" in little-endian
	gltfGLBHeaderSize        = 12
	gltfGLBChunkSize         = 8
)

// Logical file names used by the text container form.
const (
	// DocumentFileName is the name of the JSON document in a text export.
	DocumentFileName = "model.gltf"

	gltfMergedBufferName = "gltf_buffer.bin"
	gltfBufferNameFormat = "gltf_buffer_%d.bin"
	gltfImageNameFormat  = "gltf_image_%d.%s"
)

// Reserved extras and metadata keys.
const (
	// UnitsKey is the scene extras key carrying the scene's declared unit.
	UnitsKey = "units"

	// ExtrasKey is the scene metadata key holding scene-level extras.
	ExtrasKey = "extras"

	// DocumentExtrasKey is the scene metadata key holding the document root extras.
	DocumentExtrasKey = "document_extras"

	// FromPrimitiveKey marks geometries and primitives split out of a multi-primitive mesh.
	FromPrimitiveKey = "from_gltf_primitive"

	// AttributeNamesKey is the primitive extras key mapping exported attribute names back to the
	// geometry's own names when export had to prefix them.
	AttributeNamesKey = "gltf_attribute_names"
)

// Standard attribute semantics.
const (
	gltfAttrPosition  = "POSITION"
	gltfAttrNormal    = "NORMAL"
	gltfAttrTexCoord0 = "TEXCOORD_0"
	gltfAttrColor0    = "COLOR_0"
)

// gltfAttributePrefixes are the semantic prefixes glTF reserves for vertex attributes.
var gltfAttributePrefixes = []string{"TEXCOORD_", "COLOR_", "JOINTS_", "WEIGHTS_"}

// ContainerKind selects the text (.gltf + files) or binary (.glb) container form.
type ContainerKind int

const (
	// ContainerText is the JSON document plus external buffer and image files.
	ContainerText ContainerKind = iota
	// ContainerBinary is the single-stream GLB container.
	ContainerBinary
)

// String returns the usual file extension of the container, without the dot.
func (k ContainerKind) String() string {
	if k == ContainerBinary {
		return "glb"
	}
	return "gltf"
}

// ParseContainerKind converts "gltf"/"glb" (with or without a leading dot) into a ContainerKind.
//
// Parameters:
//   - s: the container name or file extension
//
// Returns:
//   - ContainerKind: the parsed kind
//   - error: error if the name is not recognized
func ParseContainerKind(s string) (ContainerKind, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "gltf":
		return ContainerText, nil
	case "glb":
		return ContainerBinary, nil
	default:
		return 0, fmt.Errorf("unknown container kind %q", s)
	}
}

// gltfExportAttributeName returns the attribute name glTF accepts for a custom attribute.
// Application-specific semantics must start with an underscore.
func gltfExportAttributeName(name string) string {
	if strings.HasPrefix(name, "_") || name == "TANGENT" || name == gltfAttrNormal {
		return name
	}
	for _, prefix := range gltfAttributePrefixes {
		if strings.HasPrefix(name, prefix) {
			return name
		}
	}
	return "_" + name
}

// gltfIsCoreAttribute reports whether the attribute maps onto a dedicated Geometry field.
func gltfIsCoreAttribute(name string) bool {
	switch name {
	case gltfAttrPosition, gltfAttrNormal, gltfAttrTexCoord0, gltfAttrColor0:
		return true
	}
	return false
}

// gltfComponentTypeSize returns the byte size of a component type.
func gltfComponentTypeSize(componentType gltf.ComponentType) int {
	switch componentType {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	default:
		return 4
	}
}

// gltfAccessorTypeComponentCount returns the number of components for an accessor type.
func gltfAccessorTypeComponentCount(accessorType gltf.AccessorType) int {
	switch accessorType {
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4, gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	default:
		return 1
	}
}

// gltfElementSize returns the byte size of one accessor element.
func gltfElementSize(componentType gltf.ComponentType, accessorType gltf.AccessorType) int {
	return gltfComponentTypeSize(componentType) * gltfAccessorTypeComponentCount(accessorType)
}

// gltfAccessorFits reports whether count elements of elem bytes, stride bytes apart and starting
// at offset, lie inside a view of viewLen bytes. The bound is checked by division so that
// hostile counts cannot wrap around.
func gltfAccessorFits(offset, count, stride, elem, viewLen int) bool {
	if offset < 0 || count < 0 || elem <= 0 || stride < elem {
		return false
	}
	if count == 0 {
		return offset <= viewLen
	}
	if offset > viewLen-elem {
		return false
	}
	return count-1 <= (viewLen-offset-elem)/stride
}

// gltfComponentFromModel maps a model component type onto its glTF constant.
func gltfComponentFromModel(c model.ComponentType) gltf.ComponentType {
	switch c {
	case model.ComponentInt8:
		return gltf.ComponentByte
	case model.ComponentUint8:
		return gltf.ComponentUbyte
	case model.ComponentInt16:
		return gltf.ComponentShort
	case model.ComponentUint16:
		return gltf.ComponentUshort
	case model.ComponentUint32:
		return gltf.ComponentUint
	default:
		return gltf.ComponentFloat
	}
}

// gltfComponentToModel maps a glTF component type onto the model constant.
func gltfComponentToModel(c gltf.ComponentType) model.ComponentType {
	switch c {
	case gltf.ComponentByte:
		return model.ComponentInt8
	case gltf.ComponentUbyte:
		return model.ComponentUint8
	case gltf.ComponentShort:
		return model.ComponentInt16
	case gltf.ComponentUshort:
		return model.ComponentUint16
	case gltf.ComponentUint:
		return model.ComponentUint32
	default:
		return model.ComponentFloat32
	}
}

// gltfAccessorFromModel maps a model element type onto its glTF accessor type.
func gltfAccessorFromModel(e model.ElementType) gltf.AccessorType {
	switch e {
	case model.ElementVec2:
		return gltf.AccessorVec2
	case model.ElementVec3:
		return gltf.AccessorVec3
	case model.ElementVec4:
		return gltf.AccessorVec4
	case model.ElementMat2:
		return gltf.AccessorMat2
	case model.ElementMat3:
		return gltf.AccessorMat3
	case model.ElementMat4:
		return gltf.AccessorMat4
	default:
		return gltf.AccessorScalar
	}
}

// gltfAccessorToModel maps a glTF accessor type onto the model element type.
func gltfAccessorToModel(a gltf.AccessorType) model.ElementType {
	switch a {
	case gltf.AccessorVec2:
		return model.ElementVec2
	case gltf.AccessorVec3:
		return model.ElementVec3
	case gltf.AccessorVec4:
		return model.ElementVec4
	case gltf.AccessorMat2:
		return model.ElementMat2
	case gltf.AccessorMat3:
		return model.ElementMat3
	case gltf.AccessorMat4:
		return model.ElementMat4
	default:
		return model.ElementScalar
	}
}
