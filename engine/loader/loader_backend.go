package loader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// containerPayload is what a backend extracts from a container before decoding.
type containerPayload struct {
	document []byte
	bin      []byte
	resolver Resolver
}

// loaderBackend defines the generic interface for opening one container form.
// Concrete implementations (e.g., gltfTextBackend) handle format-specific details.
type loaderBackend interface {
	// Unpack extracts the JSON document, the embedded binary chunk and the resolver for
	// external resources from container bytes.
	//
	// Parameters:
	//   - data: the container bytes
	//   - resolver: the resolver for external resources, may be nil
	//
	// Returns:
	//   - *containerPayload: the document, BIN chunk and resolver to decode with
	//   - error: error if the container is malformed
	Unpack(data []byte, resolver Resolver) (*containerPayload, error)
}

// backendForKind returns the backend of a container kind.
func backendForKind(kind ContainerKind) loaderBackend {
	if kind == ContainerBinary {
		return gltfBinaryBackend{}
	}
	return gltfTextBackend{}
}

// resolveBackend selects an appropriate loader backend based on the file extension.
func resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf":
		return gltfTextBackend{}, nil
	case ".glb":
		return gltfBinaryBackend{}, nil
	case ".zip":
		return gltfZipBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported model format: %s", ext)
	}
}
