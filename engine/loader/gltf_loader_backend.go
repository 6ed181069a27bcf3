package loader

import (
	"fmt"
)

// gltfTextBackend opens the text form: a JSON document whose buffers and images are resolved by name.
type gltfTextBackend struct{}

// gltfBinaryBackend opens GLB streams.
type gltfBinaryBackend struct{}

// gltfZipBackend opens ZIP archives holding a text export.
type gltfZipBackend struct{}

var (
	_ loaderBackend = gltfTextBackend{}
	_ loaderBackend = gltfBinaryBackend{}
	_ loaderBackend = gltfZipBackend{}
)

// Unpack uses data as the document. Nil data reads DocumentFileName from the resolver.
func (gltfTextBackend) Unpack(data []byte, resolver Resolver) (*containerPayload, error) {
	if data == nil {
		if resolver == nil {
			return nil, fmt.Errorf("no document given and no resolver to read %q from", DocumentFileName)
		}
		doc, err := resolver.Resolve(DocumentFileName)
		if err != nil {
			return nil, &ResolutionError{Name: DocumentFileName, Err: err}
		}
		data = doc
	}
	return &containerPayload{document: data, resolver: resolver}, nil
}

func (gltfBinaryBackend) Unpack(data []byte, resolver Resolver) (*containerPayload, error) {
	doc, bin, err := UnframeGLB(data)
	if err != nil {
		return nil, err
	}
	return &containerPayload{document: doc, bin: bin, resolver: resolver}, nil
}

// Unpack reads the archive's .gltf entry and resolves everything else inside the archive.
// The given resolver is ignored.
func (gltfZipBackend) Unpack(data []byte, _ Resolver) (*containerPayload, error) {
	r, name, err := NewZipResolver(data)
	if err != nil {
		return nil, formatErrorf("%w", err)
	}
	if name == "" {
		return nil, formatErrorf("archive holds no .gltf document")
	}
	doc, err := r.Resolve(name)
	if err != nil {
		return nil, &ResolutionError{Name: name, Err: err}
	}
	return &containerPayload{document: doc, resolver: r}, nil
}
