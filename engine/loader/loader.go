package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-gltf/engine/scene"
)

// DefaultGenerator is the asset generator written to exported documents unless overridden.
const DefaultGenerator = "oxy-gltf"

// loader is the implementation of the Loader interface.
type loader struct {
	logger    *slog.Logger
	generator string
	strict    bool
}

// Loader defines the public-facing interface for converting scenes to and from glTF 2.0.
// It holds only immutable configuration, so one Loader may serve concurrent calls on
// independent scenes.
type Loader interface {
	// Export assembles a document from the scene and serializes it into the requested container.
	//
	// Parameters:
	//   - sc: the scene to export
	//   - kind: ContainerText for the .gltf file set, ContainerBinary for a GLB stream
	//   - options: export options
	//
	// Returns:
	//   - *ExportResult: the document and its serialized form
	//   - error: error if export fails; no partial result is returned
	Export(sc scene.Scene, kind ContainerKind, options ...ExportOption) (*ExportResult, error)

	// ExportGLTF exports the text form: DocumentFileName plus buffer and image files keyed by name.
	//
	// Parameters:
	//   - sc: the scene to export
	//   - options: export options
	//
	// Returns:
	//   - map[string][]byte: the files of the export
	//   - error: error if export fails
	ExportGLTF(sc scene.Scene, options ...ExportOption) (map[string][]byte, error)

	// ExportGLB exports a single GLB stream.
	//
	// Parameters:
	//   - sc: the scene to export
	//   - options: export options
	//
	// Returns:
	//   - []byte: the GLB stream
	//   - error: error if export fails
	ExportGLB(sc scene.Scene, options ...ExportOption) ([]byte, error)

	// Decode rebuilds a scene from container bytes. For the text form data may be nil, in which
	// case the document itself is read from the resolver as DocumentFileName.
	//
	// Parameters:
	//   - data: the JSON document or GLB stream
	//   - kind: the container form of data
	//   - resolver: the resolver for external buffers and images, may be nil for self-contained input
	//   - options: decode options
	//
	// Returns:
	//   - *ImportResult: the scene and warnings
	//   - error: error if decoding fails; no partial scene is returned
	Decode(data []byte, kind ContainerKind, resolver Resolver, options ...DecodeOption) (*ImportResult, error)

	// DecodeZip rebuilds a scene from a ZIP archive holding a text export.
	//
	// Parameters:
	//   - data: the archive bytes
	//   - options: decode options
	//
	// Returns:
	//   - *ImportResult: the scene and warnings
	//   - error: error if decoding fails
	DecodeZip(data []byte, options ...DecodeOption) (*ImportResult, error)

	// Load reads and decodes a .gltf, .glb or .zip file. External resources of .gltf and .glb
	// files are resolved relative to the file's directory.
	//
	// Parameters:
	//   - path: the file path
	//   - options: decode options
	//
	// Returns:
	//   - *ImportResult: the scene and warnings
	//   - error: error if the file cannot be read or decoded
	Load(path string, options ...DecodeOption) (*ImportResult, error)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader with the given options applied.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		logger:    slog.Default(),
		generator: DefaultGenerator,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

func (l *loader) Export(sc scene.Scene, kind ContainerKind, options ...ExportOption) (*ExportResult, error) {
	if sc == nil {
		return nil, fmt.Errorf("cannot export a nil scene")
	}
	cfg := newExportConfig(l.strict, options)
	return newGLTFExporter(l.logger, l.generator).Export(sc, kind, cfg)
}

func (l *loader) ExportGLTF(sc scene.Scene, options ...ExportOption) (map[string][]byte, error) {
	res, err := l.Export(sc, ContainerText, options...)
	if err != nil {
		return nil, err
	}
	return res.Files, nil
}

func (l *loader) ExportGLB(sc scene.Scene, options ...ExportOption) ([]byte, error) {
	res, err := l.Export(sc, ContainerBinary, options...)
	if err != nil {
		return nil, err
	}
	return res.GLB, nil
}

func (l *loader) Decode(data []byte, kind ContainerKind, resolver Resolver, options ...DecodeOption) (*ImportResult, error) {
	return l.decode(backendForKind(kind), data, resolver, options)
}

func (l *loader) DecodeZip(data []byte, options ...DecodeOption) (*ImportResult, error) {
	return l.decode(gltfZipBackend{}, data, nil, options)
}

func (l *loader) Load(path string, options ...DecodeOption) (*ImportResult, error) {
	backend, err := resolveBackend(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	res, err := l.decode(backend, data, NewDirResolver(filepath.Dir(path)), options)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return res, nil
}

// decode unpacks a container with the backend and imports the document.
func (l *loader) decode(backend loaderBackend, data []byte, resolver Resolver, options []DecodeOption) (*ImportResult, error) {
	cfg := newDecodeConfig(options)

	payload, err := backend.Unpack(data, resolver)
	if err != nil {
		return nil, err
	}

	return newGLTFImporter(l.logger).Import(payload.document, payload.bin, payload.resolver, cfg.mergePrimitives)
}
