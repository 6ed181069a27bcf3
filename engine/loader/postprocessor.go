package loader

import "github.com/qmuntal/gltf"

// TreePostprocessor edits a fully assembled document right before it is validated and serialized.
// It may change anything, e.g. add extensions or rewrite names. A returned error aborts the export.
type TreePostprocessor interface {
	// Process mutates the document in place.
	//
	// Parameters:
	//   - doc: the assembled document
	//
	// Returns:
	//   - error: error to abort the export
	Process(doc *gltf.Document) error
}

// TreePostprocessorFunc adapts a plain function to the TreePostprocessor interface.
type TreePostprocessorFunc func(doc *gltf.Document) error

// Process calls f(doc).
func (f TreePostprocessorFunc) Process(doc *gltf.Document) error {
	return f(doc)
}
