package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
)

var errNotFound = errors.New("file not found")

// Resolver maps a name referenced by a document (buffer or image URI) onto its bytes.
// Names are relative, slash-separated and already URL-unescaped.
type Resolver interface {
	// Resolve returns the contents of the named file.
	//
	// Parameters:
	//   - name: the referenced name
	//
	// Returns:
	//   - []byte: the file contents
	//   - error: error if the file cannot be supplied
	Resolve(name string) ([]byte, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(name string) ([]byte, error)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) ([]byte, error) {
	return f(name)
}

// MapResolver resolves names from an in-memory file set, such as the output of a text export.
type MapResolver map[string][]byte

// Resolve returns the named entry.
func (m MapResolver) Resolve(name string) ([]byte, error) {
	if data, ok := m[name]; ok {
		return data, nil
	}
	if data, ok := m[path.Clean(name)]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("%q: %w", name, errNotFound)
}

// dirResolver resolves names against a directory on disk.
type dirResolver struct {
	root string
}

var _ Resolver = &dirResolver{}

// NewDirResolver creates a Resolver reading files below dir. Names that would escape dir are rejected.
//
// Parameters:
//   - dir: the base directory, usually the directory of the .gltf file
//
// Returns:
//   - Resolver: the directory resolver
func NewDirResolver(dir string) Resolver {
	return &dirResolver{root: dir}
}

func (r *dirResolver) Resolve(name string) ([]byte, error) {
	clean := path.Clean("/" + filepath.ToSlash(name))[1:]
	if clean == "" || !fs.ValidPath(clean) {
		return nil, fmt.Errorf("invalid name %q", name)
	}
	return os.ReadFile(filepath.Join(r.root, filepath.FromSlash(clean)))
}

// zipResolver resolves names against the entries of a ZIP archive.
type zipResolver struct {
	files  map[string]*zip.File
	prefix string
}

var _ Resolver = &zipResolver{}

// NewZipResolver creates a Resolver over a ZIP archive held in memory. Names are resolved
// relative to the directory holding the archive's first .gltf entry, so archives that wrap the
// model in a top-level folder work too.
//
// Parameters:
//   - data: the archive bytes
//
// Returns:
//   - Resolver: the archive resolver
//   - string: the archive entry name of the .gltf document, "" if there is none
//   - error: error if the archive cannot be read
func NewZipResolver(data []byte) (Resolver, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open archive: %w", err)
	}

	r := &zipResolver{files: make(map[string]*zip.File, len(zr.File))}
	var document string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		r.files[f.Name] = f
		if document == "" && strings.EqualFold(path.Ext(f.Name), ".gltf") {
			document = f.Name
		}
	}

	if dir := path.Dir(document); document != "" && dir != "." {
		r.prefix = dir + "/"
	}
	return r, strings.TrimPrefix(document, r.prefix), nil
}

func (r *zipResolver) Resolve(name string) ([]byte, error) {
	f, ok := r.files[r.prefix+path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, errNotFound)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ArchiveFiles writes a file set (e.g. a text export) into a ZIP archive. Entries are written in
// name order so equal file sets produce equal archives.
//
// Parameters:
//   - files: the files keyed by name
//
// Returns:
//   - []byte: the archive bytes
//   - error: error if writing fails
func ArchiveFiles(files map[string][]byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, name := range slices.Sorted(maps.Keys(files)) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("failed to add %q: %w", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, fmt.Errorf("failed to write %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
