package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolversDecodeTextExport(t *testing.T) {
	l := NewLoader()
	files, err := l.ExportGLTF(newTestScene(t))
	require.NoError(t, err)

	dir := t.TempDir()
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}

	db, err := OpenAssetStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, StoreFiles(context.Background(), db, files))

	archive, err := ArchiveFiles(files)
	require.NoError(t, err)
	zipRes, document, err := NewZipResolver(archive)
	require.NoError(t, err)
	assert.Equal(t, DocumentFileName, document)

	resolvers := map[string]Resolver{
		"map":    MapResolver(files),
		"dir":    NewDirResolver(dir),
		"sqlite": NewSQLiteResolver(db),
		"zip":    zipRes,
	}
	for name, r := range resolvers {
		t.Run(name, func(t *testing.T) {
			res, err := l.Decode(nil, ContainerText, r)
			require.NoError(t, err)
			assertTestScene(t, res.Scene)
		})
	}
}

func TestZipResolverWithFolder(t *testing.T) {
	l := NewLoader()
	files, err := l.ExportGLTF(newTestScene(t))
	require.NoError(t, err)

	nested := make(map[string][]byte, len(files))
	for name, data := range files {
		nested["pkg/"+name] = data
	}
	archive, err := ArchiveFiles(nested)
	require.NoError(t, err)

	r, document, err := NewZipResolver(archive)
	require.NoError(t, err)
	assert.Equal(t, DocumentFileName, document)
	data, err := r.Resolve("gltf_buffer_0.bin")
	require.NoError(t, err)
	assert.Equal(t, files["gltf_buffer_0.bin"], data)

	res, err := l.DecodeZip(archive)
	require.NoError(t, err)
	assertTestScene(t, res.Scene)
}

func TestDecodeZipWithoutDocument(t *testing.T) {
	archive, err := ArchiveFiles(map[string][]byte{"readme.txt": []byte("hi")})
	require.NoError(t, err)

	res, err := NewLoader().DecodeZip(archive)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Nil(t, res)

	_, err = NewLoader().DecodeZip([]byte("not a zip"))
	assert.Error(t, err)
}

func TestDirResolverStaysInside(t *testing.T) {
	base := t.TempDir()
	inner := filepath.Join(base, "inner")
	require.NoError(t, os.Mkdir(inner, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret.bin"), []byte("secret"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inner, "ok.bin"), []byte("ok"), 0o644))

	r := NewDirResolver(inner)
	data, err := r.Resolve("ok.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), data)

	_, err = r.Resolve("../secret.bin")
	assert.Error(t, err)
	_, err = r.Resolve("")
	assert.Error(t, err)
}

func TestMapResolverMissing(t *testing.T) {
	r := MapResolver{"a/b.bin": []byte{1}}

	data, err := r.Resolve("a/./b.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, data)

	_, err = r.Resolve("c.bin")
	assert.ErrorIs(t, err, errNotFound)
}

func TestSQLiteResolverReplaces(t *testing.T) {
	db, err := OpenAssetStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, StoreFiles(ctx, db, map[string][]byte{"a.bin": {1}}))
	require.NoError(t, StoreFiles(ctx, db, map[string][]byte{"a.bin": {2}}))

	r := NewSQLiteResolver(db)
	data, err := r.Resolve("a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, data)

	_, err = r.Resolve("b.bin")
	assert.ErrorIs(t, err, errNotFound)
}
