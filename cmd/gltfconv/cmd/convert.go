package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/loader"
	"github.com/Carmen-Shannon/oxy-gltf/engine/scene"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output>",
	Short: "Convert a model between the .gltf and .glb forms",
	Long: `Convert a model to the container form named by the output extension.

The input may be a .gltf file (buffers and images are read next to it), a .glb
file, a .zip archive holding a text export, or a SQLite asset store (.db).
A .gltf output writes its buffers and images next to the document.

Examples:
  gltfconv convert model.gltf model.glb
  gltfconv convert model.glb out/model.gltf --merge-buffers
  gltfconv convert assets.db model.glb --strict
  gltfconv convert millimetres.glb metres.glb --scale 0.001`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadInput(args[0])
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}

		scale, _ := cmd.Flags().GetFloat32("scale")
		if err := rescale(res.Scene, scale); err != nil {
			return err
		}

		if err := writeScene(res.Scene, args[1], exportOptions(cmd)); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[1])
		return nil
	},
}

func init() {
	convertCmd.Flags().Float32("scale", 1, "uniform scale applied to the whole scene")
	addExportFlags(convertCmd)
	rootCmd.AddCommand(convertCmd)
}

// rescale scales the whole scene uniformly through the root transform, which export folds into
// the top-level nodes.
func rescale(sc scene.Scene, factor float32) error {
	if factor == 1 {
		return nil
	}
	if factor <= 0 {
		return fmt.Errorf("scale must be positive, got %g", factor)
	}

	root, _ := sc.Node(sc.Root())
	s := common.ComposeTRS([3]float32{}, [4]float32{0, 0, 0, 1}, [3]float32{factor, factor, factor})
	var m [16]float32
	common.Mul4(m[:], s[:], root.Transform[:])
	return sc.SetTransform(sc.Root(), m)
}

// isAssetStore reports whether path names a SQLite asset store.
func isAssetStore(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

// loadInput decodes a model from disk. Asset stores are read through the SQLite resolver,
// everything else through the loader's extension dispatch.
func loadInput(path string, opts ...loader.DecodeOption) (*loader.ImportResult, error) {
	if !isAssetStore(path) {
		return ldr.Load(path, opts...)
	}

	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := loader.OpenAssetStore(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	res, err := ldr.Decode(nil, loader.ContainerText, loader.NewSQLiteResolver(db), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return res, nil
}

// writeScene exports a scene in the form named by the output extension.
func writeScene(sc scene.Scene, out string, opts []loader.ExportOption) error {
	kind, err := loader.ParseContainerKind(filepath.Ext(out))
	if err != nil {
		return fmt.Errorf("unsupported output %s: %w", out, err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}

	if kind == loader.ContainerBinary {
		glb, err := ldr.ExportGLB(sc, opts...)
		if err != nil {
			return err
		}
		return os.WriteFile(out, glb, 0o644)
	}

	files, err := ldr.ExportGLTF(sc, opts...)
	if err != nil {
		return err
	}
	return writeFiles(out, files)
}

// writeFiles writes a text export: the document under out, every other file beside it.
func writeFiles(out string, files map[string][]byte) error {
	dir := filepath.Dir(out)
	for name, data := range files {
		target := filepath.Join(dir, filepath.FromSlash(name))
		if name == loader.DocumentFileName {
			target = out
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
	}
	return nil
}
