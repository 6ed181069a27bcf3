package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-gltf/engine/loader"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <input> <output>",
	Short: "Pack a model into a ZIP archive or a SQLite asset store",
	Long: `Export a model in the text form and pack the document, buffers and images
into a single file. A .zip output writes a ZIP archive; a .db output stores every
file in the assets table of a SQLite database, replacing entries of the same name.

Both outputs can be read back by every other command.

Examples:
  gltfconv archive model.glb model.zip
  gltfconv archive model.gltf assets.db --merge-buffers`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, out := args[0], args[1]
		if !isAssetStore(out) && !strings.EqualFold(filepath.Ext(out), ".zip") {
			return fmt.Errorf("unsupported archive %s: want .zip or .db", out)
		}

		res, err := loadInput(in)
		if err != nil {
			return err
		}
		files, err := ldr.ExportGLTF(res.Scene, exportOptions(cmd)...)
		if err != nil {
			return err
		}

		if isAssetStore(out) {
			db, err := loader.OpenAssetStore(out)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := loader.StoreFiles(cmd.Context(), db, files); err != nil {
				return err
			}
		} else {
			data, err := loader.ArchiveFiles(files)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
		}

		fmt.Printf("Packed %d files into %s\n", len(files), out)
		return nil
	},
}

func init() {
	addExportFlags(archiveCmd)
	rootCmd.AddCommand(archiveCmd)
}
