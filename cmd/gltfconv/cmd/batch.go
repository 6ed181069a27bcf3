package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-gltf/engine/loader"
	"github.com/Carmen-Shannon/oxy-gltf/engine/profiler"
	"github.com/spf13/cobra"
)

var batchFormat string

var batchCmd = &cobra.Command{
	Use:   "batch <output-dir> <input>...",
	Short: "Convert many models in parallel",
	Long: `Convert every input into output-dir using a pool of workers. The pool size
comes from the "workers" config key and defaults to the number of CPUs.

GLB outputs are written as <output-dir>/<name>.glb. Text outputs get a folder
each, <output-dir>/<name>/<name>.gltf, so their buffer files cannot collide.

Examples:
  gltfconv batch out/ models/*.gltf
  gltfconv batch out/ a.glb b.glb --format gltf --merge-buffers`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := loader.ParseContainerKind(batchFormat)
		if err != nil {
			return err
		}

		outDir, inputs := args[0], args[1:]
		stats, err := runBatch(outDir, inputs, kind, exportOptions(cmd))
		fmt.Printf("Converted %d of %d models (%d bytes) in %s\n",
			stats.Items, len(inputs), stats.Bytes, stats.Elapsed.Round(time.Millisecond))
		return err
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "glb", "output form: glb or gltf")
	addExportFlags(batchCmd)
	rootCmd.AddCommand(batchCmd)
}

// batchOutput returns the output path for one batch input.
func batchOutput(outDir, input string, kind loader.ContainerKind) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if kind == loader.ContainerBinary {
		return filepath.Join(outDir, name+".glb")
	}
	return filepath.Join(outDir, name, name+".gltf")
}

// convertOne converts a single input and returns the size of the written document.
func convertOne(in, out string, opts []loader.ExportOption) (int, error) {
	res, err := loadInput(in)
	if err != nil {
		return 0, err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s: %s\n", in, w)
	}
	if err := writeScene(res.Scene, out, opts); err != nil {
		return 0, err
	}
	info, err := os.Stat(out)
	if err != nil {
		return 0, err
	}
	return int(info.Size()), nil
}

// runBatch converts every input into outDir on a worker pool sized by the config. It waits for
// all conversions and joins their errors.
func runBatch(outDir string, inputs []string, kind loader.ContainerKind, opts []loader.ExportOption) (profiler.Stats, error) {
	pool := worker.NewDynamicWorkerPool(max(cfg.Workers, 1), 256, time.Second)
	defer pool.Stop()
	prof := profiler.NewProfiler(logger, time.Second)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i, in := range inputs {
		out := batchOutput(outDir, in, kind)
		wg.Add(1)
		pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				size, err := convertOne(in, out, opts)
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", in, err))
					mu.Unlock()
					return nil, err
				}
				logger.Debug("converted", "input", in, "output", out, "bytes", size)
				prof.Tick(size)
				return out, nil
			},
		})
	}
	wg.Wait()

	return prof.Stats(), errors.Join(errs...)
}
