package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"

	"github.com/Carmen-Shannon/oxy-gltf/engine/loader"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "gltfconv.toml"

// config is the on-disk gltfconv.toml. Flags given on the command line win over it.
type config struct {
	Generator       string         `toml:"generator"`
	Strict          bool           `toml:"strict"`
	MergeBuffers    bool           `toml:"merge_buffers"`
	MergePrimitives bool           `toml:"merge_primitives"`
	Workers         int            `toml:"workers"`
	Extras          map[string]any `toml:"extras"`
}

var (
	configPath string
	verbose    bool

	cfg    config
	logger *slog.Logger
	ldr    loader.Loader
)

var rootCmd = &cobra.Command{
	Use:   "gltfconv",
	Short: "Convert, inspect and validate glTF 2.0 models",
	Long: `gltfconv reads and writes glTF 2.0 models in both container forms:
the text form (.gltf plus external buffers and images) and the binary GLB form.

It can convert between the two, print the scene graph of a model, validate a
model against the glTF schema, convert many models in parallel, and pack a
text export into a ZIP archive or a SQLite asset store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		var err error
		if cfg, err = loadConfig(configPath, cmd.Flags().Changed("config")); err != nil {
			return err
		}

		ldr = loader.NewLoader(
			loader.WithLogger(logger),
			loader.WithGenerator(cfg.Generator),
			loader.WithStrict(cfg.Strict),
		)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// loadConfig reads the TOML config. A missing file is only an error when it was asked for explicitly.
func loadConfig(path string, explicit bool) (config, error) {
	c := config{
		Generator: loader.DefaultGenerator,
		Workers:   runtime.NumCPU(),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Generator == "" {
		c.Generator = loader.DefaultGenerator
	}
	return c, nil
}

// exportOptions turns the config plus any overriding flags into export options.
func exportOptions(cmd *cobra.Command) []loader.ExportOption {
	mergeBuffers := cfg.MergeBuffers
	if f := cmd.Flags().Lookup("merge-buffers"); f != nil && f.Changed {
		mergeBuffers, _ = cmd.Flags().GetBool("merge-buffers")
	}
	mergePrimitives := cfg.MergePrimitives
	if f := cmd.Flags().Lookup("merge-primitives"); f != nil && f.Changed {
		mergePrimitives, _ = cmd.Flags().GetBool("merge-primitives")
	}

	opts := []loader.ExportOption{
		loader.WithMergeBuffers(mergeBuffers),
		loader.WithMergePrimitives(mergePrimitives),
		loader.WithExtras(cfg.Extras),
	}
	if f := cmd.Flags().Lookup("strict"); f != nil && f.Changed {
		strict, _ := cmd.Flags().GetBool("strict")
		opts = append(opts, loader.WithStrictExport(strict))
	}
	return opts
}

// addExportFlags registers the flags that override the export section of the config.
func addExportFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("merge-buffers", false, "write a single buffer (text form only)")
	cmd.Flags().Bool("merge-primitives", false, "write one primitive per mesh, ignoring material groups")
	cmd.Flags().Bool("strict", false, "validate the document before writing it")
}
