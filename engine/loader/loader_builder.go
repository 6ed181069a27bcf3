package loader

import (
	"log/slog"
	"maps"
)

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger is an option builder that sets the logger receiving decode warnings and export statistics.
//
// Parameters:
//   - logger: the logger, nil keeps slog.Default()
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *slog.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithGenerator is an option builder that sets the asset generator string of exported documents.
//
// Parameters:
//   - generator: the generator string
//
// Returns:
//   - LoaderBuilderOption: a function that applies the generator option to a loader
func WithGenerator(generator string) LoaderBuilderOption {
	return func(l *loader) {
		l.generator = generator
	}
}

// WithStrict is an option builder that makes every export of the loader validate its document
// before serializing it. Single exports can still override it with WithStrictExport.
//
// Parameters:
//   - strict: true to validate by default
//
// Returns:
//   - LoaderBuilderOption: a function that applies the strict option to a loader
func WithStrict(strict bool) LoaderBuilderOption {
	return func(l *loader) {
		l.strict = strict
	}
}

// exportConfig holds the options of one export call.
type exportConfig struct {
	mergeBuffers    bool
	mergePrimitives bool
	strict          bool
	extras          map[string]any
	postprocessor   TreePostprocessor
}

// ExportOption is a functional option for a single export call.
type ExportOption func(*exportConfig)

func newExportConfig(strict bool, options []ExportOption) *exportConfig {
	cfg := &exportConfig{strict: strict}
	for _, option := range options {
		option(cfg)
	}
	return cfg
}

// WithMergeBuffers packs all binary data into one buffer. Text exports then write a single
// gltf_buffer.bin instead of one gltf_buffer_<i>.bin per geometry.
func WithMergeBuffers(merge bool) ExportOption {
	return func(c *exportConfig) {
		c.mergeBuffers = merge
	}
}

// WithMergePrimitives flattens the material groups of every geometry into a single primitive.
func WithMergePrimitives(merge bool) ExportOption {
	return func(c *exportConfig) {
		c.mergePrimitives = merge
	}
}

// WithExtras merges extras over the scene's stored extras in scenes[0].extras.
// The map is copied, later calls add to earlier ones.
//
// Parameters:
//   - extras: the extras to merge
//
// Returns:
//   - ExportOption: a function that applies the extras option
func WithExtras(extras map[string]any) ExportOption {
	return func(c *exportConfig) {
		if c.extras == nil {
			c.extras = make(map[string]any, len(extras))
		}
		maps.Copy(c.extras, extras)
	}
}

// WithTreePostprocessor sets the hook run on the assembled document right before validation and serialization.
func WithTreePostprocessor(p TreePostprocessor) ExportOption {
	return func(c *exportConfig) {
		c.postprocessor = p
	}
}

// WithStrictExport turns schema and layout validation on or off for one export, overriding the loader default.
// A strict export that finds violations fails with a *ValidationError listing all of them.
func WithStrictExport(strict bool) ExportOption {
	return func(c *exportConfig) {
		c.strict = strict
	}
}

// decodeConfig holds the options of one decode call.
type decodeConfig struct {
	mergePrimitives bool
}

// DecodeOption is a functional option for a single decode call.
type DecodeOption func(*decodeConfig)

func newDecodeConfig(options []DecodeOption) *decodeConfig {
	cfg := &decodeConfig{}
	for _, option := range options {
		option(cfg)
	}
	return cfg
}

// WithDecodeMergePrimitives concatenates all primitives of a mesh into one geometry with a
// material group per primitive.
func WithDecodeMergePrimitives(merge bool) DecodeOption {
	return func(c *decodeConfig) {
		c.mergePrimitives = merge
	}
}
