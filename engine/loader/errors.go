package loader

import (
	"errors"
	"fmt"
	"strings"
)

// Error classes returned by export and decode. Match them with errors.Is.
var (
	// ErrFormat reports malformed containers, documents or out-of-range references.
	ErrFormat = errors.New("gltf: format error")

	// ErrResolution reports a buffer or image the resolver could not supply.
	ErrResolution = errors.New("gltf: resolution error")

	// ErrValidation reports schema violations found in strict mode.
	ErrValidation = errors.New("gltf: validation error")
)

// FormatError describes why a container or document is malformed.
// Reason is the full message; Err is the underlying cause, if any.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	return "gltf: format error: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// formatErrorf builds a FormatError from a format string. A %w verb is unwrapped into Err.
func formatErrorf(format string, args ...any) error {
	wrapped := fmt.Errorf(format, args...)
	return &FormatError{Reason: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// ResolutionError names the buffer or image a resolver failed to supply.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("gltf: cannot resolve %q: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// Violation is a single schema or layout problem found in a document.
type Violation struct {
	// Path is a JSON pointer to the offending value (e.g. /accessors/2/count).
	Path string

	// Reason describes the problem.
	Reason string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Reason
}

// ValidationError carries every violation found by a strict export.
type ValidationError struct {
	Violations []Violation
}

// Error summarizes the first few violations.
func (e *ValidationError) Error() string {
	const maxShown = 3
	b := &strings.Builder{}
	fmt.Fprintf(b, "gltf: validation error: %d violation(s)", len(e.Violations))
	for i, v := range e.Violations {
		if i == maxShown {
			fmt.Fprintf(b, "; ...")
			break
		}
		b.WriteString("; ")
		b.WriteString(v.String())
	}
	return b.String()
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
