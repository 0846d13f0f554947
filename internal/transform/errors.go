package transform

import (
	"errors"
	"fmt"

	"neurolint/internal/layer"
)

var (
	// ErrNoFallbackAvailable marks an AST failure on a layer without a pattern transform.
	ErrNoFallbackAvailable = errors.New("no fallback available")
	// ErrMissingTransform marks a layer that declares no usable transform.
	ErrMissingTransform = errors.New("layer declares no usable transform")
)

// ParseError means the source could not be parsed by the AST grammar.
type ParseError struct {
	Layer layer.ID
	Path  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("layer %d: parse error: %v", e.Layer, e.Err)
	}
	return fmt.Sprintf("layer %d: parse error in %s: %v", e.Layer, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransformError means a layer function returned an error or panicked.
type TransformError struct {
	Layer    layer.ID
	Strategy Strategy
	Err      error
	Panicked bool
}

func (e *TransformError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("layer %d: %s transform panicked: %v", e.Layer, e.Strategy, e.Err)
	}
	return fmt.Sprintf("layer %d: %s transform failed: %v", e.Layer, e.Strategy, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// GenerationError means edits recorded on a document could not be applied.
type GenerationError struct {
	Layer layer.ID
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("layer %d: generate failed: %v", e.Layer, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NoFallbackError carries the AST failure of a layer that has nothing to
// fall back to. It matches both ErrNoFallbackAvailable and the AST error.
type NoFallbackError struct {
	Layer  layer.ID
	ASTErr error
}

func (e *NoFallbackError) Error() string {
	return fmt.Sprintf("layer %d: %v: %v", e.Layer, ErrNoFallbackAvailable, e.ASTErr)
}

func (e *NoFallbackError) Unwrap() []error {
	return []error{ErrNoFallbackAvailable, e.ASTErr}
}

// MissingTransformError means neither an AST nor a pattern transform exists.
type MissingTransformError struct {
	Layer layer.ID
}

func (e *MissingTransformError) Error() string {
	return fmt.Sprintf("layer %d: %v", e.Layer, ErrMissingTransform)
}

func (e *MissingTransformError) Unwrap() error { return ErrMissingTransform }

// FallbackEligible reports whether err came from the AST path in a way that
// permits retrying with the pattern transform.
func FallbackEligible(err error) bool {
	var (
		pe *ParseError
		te *TransformError
		ge *GenerationError
	)
	return errors.As(err, &pe) || errors.As(err, &te) || errors.As(err, &ge) || errors.Is(err, ErrMissingTransform)
}
