// Package transform executes a single layer against a single source text,
// choosing between the AST and pattern strategies.
package transform

import (
	"fmt"
	"time"

	"neurolint/internal/layer"
	"neurolint/internal/logging"
	"neurolint/internal/syntax"
)

// Strategy names the path that produced a result.
type Strategy string

const (
	StrategyAST     Strategy = "ast"
	StrategyPattern Strategy = "pattern"
	StrategyNone    Strategy = "none"
)

// Input is the text handed to a layer. Path selects the grammar and is used
// in diagnostics; it may be empty.
type Input struct {
	Code string
	Path string
}

// slowAST is the parse, transform and generate time above which a layer is
// logged as slow.
const slowAST = 250 * time.Millisecond

// ASTExecutor parses, runs a layer's AST function and regenerates source.
// The parsed tree lives only for the duration of one call.
type ASTExecutor struct{}

// Transform returns the regenerated text and the number of edits applied.
// Failures are *ParseError, *TransformError or *GenerationError.
func (e *ASTExecutor) Transform(in Input, desc layer.Descriptor) (string, int, error) {
	if desc.AST == nil {
		return "", 0, &MissingTransformError{Layer: desc.ID}
	}

	timer := logging.StartTimer(logging.CategoryAST, fmt.Sprintf("layer %d ast on %s", desc.ID, in.Path))
	defer timer.StopWithThreshold(slowAST)

	doc, err := syntax.Parse(in.Code, in.Path)
	if err != nil {
		return "", 0, &ParseError{Layer: desc.ID, Path: in.Path, Err: err}
	}
	defer doc.Close()

	if err := callAST(desc.AST, doc); err != nil {
		return "", 0, withLayer(err, desc.ID, StrategyAST)
	}

	out, err := doc.Generate()
	if err != nil {
		return "", 0, &GenerationError{Layer: desc.ID, Err: err}
	}

	logging.ASTDebug("layer %d: %d edit(s) on %s", desc.ID, doc.EditCount(), in.Path)
	return out, doc.EditCount(), nil
}

// PatternExecutor invokes a layer's textual transform directly.
type PatternExecutor struct{}

// Transform runs desc.Pattern on the input. Errors and panics from the layer
// surface as *TransformError.
func (e *PatternExecutor) Transform(in Input, desc layer.Descriptor) (string, int, error) {
	if desc.Pattern == nil {
		return "", 0, &MissingTransformError{Layer: desc.ID}
	}

	out, changes, err := callPattern(desc.Pattern, in.Code)
	if err != nil {
		return "", 0, withLayer(err, desc.ID, StrategyPattern)
	}

	logging.PatternDebug("layer %d: %d substitution(s) on %s", desc.ID, changes, in.Path)
	return out, changes, nil
}

func callAST(fn layer.ASTFunc, doc *syntax.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TransformError{Strategy: StrategyAST, Err: fmt.Errorf("%v", r), Panicked: true}
		}
	}()
	if err := fn(doc); err != nil {
		return &TransformError{Strategy: StrategyAST, Err: err}
	}
	return nil
}

func callPattern(fn layer.PatternFunc, src string) (out string, changes int, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, changes = "", 0
			err = &TransformError{Strategy: StrategyPattern, Err: fmt.Errorf("%v", r), Panicked: true}
		}
	}()
	out, changes, err = fn(src)
	if err != nil {
		return "", 0, &TransformError{Strategy: StrategyPattern, Err: err}
	}
	return out, changes, nil
}

func withLayer(err error, id layer.ID, s Strategy) error {
	if te, ok := err.(*TransformError); ok {
		te.Layer = id
		return te
	}
	return &TransformError{Layer: id, Strategy: s, Err: err}
}
