// Package layers is the built-in rule catalog for layers 1-7.
//
//  1. configuration  tsconfig / next.config modernization (pattern)
//  2. patterns       HTML entities, console statements (pattern)
//  3. components     list keys, <img> alt text (AST, pattern fallback)
//  4. hydration      typeof window guards for browser storage (AST, pattern fallback)
//  5. nextjs         'use client' directive (AST, pattern fallback)
//  6. testing        testing-library import migrations (pattern)
//  7. adaptive       user-taught rewrites from config (pattern)
package layers

import (
	"neurolint/internal/config"
	"neurolint/internal/layer"
)

// Builtin returns layers 1-6. Layer 7 depends on configuration; see Adaptive.
func Builtin() []layer.Descriptor {
	return []layer.Descriptor{
		Config(),
		Patterns(),
		Components(),
		Hydration(),
		NextJS(),
		Testing(),
	}
}

// Default builds the full catalog with the given adaptive rules.
func Default(rules []config.AdaptiveRule) (layer.Catalog, error) {
	adaptive, err := Adaptive(rules)
	if err != nil {
		return nil, err
	}
	return layer.NewCatalog(append(Builtin(), adaptive)...)
}

// FromConfig builds the full catalog from a loaded configuration.
func FromConfig(cfg *config.Config) (layer.Catalog, error) {
	if cfg == nil {
		return Default(nil)
	}
	return Default(cfg.Adaptive.Rules)
}
