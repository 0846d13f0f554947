// Package selector recommends which layers are worth running on a file.
// It only reads the source; nothing here transforms code.
package selector

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"neurolint/internal/layer"
	"neurolint/internal/logging"
)

// Rule maps a predicate over (code, path) to a layer.
type Rule struct {
	Layer  layer.ID
	Reason string
	Match  func(code, path string) bool
}

// Recommendation lists applicable layers (sorted, unique) and one reason per
// matched rule. Several reasons may point at the same layer.
type Recommendation struct {
	Layers  []layer.ID `json:"layers"`
	Reasons []string   `json:"reasons"`
}

// Contains reports whether id was recommended.
func (r Recommendation) Contains(id layer.ID) bool {
	for _, l := range r.Layers {
		if l == id {
			return true
		}
	}
	return false
}

func (r Recommendation) clone() Recommendation {
	return Recommendation{
		Layers:  append([]layer.ID(nil), r.Layers...),
		Reasons: append([]string(nil), r.Reasons...),
	}
}

// Recommender is satisfied by *Selector and *Cached.
type Recommender interface {
	Recommend(code, path string) Recommendation
}

// Selector evaluates every rule independently; there is no early exit.
type Selector struct {
	rules []Rule
}

// New returns a selector with DefaultRules followed by extra.
func New(extra ...Rule) *Selector {
	rules := append(DefaultRules(), extra...)
	return &Selector{rules: rules}
}

// Recommend runs all rules over the unmodified source.
func (s *Selector) Recommend(code, path string) Recommendation {
	var rec Recommendation
	seen := make(map[layer.ID]bool)
	for _, r := range s.rules {
		if !r.Match(code, path) {
			continue
		}
		rec.Reasons = append(rec.Reasons, r.Reason)
		if !seen[r.Layer] {
			seen[r.Layer] = true
			rec.Layers = append(rec.Layers, r.Layer)
		}
	}
	sort.Slice(rec.Layers, func(i, j int) bool { return rec.Layers[i] < rec.Layers[j] })

	logging.SelectorDebug("%s: recommended %v (%d reason(s))", path, rec.Layers, len(rec.Reasons))
	return rec
}

var (
	configFiles = map[string]bool{
		"tsconfig.json":   true,
		"next.config.js":  true,
		"next.config.mjs": true,
		"next.config.ts":  true,
		"package.json":    true,
	}

	htmlEntityRe   = regexp.MustCompile(`&(quot|amp|lt|gt|apos|nbsp|#39|#x27);`)
	consoleRe      = regexp.MustCompile(`\bconsole\.(log|debug|info)\s*\(`)
	mapJSXRe       = regexp.MustCompile(`\.map\(\s*(\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>\s*\(?\s*<`)
	imgTagRe       = regexp.MustCompile(`<img\b[^>]*>`)
	altAttrRe      = regexp.MustCompile(`\balt\s*=`)
	clientGlobalRe = regexp.MustCompile(`\b(localStorage|sessionStorage)\.|\bwindow\.|\bdocument\.`)
	windowGuardRe  = regexp.MustCompile(`typeof\s+window`)
	clientHookRe   = regexp.MustCompile(`\buse(State|Effect|LayoutEffect|Reducer|Ref|Context|Callback|Memo)\s*\(|\bon(Click|Change|Submit|KeyDown|KeyUp|Input|Focus|Blur)\s*=\s*\{`)
	useClientRe    = regexp.MustCompile(`(?m)^\s*['"]use client['"]`)
	hooksLibRe     = regexp.MustCompile(`['"]@testing-library/react-hooks['"]`)
)

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func isJSXFile(path string) bool {
	e := ext(path)
	return e == ".tsx" || e == ".jsx"
}

func isTestFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.Contains(base, ".test.") || strings.Contains(base, ".spec.") ||
		strings.Contains(filepath.ToSlash(path), "__tests__/")
}

// DefaultRules returns the built-in heuristics.
func DefaultRules() []Rule {
	return []Rule{
		{
			Layer:  1,
			Reason: "configuration file (tsconfig/next.config/package.json)",
			Match: func(_, path string) bool {
				return configFiles[strings.ToLower(filepath.Base(path))]
			},
		},
		{
			Layer:  2,
			Reason: "encoded HTML entities in source",
			Match: func(code, _ string) bool {
				return htmlEntityRe.MatchString(code)
			},
		},
		{
			Layer:  2,
			Reason: "direct console statements",
			Match: func(code, _ string) bool {
				return consoleRe.MatchString(code)
			},
		},
		{
			Layer:  3,
			Reason: "list rendering without a key prop",
			Match: func(code, path string) bool {
				return isJSXFile(path) && mapJSXRe.MatchString(code) && !strings.Contains(code, "key=")
			},
		},
		{
			Layer:  3,
			Reason: "<img> without alt text",
			Match: func(code, path string) bool {
				if !isJSXFile(path) && ext(path) != ".js" {
					return false
				}
				for _, tag := range imgTagRe.FindAllString(code, -1) {
					if !altAttrRe.MatchString(tag) {
						return true
					}
				}
				return false
			},
		},
		{
			Layer:  4,
			Reason: "client-only globals without a typeof window guard",
			Match: func(code, _ string) bool {
				return clientGlobalRe.MatchString(code) && !windowGuardRe.MatchString(code)
			},
		},
		{
			Layer:  5,
			Reason: "hooks or event handlers without a 'use client' directive",
			Match: func(code, path string) bool {
				return isJSXFile(path) && clientHookRe.MatchString(code) && !useClientRe.MatchString(code)
			},
		},
		{
			Layer:  6,
			Reason: "test imports the deprecated @testing-library/react-hooks",
			Match: func(code, path string) bool {
				return isTestFile(path) && hooksLibRe.MatchString(code)
			},
		},
	}
}
