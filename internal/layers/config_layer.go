package layers

import (
	"regexp"

	"neurolint/internal/layer"
)

// substitution is a regex rewrite with a replacement template.
type substitution struct {
	re      *regexp.Regexp
	replace string
}

// applyAll runs every substitution and counts individual matches.
func applyAll(src string, subs []substitution) (string, int) {
	changes := 0
	for _, s := range subs {
		n := len(s.re.FindAllStringIndex(src, -1))
		if n == 0 {
			continue
		}
		changes += n
		src = s.re.ReplaceAllString(src, s.replace)
	}
	return src, changes
}

var configSubs = []substitution{
	// tsconfig: legacy compile targets
	{regexp.MustCompile(`(?i)("target"\s*:\s*)"es(3|5)"`), `${1}"ES2020"`},
	// tsconfig: strict off
	{regexp.MustCompile(`("strict"\s*:\s*)false\b`), `${1}true`},
	// next.config: flags removed in current Next.js releases
	{regexp.MustCompile(`\n?[ \t]*\bappDir\s*:\s*true\s*,?`), ``},
	{regexp.MustCompile(`\n?[ \t]*\bswcMinify\s*:\s*(true|false)\s*,?`), ``},
	// next.config: strict mode off
	{regexp.MustCompile(`(\breactStrictMode\s*:\s*)false\b`), `${1}true`},
}

// Config is layer 1: project configuration files.
func Config() layer.Descriptor {
	return layer.Descriptor{
		ID:           1,
		Name:         "configuration",
		Description:  "Modernize tsconfig and next.config settings",
		FilePatterns: []string{"tsconfig.json", "tsconfig.*.json", "next.config.*", "package.json"},
		Pattern: func(src string) (string, int, error) {
			out, n := applyAll(src, configSubs)
			return out, n, nil
		},
	}
}
