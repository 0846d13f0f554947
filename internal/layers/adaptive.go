package layers

import (
	"fmt"
	"regexp"

	"neurolint/internal/config"
	"neurolint/internal/layer"
)

// Adaptive is layer 7: user-taught rewrites from the adaptive section of the
// config. Rules run in order; a rule with an invalid pattern is an error at
// construction, not at run time.
func Adaptive(rules []config.AdaptiveRule) (layer.Descriptor, error) {
	subs := make([]substitution, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			name := r.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return layer.Descriptor{}, fmt.Errorf("adaptive rule %s: %w", name, err)
		}
		subs = append(subs, substitution{re: re, replace: r.Replace})
	}

	return layer.Descriptor{
		ID:          7,
		Name:        "adaptive",
		Description: fmt.Sprintf("Apply %d learned rewrite rule(s)", len(subs)),
		Pattern: func(src string) (string, int, error) {
			out, n := applyAll(src, subs)
			return out, n, nil
		},
	}, nil
}
