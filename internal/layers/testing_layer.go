package layers

import (
	"regexp"

	"neurolint/internal/layer"
)

var testingSubs = []substitution{
	// renderHook and act moved into @testing-library/react 13.1+
	{regexp.MustCompile(`(\bfrom\s*)(['"])@testing-library/react-hooks['"]`), `${1}${2}@testing-library/react${2}`},
	{regexp.MustCompile(`(\brequire\(\s*)(['"])@testing-library/react-hooks['"]`), `${1}${2}@testing-library/react${2}`},
	{regexp.MustCompile(`(\bjest\.mock\(\s*)(['"])@testing-library/react-hooks['"]`), `${1}${2}@testing-library/react${2}`},
	// react-dom/test-utils act is deprecated in favour of react's
	{regexp.MustCompile(`(\bimport\s*\{\s*act\s*\}\s*from\s*)(['"])react-dom/test-utils['"]`), `${1}${2}react${2}`},
}

// Testing is layer 6: test file migrations.
func Testing() layer.Descriptor {
	return layer.Descriptor{
		ID:           6,
		Name:         "testing",
		Description:  "Migrate deprecated React testing imports",
		FilePatterns: []string{"*.test.*", "*.spec.*"},
		Pattern: func(src string) (string, int, error) {
			out, n := applyAll(src, testingSubs)
			return out, n, nil
		},
	}
}
