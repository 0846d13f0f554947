package layer

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurolint/internal/syntax"
)

func upper(src string) (string, int, error) {
	return strings.ToUpper(src), 1, nil
}

func noopAST(*syntax.Document) error { return nil }

func TestDescriptorCapabilities(t *testing.T) {
	tests := []struct {
		name        string
		desc        Descriptor
		wantAST     bool
		wantPattern bool
	}{
		{"pattern only", Descriptor{ID: 2, Pattern: upper}, false, true},
		{"ast with fallback", Descriptor{ID: 3, SupportsAST: true, AST: noopAST, Pattern: upper}, true, true},
		{"ast without fallback", Descriptor{ID: 4, SupportsAST: true, AST: noopAST}, true, false},
		{"ast func but not supported", Descriptor{ID: 5, AST: noopAST, Pattern: upper}, false, true},
		{"supported but no func", Descriptor{ID: 6, SupportsAST: true}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantAST, tt.desc.HasAST())
			assert.Equal(t, tt.wantPattern, tt.desc.HasPattern())
		})
	}
}

func TestAppliesTo(t *testing.T) {
	cfg := Descriptor{ID: 1, FilePatterns: []string{"tsconfig.json", "next.config.*", "package.json"}}
	assert.True(t, cfg.AppliesTo("/repo/tsconfig.json"))
	assert.True(t, cfg.AppliesTo("next.config.mjs"))
	assert.False(t, cfg.AppliesTo("src/app/page.tsx"))

	all := Descriptor{ID: 2}
	assert.True(t, all.AppliesTo("whatever.go"))
}

func TestSortedAndSortIDs(t *testing.T) {
	in := []Descriptor{{ID: 5, Name: "five"}, {ID: 1, Name: "one"}, {ID: 3, Name: "three"}, {ID: 1, Name: "dup"}}
	got := Sorted(in)

	ids := make([]ID, 0, len(got))
	for _, d := range got {
		ids = append(ids, d.ID)
	}
	if diff := cmp.Diff([]ID{1, 3, 5}, ids); diff != "" {
		t.Errorf("Sorted() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "one", got[0].Name)
	assert.Equal(t, ID(5), in[0].ID, "input must not be reordered")

	assert.Equal(t, []ID{1, 3, 5}, SortIDs([]ID{5, 1, 3, 5, 1}))
}

func TestNewCatalog(t *testing.T) {
	cat, err := NewCatalog(
		Descriptor{ID: 3, Name: "components", SupportsAST: true, AST: noopAST},
		Descriptor{ID: 1, Name: "config", Pattern: upper},
	)
	require.NoError(t, err)

	layers := cat.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, ID(1), layers[0].ID)
	assert.Equal(t, ID(3), layers[1].ID)

	d, ok := cat.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "components", d.Name)
	assert.Equal(t, "3 components", d.Label())

	_, ok = cat.Lookup(7)
	assert.False(t, ok)
}

func TestNewCatalog_Rejects(t *testing.T) {
	_, err := NewCatalog(Descriptor{ID: 0, Pattern: upper})
	assert.Error(t, err, "id out of range")

	_, err = NewCatalog(Descriptor{ID: 8, Pattern: upper})
	assert.Error(t, err, "id out of range")

	_, err = NewCatalog(Descriptor{ID: 2, Pattern: upper}, Descriptor{ID: 2, Pattern: upper})
	assert.Error(t, err, "duplicate id")

	_, err = NewCatalog(Descriptor{ID: 2, Name: "empty"})
	assert.Error(t, err, "no transform")

	assert.Panics(t, func() { MustCatalog(Descriptor{ID: 9}) })
}
