package layer

import "fmt"

// Catalog supplies layer descriptors to the pipeline.
type Catalog interface {
	// Layers returns every descriptor in ascending ID order.
	Layers() []Descriptor
	Lookup(id ID) (Descriptor, bool)
}

type staticCatalog struct {
	ordered []Descriptor
	byID    map[ID]Descriptor
}

// NewCatalog builds an immutable catalog. IDs must be valid and unique, and
// every descriptor needs at least one transform function.
func NewCatalog(descs ...Descriptor) (Catalog, error) {
	byID := make(map[ID]Descriptor, len(descs))
	for _, d := range descs {
		if !d.ID.Valid() {
			return nil, fmt.Errorf("layer %q: id %d out of range %d-%d", d.Name, d.ID, MinID, MaxID)
		}
		if _, dup := byID[d.ID]; dup {
			return nil, fmt.Errorf("layer %d registered twice", d.ID)
		}
		if d.AST == nil && d.Pattern == nil {
			return nil, fmt.Errorf("layer %d (%s) has no transform", d.ID, d.Name)
		}
		byID[d.ID] = d
	}
	return &staticCatalog{ordered: Sorted(descs), byID: byID}, nil
}

// MustCatalog is NewCatalog for static catalogs known to be well-formed.
func MustCatalog(descs ...Descriptor) Catalog {
	c, err := NewCatalog(descs...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *staticCatalog) Layers() []Descriptor {
	return append([]Descriptor(nil), c.ordered...)
}

func (c *staticCatalog) Lookup(id ID) (Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}
