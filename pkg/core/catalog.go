package core

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tidwall/btree"

	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
)

var (
	// ErrFieldExists is returned by Create for a name already in use.
	ErrFieldExists = errors.New("core: field already exists")
	// ErrFieldNotFound is returned for lookups of unknown field names.
	ErrFieldNotFound = errors.New("core: field not found")
)

func fieldLess(a, b *Field) bool { return a.name < b.name }

// Catalog is the ordered registry of fields, keyed by name. Listing walks
// in ascending name order, which keeps API output deterministic.
type Catalog struct {
	mu     sync.RWMutex
	fields *btree.BTreeG[*Field]
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{fields: btree.NewBTreeG[*Field](fieldLess)}
}

// Create generates a new field from params and registers it under name,
// which must be unused.
func (c *Catalog) Create(name string, params galaxy.Params) (*Field, error) {
	if name == "" {
		return nil, errors.New("core: field name must not be empty")
	}
	f, err := NewField(name, params)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.fields.Get(f); ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldExists, name)
	}
	c.fields.Set(f)
	return f, nil
}

// Get returns the named field.
func (c *Catalog) Get(name string) (*Field, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.fields.Get(&Field{name: name})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return f, nil
}

// Drop removes the named field.
func (c *Catalog) Drop(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.fields.Delete(&Field{name: name}); !ok {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, name)
	}
	return nil
}

// List returns all fields in ascending name order.
func (c *Catalog) List() []*Field {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Field, 0, c.fields.Len())
	c.fields.Scan(func(f *Field) bool {
		out = append(out, f)
		return true
	})
	return out
}

// Len returns the number of registered fields.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fields.Len()
}
