package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Snapshot is a read-only index over a product set. It is safe for concurrent
// readers and never mutated after construction.
type Snapshot struct {
	products []Product
	byID     map[string]Product
	byKey    map[string][]Product
	loadedAt time.Time
}

// NewSnapshot indexes products. Duplicate or blank ids are rejected.
func NewSnapshot(products []Product) (*Snapshot, error) {
	s := &Snapshot{
		products: make([]Product, 0, len(products)),
		byID:     make(map[string]Product, len(products)),
		byKey:    make(map[string][]Product, len(products)),
		loadedAt: time.Now().UTC(),
	}
	for i, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: product %d has no id", i)
		}
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("catalog: duplicate product id %q", id)
		}
		p.ID = id
		s.byID[id] = p
		s.products = append(s.products, p)
		for _, key := range p.Keys() {
			s.byKey[key] = append(s.byKey[key], p)
		}
	}
	for key := range s.byKey {
		sortCandidates(s.byKey[key])
	}
	return s, nil
}

// sortCandidates orders by brand code, then band completeness descending, then id.
func sortCandidates(c []Product) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].BrandCode != c[j].BrandCode {
			return c[i].BrandCode < c[j].BrandCode
		}
		ci, cj := c[i].Band.Completeness(), c[j].Band.Completeness()
		if ci != cj {
			return ci > cj
		}
		return c[i].ID < c[j].ID
	})
}

// Resolve returns every product whose normalised key equals the normalised
// reference, in candidate order. ErrNotFound when nothing matches.
func (s *Snapshot) Resolve(reference string) ([]Product, error) {
	key := NormalizeReference(reference)
	if s == nil || key == "" {
		return nil, ErrNotFound
	}
	candidates := s.byKey[key]
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	out := make([]Product, len(candidates))
	copy(out, candidates)
	return out, nil
}

// Get returns the product with id or ErrProductNotFound.
func (s *Snapshot) Get(id string) (Product, error) {
	if s != nil {
		if p, ok := s.byID[strings.TrimSpace(id)]; ok {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
}

// Products returns the indexed products in load order.
func (s *Snapshot) Products() []Product {
	if s == nil {
		return nil
	}
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

// Len reports the number of products.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.products)
}

// LoadedAt reports when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loadedAt
}
