// Package star holds the dimensional-modeling abstractions: Dimension tables
// with ensure/lookup/insert semantics and the append-only FactTable. Both
// operate against an explicitly injected warehouse.Store; there is no ambient
// shared connection.
package star

import (
	"context"
	"fmt"

	"salesdw/internal/record"
	"salesdw/internal/warehouse"
)

// DimensionSpec is the static schema metadata for one dimension table.
type DimensionSpec struct {
	// Name is the warehouse table name.
	Name string
	// Key is the surrogate key column.
	Key string
	// Attributes are the descriptive columns, in insert order.
	Attributes []string
	// LookupAtts is the natural-key subset used for lookups.
	// Empty means all attributes.
	LookupAtts []string
}

// Dimension provides get-or-create access to one dimension table.
//
// A run-scoped cache maps the normalized lookup tuple to the surrogate key,
// so repeated source values cost one round-trip per run. The cache lives and
// dies with the Dimension object; there is no cross-run persistence.
//
// Invariant: a given combination of lookup attributes maps to at most one
// surrogate key. Insert does not check for duplicates, so preloads must only
// feed values that are not already present.
type Dimension struct {
	spec  DimensionSpec
	store warehouse.Store
	cache map[string]int64
}

// NewDimension builds a Dimension over store.
func NewDimension(store warehouse.Store, spec DimensionSpec) (*Dimension, error) {
	if spec.Name == "" || spec.Key == "" {
		return nil, fmt.Errorf("star: dimension name and key are required")
	}
	if len(spec.Attributes) == 0 {
		return nil, fmt.Errorf("star: dimension %s: attributes are required", spec.Name)
	}
	if len(spec.LookupAtts) == 0 {
		spec.LookupAtts = spec.Attributes
	}
	return &Dimension{
		spec:  spec,
		store: store,
		cache: make(map[string]int64),
	}, nil
}

// Name returns the dimension table name.
func (d *Dimension) Name() string { return d.spec.Name }

// Insert unconditionally inserts a new dimension row from the row's attribute
// values and returns the assigned surrogate key. The key is primed into the
// lookup cache.
func (d *Dimension) Insert(ctx context.Context, row record.Row) (int64, error) {
	values := d.attributeValues(row, d.spec.Attributes)

	key, err := d.store.InsertReturning(ctx, d.spec.Name, d.spec.Key, d.spec.Attributes, values)
	if err != nil {
		return 0, fmt.Errorf("star: insert into dimension %s: %w", d.spec.Name, err)
	}

	d.cache[record.CacheKey(d.attributeValues(row, d.spec.LookupAtts))] = key
	return key, nil
}

// Lookup resolves the surrogate key for the row's lookup attributes.
//
// A miss is (0, false, nil): absence is a result, not an error, and turning
// it into a failure is the caller's decision. Lookup never writes to the
// backing store.
func (d *Dimension) Lookup(ctx context.Context, row record.Row) (int64, bool, error) {
	lookupValues := d.attributeValues(row, d.spec.LookupAtts)
	ck := record.CacheKey(lookupValues)

	if key, ok := d.cache[ck]; ok {
		return key, true, nil
	}

	key, found, err := d.store.SelectKey(ctx, d.spec.Name, d.spec.Key, d.spec.LookupAtts, lookupValues)
	if err != nil {
		return 0, false, fmt.Errorf("star: lookup in dimension %s: %w", d.spec.Name, err)
	}
	if !found {
		return 0, false, nil
	}

	d.cache[ck] = key
	return key, true, nil
}

// Ensure returns the existing surrogate key for the row's lookup attributes,
// inserting a new dimension row when none exists. Idempotent get-or-create:
// repeated calls with the same lookup values return the same key and insert
// at most one row.
func (d *Dimension) Ensure(ctx context.Context, row record.Row) (int64, error) {
	key, found, err := d.Lookup(ctx, row)
	if err != nil {
		return 0, err
	}
	if found {
		return key, nil
	}
	return d.Insert(ctx, row)
}

func (d *Dimension) attributeValues(row record.Row, names []string) []any {
	values := make([]any, len(names))
	for i, name := range names {
		values[i] = row[name]
	}
	return values
}
