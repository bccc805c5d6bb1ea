package star

import (
	"context"
	"fmt"

	"salesdw/internal/record"
	"salesdw/internal/warehouse"
)

// FactTableSpec is the static schema metadata for the fact table.
type FactTableSpec struct {
	Name string
	// KeyRefs are the foreign-key columns referencing dimensions.
	KeyRefs []string
	// Measures are the measure columns.
	Measures []string
}

// FactTable is an append-only sink for fact rows.
//
// Every Insert produces a new row; there is no upsert and duplicate business
// keys are not detected. That is deliberate: fact grain dedupe belongs
// upstream, not in the sink.
type FactTable struct {
	spec    FactTableSpec
	columns []string
	store   warehouse.Store
}

// NewFactTable builds a FactTable over store.
func NewFactTable(store warehouse.Store, spec FactTableSpec) (*FactTable, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("star: fact table name is required")
	}
	if len(spec.KeyRefs) == 0 {
		return nil, fmt.Errorf("star: fact table %s: key refs are required", spec.Name)
	}
	columns := make([]string, 0, len(spec.KeyRefs)+len(spec.Measures))
	columns = append(columns, spec.KeyRefs...)
	columns = append(columns, spec.Measures...)
	return &FactTable{spec: spec, columns: columns, store: store}, nil
}

// Name returns the fact table name.
func (f *FactTable) Name() string { return f.spec.Name }

// Insert appends one fact row from the row's foreign-key and measure values.
//
// Every foreign-key column must be present and non-nil; a sentinel or absent
// key means dimension resolution was skipped or failed, and inserting such a
// row would silently break referential integrity.
func (f *FactTable) Insert(ctx context.Context, row record.Row) error {
	values := make([]any, 0, len(f.columns))
	for _, c := range f.spec.KeyRefs {
		v, ok := row[c]
		if !ok || v == nil {
			return fmt.Errorf("star: fact %s: missing foreign key %q", f.spec.Name, c)
		}
		values = append(values, v)
	}
	for _, c := range f.spec.Measures {
		values = append(values, row[c])
	}

	if err := f.store.Insert(ctx, f.spec.Name, f.columns, values); err != nil {
		return fmt.Errorf("star: insert fact into %s: %w", f.spec.Name, err)
	}
	return nil
}
