package star

import (
	"context"
	"fmt"
	"io"
	"testing"

	"salesdw/internal/record"
	"salesdw/internal/warehouse"
)

// fakeStore implements warehouse.Store in memory.
type fakeStore struct {
	nextKey int64
	// tables[table] = inserted rows (column -> value)
	tables map[string][]map[string]any
	// keyColumn per table for InsertReturning bookkeeping
	selectCalls int
	insertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string][]map[string]any{}}
}

func (s *fakeStore) EnsureSchema(context.Context, []warehouse.TableSpec) error { return nil }

func (s *fakeStore) InsertReturning(_ context.Context, table, keyColumn string, columns []string, values []any) (int64, error) {
	s.insertCalls++
	s.nextKey++
	row := map[string]any{keyColumn: s.nextKey}
	for i, c := range columns {
		row[c] = values[i]
	}
	s.tables[table] = append(s.tables[table], row)
	return s.nextKey, nil
}

func (s *fakeStore) SelectKey(_ context.Context, table, keyColumn string, matchColumns []string, matchValues []any) (int64, bool, error) {
	s.selectCalls++
	for _, row := range s.tables[table] {
		match := true
		for i, c := range matchColumns {
			if record.NormalizeKey(row[c]) != record.NormalizeKey(matchValues[i]) {
				match = false
				break
			}
		}
		if match {
			key, ok := row[keyColumn].(int64)
			if !ok {
				return 0, false, fmt.Errorf("fake: %s.%s is not int64", table, keyColumn)
			}
			return key, true, nil
		}
	}
	return 0, false, nil
}

func (s *fakeStore) Insert(_ context.Context, table string, columns []string, values []any) error {
	s.insertCalls++
	row := map[string]any{}
	for i, c := range columns {
		row[c] = values[i]
	}
	s.tables[table] = append(s.tables[table], row)
	return nil
}

func (s *fakeStore) CopyFrom(context.Context, string, []string, io.Reader) (int64, error) {
	return 0, nil
}

func (s *fakeStore) Commit(context.Context) error { return nil }
func (s *fakeStore) Close(context.Context) error  { return nil }

func bookDimension(t *testing.T, store warehouse.Store) *Dimension {
	t.Helper()
	d, err := NewDimension(store, DimensionSpec{
		Name:       "book",
		Key:        "bookid",
		Attributes: []string{"book", "genre"},
	})
	if err != nil {
		t.Fatalf("NewDimension: %v", err)
	}
	return d
}

func locationDimension(t *testing.T, store warehouse.Store) *Dimension {
	t.Helper()
	d, err := NewDimension(store, DimensionSpec{
		Name:       "location",
		Key:        "locationid",
		Attributes: []string{"city", "region"},
		LookupAtts: []string{"city"},
	})
	if err != nil {
		t.Fatalf("NewDimension: %v", err)
	}
	return d
}

func TestDimension_EnsureIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	dim := bookDimension(t, store)

	row := record.Row{"book": "Dune", "genre": "SciFi"}
	first, err := dim.Ensure(ctx, row)
	if err != nil {
		t.Fatalf("first Ensure: %v", err)
	}

	second, err := dim.Ensure(ctx, record.Row{"book": "Dune", "genre": "SciFi"})
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}

	if first != second {
		t.Fatalf("Ensure not idempotent: %d vs %d", first, second)
	}
	if got := len(store.tables["book"]); got != 1 {
		t.Fatalf("expected exactly one book row, got %d", got)
	}
}

func TestDimension_LookupNeverMutatesStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	dim := bookDimension(t, store)

	if _, found, err := dim.Lookup(ctx, record.Row{"book": "Dune", "genre": "SciFi"}); err != nil || found {
		t.Fatalf("Lookup on empty dimension: (%v, %v)", found, err)
	}
	if store.insertCalls != 0 {
		t.Fatalf("Lookup wrote to the store: %d inserts", store.insertCalls)
	}
	if len(store.tables) != 0 {
		t.Fatalf("Lookup created rows: %v", store.tables)
	}
}

func TestDimension_CacheShortCircuitsRepeatLookups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	dim := bookDimension(t, store)

	row := record.Row{"book": "Dune", "genre": "SciFi"}
	key, err := dim.Insert(ctx, row)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Insert primes the cache, so this lookup must not hit the store.
	before := store.selectCalls
	got, found, err := dim.Lookup(ctx, row)
	if err != nil || !found || got != key {
		t.Fatalf("Lookup after Insert: (%d, %v, %v), want (%d, true, nil)", got, found, err, key)
	}
	if store.selectCalls != before {
		t.Fatalf("cached lookup hit the store")
	}
}

func TestDimension_LookupUsesOnlyLookupAtts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	dim := locationDimension(t, store)

	key, err := dim.Insert(ctx, record.Row{"city": "Springfield", "region": "Midwest"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// The sales rows carry no region; city alone must resolve the key.
	got, found, err := dim.Lookup(ctx, record.Row{"city": "Springfield"})
	if err != nil || !found || got != key {
		t.Fatalf("Lookup by city: (%d, %v, %v), want (%d, true, nil)", got, found, err, key)
	}

	if _, found, _ := dim.Lookup(ctx, record.Row{"city": "Atlantis"}); found {
		t.Fatalf("unknown city resolved to a key")
	}
}

func TestDimension_SpecValidation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	if _, err := NewDimension(store, DimensionSpec{Name: "book"}); err == nil {
		t.Fatalf("expected error for missing key")
	}
	if _, err := NewDimension(store, DimensionSpec{Name: "book", Key: "bookid"}); err == nil {
		t.Fatalf("expected error for missing attributes")
	}
}

func TestFactTable_InsertAppendsKeysAndMeasures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	facts, err := NewFactTable(store, FactTableSpec{
		Name:     "facttable",
		KeyRefs:  []string{"bookid", "locationid", "timeid"},
		Measures: []string{"sale"},
	})
	if err != nil {
		t.Fatalf("NewFactTable: %v", err)
	}

	row := record.Row{"bookid": int64(1), "locationid": int64(2), "timeid": int64(3), "sale": int64(7)}
	if err := facts.Insert(ctx, row); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	inserted := store.tables["facttable"]
	if len(inserted) != 1 {
		t.Fatalf("expected one fact row, got %d", len(inserted))
	}
	if inserted[0]["sale"].(int64) != 7 || inserted[0]["timeid"].(int64) != 3 {
		t.Fatalf("unexpected fact row: %v", inserted[0])
	}

	// Append-only: a second identical insert produces a second row.
	if err := facts.Insert(ctx, row); err != nil {
		t.Fatalf("second Insert: %v", err)
	}
	if got := len(store.tables["facttable"]); got != 2 {
		t.Fatalf("expected two fact rows, got %d", got)
	}
}

func TestFactTable_RejectsMissingForeignKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := newFakeStore()
	facts, err := NewFactTable(store, FactTableSpec{
		Name:     "facttable",
		KeyRefs:  []string{"bookid", "locationid", "timeid"},
		Measures: []string{"sale"},
	})
	if err != nil {
		t.Fatalf("NewFactTable: %v", err)
	}

	for _, row := range []record.Row{
		{"locationid": int64(2), "timeid": int64(3), "sale": int64(1)},               // absent
		{"bookid": nil, "locationid": int64(2), "timeid": int64(3), "sale": int64(1)}, // nil
	} {
		if err := facts.Insert(ctx, row); err == nil {
			t.Fatalf("expected error for row %v", row)
		}
	}
	if len(store.tables["facttable"]) != 0 {
		t.Fatalf("invalid rows reached the store")
	}
}
