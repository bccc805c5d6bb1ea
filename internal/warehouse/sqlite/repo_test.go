package sqlite

import (
	"context"
	"strings"
	"testing"

	"salesdw/internal/warehouse"
)

func starTables() []warehouse.TableSpec {
	return []warehouse.TableSpec{
		{
			Name:       "location",
			PrimaryKey: &warehouse.PrimaryKeySpec{Name: "locationid", Type: "serial"},
			Columns: []warehouse.ColumnSpec{
				{Name: "city", Type: "text"},
				{Name: "region", Type: "text"},
			},
			Constraints: []warehouse.ConstraintSpec{{Kind: "unique", Columns: []string{"city"}}},
		},
		{
			Name:       "book",
			PrimaryKey: &warehouse.PrimaryKeySpec{Name: "bookid", Type: "serial"},
			Columns: []warehouse.ColumnSpec{
				{Name: "book", Type: "text"},
				{Name: "genre", Type: "text"},
			},
		},
	}
}

func openMemRepo(t *testing.T) warehouse.Store {
	t.Helper()
	s, err := New(context.Background(), warehouse.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestRepo_InsertLookupRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemRepo(t)

	if err := s.EnsureSchema(ctx, starTables()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	key, err := s.InsertReturning(ctx, "location", "locationid",
		[]string{"city", "region"}, []any{"Springfield", "Midwest"})
	if err != nil {
		t.Fatalf("InsertReturning: %v", err)
	}
	if key == 0 {
		t.Fatalf("expected non-zero surrogate key")
	}

	got, found, err := s.SelectKey(ctx, "location", "locationid", []string{"city"}, []any{"Springfield"})
	if err != nil {
		t.Fatalf("SelectKey: %v", err)
	}
	if !found || got != key {
		t.Fatalf("lookup: got (%d, %v), want (%d, true)", got, found, key)
	}

	_, found, err = s.SelectKey(ctx, "location", "locationid", []string{"city"}, []any{"Atlantis"})
	if err != nil {
		t.Fatalf("SelectKey miss: %v", err)
	}
	if found {
		t.Fatalf("expected miss for unknown city")
	}
}

func TestRepo_EnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openMemRepo(t)

	if err := s.EnsureSchema(ctx, starTables()); err != nil {
		t.Fatalf("first EnsureSchema: %v", err)
	}
	if err := s.EnsureSchema(ctx, starTables()); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestRepo_CopyFromTabDelimited(t *testing.T) {
	ctx := context.Background()
	s := openMemRepo(t)

	staging := []warehouse.TableSpec{{
		Name: "staging",
		Columns: []warehouse.ColumnSpec{
			{Name: "a", Type: "text"},
			{Name: "b", Type: "text"},
		},
	}}
	if err := s.EnsureSchema(ctx, staging); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	n, err := s.CopyFrom(ctx, "staging", []string{"a", "b"},
		strings.NewReader("1\tone\n2\ttwo\n3\tthree\n"))
	if err != nil {
		t.Fatalf("CopyFrom: %v", err)
	}
	if n != 3 {
		t.Fatalf("copied %d rows, want 3", n)
	}

	// Field-count mismatch is a hard error, not a skip.
	if _, err := s.CopyFrom(ctx, "staging", []string{"a", "b"}, strings.NewReader("lonely\n")); err == nil {
		t.Fatalf("expected error for field count mismatch")
	}
}

func TestRepo_CloseWithoutCommitRollsBack(t *testing.T) {
	ctx := context.Background()

	// File-backed DB so a second store can observe (or not observe) the first
	// store's writes after close.
	path := t.TempDir() + "/dw.db"

	s, err := New(ctx, warehouse.Config{Kind: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.EnsureSchema(ctx, starTables()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := s.Commit(ctx); err != nil {
		t.Fatalf("Commit schema: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Second run: insert but never commit.
	s, err = New(ctx, warehouse.Config{Kind: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := s.InsertReturning(ctx, "location", "locationid",
		[]string{"city", "region"}, []any{"Springfield", "Midwest"}); err != nil {
		t.Fatalf("InsertReturning: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close without commit: %v", err)
	}

	// Third run must not see the rolled-back row.
	s, err = New(ctx, warehouse.Config{Kind: "sqlite", DSN: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close(ctx)

	_, found, err := s.SelectKey(ctx, "location", "locationid", []string{"city"}, []any{"Springfield"})
	if err != nil {
		t.Fatalf("SelectKey: %v", err)
	}
	if found {
		t.Fatalf("uncommitted insert survived close")
	}
}

func TestBuildCreateSQL_MapsSerialToIntegerPK(t *testing.T) {
	t.Parallel()

	sql, err := buildCreateSQL(starTables()[0])
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if !strings.Contains(sql, `"locationid" INTEGER PRIMARY KEY`) {
		t.Fatalf("serial not mapped to INTEGER PRIMARY KEY: %q", sql)
	}
}

func TestBuildInsertSQL_Placeholders(t *testing.T) {
	t.Parallel()

	sql := buildInsertSQL("book", []string{"book", "genre"})
	if sql != `INSERT INTO book ("book", "genre") VALUES (?, ?)` {
		t.Fatalf("got %q", sql)
	}
}
