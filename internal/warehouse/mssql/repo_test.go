package mssql

import (
	"strings"
	"testing"

	"salesdw/internal/warehouse"
)

func TestBuildInsertSQL_OutputInserted(t *testing.T) {
	t.Parallel()

	sql := buildInsertSQL("book", []string{"book", "genre"}, "bookid")
	want := "INSERT INTO book ([book], [genre]) OUTPUT INSERTED.[bookid] VALUES (@p1, @p2)"
	if sql != want {
		t.Fatalf("got %q want %q", sql, want)
	}
}

func TestBuildInsertSQL_PlainInsert(t *testing.T) {
	t.Parallel()

	sql := buildInsertSQL("facttable", []string{"bookid", "locationid", "timeid", "sale"}, "")
	if strings.Contains(sql, "OUTPUT") {
		t.Fatalf("unexpected OUTPUT clause: %q", sql)
	}
	if !strings.Contains(sql, "VALUES (@p1, @p2, @p3, @p4)") {
		t.Fatalf("unexpected placeholder numbering: %q", sql)
	}
}

func TestBuildLookupSQL(t *testing.T) {
	t.Parallel()

	sql := buildLookupSQL("location", "locationid", []string{"city"})
	want := "SELECT [locationid] FROM location WHERE [city] = @p1"
	if sql != want {
		t.Fatalf("got %q want %q", sql, want)
	}
}

func TestBuildCreateSQL_ObjectIDGuardAndIdentity(t *testing.T) {
	t.Parallel()

	spec := warehouse.TableSpec{
		Name:       "book",
		PrimaryKey: &warehouse.PrimaryKeySpec{Name: "bookid", Type: "serial"},
		Columns: []warehouse.ColumnSpec{
			{Name: "book", Type: "text"},
			{Name: "genre", Type: "text"},
		},
		Constraints: []warehouse.ConstraintSpec{{Kind: "unique", Columns: []string{"book", "genre"}}},
	}

	sql, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}

	if !strings.HasPrefix(sql, "IF OBJECT_ID(N'book', N'U') IS NULL CREATE TABLE book") {
		t.Fatalf("missing existence guard: %q", sql)
	}
	if !strings.Contains(sql, "[bookid] INT IDENTITY(1,1) PRIMARY KEY") {
		t.Fatalf("serial not mapped to IDENTITY: %q", sql)
	}
	if !strings.Contains(sql, "UNIQUE ([book], [genre])") {
		t.Fatalf("missing unique constraint: %q", sql)
	}
	// Natural-key columns must stay indexable for the UNIQUE constraint.
	if strings.Contains(sql, "NVARCHAR(MAX)") {
		t.Fatalf("text mapped to non-indexable NVARCHAR(MAX): %q", sql)
	}
}

func TestMsIdent_EscapesBrackets(t *testing.T) {
	t.Parallel()

	if got := msIdent("we]ird"); got != "[we]]ird]" {
		t.Fatalf("got %q", got)
	}
}
