package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"salesdw/internal/record"
)

// Rows is the subset of pgx.Rows the SQL source needs.
//
// Keeping the interface this narrow lets tests drive the source with a fake
// instead of a live connection.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// SQLSource streams rows from an executed query, zipping each result row's
// positional values with the configured field names.
type SQLSource struct {
	rows   Rows
	fields []string
	cur    record.Row
	err    error
}

// NewSQLSource executes query on conn and returns a source over its results.
//
// A failed execution surfaces here, not on first Next(); the caller owns conn
// and must still close it.
func NewSQLSource(ctx context.Context, conn *pgx.Conn, query string, fields []string) (*SQLSource, error) {
	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("source: query %q: %w", query, err)
	}
	return FromRows(rows, fields), nil
}

// FromRows wraps an already-executed result set.
func FromRows(rows Rows, fields []string) *SQLSource {
	return &SQLSource{rows: rows, fields: fields}
}

func (s *SQLSource) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		return false
	}

	vals, err := s.rows.Values()
	if err != nil {
		s.err = fmt.Errorf("source: read row values: %w", err)
		return false
	}

	// Zip positionally; a row shorter than fields leaves the trailing names
	// absent, a longer one drops the extra values.
	row := make(record.Row, len(s.fields))
	for i, name := range s.fields {
		if i >= len(vals) {
			break
		}
		row[name] = vals[i]
	}
	s.cur = row
	return true
}

func (s *SQLSource) Row() record.Row { return s.cur }

func (s *SQLSource) Err() error { return s.err }

func (s *SQLSource) Close() error {
	s.rows.Close()
	return nil
}
