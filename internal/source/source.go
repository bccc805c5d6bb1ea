// Package source produces record.Rows from the two extract channels this
// pipeline knows about: a SQL query result set and a delimited text file.
//
// Both sources are lazy, forward-only and finite. Re-iterating requires a
// fresh query execution or a reopened file; the types do not attempt to hide
// that.
package source

import "salesdw/internal/record"

// RowSource is a forward-only iterator over rows.
//
// Usage follows the database/sql rows idiom:
//
//	for src.Next() {
//	    row := src.Row()
//	    ...
//	}
//	if err := src.Err(); err != nil { ... }
//
// Row() is only valid after a true Next(). Err() must be checked after the
// loop; a source that fails mid-stream terminates iteration and reports the
// cause there.
type RowSource interface {
	Next() bool
	Row() record.Row
	Err() error
	Close() error
}
