// Package transform holds the pure row transforms applied between extract and
// load. There is exactly one today: splitting the composite sales timestamp.
package transform

import (
	"fmt"
	"strings"

	"salesdw/internal/record"
)

// timestampParts is the number of slash-separated fields a timestamp carries.
const timestampParts = 3

// FormatError reports a row whose timestamp field is missing or does not
// split into exactly three parts.
type FormatError struct {
	Field string
	Value string
	Parts int
}

func (e *FormatError) Error() string {
	if e.Parts < 0 {
		return fmt.Sprintf("transform: row has no %q field", e.Field)
	}
	return fmt.Sprintf("transform: %q %q splits into %d parts, want %d",
		e.Field, e.Value, e.Parts, timestampParts)
}

// SplitTimestamp extracts year/month/day from the row's "timestamp" field,
// formatted "year/month/day", and writes them back onto the row as strings.
//
// The parts are positional only; no calendar validation is performed, so
// "0000/99/99" splits fine. A missing field or a wrong part count returns a
// *FormatError and leaves the row untouched.
func SplitTimestamp(row record.Row) error {
	ts, ok := row.String("timestamp")
	if !ok {
		return &FormatError{Field: "timestamp", Parts: -1}
	}

	parts := strings.Split(ts, "/")
	if len(parts) != timestampParts {
		return &FormatError{Field: "timestamp", Value: ts, Parts: len(parts)}
	}

	row["year"] = parts[0]
	row["month"] = parts[1]
	row["day"] = parts[2]
	return nil
}
