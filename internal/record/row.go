// Package record defines the Row type flowing through the pipeline: a mapping
// from column name to scalar value, produced by a source and mutated in place
// as derived fields (timestamp parts, resolved surrogate keys) are added.
package record

import (
	"fmt"
	"strings"
)

// Row is one unit of data moving through the pipeline.
//
// Ownership contract:
//   - A Row belongs to whoever received it from a RowSource.
//   - Stages mutate it in place; there is no copy-on-write.
type Row map[string]any

// String returns the value for name as a string.
//
// The second return is false when the field is absent or nil. Non-string
// scalars are formatted; sources may legitimately produce int64/[]byte for
// columns the pipeline treats as text.
func (r Row) String(name string) (string, bool) {
	v, ok := r[name]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(v), true
	}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// NormalizeKey converts a dimension key value to a canonical string form,
// suitable for in-memory cache keys (e.g. "Springfield" or "8429529").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps lookup caches consistent across backends.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return fmt.Sprintf("%d", t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// CacheKey builds a cache key from an ordered tuple of lookup values.
//
// The unit separator keeps multi-attribute tuples from colliding
// ("a","bc" vs "ab","c").
func CacheKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = NormalizeKey(v)
	}
	return strings.Join(parts, "\x1f")
}
