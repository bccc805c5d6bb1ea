// Package warehouse defines the backend-agnostic interface to the data
// warehouse and the factory registry backends register themselves with.
//
// A Store is deliberately transactional for its whole lifetime: Open begins a
// transaction, every operation runs inside it, and nothing is durable until
// Commit. That makes one batch run one atomic unit, which is exactly the
// recovery model the ETL driver relies on.
package warehouse

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Config is the minimal configuration needed to open a warehouse store.
type Config struct {
	Kind string
	DSN  string
}

// Store is a backend-agnostic handle to the warehouse.
//
// Concurrency: a Store is single-owner. It wraps one connection and one open
// transaction; it is not safe for concurrent callers and is not meant to be.
type Store interface {
	// EnsureSchema creates the given tables if they do not exist.
	// Idempotent; safe to run on every invocation.
	EnsureSchema(ctx context.Context, tables []TableSpec) error

	// InsertReturning inserts one row and returns the value the store
	// assigned to keyColumn (the surrogate key).
	InsertReturning(ctx context.Context, table string, keyColumn string, columns []string, values []any) (int64, error)

	// SelectKey looks up keyColumn for the row matching matchColumns =
	// matchValues. Returns (0, false, nil) when no row matches; a miss is
	// not an error. Read-only.
	SelectKey(ctx context.Context, table string, keyColumn string, matchColumns []string, matchValues []any) (int64, bool, error)

	// Insert appends one row. No dedupe, no upsert.
	Insert(ctx context.Context, table string, columns []string, values []any) error

	// CopyFrom streams line-oriented input into table over the backend's
	// native bulk-copy channel and reports the number of rows loaded.
	// The line format is whatever the backend's bulk loader expects;
	// columns guide backends whose bulk interface is column-oriented.
	CopyFrom(ctx context.Context, table string, columns []string, r io.Reader) (int64, error)

	// Commit makes all work since Open durable.
	Commit(ctx context.Context) error

	// Close releases the underlying connection. If Commit was not called,
	// the run's writes are rolled back. Always safe to defer; calling it
	// after Commit is the normal teardown path.
	Close(ctx context.Context) error
}

type factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering an
// empty kind, a nil factory, or the same kind twice panics; failing fast here
// avoids ambiguous backend selection at run time.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("warehouse: Register called with empty kind")
	}
	if f == nil {
		panic("warehouse: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("warehouse: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Store using the registered backend factory.
//
// Errors if cfg.Kind is empty or not registered, or if the factory fails
// (typically a connectivity error).
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("warehouse: missing Kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("warehouse: unsupported kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
