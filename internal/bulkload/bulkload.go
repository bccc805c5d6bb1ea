// Package bulkload implements the second batch job: streaming a
// gzip-compressed delimited file into a warehouse staging table over the
// backend's native bulk-copy channel. No transformation happens here; the
// decompressed bytes must already be in the target's bulk-load format.
package bulkload

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"

	"salesdw/internal/warehouse"
)

// Run decompresses path and streams its lines into table, then commits.
//
// The commit is explicit on purpose: the original bulk job relied on driver
// autocommit behavior that is not portable, so durability is pinned down
// here rather than assumed. The caller still owns (and must Close) the
// store.
func Run(ctx context.Context, store warehouse.Store, table string, columns []string, path string) (int64, error) {
	if table == "" {
		return 0, fmt.Errorf("bulkload: table is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("bulkload: open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("bulkload: gunzip %s: %w", path, err)
	}
	defer zr.Close()

	n, err := store.CopyFrom(ctx, table, columns, zr)
	if err != nil {
		return n, err
	}

	if err := store.Commit(ctx); err != nil {
		return n, err
	}
	return n, nil
}
