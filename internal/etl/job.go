// Package etl drives the dimensional batch job: preload the location
// dimension from the reference CSV, then stream sales rows through the
// timestamp split, dimension resolution and the fact append, with a single
// commit at the very end.
//
// The whole run is one warehouse transaction, so a fatal error (unknown
// location, malformed timestamp, source read failure) leaves nothing
// durable.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"salesdw/internal/source"
	"salesdw/internal/transform"
	"salesdw/internal/warehouse"
)

// ErrUnknownLocation reports a sales row whose city has no row in the
// location dimension. This is the deliberate business-rule failure path:
// the location dimension is reference data, closed to growth from sales
// input, so an unknown city means broken sales or reference data and the
// run must abort rather than skip or invent a row.
var ErrUnknownLocation = errors.New("city not present in the location dimension")

// Logger is the minimal logging interface the job uses.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Job wires one dimensional ETL run. All collaborators are injected; the job
// owns none of the connections behind them and closes only the row sources
// it consumes.
type Job struct {
	// Regions produces the location reference rows (city, region).
	Regions source.RowSource
	// Sales produces the sales rows (book, genre, city, timestamp, sale).
	Sales source.RowSource

	Tables *Tables
	Store  warehouse.Store

	// EnsureSchema creates the star-schema tables before loading.
	EnsureSchema bool

	Logger Logger
}

// Run executes the job: location preload, sales load, one commit.
//
// Cancellation is honored between rows. The caller remains responsible for
// closing the Store (deferred Close releases the connection and rolls back
// on the failure paths).
func (j *Job) Run(ctx context.Context) error {
	if j.Store == nil || j.Tables == nil {
		return fmt.Errorf("etl: Store and Tables are required")
	}
	if j.Regions == nil || j.Sales == nil {
		return fmt.Errorf("etl: Regions and Sales sources are required")
	}
	logf := j.logf()

	if j.EnsureSchema {
		ddlStart := time.Now()
		if err := j.Store.EnsureSchema(ctx, StarSchema()); err != nil {
			return err
		}
		logf("stage=ddl ok duration=%s", durMS(ddlStart))
	}

	preloadStart := time.Now()
	loaded, err := j.preloadLocations(ctx)
	if err != nil {
		return err
	}
	logf("stage=load_locations ok rows=%d duration=%s", loaded, durMS(preloadStart))

	factStart := time.Now()
	facts, err := j.loadFacts(ctx)
	if err != nil {
		return err
	}
	logf("stage=load_facts ok rows=%d duration=%s", facts, durMS(factStart))

	commitStart := time.Now()
	if err := j.Store.Commit(ctx); err != nil {
		return err
	}
	logf("stage=commit ok duration=%s", durMS(commitStart))

	return nil
}

// preloadLocations bulk-loads the location dimension from the reference
// source. Insert-only: the reference file is the authority, no lookups.
func (j *Job) preloadLocations(ctx context.Context) (int, error) {
	defer j.Regions.Close()

	n := 0
	for j.Regions.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := j.Tables.Location.Insert(ctx, j.Regions.Row()); err != nil {
			return n, err
		}
		n++
	}
	if err := j.Regions.Err(); err != nil {
		return n, fmt.Errorf("etl: read regions: %w", err)
	}
	return n, nil
}

// loadFacts streams sales rows: split timestamp, ensure book and time,
// strict location lookup, fact append. Writes happen strictly in source-row
// order.
func (j *Job) loadFacts(ctx context.Context) (int, error) {
	defer j.Sales.Close()

	n := 0
	for j.Sales.Next() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		row := j.Sales.Row()

		if err := transform.SplitTimestamp(row); err != nil {
			return n, err
		}

		bookID, err := j.Tables.Book.Ensure(ctx, row)
		if err != nil {
			return n, err
		}
		row["bookid"] = bookID

		timeID, err := j.Tables.Time.Ensure(ctx, row)
		if err != nil {
			return n, err
		}
		row["timeid"] = timeID

		// Strict lookup, not ensure: locations are closed reference data.
		locationID, found, err := j.Tables.Location.Lookup(ctx, row)
		if err != nil {
			return n, err
		}
		if !found {
			city, _ := row.String("city")
			return n, fmt.Errorf("etl: %w: %q", ErrUnknownLocation, city)
		}
		row["locationid"] = locationID

		if err := j.Tables.Facts.Insert(ctx, row); err != nil {
			return n, err
		}
		n++
	}
	if err := j.Sales.Err(); err != nil {
		return n, fmt.Errorf("etl: read sales: %w", err)
	}
	return n, nil
}

func (j *Job) logf() func(format string, v ...any) {
	if j.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return j.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
