package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"salesdw/internal/bulkload"
	"salesdw/internal/config"
	"salesdw/internal/warehouse"

	_ "salesdw/internal/warehouse/all"
)

// main is the entry point for the staging bulk-load binary. It streams a
// gzip-compressed dump file into a warehouse table through the backend's
// native bulk path and commits once at the end.
func main() {
	var (
		cfgPath string
		input   string
		table   string
		columns string
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/sample.json", "pipeline config JSON path")
	flag.StringVar(&input, "input", "", "gzip input file (overrides bulk.input)")
	flag.StringVar(&table, "table", "", "target table (overrides bulk.table)")
	flag.StringVar(&columns, "columns", "", "comma-separated target columns (overrides bulk.columns)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	_ = godotenv.Load()

	f, err := os.Open(cfgPath)
	if err != nil {
		fatalf("open config: %v", err)
	}

	var p config.Pipeline
	err = json.NewDecoder(f).Decode(&p)
	f.Close()
	if err != nil {
		fatalf("decode config: %v", err)
	}
	config.ApplyEnv(&p)

	if input != "" {
		p.Bulk.Input = input
	}
	if table != "" {
		p.Bulk.Table = table
	}
	if columns != "" {
		p.Bulk.Columns = strings.Split(columns, ",")
	}
	if p.Bulk.Input == "" {
		fatalf("bulk.input is required (config or -input)")
	}
	if p.Bulk.Table == "" {
		fatalf("bulk.table is required (config or -table)")
	}

	ctx := context.Background()
	start := time.Now()

	rows, err := run(ctx, p)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("bulkload: table=%s rows=%d duration=%s",
			p.Bulk.Table, rows, time.Since(start).Truncate(time.Millisecond))
	}
}

func run(ctx context.Context, p config.Pipeline) (int64, error) {
	store, err := warehouse.Open(ctx, warehouse.Config{
		Kind: p.Warehouse.Kind,
		DSN:  p.Warehouse.Conn.DriverDSN(p.Warehouse.Kind),
	})
	if err != nil {
		return 0, fmt.Errorf("open warehouse: %w", err)
	}
	defer store.Close(ctx)

	return bulkload.Run(ctx, store, p.Bulk.Table, p.Bulk.Columns, p.Bulk.Input)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
