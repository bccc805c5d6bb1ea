package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"salesdw/internal/config"
	"salesdw/internal/etl"
	"salesdw/internal/source"
	"salesdw/internal/warehouse"

	// register all backends with the warehouse factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "salesdw/internal/warehouse/all"
)

// main is the entry point for the dimensional load binary. It loads the
// pipeline config, opens the sales source and the warehouse, and executes
// the batch run.
func main() {
	var (
		cfgPath  string
		validate bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/sample.json", "pipeline config JSON path")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	// Connection parameters may live in a .env file; a missing file is fine.
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

	// Validate pipeline config.
	issues := config.Validate(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("pipeline: job=%s warehouse=%s regions=%s",
			p.Job, p.Warehouse.Kind, p.Regions.Path)
	}

	if err := run(ctx, p, *verbose); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// run wires the job's collaborators and executes it. Connections are released
// via defers so every exit path, error or not, leaves nothing open.
func run(ctx context.Context, p config.Pipeline, verbose bool) error {
	salesConn, err := pgx.Connect(ctx, p.Source.Conn.DriverDSN("postgres"))
	if err != nil {
		return fmt.Errorf("connect source database: %w", err)
	}
	defer salesConn.Close(ctx)

	store, err := warehouse.Open(ctx, warehouse.Config{
		Kind: p.Warehouse.Kind,
		DSN:  p.Warehouse.Conn.DriverDSN(p.Warehouse.Kind),
	})
	if err != nil {
		return fmt.Errorf("open warehouse: %w", err)
	}
	defer store.Close(ctx)

	tables, err := etl.BuildTables(store)
	if err != nil {
		return err
	}

	regionFile, err := os.Open(p.Regions.Path)
	if err != nil {
		return fmt.Errorf("open regions file: %w", err)
	}
	var delim rune
	if p.Regions.Delimiter != "" {
		delim = []rune(p.Regions.Delimiter)[0]
	}
	regions, err := source.NewCSVSource(regionFile, delim)
	if err != nil {
		regionFile.Close()
		return err
	}

	sales, err := source.NewSQLSource(ctx, salesConn, p.Source.Query, p.Source.Fields)
	if err != nil {
		regions.Close()
		return err
	}

	job := &etl.Job{
		Regions:      regions,
		Sales:        sales,
		Tables:       tables,
		Store:        store,
		EnsureSchema: p.Warehouse.EnsureSchema,
	}
	if verbose {
		job.Logger = log.Default()
	}

	return job.Run(ctx)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
