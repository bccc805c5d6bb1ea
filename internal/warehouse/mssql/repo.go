// Package mssql implements warehouse.Store for Microsoft SQL Server.
//
// Surrogate keys are read back with OUTPUT INSERTED, and the bulk path uses
// the driver's TDS bulk-copy interface (mssql.CopyIn), which is row-oriented:
// each input line is split on tabs, the native bcp text row format.
package mssql

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"salesdw/internal/warehouse"
)

type Repo struct {
	db        *sql.DB
	tx        *sql.Tx
	committed bool
}

func init() {
	warehouse.Register("mssql", New)
}

// New connects with the "sqlserver" driver and begins the run's transaction.
// The blank driver registration comes with the mssql import above.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: begin: %w", err)
	}
	return &Repo{db: db, tx: tx}, nil
}

// EnsureSchema creates the given tables if absent. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context, tables []warehouse.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertReturning inserts one row and returns the IDENTITY value assigned to
// keyColumn, via OUTPUT INSERTED.
func (r *Repo) InsertReturning(ctx context.Context, table, keyColumn string, columns []string, values []any) (int64, error) {
	var key int64
	err := r.tx.QueryRowContext(ctx, buildInsertSQL(table, columns, keyColumn), values...).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("mssql: insert into %s: %w", table, err)
	}
	return key, nil
}

// SelectKey looks up the surrogate key for a natural-key match.
// A miss is (0, false, nil), never an error.
func (r *Repo) SelectKey(ctx context.Context, table, keyColumn string, matchColumns []string, matchValues []any) (int64, bool, error) {
	var key int64
	err := r.tx.QueryRowContext(ctx, buildLookupSQL(table, keyColumn, matchColumns), matchValues...).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mssql: lookup %s: %w", table, err)
	}
	return key, true, nil
}

// Insert appends one row.
func (r *Repo) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := r.tx.ExecContext(ctx, buildInsertSQL(table, columns, ""), values...); err != nil {
		return fmt.Errorf("mssql: insert into %s: %w", table, err)
	}
	return nil
}

// CopyFrom streams tab-delimited lines through the TDS bulk-copy channel.
//
// The trailing parameterless Exec flushes the bulk batch; its RowsAffected is
// the authoritative loaded-row count.
func (r *Repo) CopyFrom(ctx context.Context, table string, columns []string, src io.Reader) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("mssql: copy into %s: columns are required", table)
	}

	stmt, err := r.tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk copy into %s: %w", table, err)
	}
	defer stmt.Close()

	var line int64
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != len(columns) {
			return 0, fmt.Errorf("mssql: copy into %s: line %d has %d fields, want %d",
				table, line+1, len(fields), len(columns))
		}
		args := make([]any, len(fields))
		for i, f := range fields {
			args[i] = f
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("mssql: copy into %s: line %d: %w", table, line+1, err)
		}
		line++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("mssql: copy into %s: read input: %w", table, err)
	}

	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql: flush bulk copy into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return line, nil
	}
	return n, nil
}

// Commit makes the run durable.
func (r *Repo) Commit(ctx context.Context) error {
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
	}
	r.committed = true
	return nil
}

// Close rolls back uncommitted work and releases the database handle.
func (r *Repo) Close(ctx context.Context) error {
	if !r.committed {
		if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = r.db.Close()
			return fmt.Errorf("mssql: rollback: %w", err)
		}
	}
	return r.db.Close()
}

/* ---------- SQL builders ---------- */

// buildInsertSQL renders a single-row INSERT. When returning is non-empty an
// OUTPUT INSERTED clause for that column is emitted (T-SQL places it before
// VALUES).
func buildInsertSQL(table string, columns []string, returning string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(")")

	if returning != "" {
		b.WriteString(" OUTPUT INSERTED.")
		b.WriteString(msIdent(returning))
	}

	b.WriteString(" VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("@p%d", i+1))
	}
	b.WriteString(")")
	return b.String()
}

func buildLookupSQL(table, keyColumn string, matchColumns []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(msIdent(keyColumn))
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	for i, c := range matchColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(msIdent(c))
		b.WriteString(fmt.Sprintf(" = @p%d", i+1))
	}
	return b.String()
}

// buildCreateSQL renders create-if-absent DDL using the OBJECT_ID guard,
// since SQL Server has no CREATE TABLE IF NOT EXISTS.
func buildCreateSQL(t warehouse.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+1)

	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		if pk == "" {
			return "", fmt.Errorf("mssql: table %s: primary key name is required", t.Name)
		}
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", msIdent(pk), mapType(t.PrimaryKey.Type)))
	}

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		typ := strings.TrimSpace(c.Type)
		if name == "" || typ == "" {
			return "", fmt.Errorf("mssql: table %s: column name/type must be set", t.Name)
		}
		var b strings.Builder
		b.WriteString(msIdent(name))
		b.WriteString(" ")
		b.WriteString(mapType(typ))
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if ref := strings.TrimSpace(c.References); ref != "" {
			b.WriteString(" REFERENCES ")
			b.WriteString(ref)
		}
		cols = append(cols, b.String())
	}

	for _, c := range t.Constraints {
		switch strings.ToLower(strings.TrimSpace(c.Kind)) {
		case "unique":
			if len(c.Columns) == 0 {
				return "", fmt.Errorf("mssql: table %s: unique constraint requires columns", t.Name)
			}
			quoted := make([]string, len(c.Columns))
			for i, col := range c.Columns {
				quoted[i] = msIdent(strings.TrimSpace(col))
			}
			cols = append(cols, "UNIQUE ("+strings.Join(quoted, ", ")+")")
		default:
			return "", fmt.Errorf("mssql: table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("mssql: table %s: no columns", t.Name)
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s);",
		strings.ReplaceAll(t.Name, "'", "''"), t.Name, strings.Join(cols, ", "),
	), nil
}

// mapType translates logical column types into T-SQL types.
func mapType(typ string) string {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "serial":
		return "INT IDENTITY(1,1)"
	case "integer", "int":
		return "INT"
	case "bigint":
		return "BIGINT"
	case "text":
		// NVARCHAR(MAX) cannot participate in UNIQUE constraints, which the
		// dimension natural keys need; 450 is the widest indexable size.
		return "NVARCHAR(450)"
	default:
		return typ
	}
}

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
