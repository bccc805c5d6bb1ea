// Package sqlite implements warehouse.Store on modernc.org/sqlite via
// database/sql.
//
// Key design points vs Postgres:
//   - Surrogate keys come from INTEGER PRIMARY KEY columns; the logical
//     "serial" type from the table specs is mapped accordingly.
//   - SQLite has no raw COPY channel. The bulk path splits each input line on
//     tabs and feeds a prepared INSERT inside the run's transaction, which is
//     the closest native equivalent.
package sqlite

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	_ "modernc.org/sqlite"

	"salesdw/internal/warehouse"
)

type Repo struct {
	db        *sql.DB
	tx        *sql.Tx
	committed bool
}

func init() {
	warehouse.Register("sqlite", New)
}

// New opens the database file (or ":memory:") and begins the run's
// transaction. A single underlying connection is enforced so the transaction
// and any ad-hoc statements cannot diverge onto separate connections.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: begin: %w", err)
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
			return fmt.Errorf("sqlite: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertReturning inserts one row and returns the rowid-backed surrogate key.
//
// keyColumn must be an INTEGER PRIMARY KEY column so LastInsertId reflects
// its assigned value.
func (r *Repo) InsertReturning(ctx context.Context, table, keyColumn string, columns []string, values []any) (int64, error) {
	res, err := r.tx.ExecContext(ctx, buildInsertSQL(table, columns), values...)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlite: last insert id for %s.%s: %w", table, keyColumn, err)
	}
	return key, nil
}

// SelectKey looks up the surrogate key for a natural-key match.
// A miss is (0, false, nil), never an error.
func (r *Repo) SelectKey(ctx context.Context, table, keyColumn string, matchColumns []string, matchValues []any) (int64, bool, error) {
	var key sql.NullInt64
	err := r.tx.QueryRowContext(ctx, buildLookupSQL(table, keyColumn, matchColumns), matchValues...).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: lookup %s: %w", table, err)
	}
	if !key.Valid {
		return 0, false, fmt.Errorf(
			"sqlite: %s.%s is NULL; surrogate key not auto-generated (map serial to INTEGER PRIMARY KEY)",
			table, keyColumn,
		)
	}
	return key.Int64, true, nil
}

// Insert appends one row.
func (r *Repo) Insert(ctx context.Context, table string, columns []string, values []any) error {
	if _, err := r.tx.ExecContext(ctx, buildInsertSQL(table, columns), values...); err != nil {
		return fmt.Errorf("sqlite: insert into %s: %w", table, err)
	}
	return nil
}

// CopyFrom loads tab-delimited lines through a prepared INSERT.
func (r *Repo) CopyFrom(ctx context.Context, table string, columns []string, src io.Reader) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: copy into %s: columns are required", table)
	}

	stmt, err := r.tx.PrepareContext(ctx, buildInsertSQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare copy into %s: %w", table, err)
	}
	defer stmt.Close()

	var n int64
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != len(columns) {
			return n, fmt.Errorf("sqlite: copy into %s: line %d has %d fields, want %d",
				table, n+1, len(fields), len(columns))
		}
		args := make([]any, len(fields))
		for i, f := range fields {
			args[i] = f
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return n, fmt.Errorf("sqlite: copy into %s: line %d: %w", table, n+1, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("sqlite: copy into %s: read input: %w", table, err)
	}
	return n, nil
}

// Commit makes the run durable.
func (r *Repo) Commit(ctx context.Context) error {
	if err := r.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	r.committed = true
	return nil
}

// Close rolls back uncommitted work and releases the database handle.
func (r *Repo) Close(ctx context.Context) error {
	if !r.committed {
		if err := r.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = r.db.Close()
			return fmt.Errorf("sqlite: rollback: %w", err)
		}
	}
	return r.db.Close()
}

/* ---------- SQL builders ---------- */

func buildInsertSQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (")
	b.WriteString(strings.TrimRight(strings.Repeat("?, ", len(columns)), ", "))
	b.WriteString(")")
	return b.String()
}

func buildLookupSQL(table, keyColumn string, matchColumns []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(sqlIdent(keyColumn))
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")
	for i, c := range matchColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(sqlIdent(c))
		b.WriteString(" = ?")
	}
	return b.String()
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS DDL.
//
// The logical "serial" primary-key type maps to INTEGER PRIMARY KEY so SQLite
// auto-generates the surrogate key from the rowid.
func buildCreateSQL(t warehouse.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("sqlite: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+1)

	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		if pk == "" {
			return "", fmt.Errorf("sqlite: table %s: primary key name is required", t.Name)
		}
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", sqlIdent(pk), mapType(t.PrimaryKey.Type)))
	}

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		typ := strings.TrimSpace(c.Type)
		if name == "" || typ == "" {
			return "", fmt.Errorf("sqlite: table %s: column name/type must be set", t.Name)
		}
		var b strings.Builder
		b.WriteString(sqlIdent(name))
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
				return "", fmt.Errorf("sqlite: table %s: unique constraint requires columns", t.Name)
			}
			quoted := make([]string, len(c.Columns))
			for i, col := range c.Columns {
				quoted[i] = sqlIdent(strings.TrimSpace(col))
			}
			cols = append(cols, "UNIQUE ("+strings.Join(quoted, ", ")+")")
		default:
			return "", fmt.Errorf("sqlite: table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("sqlite: table %s: no columns", t.Name)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", t.Name, strings.Join(cols, ", ")), nil
}

// mapType translates the logical column types used by the table specs into
// SQLite storage classes.
func mapType(typ string) string {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "serial":
		return "INTEGER"
	case "integer", "int", "bigint":
		return "INTEGER"
	case "text", "varchar":
		return "TEXT"
	default:
		return typ
	}
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
