// Package postgres implements warehouse.Store on a single pgx connection.
//
// The whole run executes inside one transaction begun at Open; Commit is the
// only durability point. COPY FROM STDIN is used for bulk loads, with the
// input stream passed through untouched.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"

	"salesdw/internal/warehouse"
)

type Repo struct {
	conn      *pgx.Conn
	tx        pgx.Tx
	committed bool
}

// New connects to Postgres and begins the run's transaction.
//
// A single pgx.Conn (not a pool) is intentional: the store is single-owner
// and the one open transaction must see every statement of the run.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Store, error) {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Repo{conn: conn, tx: tx}, nil
}

// EnsureSchema creates the given tables if absent. Idempotent.
func (r *Repo) EnsureSchema(ctx context.Context, tables []warehouse.TableSpec) error {
	for _, t := range tables {
		sql, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.tx.Exec(ctx, sql); err != nil {
			return fmt.Errorf("postgres: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// InsertReturning inserts one row and returns the generated surrogate key.
func (r *Repo) InsertReturning(ctx context.Context, table, keyColumn string, columns []string, values []any) (int64, error) {
	sql := buildInsertSQL(table, columns, keyColumn)

	var key int64
	if err := r.tx.QueryRow(ctx, sql, values...).Scan(&key); err != nil {
		return 0, fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	return key, nil
}

// SelectKey looks up the surrogate key for a natural-key match.
// A miss is (0, false, nil), never an error.
func (r *Repo) SelectKey(ctx context.Context, table, keyColumn string, matchColumns []string, matchValues []any) (int64, bool, error) {
	sql := buildLookupSQL(table, keyColumn, matchColumns)

	var key int64
	err := r.tx.QueryRow(ctx, sql, matchValues...).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: lookup %s: %w", table, err)
	}
	return key, true, nil
}

// Insert appends one row.
func (r *Repo) Insert(ctx context.Context, table string, columns []string, values []any) error {
	sql := buildInsertSQL(table, columns, "")
	if _, err := r.tx.Exec(ctx, sql, values...); err != nil {
		return fmt.Errorf("postgres: insert into %s: %w", table, err)
	}
	return nil
}

// CopyFrom streams raw lines into table via COPY ... FROM STDIN.
//
// No parsing happens here: the bytes of src must already be in the table's
// text COPY format. Runs inside the open transaction like everything else.
func (r *Repo) CopyFrom(ctx context.Context, table string, columns []string, src io.Reader) (int64, error) {
	tag, err := r.tx.Conn().PgConn().CopyFrom(ctx, src, buildCopySQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy into %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

// Commit makes the run durable.
func (r *Repo) Commit(ctx context.Context) error {
	if err := r.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	r.committed = true
	return nil
}

// Close rolls back uncommitted work and releases the connection.
func (r *Repo) Close(ctx context.Context) error {
	if !r.committed {
		if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			_ = r.conn.Close(ctx)
			return fmt.Errorf("postgres: rollback: %w", err)
		}
	}
	return r.conn.Close(ctx)
}

/* ---------- SQL builders ---------- */

// The builders are pure so correctness (quoting, placeholder numbering,
// RETURNING clauses) is unit-testable without a database.

// buildInsertSQL renders a single-row INSERT. When returning is non-empty a
// RETURNING clause for that column is appended.
func buildInsertSQL(table string, columns []string, returning string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("$%d", i+1))
	}
	b.WriteString(")")

	if returning != "" {
		b.WriteString(" RETURNING ")
		b.WriteString(pgIdent(returning))
	}
	return b.String()
}

// buildLookupSQL renders the natural-key lookup for a surrogate key.
func buildLookupSQL(table, keyColumn string, matchColumns []string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(pgIdent(keyColumn))
	b.WriteString(" FROM ")
	b.WriteString(table)
	b.WriteString(" WHERE ")

	for i, c := range matchColumns {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(pgIdent(c))
		b.WriteString(fmt.Sprintf(" = $%d", i+1))
	}
	return b.String()
}

// buildCopySQL renders the COPY statement for the bulk channel. An empty
// columns list copies into the table's full column set.
func buildCopySQL(table string, columns []string) string {
	var b strings.Builder
	b.WriteString("COPY ")
	b.WriteString(table)
	if len(columns) > 0 {
		b.WriteString(" (")
		for i, c := range columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(pgIdent(c))
		}
		b.WriteString(")")
	}
	b.WriteString(" FROM STDIN")
	return b.String()
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS DDL for a table spec.
func buildCreateSQL(t warehouse.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("postgres: table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+1)

	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		pkType := strings.TrimSpace(t.PrimaryKey.Type)
		if pk == "" || pkType == "" {
			return "", fmt.Errorf("postgres: table %s: primary key name and type are required", t.Name)
		}
		cols = append(cols, fmt.Sprintf("%s %s PRIMARY KEY", pgIdent(pk), pkType))
	}

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		typ := strings.TrimSpace(c.Type)
		if name == "" || typ == "" {
			return "", fmt.Errorf("postgres: table %s: column name/type must be set", t.Name)
		}
		var b strings.Builder
		b.WriteString(pgIdent(name))
		b.WriteString(" ")
		b.WriteString(typ)
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
				return "", fmt.Errorf("postgres: table %s: unique constraint requires columns", t.Name)
			}
			quoted := make([]string, len(c.Columns))
			for i, col := range c.Columns {
				quoted[i] = pgIdent(strings.TrimSpace(col))
			}
			cols = append(cols, "UNIQUE ("+strings.Join(quoted, ", ")+")")
		default:
			return "", fmt.Errorf("postgres: table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("postgres: table %s: no columns", t.Name)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", t.Name, strings.Join(cols, ", ")), nil
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
