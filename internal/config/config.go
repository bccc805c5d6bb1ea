// Package config defines the JSON pipeline configuration for both batch jobs
// and its validation. Connection parameters are configuration inputs, never
// literals in code; environment variables override file values so the same
// config file can move between environments.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is a single validation finding, addressed by a dotted config path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// Conn holds the recognized connection options for a database.
//
// DSN, when set, overrides the individual fields entirely; this is the escape
// hatch for driver options the struct does not model.
type Conn struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
	User     string `json:"user"`
	Password string `json:"password"`
	DSN      string `json:"dsn,omitempty"`
}

// DriverDSN renders the connection string for a backend kind.
//
// Kinds:
//   - "postgres": keyword/value form accepted by pgx.
//   - "mssql":    sqlserver:// URL accepted by go-mssqldb.
//   - "sqlite":   DBName is the database file path (or ":memory:").
func (c Conn) DriverDSN(kind string) string {
	if c.DSN != "" {
		return c.DSN
	}
	switch kind {
	case "mssql":
		u := url.URL{
			Scheme: "sqlserver",
			User:   url.UserPassword(c.User, c.Password),
			Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		}
		q := url.Values{}
		q.Set("database", c.DBName)
		u.RawQuery = q.Encode()
		return u.String()
	case "sqlite":
		return c.DBName
	default:
		return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s",
			c.Host, c.Port, c.DBName, c.User, c.Password)
	}
}

// Source describes the sales source database and extraction query.
type Source struct {
	Conn  Conn     `json:"conn"`
	Query string   `json:"query"`
	// Fields are zipped positionally with each result row's values.
	Fields []string `json:"fields"`
}

// Regions describes the CSV reference file for the location dimension.
type Regions struct {
	Path      string `json:"path"`
	Delimiter string `json:"delimiter,omitempty"` // default ","
}

// Warehouse describes the target data warehouse.
type Warehouse struct {
	Kind string `json:"kind"` // "postgres" | "sqlite" | "mssql"
	Conn Conn   `json:"conn"`
	// EnsureSchema creates the star-schema tables if absent before loading.
	EnsureSchema bool `json:"ensure_schema,omitempty"`
}

// Bulk describes the Job B input and target staging table.
type Bulk struct {
	Input   string   `json:"input"`
	Table   string   `json:"table"`
	Columns []string `json:"columns,omitempty"`
}

// Pipeline is the root configuration object, decoded from a JSON file.
type Pipeline struct {
	Job       string    `json:"job"`
	Source    Source    `json:"source"`
	Regions   Regions   `json:"regions"`
	Warehouse Warehouse `json:"warehouse"`
	Bulk      Bulk      `json:"bulk,omitempty"`
}

// ApplyEnv overrides connection parameters from the environment.
//
// Recognized variables: SOURCE_HOST, SOURCE_PORT, SOURCE_DBNAME, SOURCE_USER,
// SOURCE_PASSWORD, SOURCE_DSN and the WAREHOUSE_* equivalents, plus
// WAREHOUSE_KIND. Empty variables leave the file values untouched.
func ApplyEnv(p *Pipeline) {
	applyConnEnv(&p.Source.Conn, "SOURCE_")
	applyConnEnv(&p.Warehouse.Conn, "WAREHOUSE_")
	if v := os.Getenv("WAREHOUSE_KIND"); v != "" {
		p.Warehouse.Kind = v
	}
}

func applyConnEnv(c *Conn, prefix string) {
	if v := os.Getenv(prefix + "HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv(prefix + "PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv(prefix + "DBNAME"); v != "" {
		c.DBName = v
	}
	if v := os.Getenv(prefix + "USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv(prefix + "PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv(prefix + "DSN"); v != "" {
		c.DSN = v
	}
}

// knownWarehouseKinds mirrors the backends registered by warehouse/all.
var knownWarehouseKinds = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"mssql":    true,
}

// Validate checks a pipeline config and returns all findings.
//
// Callers decide how strict to be: the binaries abort when any issue has
// SeverityError and only print SeverityWarn findings.
func Validate(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarn, path, fmt.Sprintf(format, a...)})
	}

	if strings.TrimSpace(p.Job) == "" {
		warnf("job", "job name is empty; logs will be harder to attribute")
	}

	if strings.TrimSpace(p.Source.Query) == "" {
		errf("source.query", "query is required")
	}
	if len(p.Source.Fields) == 0 {
		errf("source.fields", "at least one output field name is required")
	}
	validateConn(p.Source.Conn, "postgres", "source.conn", errf)

	if strings.TrimSpace(p.Regions.Path) == "" {
		errf("regions.path", "reference CSV path is required")
	}
	if d := p.Regions.Delimiter; d != "" && len([]rune(d)) != 1 {
		errf("regions.delimiter", "delimiter must be a single character, got %q", d)
	}

	kind := p.Warehouse.Kind
	if kind == "" {
		errf("warehouse.kind", "kind is required")
	} else if !knownWarehouseKinds[kind] {
		errf("warehouse.kind", "unknown kind %q", kind)
	}
	validateConn(p.Warehouse.Conn, kind, "warehouse.conn", errf)

	return issues
}

func validateConn(c Conn, kind, path string, errf func(path, format string, a ...any)) {
	if c.DSN != "" {
		return
	}
	if kind == "sqlite" {
		if strings.TrimSpace(c.DBName) == "" {
			errf(path+".dbname", "sqlite requires dbname (database file path)")
		}
		return
	}
	if strings.TrimSpace(c.Host) == "" {
		errf(path+".host", "host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		errf(path+".port", "port must be in 1..65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.DBName) == "" {
		errf(path+".dbname", "dbname is required")
	}
	if strings.TrimSpace(c.User) == "" {
		errf(path+".user", "user is required")
	}
}
