// Static DDL metadata. These types live here so backend packages and the ETL
// driver can both import them without circular deps.
package warehouse

type TableSpec struct {
	Name        string
	PrimaryKey  *PrimaryKeySpec
	Columns     []ColumnSpec
	Constraints []ConstraintSpec
}

type PrimaryKeySpec struct {
	Name string
	Type string // logical type, e.g. "serial"; backends map it to their own
}

type ColumnSpec struct {
	Name       string
	Type       string
	References string // inline FK target, e.g. "book(bookid)"
	Nullable   bool
}

type ConstraintSpec struct {
	Kind    string // "unique"
	Columns []string
}
