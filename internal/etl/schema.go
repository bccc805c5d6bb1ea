package etl

import (
	"salesdw/internal/star"
	"salesdw/internal/warehouse"
)

// StarSchema returns the warehouse table specs for the book-sales star
// schema. Used by EnsureSchema when the config asks for table bootstrap.
//
// The UNIQUE constraints on the dimension natural keys back the invariant
// that one lookup tuple maps to at most one surrogate key, even if a run is
// replayed against a non-empty warehouse.
func StarSchema() []warehouse.TableSpec {
	return []warehouse.TableSpec{
		{
			Name:       "book",
			PrimaryKey: &warehouse.PrimaryKeySpec{Name: "bookid", Type: "serial"},
			Columns: []warehouse.ColumnSpec{
				{Name: "book", Type: "text"},
				{Name: "genre", Type: "text"},
			},
			Constraints: []warehouse.ConstraintSpec{{Kind: "unique", Columns: []string{"book", "genre"}}},
		},
		{
			Name:       "time",
			PrimaryKey: &warehouse.PrimaryKeySpec{Name: "timeid", Type: "serial"},
			Columns: []warehouse.ColumnSpec{
				{Name: "day", Type: "text"},
				{Name: "month", Type: "text"},
				{Name: "year", Type: "text"},
			},
			Constraints: []warehouse.ConstraintSpec{{Kind: "unique", Columns: []string{"day", "month", "year"}}},
		},
		{
			Name:       "location",
			PrimaryKey: &warehouse.PrimaryKeySpec{Name: "locationid", Type: "serial"},
			Columns: []warehouse.ColumnSpec{
				{Name: "city", Type: "text"},
				{Name: "region", Type: "text"},
			},
			Constraints: []warehouse.ConstraintSpec{{Kind: "unique", Columns: []string{"city"}}},
		},
		{
			Name: "facttable",
			Columns: []warehouse.ColumnSpec{
				{Name: "bookid", Type: "integer", References: "book(bookid)"},
				{Name: "locationid", Type: "integer", References: "location(locationid)"},
				{Name: "timeid", Type: "integer", References: "time(timeid)"},
				{Name: "sale", Type: "integer"},
			},
		},
	}
}

// Tables bundles the constructed dimension and fact table objects for one
// run. They are built once at job start and discarded at job end.
type Tables struct {
	Book     *star.Dimension
	Time     *star.Dimension
	Location *star.Dimension
	Facts    *star.FactTable
}

// BuildTables constructs the star-schema table objects over store.
func BuildTables(store warehouse.Store) (*Tables, error) {
	book, err := star.NewDimension(store, star.DimensionSpec{
		Name:       "book",
		Key:        "bookid",
		Attributes: []string{"book", "genre"},
	})
	if err != nil {
		return nil, err
	}

	timeDim, err := star.NewDimension(store, star.DimensionSpec{
		Name:       "time",
		Key:        "timeid",
		Attributes: []string{"day", "month", "year"},
	})
	if err != nil {
		return nil, err
	}

	// Only the city arrives with the sales rows, and it is enough to identify
	// a location, so the lookup set is narrower than the attribute set.
	location, err := star.NewDimension(store, star.DimensionSpec{
		Name:       "location",
		Key:        "locationid",
		Attributes: []string{"city", "region"},
		LookupAtts: []string{"city"},
	})
	if err != nil {
		return nil, err
	}

	facts, err := star.NewFactTable(store, star.FactTableSpec{
		Name:     "facttable",
		KeyRefs:  []string{"bookid", "locationid", "timeid"},
		Measures: []string{"sale"},
	})
	if err != nil {
		return nil, err
	}

	return &Tables{Book: book, Time: timeDim, Location: location, Facts: facts}, nil
}
