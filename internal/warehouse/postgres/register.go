package postgres

import "salesdw/internal/warehouse"

func init() {
	// registers the postgres backend factory
	warehouse.Register("postgres", New)
}
