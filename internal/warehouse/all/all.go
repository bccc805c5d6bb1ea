// Package all registers every warehouse backend with the factory.
// Binaries blank-import it; config selects which backend actually runs.
package all

import (
	_ "salesdw/internal/warehouse/mssql"
	_ "salesdw/internal/warehouse/postgres"
	_ "salesdw/internal/warehouse/sqlite"
)
