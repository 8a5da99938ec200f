// Package all registers every storage backend. Import it for side effects:
//
//	import _ "fuelimport/internal/storage/all"
package all

import (
	_ "fuelimport/internal/storage/mssql"
	_ "fuelimport/internal/storage/mysql"
	_ "fuelimport/internal/storage/postgres"
	_ "fuelimport/internal/storage/sqlite"
)
