// Package all registers every built-in catalog backend. Import it for side
// effects from the binary's wiring layer:
//
//	import _ "ecommetl/internal/catalog/all"
//
// A binary that needs only a subset can import the backend packages it wants
// instead.
package all

import (
	_ "ecommetl/internal/catalog/mssql"
	_ "ecommetl/internal/catalog/mysql"
	_ "ecommetl/internal/catalog/postgres"
	_ "ecommetl/internal/catalog/sqlite"
)
