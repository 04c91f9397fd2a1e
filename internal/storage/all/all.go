// Package all registers every storage backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "xmlbar/internal/storage/mssql"
	_ "xmlbar/internal/storage/postgres"
	_ "xmlbar/internal/storage/sqlite"
)
