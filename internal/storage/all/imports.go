// Package all wires all built-in fetch backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their fetcher factories with the storage package.
//
// Importing this package makes the following fetch kinds available:
//
//   - "postgres" (multiload/internal/storage/postgres)
//   - "sqlite"   (multiload/internal/storage/sqlite)
//   - "mssql"    (multiload/internal/storage/mssql)
//   - "mysql"    (multiload/internal/storage/mysql)
//
// A binary that wants only a subset of backends can blank-import the
// individual backend packages instead.
package all

import (
	_ "multiload/internal/storage/mssql"
	_ "multiload/internal/storage/mysql"
	_ "multiload/internal/storage/postgres"
	_ "multiload/internal/storage/sqlite"
)
