//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// initDB opens the database with the cgo driver. Build with -tags cgo_sqlite.
func initDB(dataSource string) (*sql.DB, error) {
	return openDB("sqlite3", dataSource)
}
