// Package sqldb provides the relational side of query execution: named
// database/sql connections and the statement executor with its
// placeholder fallback.
package sqldb

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DB wraps a database connection pool with its driver name.
type DB struct {
	*sql.DB
	Driver string
}

// NormalizeDriver maps driver aliases onto a registered driver name.
func NormalizeDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

// Open opens a connection pool. SQLite files get WAL mode, a busy timeout
// and the same performance pragmas the rest of the stack uses.
func Open(driver, dsn string, maxOpenConns int) (*DB, error) {
	name, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}

	if name == DriverSQLite {
		return openSQLite(dsn, maxOpenConns)
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return &DB{DB: db, Driver: name}, nil
}

func openSQLite(path string, maxOpenConns int) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &DB{DB: db, Driver: DriverSQLite}, nil
}

// NumberedParams reports whether the driver expects $n placeholders.
func (db *DB) NumberedParams() bool {
	return db.Driver == DriverPostgres
}
