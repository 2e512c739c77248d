// Package sqlstore keeps metadata and owning entity rows in the host
// platform's relational tables, on SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	// Registers the "pgx" database/sql driver; errors.go pulls in "sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect captures the SQL differences between supported databases
type Dialect struct {
	// Driver is the database/sql driver name
	Driver string
	// Returning is true when INSERT ... RETURNING reports generated IDs
	Returning bool
	// Serial is the column definition of an auto-increment primary key
	Serial string
	// Numbered is true for $1-style placeholders, false for ?
	Numbered bool
}

var (
	SQLite = Dialect{
		Driver: "sqlite3",
		Serial: "INTEGER PRIMARY KEY AUTOINCREMENT",
	}
	Postgres = Dialect{
		Driver:    "pgx",
		Returning: true,
		Serial:    "BIGSERIAL PRIMARY KEY",
		Numbered:  true,
	}
)

// DialectFor returns the dialect of a driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case SQLite.Driver:
		return SQLite, nil
	case Postgres.Driver, "postgres":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Placeholder returns the bind parameter for the n-th argument, counting from 1
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidPrefix reports whether a table prefix is safe to splice into SQL
func ValidPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}

// Open connects to a database and checks the connection
func Open(ctx context.Context, driver, dsn string) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, Dialect{}, err
	}

	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, Dialect{}, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite {
		// SQLite allows one writer; a single connection also keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Dialect{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, dialect, nil
}
