package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"canvas-backend/internal/config"
)

// Dialect captures the differences between the supported SQL engines.
type Dialect struct {
	Name       string
	DriverName string
	// Positional placeholders ($1, $2, ...) instead of "?".
	numbered bool
	types    columnTypes
}

type columnTypes struct {
	JSON      string
	Timestamp string
	Blob      string
	Float     string
}

var (
	// SQLite runs on the pure Go modernc.org/sqlite driver.
	SQLite = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite",
		types:      columnTypes{JSON: "TEXT", Timestamp: "DATETIME", Blob: "BLOB", Float: "REAL"},
	}
	// Postgres runs on pgx through its database/sql adapter.
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "pgx",
		numbered:   true,
		types:      columnTypes{JSON: "JSONB", Timestamp: "TIMESTAMPTZ", Blob: "BYTEA", Float: "DOUBLE PRECISION"},
	}
)

// DialectFor maps a configured driver to its dialect.
func DialectFor(driver config.Driver) (Dialect, error) {
	switch driver {
	case config.DriverSQLite:
		return SQLite, nil
	case config.DriverPostgres:
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// rebind rewrites "?" placeholders for dialects with numbered parameters.
func (d Dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
