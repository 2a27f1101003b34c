package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"hookrelay/internal/platform/config"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DB carries the driver name next to the pool so repositories can pick the
// right placeholder style.
type DB struct {
	*sql.DB
	Driver string
}

func Wrap(db *sql.DB, driver string) *DB {
	return &DB{DB: db, Driver: driver}
}

func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if strings.HasPrefix(cfg.URL, "postgres://") || strings.HasPrefix(cfg.URL, "postgresql://") {
		driver = DriverPostgres
	}

	dsn := cfg.URL
	switch driver {
	case DriverSQLite:
		// For local files, strip "file:" for the sqlite3 driver
		dsn = strings.TrimPrefix(dsn, "file:")
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	maxConns := cfg.MaxConnections
	if driver == DriverSQLite && dsn == ":memory:" {
		// every connection would get its own empty in-memory database
		maxConns = 1
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return Wrap(db, driver), nil
}

// Rebind rewrites "?" placeholders into "$n" for postgres.
func (db *DB) Rebind(query string) string {
	if db.Driver != DriverPostgres {
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
