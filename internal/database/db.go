package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/lib/pq"
)

// Dialect selects placeholder syntax and a few SQL differences.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "postgres"
}

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "postgres":
		return Postgres, nil
	case "sqlite":
		return SQLite, nil
	default:
		return Postgres, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

type DB struct {
	*sql.DB
	Dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects with the driver registered for dialect and verifies the
// connection.
func Open(ctx context.Context, dialect Dialect, dsn string, pool PoolConfig) (*DB, error) {
	driver := "postgres"
	if dialect == SQLite {
		driver = "sqlite"
		// one writer at a time; sqlite serialises writes anyway
		pool.MaxOpenConns = 1
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return New(sqlDB, dialect), nil
}

func (db *DB) QuerySafe(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	return rows, nil
}

// NewQueryBuilder returns a builder using the connection's dialect.
func (db *DB) NewQueryBuilder() *QueryBuilder {
	return NewQueryBuilder(db.Dialect)
}

// QueryBuilder rewrites @name parameters into positional placeholders.
// Arguments are emitted in order of appearance, so the output is
// deterministic.
type QueryBuilder struct {
	dialect Dialect
	params  map[string]interface{}
}

func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{
		dialect: dialect,
		params:  make(map[string]interface{}),
	}
}

func (qb *QueryBuilder) AddParam(name string, value interface{}) *QueryBuilder {
	qb.params[name] = value
	return qb
}

// Build replaces each @name with $n (postgres, reused for repeats) or ?
// (sqlite, one argument per occurrence). Unknown names are an error.
func (qb *QueryBuilder) Build(baseQuery string) (string, []interface{}, error) {
	var (
		out      strings.Builder
		args     []interface{}
		position = make(map[string]int)
	)
	out.Grow(len(baseQuery))

	for i := 0; i < len(baseQuery); i++ {
		ch := baseQuery[i]
		if ch != '@' {
			out.WriteByte(ch)
			continue
		}

		j := i + 1
		for j < len(baseQuery) && isParamChar(baseQuery[j]) {
			j++
		}
		name := baseQuery[i+1 : j]
		if name == "" {
			out.WriteByte(ch)
			continue
		}

		value, ok := qb.params[name]
		if !ok {
			return "", nil, fmt.Errorf("query parameter @%s not set", name)
		}

		if qb.dialect == SQLite {
			out.WriteByte('?')
			args = append(args, value)
		} else {
			n, seen := position[name]
			if !seen {
				args = append(args, value)
				n = len(args)
				position[name] = n
			}
			fmt.Fprintf(&out, "$%d", n)
		}
		i = j - 1
	}

	return out.String(), args, nil
}

func isParamChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type TxFn func(*sql.Tx) error

// WithTransaction runs fn in a transaction, committing on success and
// rolling back on error or panic.
func (db *DB) WithTransaction(ctx context.Context, fn TxFn) error {
	return db.withTx(ctx, nil, fn)
}

// WithReadTransaction runs fn in a read-only transaction so that every
// statement in it sees the same committed state. Postgres gets a repeatable
// read snapshot; a sqlite transaction already holds the single connection.
func (db *DB) WithReadTransaction(ctx context.Context, fn TxFn) error {
	var opts *sql.TxOptions
	if db.Dialect == Postgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return db.withTx(ctx, opts, fn)
}

func (db *DB) withTx(ctx context.Context, opts *sql.TxOptions, fn TxFn) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func SafeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func SafeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
