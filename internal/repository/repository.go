// Package repository implements the ledger store on a relational database.
package repository

import (
	"context"
	"database/sql"
	"time"
)

// querier is satisfied by *sql.DB, *sql.Tx and *database.DB.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Timestamps are stored as unix microseconds in both dialects.
func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}
