package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dbchat-dev/dbchat/internal/gate"
)

// Executor adapts the connection pool to the execution gate's storage
// execution interface. It runs exactly the statement it is given, with an
// explicit timeout, and reports backend errors verbatim.
type Executor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewExecutor creates an Executor with the given per-statement timeout.
func NewExecutor(pool *pgxpool.Pool, timeout time.Duration) *Executor {
	return &Executor{pool: pool, timeout: timeout}
}

// Execute runs the statement and collects its rows. The caller (the gate)
// owns truncation; this adapter returns everything the backend produced.
func (e *Executor) Execute(ctx context.Context, statement string) (*gate.ResultSet, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := e.pool.Query(queryCtx, statement)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	result := &gate.ResultSet{Columns: columns}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return result, nil
}
