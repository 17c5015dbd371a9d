// Package gate implements the execution gate, the last defense layer between
// a validated model-generated query and the database.
//
// Even a validator bug cannot cause execution without an explicit human
// affirmation: the gate presents the candidate text to the operator and only
// forwards it on a yes. The gate is the sole component allowed to pass
// model-originated text to the storage execution interface.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDeclined indicates the operator declined confirmation. It is a normal
// negative outcome, not a failure: no storage access has happened.
var ErrDeclined = errors.New("execution declined")

// ResultSet is an ordered set of rows returned by an executed statement.
type ResultSet struct {
	Columns []string
	Rows    [][]any

	// Truncated reports that rows beyond the display cap were dropped.
	// Truncation never triggers a re-query.
	Truncated bool
}

// Executor is the storage execution interface. Implementations run exactly
// the statement they are given and report structural errors verbatim.
type Executor interface {
	Execute(ctx context.Context, statement string) (*ResultSet, error)
}

// ConfirmFunc is the yes/no oracle presented with the candidate statement.
// The interactive prompt lives outside this package.
type ConfirmFunc func(statement string) (bool, error)

// Gate guards the storage execution interface behind operator confirmation.
type Gate struct {
	executor Executor
	maxRows  int
	logger   *slog.Logger
}

// New creates a Gate. maxRows caps how many rows of a result set are kept
// for display.
func New(executor Executor, maxRows int, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{executor: executor, maxRows: maxRows, logger: logger}
}

// ConfirmAndExecute presents the original (non-normalized) candidate text to
// the operator and, on affirmative confirmation, forwards it verbatim to the
// executor. On decline it returns ErrDeclined without touching storage.
func (g *Gate) ConfirmAndExecute(ctx context.Context, candidate string, confirm ConfirmFunc) (*ResultSet, error) {
	ok, err := confirm(candidate)
	if err != nil {
		return nil, fmt.Errorf("reading confirmation: %w", err)
	}
	if !ok {
		g.logger.Info("query execution declined by operator")
		return nil, ErrDeclined
	}

	result, err := g.executor.Execute(ctx, candidate)
	if err != nil {
		// Structural errors from the backend surface verbatim; the pipeline
		// does not attempt repair or re-generation.
		return nil, err
	}

	if len(result.Rows) > g.maxRows {
		result.Rows = result.Rows[:g.maxRows]
		result.Truncated = true
	}

	g.logger.Debug("query executed", "rows", len(result.Rows), "truncated", result.Truncated)
	return result, nil
}
