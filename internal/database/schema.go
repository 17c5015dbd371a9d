package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// schemaQuery is a fixed statement; it never carries model-originated text.
const schemaQuery = `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
  AND table_name NOT IN ('schema_migrations', 'sessions', 'messages', 'documents')
ORDER BY table_name, ordinal_position`

// Rower is the minimal query surface SchemaInfo needs; *pgxpool.Pool and
// pgx.Tx both satisfy it.
type Rower interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// SchemaInfo returns a human-readable description of the public schema,
// grouped by table. The pipeline's own bookkeeping tables are excluded so
// the model only sees the data it is meant to query.
func SchemaInfo(ctx context.Context, q Rower) (string, error) {
	rows, err := q.Query(ctx, schemaQuery)
	if err != nil {
		return "", fmt.Errorf("querying schema: %w", err)
	}
	defer rows.Close()

	var (
		b            strings.Builder
		currentTable string
	)
	b.WriteString("Database Schema:\n")

	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return "", fmt.Errorf("scanning schema row: %w", err)
		}
		if tableName != currentTable {
			currentTable = tableName
			fmt.Fprintf(&b, "\nTable: %s\n", currentTable)
		}
		fmt.Fprintf(&b, "  - %s: %s", columnName, dataType)
		if isNullable == "NO" {
			b.WriteString(" (NOT NULL)")
		}
		b.WriteString("\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterating schema rows: %w", err)
	}

	return b.String(), nil
}
