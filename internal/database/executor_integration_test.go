package database_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dbchat-dev/dbchat/internal/database"
	"github.com/dbchat-dev/dbchat/internal/gate"
	"github.com/dbchat-dev/dbchat/internal/log"
	"github.com/dbchat-dev/dbchat/internal/testutil"
)

func TestExecutorIntegration(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	executor := database.NewExecutor(testDB.Pool, 10*time.Second)

	result, err := executor.Execute(ctx, "SELECT name, price FROM products ORDER BY price DESC LIMIT 2")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "name" || result.Columns[1] != "price" {
		t.Errorf("columns = %v", result.Columns)
	}
	if len(result.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(result.Rows))
	}

	// A validator-accepted statement the backend rejects surfaces its error
	// verbatim; no repair is attempted.
	_, err = executor.Execute(ctx, "SELECT no_such_column FROM products")
	if err == nil {
		t.Fatal("expected structural error for unknown column")
	}
}

func TestSchemaInfoIntegration(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	schema, err := database.SchemaInfo(context.Background(), testDB.Pool)
	if err != nil {
		t.Fatalf("SchemaInfo: %v", err)
	}

	for _, table := range []string{"Table: products", "Table: customers", "Table: orders"} {
		if !strings.Contains(schema, table) {
			t.Errorf("schema missing %q", table)
		}
	}
	// Pipeline bookkeeping tables stay invisible to the model.
	for _, hidden := range []string{"sessions", "messages", "documents", "schema_migrations"} {
		if strings.Contains(schema, "Table: "+hidden) {
			t.Errorf("schema exposes bookkeeping table %q", hidden)
		}
	}
}

func TestGateIntegration(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	executor := database.NewExecutor(testDB.Pool, 10*time.Second)
	g := gate.New(executor, 5, log.NewNop())

	confirmYes := func(string) (bool, error) { return true, nil }

	// Ten seeded products against a display cap of five.
	result, err := g.ConfirmAndExecute(ctx, "SELECT name FROM products", confirmYes)
	if err != nil {
		t.Fatalf("ConfirmAndExecute: %v", err)
	}
	if len(result.Rows) != 5 {
		t.Errorf("rows = %d, want display cap of 5", len(result.Rows))
	}
	if !result.Truncated {
		t.Error("expected truncation notice")
	}

	confirmNo := func(string) (bool, error) { return false, nil }
	_, err = g.ConfirmAndExecute(ctx, "SELECT name FROM products", confirmNo)
	if !errors.Is(err, gate.ErrDeclined) {
		t.Errorf("expected ErrDeclined, got %v", err)
	}
}
