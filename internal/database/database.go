// Package database manages the PostgreSQL connection pool and the fixed,
// non-model-originated statements the pipeline itself needs (schema
// introspection, startup recovery). Model-originated text reaches the
// database only through the execution gate's Executor.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dbchat-dev/dbchat/internal/config"
)

// ErrUnavailable indicates the database could not be reached, after any
// startup recovery was attempted.
var ErrUnavailable = errors.New("database unavailable")

// Connect establishes a connection pool and verifies it with a ping.
//
// If the initial ping fails and an administrative connection URL is
// configured, a single bounded recovery is attempted: the expected operating
// role is re-established using the admin credential and the connection is
// retried once. Recovery happens only here, at the startup boundary — never
// mid-turn.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pingCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()

	pool, err := open(pingCtx, cfg)
	if err == nil {
		logger.Info("connected to PostgreSQL", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)
		return pool, nil
	}

	if cfg.AdminDatabaseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	logger.Warn("initial connection failed, attempting operating role recovery", "error", err)
	if recErr := recoverOperatingRole(pingCtx, cfg, logger); recErr != nil {
		return nil, fmt.Errorf("%w: recovery failed: %v (original error: %v)", ErrUnavailable, recErr, err)
	}

	pool, err = open(pingCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	logger.Info("connected to PostgreSQL after role recovery",
		"host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	return pool, nil
}

func open(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// recoverOperatingRole re-creates the expected operating account using the
// administrative credential. The statements are fixed templates; only the
// role name and password vary, and both come from validated configuration,
// never from model output.
func recoverOperatingRole(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, cfg.AdminDatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting with admin credential: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(ctx); closeErr != nil {
			logger.Warn("closing admin connection", "error", closeErr)
		}
	}()

	role := pgx.Identifier{cfg.PostgresUser}.Sanitize()
	dbName := pgx.Identifier{cfg.PostgresDBName}.Sanitize()

	var exists bool
	err = conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", cfg.PostgresUser).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking for operating role: %w", err)
	}

	if !exists {
		// Role names cannot be bound parameters; identifiers are sanitized
		// and the password is passed as a quoted literal.
		stmt := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD %s", role, quoteLiteral(cfg.PostgresPassword))
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating operating role: %w", err)
		}
		logger.Info("re-created operating role", "role", cfg.PostgresUser)
	} else {
		stmt := fmt.Sprintf("ALTER ROLE %s LOGIN PASSWORD %s", role, quoteLiteral(cfg.PostgresPassword))
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("resetting operating role credential: %w", err)
		}
		logger.Info("reset operating role credential", "role", cfg.PostgresUser)
	}

	grants := []string{
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", dbName, role),
		fmt.Sprintf("GRANT USAGE, CREATE ON SCHEMA public TO %s", role),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO %s", role),
		fmt.Sprintf("GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO %s", role),
	}
	for _, g := range grants {
		if _, err := conn.Exec(ctx, g); err != nil {
			return fmt.Errorf("granting privileges: %w", err)
		}
	}

	return nil
}

// quoteLiteral quotes a string as a PostgreSQL literal for statements where
// bound parameters are not accepted (role management DDL).
// Standard-conforming strings: double embedded single quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
