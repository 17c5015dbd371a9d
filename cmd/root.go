// Package cmd provides the dbchat command line interface.
//
// The root command starts an interactive loop: one user turn at a time,
// processed to completion before the next is read. Signal handling cancels
// between turns via context; a call already in flight runs to its timeout.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dbchat-dev/dbchat/internal/app"
	"github.com/dbchat-dev/dbchat/internal/config"
	"github.com/dbchat-dev/dbchat/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "dbchat",
	Short: "Chat with your PostgreSQL database",
	Long: `dbchat is an interactive assistant for a PostgreSQL database.

It translates natural-language questions into read-only SQL (executed only
after your confirmation), answers questions from a knowledge base, and holds
ordinary conversation. Run it without arguments to start a session.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runRoot(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return runREPL(ctx, a, os.Stdin, os.Stdout)
}
