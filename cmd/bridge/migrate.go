package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gsg-platform/bridge/pkg/store"
)

// runMigrateCmd applies the schema. It opens the database directly
// because the platform warms the contract cache from a table this
// command creates.
func runMigrateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dimension := fs.Int("dimension", 384, "embedding vector width")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		fmt.Fprintln(stderr, "DB_DSN is required")
		return 1
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := store.Migrate(ctx, db, *dimension); err != nil {
		fmt.Fprintln(stderr, "migrate:", err)
		return 1
	}
	fmt.Fprintf(stdout, "schema applied (embedding dimension %d)\n", *dimension)
	return 0
}
