package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gsg-platform/bridge/pkg/contracts"
)

// runRegisterCmd registers one event contract from a JSON Schema file.
// Re-registering an identical schema is a no-op; changing a published
// version is rejected.
func runRegisterCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	name := fs.String("name", "", "contract name, e.g. csr_ingested")
	version := fs.Int("version", 0, "contract version")
	schemaPath := fs.String("schema", "", "path to the JSON Schema file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *name == "" || *version <= 0 || *schemaPath == "" {
		fmt.Fprintln(stderr, "usage: bridge register --name <name> --version <n> --schema <file>")
		return 2
	}

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reg := contracts.NewRegistry(contracts.NewPostgresStore(db))
	if err := reg.Warm(ctx); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := reg.Register(ctx, *name, *version, schema); err != nil {
		fmt.Fprintln(stderr, "register:", err)
		return 1
	}
	fmt.Fprintf(stdout, "registered %s@%d\n", *name, *version)
	return 0
}
