package main

import (
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq" // Postgres driver
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "query", "serve":
		return runQueryCmd(args[2:], stderr)
	case "consumer":
		return runConsumerCmd(args[2:], stderr)
	case "relay":
		return runRelayCmd(args[2:], stderr)
	case "lake":
		return runLakeCmd(args[2:], stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "migrate":
		return runMigrateCmd(args[2:], stdout, stderr)
	case "register":
		return runRegisterCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "bridge <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "SERVICES")
	printCommand(w, "query", "Run the memory bank query service (HTTP)")
	printCommand(w, "consumer", "Run the metric writer consumer")
	printCommand(w, "relay", "Run the outbox relay")
	printCommand(w, "lake", "Run the data lake sink")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "OPERATIONS")
	printCommand(w, "migrate", "Apply the database schema (--dimension)")
	printCommand(w, "replay", "Republish registered events (--tenant, --type, --topic, --from)")
	printCommand(w, "register", "Register an event contract (--name, --version, --schema)")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-10s %s\n", name, desc)
}
