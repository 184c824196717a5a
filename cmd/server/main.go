/*
main.go - Application entry point

PURPOSE:
  Starts the stock engine CLI. All commands live in internal/cli.

COMMANDS:
  serve       Run the HTTP API with graceful shutdown
  migrate     Create the schema and exit
  reconcile   Compare balances with document history (exit 1 on drift)

EXAMPLES:
  # Run with file database
  ./server serve --db ./data/stock.db

  # Run in memory with demo scenarios
  ./server serve --driver memory --scenarios

  # PostgreSQL with Redis locks for several instances
  DATABASE_URL=postgres://... REDIS_ADDR=localhost:6379 ./server serve --driver postgres

ENVIRONMENT:
  See config/config.go. Flags override environment values.

SEE ALSO:
  - internal/cli/root.go: Global flags
  - api/server.go: Router configuration
*/
package main

import (
	"fmt"
	"os"

	"github.com/warp/stock-engine/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
