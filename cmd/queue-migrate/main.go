// Команда queue-migrate управляет схемой очереди корректирующих сообщений
// в PostgreSQL (драйвер message bus "postgres").
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/akriventsev/library-gateway/framework/migrations"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	dsn := flags.String("database-url", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (default $POSTGRES_DSN)")
	_ = flags.Parse(os.Args[2:])

	if command == "list" {
		exitOnError(runList())
		return
	}

	if *dsn == "" {
		fmt.Fprintf(os.Stderr, "Error: --database-url or POSTGRES_DSN is required\n")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", *dsn)
	exitOnError(err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	switch command {
	case "up":
		err = migrations.Up(ctx, db)
		if err == nil {
			fmt.Println("Migrations applied")
		}
	case "down":
		steps := 1
		if flags.NArg() > 0 {
			steps, err = strconv.Atoi(flags.Arg(0))
			if err != nil {
				exitOnError(fmt.Errorf("invalid steps %q: %w", flags.Arg(0), err))
			}
		}
		err = migrations.Down(ctx, db, steps)
		if err == nil {
			fmt.Printf("Rolled back %d migration(s)\n", steps)
		}
	case "status":
		err = runStatus(ctx, db)
	case "version":
		var version int64
		version, err = migrations.Version(ctx, db)
		if err == nil {
			fmt.Printf("Current version: %d\n", version)
		}
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	exitOnError(err)
}

func runStatus(ctx context.Context, db *sql.DB) error {
	statuses, err := migrations.Status(ctx, db)
	if err != nil {
		return err
	}
	for _, st := range statuses {
		fmt.Printf("  [%-7s] %05d %s\n", st.Status, st.Version, filepath.Base(st.Name))
	}
	return nil
}

func runList() error {
	all, err := migrations.List()
	if err != nil {
		return err
	}
	for _, m := range all {
		fmt.Printf("  %05d %s\n", m.Version, filepath.Base(m.Source))
	}
	return nil
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Correction queue migration tool")
	fmt.Println()
	fmt.Println("Usage: queue-migrate <command> [flags] [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up          - Apply all pending migrations")
	fmt.Println("  down [N]    - Roll back N migrations (default: 1)")
	fmt.Println("  status      - Show status of embedded migrations")
	fmt.Println("  version     - Show current schema version")
	fmt.Println("  list        - List embedded migrations")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --database-url  - PostgreSQL connection string (default: $POSTGRES_DSN)")
}
