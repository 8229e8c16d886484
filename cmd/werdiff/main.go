// Command werdiff scores transcript files from the command line and
// maintains stored evaluations.
//
//	werdiff score [-markup html|brackets] [-json] reference.txt hypothesis.txt
//	werdiff rescore [apply]
//	werdiff summary
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/snarg/sttbench/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "score":
		os.Exit(runScore(os.Stdout, os.Stderr, os.Args[2:]))
	case "rescore":
		dryRun := !(len(os.Args) > 2 && os.Args[2] == "apply")
		os.Exit(withDB(func(ctx context.Context, db *database.DB) error {
			return rescore(ctx, db, os.Stdout, dryRun)
		}))
	case "summary":
		os.Exit(withDB(func(ctx context.Context, db *database.DB) error {
			return summary(ctx, db, os.Stdout)
		}))
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  werdiff score [-markup html|brackets] [-json] reference.txt hypothesis.txt")
	fmt.Fprintln(os.Stderr, "  werdiff rescore [apply]")
	fmt.Fprintln(os.Stderr, "  werdiff summary")
}

// withDB connects using DATABASE_URL and runs fn. It returns the process
// exit code.
func withDB(fn func(ctx context.Context, db *database.DB) error) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	db, err := database.Connect(ctx, os.Getenv("DATABASE_URL"), database.PoolOptions{MaxConns: 2}, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		return 1
	}
	defer db.Close()

	if err := fn(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		return 1
	}
	return 0
}
