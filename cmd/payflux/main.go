// payflux processes a CSV transaction stream and writes the final account
// snapshot to stdout. Diagnostics go to stderr so the two never mix.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"payflux.org/internal/audit"
	"payflux.org/internal/engine"
	"payflux.org/internal/engine/shard"
	"payflux.org/internal/ids"
	"payflux.org/internal/store/pg"
	"payflux.org/internal/txcsv"
)

func main() {
	log.SetFlags(0)
	var (
		shards = flag.Int("shards", envInt("PAYFLUX_SHARDS", 1), "number of client-id partitions")
		quiet  = flag.Bool("quiet", false, "suppress per-event ignore logs")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatal("usage: payflux [-shards n] [-quiet] <transactions.csv>")
	}

	in, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("open input: %v", err)
	}
	defer in.Close()

	runID := ids.NewRunID()
	ctx := context.Background()

	accounts, err := process(ctx, in, *shards, *quiet, runID)
	if err != nil {
		log.Fatalf("process transactions: %v", err)
	}

	if err := txcsv.WriteSnapshot(os.Stdout, accounts); err != nil {
		log.Fatalf("write snapshot: %v", err)
	}

	if dsn := os.Getenv("PAYFLUX_PG_DSN"); dsn != "" {
		if err := persist(ctx, dsn, runID, accounts); err != nil {
			log.Fatalf("persist run %s: %v", runID, err)
		}
	}
}

func process(ctx context.Context, in io.Reader, shards int, quiet bool, runID string) ([]engine.Account, error) {
	observe := func(tx engine.Transaction, out engine.Outcome) {
		if quiet || out.Applied {
			return
		}
		audit.LogOutcome(ctx, tx, out)
	}
	runner := shard.New(shards, observe)

	events := make(chan engine.Transaction, 64)
	var readErr error
	var skipped int
	go func() {
		defer close(events)
		reader := txcsv.NewReader(in)
		for {
			tx, err := reader.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				if errors.Is(err, txcsv.ErrRow) {
					skipped++
					if !quiet {
						log.Printf("skipping %v", err)
					}
					continue
				}
				readErr = err
				return
			}
			events <- tx
		}
	}()

	if err := runner.Run(ctx, events); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}

	accounts := runner.Snapshot()
	total, locked := runner.Size()
	_ = audit.LogEvent(ctx, "engine.run.complete", map[string]any{
		"run_id":          runID,
		"accounts":        total,
		"locked_accounts": locked,
		"skipped_rows":    skipped,
		"shards":          shards,
	})
	return accounts, nil
}

func persist(ctx context.Context, dsn, runID string, accounts []engine.Account) error {
	store, err := pg.Open(dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.SaveRun(ctx, runID, accounts); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "run %s persisted (%d accounts)\n", runID, len(accounts))
	return nil
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return def
	}
	return val
}
