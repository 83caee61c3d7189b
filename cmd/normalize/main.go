// Command normalize migrates question documents to the canonical image
// array shape and prints a report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"progportal/internal/app"
	"progportal/internal/docstore"
	"progportal/internal/logger"
	"progportal/internal/normalize"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// openStore is swapped in tests.
var openStore = docstore.Open

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], app.LoadConfig(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, cfg app.Config, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	collection := fs.String("collection", app.QuestionsCollection, "collection to normalize")
	driver := fs.String("driver", cfg.StoreDriver, "store driver: mongo, postgres or memory")
	xlsxPath := fs.String("xlsx", "", "also write the report to this .xlsx file")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	dryRun := fs.Bool("dry-run", false, "plan changes without writing")
	seedEmpty := fs.Bool("seed-empty", false, "let a legacy value fill an empty image array")
	noColor := fs.Bool("no-color", false, "disable colored output")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	logger.InitWriter(stderr, cfg.AppEnv, cfg.LogLevel)

	db, err := openStore(ctx, docstore.Config{
		Driver:        *driver,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		PostgresDSN:   cfg.DBDSN,
		MaxOpenConns:  cfg.DBMaxOpenConns,
	})
	if err != nil {
		log.Error().Err(err).Str("driver", *driver).Msg("open store")
		return exitError
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	n := normalize.New(normalize.Options{
		SeedEmptySequences: *seedEmpty,
		DryRun:             *dryRun,
	}, log.Logger)
	report, err := n.Normalize(ctx, db.Collection(*collection))
	if err != nil {
		log.Error().Err(err).Str("collection", *collection).Msg("normalization aborted")
		return exitError
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "write report: %v\n", err)
			return exitError
		}
	} else {
		plain := *noColor || !isTerminal(stdout)
		if err := normalize.RenderText(stdout, report, plain); err != nil {
			fmt.Fprintf(stderr, "write report: %v\n", err)
			return exitError
		}
	}

	if *xlsxPath != "" {
		if err := writeXLSX(*xlsxPath, report); err != nil {
			log.Error().Err(err).Str("path", *xlsxPath).Msg("write workbook")
			return exitError
		}
		log.Info().Str("path", *xlsxPath).Msg("workbook written")
	}
	return exitOK
}

func writeXLSX(path string, report *normalize.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := normalize.WriteXLSX(f, report); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}
