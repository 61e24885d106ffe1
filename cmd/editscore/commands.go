package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/editscore/internal/batch"
	"github.com/MrWong99/editscore/internal/codebook"
	"github.com/MrWong99/editscore/internal/config"
	"github.com/MrWong99/editscore/internal/phonetic"
	"github.com/MrWong99/editscore/internal/reportstore"
	"github.com/MrWong99/editscore/internal/reportstore/postgres"
	"github.com/MrWong99/editscore/internal/wer"
)

// newFlagSet returns a flag set for a subcommand that reports errors on the
// command's stderr instead of exiting.
func (e *env) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet("editscore "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// parse parses args into fs and maps the outcome to an exit code; ok is
// false when the command must stop.
func parse(fs *flag.FlagSet, args []string) (code int, ok bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	return exitOK, true
}

// isSet reports whether the flag name was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func usageError(fs *flag.FlagSet, format string, args ...any) int {
	fmt.Fprintf(fs.Output(), "%s: %s\n", fs.Name(), fmt.Sprintf(format, args...))
	fs.Usage()
	return exitUsage
}

// ── wer / cer ─────────────────────────────────────────────────────────────────

func runWER(ctx context.Context, e *env, args []string) int {
	return runRate(ctx, e, "wer", wer.ModeWord, args)
}

func runCER(ctx context.Context, e *env, args []string) int {
	return runRate(ctx, e, "cer", wer.ModeChar, args)
}

func runRate(ctx context.Context, e *env, name string, mode wer.Mode, args []string) int {
	fs := e.newFlagSet(name)
	ref := fs.String("ref", "", "reference transcript (required)")
	hyp := fs.String("hyp", "", "hypothesis transcript")
	status := fs.Bool("status", false, "include the per-position alignment")
	highlight := fs.Bool("highlight", false, "include HTML-highlighted aligned texts")
	norm := fs.String("normalize", string(e.cfg.WER.Normalize), "normalisation policy: reference, none or both (default depends on mode)")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if !isSet(fs, "ref") {
		return usageError(fs, "-ref is required")
	}

	opts := []wer.Option{
		wer.WithNormalization(wer.Normalization(*norm)),
		wer.WithMetrics(e.metrics),
	}
	if *status {
		opts = append(opts, wer.WithStatus())
	}
	if *highlight {
		opts = append(opts, wer.WithHighlight())
	}
	eval, err := wer.New(mode, opts...)
	if err != nil {
		return usageError(fs, "%v", err)
	}

	res, err := eval.Evaluate(ctx, *ref, *hyp)
	if err != nil {
		return e.fail(err)
	}
	return e.writeJSON(res)
}

// ── score ─────────────────────────────────────────────────────────────────────

func runScore(ctx context.Context, e *env, args []string) int {
	cc := e.cfg.Codebook
	fs := e.newFlagSet("score")
	path := fs.String("codebook", cc.Path, "codebook TSV file with word and score columns")
	threshold := fs.Float64("threshold", cc.Threshold, "largest normalised edit distance that still matches")
	lastWins := fs.Bool("last-wins", cc.Duplicates == config.DuplicatesLastWins, "accept duplicate codebook words, keeping the last score")
	usePhonetic := fs.Bool("phonetic", cc.Phonetic.Enabled, "fall back to phonetic matching for unmatched words")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: editscore score [flags] SENTENCE...")
		fs.PrintDefaults()
	}
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *path == "" {
		return usageError(fs, "-codebook is required")
	}
	if fs.NArg() == 0 {
		return usageError(fs, "missing sentence")
	}
	if *threshold < 0 || *threshold > 1 {
		return usageError(fs, "-threshold %.2f is out of range [0, 1]", *threshold)
	}

	var parseOpts []codebook.ParseOption
	if *lastWins {
		parseOpts = append(parseOpts, codebook.WithLastWins())
	}
	book, err := codebook.Load(*path, parseOpts...)
	if err != nil {
		return e.fail(err)
	}

	opts := []codebook.Option{
		codebook.WithThreshold(*threshold),
		codebook.WithMetrics(e.metrics),
	}
	if *usePhonetic {
		opts = append(opts, codebook.WithPhoneticFallback(phonetic.New(book.Words(),
			phonetic.WithPhoneticThreshold(cc.Phonetic.PhoneticThreshold),
			phonetic.WithFuzzyThreshold(cc.Phonetic.FuzzyThreshold),
		)))
	}
	scorer := codebook.NewScorer(book, opts...)

	slog.Debug("codebook loaded", "path", *path, "entries", book.Len(), "threshold", scorer.Threshold())
	return e.writeJSON(scorer.Score(ctx, strings.Join(fs.Args(), " ")))
}

// ── batch ─────────────────────────────────────────────────────────────────────

// batchOutput is the JSON document printed by the batch command.
type batchOutput struct {
	RunID string `json:"run_id,omitempty"`
	*batch.Summary
}

func runBatch(ctx context.Context, e *env, args []string) int {
	fs := e.newFlagSet("batch")
	input := fs.String("input", "", "TSV corpus with id, reference and hypothesis columns (required)")
	workers := fs.Int("workers", e.cfg.Batch.Workers, "rows scored concurrently (0 = number of CPUs)")
	mode := fs.String("mode", string(e.cfg.WER.Mode), "token unit: word or char")
	norm := fs.String("normalize", string(e.cfg.WER.Normalize), "normalisation policy: reference, none or both (default depends on mode)")
	status := fs.Bool("status", false, "include the per-position alignment of every row")
	save := fs.Bool("save", false, "persist the run in PostgreSQL (requires store.postgres_dsn)")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *input == "" {
		return usageError(fs, "-input is required")
	}
	if *workers < 0 {
		return usageError(fs, "-workers must not be negative")
	}
	if *save && e.cfg.Store.PostgresDSN == "" {
		return usageError(fs, "-save requires store.postgres_dsn in the configuration")
	}

	opts := []wer.Option{
		wer.WithNormalization(wer.Normalization(*norm)),
		wer.WithMetrics(e.metrics),
	}
	if *status {
		opts = append(opts, wer.WithStatus())
	}
	eval, err := wer.New(wer.Mode(*mode), opts...)
	if err != nil {
		return usageError(fs, "%v", err)
	}

	rows, err := batch.ReadFile(*input)
	if err != nil {
		return e.fail(err)
	}
	runner := batch.NewRunner(eval,
		batch.WithWorkers(*workers),
		batch.WithMetrics(e.metrics),
	)
	sum, err := runner.Run(ctx, rows)
	if err != nil {
		return e.fail(err)
	}

	out := batchOutput{Summary: sum}
	if *save {
		store, closeStore, err := openStore(ctx, e.cfg.Store)
		if err != nil {
			return e.fail(err)
		}
		defer closeStore()

		run := reportstore.NewRun(sum)
		if err := store.SaveRun(ctx, run); err != nil {
			return e.fail(err)
		}
		out.RunID = run.ID
		slog.Info("batch run saved", "run_id", run.ID, "rows", len(sum.Rows))
	}
	return e.writeJSON(out)
}

// ── report ────────────────────────────────────────────────────────────────────

func runReport(ctx context.Context, e *env, args []string) int {
	fs := e.newFlagSet("report")
	id := fs.String("id", "", "run ID printed by batch -save (required)")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *id == "" {
		return usageError(fs, "-id is required")
	}
	if e.cfg.Store.PostgresDSN == "" {
		return e.fail(errors.New("report: store.postgres_dsn is not configured"))
	}

	store, closeStore, err := openStore(ctx, e.cfg.Store)
	if err != nil {
		return e.fail(err)
	}
	defer closeStore()

	run, err := store.Run(ctx, *id)
	if err != nil {
		return e.fail(err)
	}
	return e.writeJSON(run)
}

// openStore opens the configured report store. Callers check that a DSN is
// configured. Tests replace it.
var openStore = openPostgresStore

func openPostgresStore(ctx context.Context, cfg config.StoreConfig) (reportstore.Store, func(), error) {
	s, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open report store: %w", err)
	}
	return s, s.Close, nil
}
