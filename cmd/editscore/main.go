// Command editscore scores speech recognition output: word and character
// error rates against a reference transcript, codebook-weighted sentence
// scores, and concurrent corpus runs.
//
// Usage:
//
//	editscore [-config file] [-metrics-addr addr] <command> [flags]
//
// Commands:
//
//	wer     word error rate of one hypothesis
//	cer     character error rate of one hypothesis
//	score   codebook score of a sentence
//	batch   error rates of a TSV corpus
//	report  print a stored batch run
//
// Results are written to stdout as JSON. The exit code is 0 on success, 1 when
// scoring fails and 2 on invalid usage.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/editscore/internal/config"
	"github.com/MrWong99/editscore/internal/observe"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// env carries what every command needs.
type env struct {
	cfg     *config.Config
	metrics *observe.Metrics
	stdout  io.Writer
	stderr  io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, e *env, args []string) int
}

var commands = map[string]command{
	"wer":    {"word error rate of one hypothesis", runWER},
	"cer":    {"character error rate of one hypothesis", runCER},
	"score":  {"codebook score of a sentence", runScore},
	"batch":  {"error rates of a TSV corpus", runBatch},
	"report": {"print a stored batch run", runReport},
}

var commandOrder = []string{"wer", "cer", "score", "batch", "report"}

func run(args []string, stdout, stderr io.Writer) int {
	// ── Global flags ──────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("editscore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the YAML configuration file (optional)")
	metricsAddr := fs.String("metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.listen_addr)")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(fs)
		return exitUsage
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "editscore: unknown command %q\n", name)
		usage(fs)
		return exitUsage
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(stderr, "editscore: %v\n", err)
			return exitFailure
		}
	}
	if *metricsAddr != "" {
		cfg.Metrics.ListenAddr = *metricsAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.LogLevel, stderr))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Metrics.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return exitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return exitFailure
	}

	if cfg.Metrics.ListenAddr != "" {
		serveCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := provider.ServeMetrics(serveCtx, cfg.Metrics.ListenAddr); err != nil {
				slog.Error("metrics server error", "err", err)
			}
		}()
	}

	slog.Debug("editscore starting",
		"command", name,
		"config", *configPath,
		"log_level", cfg.LogLevel,
		"version", version,
	)

	return cmd.run(ctx, &env{cfg: cfg, metrics: metrics, stdout: stdout, stderr: stderr}, fs.Args()[1:])
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: editscore [global flags] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nglobal flags:")
	fs.PrintDefaults()
}

// newLogger builds a text logger on w at the configured level.
func newLogger(level config.LogLevel, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// writeJSON encodes v as indented JSON. HTML is not escaped so highlighted
// alignments stay readable.
func (e *env) writeJSON(v any) int {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to write result", "err", err)
		return exitFailure
	}
	return exitOK
}

// fail reports err on stderr and returns the failure exit code.
func (e *env) fail(err error) int {
	fmt.Fprintf(e.stderr, "editscore: %v\n", err)
	return exitFailure
}
