package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/MrWong99/editscore/internal/codebook"
	"github.com/MrWong99/editscore/internal/config"
	"github.com/MrWong99/editscore/internal/reportstore"
	"github.com/MrWong99/editscore/internal/reportstore/memstore"
	"github.com/MrWong99/editscore/internal/wer"
)

// runCLI runs the command line in-process and restores the global logger and
// telemetry providers afterwards.
func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	origLogger := slog.Default()
	origMP := otel.GetMeterProvider()
	origTP := otel.GetTracerProvider()
	t.Cleanup(func() {
		slog.SetDefault(origLogger)
		otel.SetMeterProvider(origMP)
		otel.SetTracerProvider(origTP)
	})

	var out, errb bytes.Buffer
	code = run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_WER(t *testing.T) {
	code, stdout, stderr := runCLI(t, "wer", "-ref", "the cat sat", "-hyp", "the cat sit", "-status")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	var res wer.Result
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("output is not a wer.Result: %v\n%s", err, stdout)
	}
	if res.Report.Rate != 0.333 || res.Report.Substitutions != 1 {
		t.Errorf("Report = %+v", res.Report)
	}
	if len(res.Status) != 3 {
		t.Errorf("len(Status) = %d, want 3", len(res.Status))
	}
}

func TestRun_CER(t *testing.T) {
	code, stdout, stderr := runCLI(t, "cer", "-ref", "abc", "-hyp", "abd")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, `"mode": "char"`) || !strings.Contains(stdout, `"rate": 0.333`) {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestRun_HighlightIsNotEscaped(t *testing.T) {
	code, stdout, stderr := runCLI(t, "wer", "-ref", "a b", "-hyp", "a c", "-highlight")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "<span style='color: blue;'>c</span>") {
		t.Errorf("highlight missing or escaped:\n%s", stdout)
	}
}

func TestRun_EmptyReference(t *testing.T) {
	code, _, stderr := runCLI(t, "wer", "-ref", "  ", "-hyp", "x")
	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr, "empty reference") {
		t.Errorf("stderr = %q, want empty reference error", stderr)
	}
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no command", args: nil, want: exitUsage},
		{name: "unknown command", args: []string{"frobnicate"}, want: exitUsage},
		{name: "help", args: []string{"-h"}, want: exitOK},
		{name: "missing ref", args: []string{"wer", "-hyp", "x"}, want: exitUsage},
		{name: "bad normalization", args: []string{"wer", "-ref", "a", "-normalize", "sometimes"}, want: exitUsage},
		{name: "unknown flag", args: []string{"cer", "-loud"}, want: exitUsage},
		{name: "score without sentence", args: []string{"score", "-codebook", "x.tsv"}, want: exitUsage},
		{name: "score without codebook", args: []string{"score", "happy"}, want: exitUsage},
		{name: "batch without input", args: []string{"batch"}, want: exitUsage},
		{name: "batch bad mode", args: []string{"batch", "-input", "x.tsv", "-mode", "line"}, want: exitUsage},
		{name: "report without id", args: []string{"report"}, want: exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, stderr := runCLI(t, tt.args...); code != tt.want {
				t.Errorf("exit code = %d, want %d; stderr:\n%s", code, tt.want, stderr)
			}
		})
	}
}

func TestRun_Score(t *testing.T) {
	book := writeFile(t, "codebook.tsv", "word\tscore\nhappy\t0.8\nsad\t-0.8\n")

	code, stdout, stderr := runCLI(t, "score", "-codebook", book, "happpy")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	var res codebook.Result
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("output is not a codebook.Result: %v\n%s", err, stdout)
	}
	if res.FinalScore != 0.64 {
		t.Errorf("FinalScore = %v, want 0.64", res.FinalScore)
	}
	if len(res.Matches) != 1 || res.Matches[0].BestWord != "happy" {
		t.Errorf("Matches = %+v", res.Matches)
	}
}

func TestRun_ScoreWithConfig(t *testing.T) {
	book := writeFile(t, "codebook.tsv", "word\tscore\nhappy\t0.8\nhappy\t0.5\n")
	cfg := writeFile(t, "editscore.yaml", "log_level: error\ncodebook:\n  path: "+book+"\n  duplicates: last_wins\n")

	code, stdout, stderr := runCLI(t, "-config", cfg, "score", "happy")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, `"final_score": 0.5`) {
		t.Errorf("unexpected output:\n%s", stdout)
	}

	// The same codebook fails to load under the default duplicate policy.
	if code, _, _ := runCLI(t, "score", "-codebook", book, "happy"); code != exitFailure {
		t.Errorf("exit code = %d, want %d for duplicate words", code, exitFailure)
	}
}

func TestRun_ScoreMissingCodebook(t *testing.T) {
	code, _, stderr := runCLI(t, "score", "-codebook", filepath.Join(t.TempDir(), "missing.tsv"), "happy")
	if code != exitFailure {
		t.Errorf("exit code = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(stderr, "codebook: load failed") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_BadConfig(t *testing.T) {
	cfg := writeFile(t, "editscore.yaml", "log_level: loud\n")
	if code, _, stderr := runCLI(t, "-config", cfg, "wer", "-ref", "a"); code != exitFailure {
		t.Errorf("exit code = %d, want %d; stderr:\n%s", code, exitFailure, stderr)
	}
}

// useMemStore makes the report commands use an in-memory store and returns
// a config file that names a DSN so they accept -save.
func useMemStore(t *testing.T) (*memstore.Store, string) {
	t.Helper()
	store := memstore.New()
	orig := openStore
	openStore = func(context.Context, config.StoreConfig) (reportstore.Store, func(), error) {
		return store, func() {}, nil
	}
	t.Cleanup(func() { openStore = orig })
	cfg := writeFile(t, "editscore.yaml", "store:\n  postgres_dsn: postgres://unused/editscore\n")
	return store, cfg
}

const corpusTSV = "id\treference\thypothesis\n" +
	"u1\tthe cat sat\tthe cat sit\n" +
	"u2\t\tnoise\n" +
	"u3\ta b c\ta b\n"

func TestRun_Batch(t *testing.T) {
	corpus := writeFile(t, "corpus.tsv", corpusTSV)
	store, cfg := useMemStore(t)

	code, stdout, stderr := runCLI(t, "-config", cfg, "batch", "-input", corpus, "-workers", "2", "-save")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}

	var out struct {
		RunID  string `json:"run_id"`
		Corpus struct {
			ReferenceLength int     `json:"reference_length"`
			Rate            float64 `json:"rate"`
		} `json:"corpus"`
		Rows    []json.RawMessage `json:"rows"`
		Skipped int               `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout)
	}
	if out.RunID == "" {
		t.Error("run_id missing although -save was given")
	}
	if len(out.Rows) != 3 || out.Skipped != 1 {
		t.Errorf("rows = %d, skipped = %d; want 3 and 1", len(out.Rows), out.Skipped)
	}
	if out.Corpus.ReferenceLength != 6 || out.Corpus.Rate != 0.333 {
		t.Errorf("corpus = %+v, want 6 reference words at rate 0.333", out.Corpus)
	}
	if store.Len() != 1 {
		t.Errorf("store holds %d runs, want 1", store.Len())
	}

	code, stdout, stderr = runCLI(t, "-config", cfg, "report", "-id", out.RunID)
	if code != exitOK {
		t.Fatalf("report exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, out.RunID) || !strings.Contains(stdout, `"rate": 0.333`) {
		t.Errorf("report output does not show the saved run:\n%s", stdout)
	}
}

func TestRun_BatchWithoutSave(t *testing.T) {
	corpus := writeFile(t, "corpus.tsv", corpusTSV)

	code, stdout, stderr := runCLI(t, "batch", "-input", corpus)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if strings.Contains(stdout, "run_id") {
		t.Errorf("run_id printed for an unsaved run:\n%s", stdout)
	}
}

func TestRun_BatchSaveRequiresDatabase(t *testing.T) {
	corpus := writeFile(t, "corpus.tsv", corpusTSV)

	code, stdout, stderr := runCLI(t, "batch", "-input", corpus, "-save")
	if code != exitUsage {
		t.Errorf("exit code = %d, want %d", code, exitUsage)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}
	if !strings.Contains(stderr, "store.postgres_dsn") {
		t.Errorf("stderr = %q, want it to name store.postgres_dsn", stderr)
	}
}

func TestRun_StartsTelemetryForEveryCommand(t *testing.T) {
	book := writeFile(t, "codebook.tsv", "word\tscore\nfine\t1\n")
	corpus := writeFile(t, "corpus.tsv", corpusTSV)
	for _, args := range [][]string{
		{"wer", "-ref", "a", "-hyp", "a"},
		{"cer", "-ref", "a", "-hyp", "a"},
		{"score", "-codebook", book, "fine"},
		{"batch", "-input", corpus},
	} {
		code, _, stderr := runCLI(t, args...)
		if code != exitOK || strings.Contains(stderr, "telemetry") {
			t.Errorf("%s: exit code = %d, stderr:\n%s", args[0], code, stderr)
		}
	}
}

func TestRun_ReportRequiresDatabase(t *testing.T) {
	if code, _, stderr := runCLI(t, "report", "-id", "x"); code != exitFailure {
		t.Errorf("exit code = %d, want %d; stderr:\n%s", code, exitFailure, stderr)
	}
}
