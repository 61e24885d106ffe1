package batch_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/editscore/internal/batch"
	"github.com/MrWong99/editscore/internal/observe"
	"github.com/MrWong99/editscore/internal/wer"
	"github.com/MrWong99/editscore/pkg/align"
)

func newRunner(t *testing.T, mode wer.Mode, opts ...batch.Option) *batch.Runner {
	t.Helper()
	eval, err := wer.New(mode)
	if err != nil {
		t.Fatalf("wer.New: %v", err)
	}
	return batch.NewRunner(eval, opts...)
}

func TestReadRows(t *testing.T) {
	t.Parallel()

	in := "hypothesis\tid\treference\n" +
		"the cat sit\tu1\tthe cat sat\n" +
		"\tu2\ta b c\n"
	rows, err := batch.ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	want := []batch.Row{
		{ID: "u1", Reference: "the cat sat", Hypothesis: "the cat sit", Line: 2},
		{ID: "u2", Reference: "a b c", Hypothesis: "", Line: 3},
	}
	if len(rows) != len(want) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(want))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("rows[%d] = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestReadRows_QuotedTranscripts(t *testing.T) {
	t.Parallel()

	in := "id\treference\thypothesis\n" +
		"u1\t\"Hello,\" he said\thello he said\n" +
		"u2\tsay \"cheese\tsay cheese\n"
	rows, err := batch.ReadRows(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	want := []batch.Row{
		{ID: "u1", Reference: `"Hello," he said`, Hypothesis: "hello he said", Line: 2},
		{ID: "u2", Reference: `say "cheese`, Hypothesis: "say cheese", Line: 3},
	}
	if len(rows) != len(want) {
		t.Fatalf("len(rows) = %d, want %d", len(rows), len(want))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("rows[%d] = %+v, want %+v", i, rows[i], want[i])
		}
	}

	// The default word mode normalises the reference, which drops the quotes.
	sum, err := newRunner(t, wer.ModeWord).Run(context.Background(), rows[:1])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := sum.Rows[0].Result.Report; r.Rate != 0 {
		t.Errorf("Report = %+v, want a perfect match", r)
	}
}

func TestReadRows_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantMsg string
	}{
		{name: "empty", in: "", wantMsg: "missing header"},
		{name: "missing column", in: "id\treference\nu1\tx\n", wantMsg: "hypothesis"},
		{name: "empty id", in: "id\treference\thypothesis\n\ta\tb\n", wantMsg: "line 2: empty id"},
		{name: "duplicate id", in: "id\treference\thypothesis\nu1\ta\tb\nu1\tc\td\n", wantMsg: "duplicate id"},
		{name: "field count", in: "id\treference\thypothesis\nu1\ta\n", wantMsg: "wrong number of fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := batch.ReadRows(strings.NewReader(tt.in))
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("ReadRows error = %v, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corpus.tsv")
	if err := os.WriteFile(path, []byte("id\treference\thypothesis\nu1\ta\ta\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rows, err := batch.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "u1" {
		t.Errorf("rows = %+v", rows)
	}
	if _, err := batch.ReadFile(filepath.Join(t.TempDir(), "nope.tsv")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("ReadFile(missing) error = %v, want ErrNotExist", err)
	}
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	rows := []batch.Row{
		{ID: "u1", Reference: "the cat sat", Hypothesis: "the cat sit"},
		{ID: "u2", Reference: "a b c", Hypothesis: "a b"},
		{ID: "u3", Reference: "", Hypothesis: "noise"},
		{ID: "u4", Reference: "hello there", Hypothesis: "hello there"},
	}
	s, err := newRunner(t, wer.ModeWord, batch.WithWorkers(2)).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(s.Rows) != len(rows) {
		t.Fatalf("len(Rows) = %d, want %d", len(s.Rows), len(rows))
	}
	for i, r := range s.Rows {
		if r.ID != rows[i].ID {
			t.Errorf("Rows[%d].ID = %q, want input order %q", i, r.ID, rows[i].ID)
		}
	}
	if s.Rows[2].Result != nil || s.Rows[2].Error == "" {
		t.Errorf("empty reference row = %+v, want error and no result", s.Rows[2])
	}
	if s.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", s.Skipped)
	}

	// 2 edits over 8 reference words.
	want := align.Report{
		Counts:          align.Counts{Matches: 6, Substitutions: 1, Deletions: 1},
		ReferenceLength: 8,
		Rate:            0.25,
	}
	if s.Corpus == nil || *s.Corpus != want {
		t.Errorf("Corpus = %+v, want %+v", s.Corpus, want)
	}
}

func TestRunner_AllRowsSkipped(t *testing.T) {
	t.Parallel()

	s, err := newRunner(t, wer.ModeChar).Run(context.Background(), []batch.Row{{ID: "u1", Hypothesis: "x"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Corpus != nil {
		t.Errorf("Corpus = %+v, want nil", s.Corpus)
	}
	if s.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", s.Skipped)
	}
}

func TestRunner_ManyRowsKeepOrder(t *testing.T) {
	t.Parallel()

	rows := make([]batch.Row, 500)
	for i := range rows {
		rows[i] = batch.Row{ID: fmt.Sprintf("r%03d", i), Reference: "a b c d", Hypothesis: strings.Repeat("a ", i%5)}
	}
	s, err := newRunner(t, wer.ModeWord, batch.WithWorkers(8)).Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range s.Rows {
		if r.ID != rows[i].ID {
			t.Fatalf("Rows[%d].ID = %q, want %q", i, r.ID, rows[i].ID)
		}
		want, _ := wer.Compute(rows[i].Reference, rows[i].Hypothesis, wer.ModeWord)
		if r.Result.Report != want.Report {
			t.Fatalf("Rows[%d] report = %+v, want %+v", i, r.Result.Report, want.Report)
		}
	}
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRunner(t, wer.ModeWord).Run(ctx, []batch.Row{{ID: "u1", Reference: "a", Hypothesis: "a"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v, want context.Canceled", err)
	}
}

func TestNewRunner_DefaultWorkers(t *testing.T) {
	t.Parallel()

	if w := newRunner(t, wer.ModeWord, batch.WithWorkers(0)).Workers(); w < 1 {
		t.Errorf("Workers() = %d, want >= 1", w)
	}
	if w := newRunner(t, wer.ModeWord, batch.WithWorkers(3)).Workers(); w != 3 {
		t.Errorf("Workers() = %d, want 3", w)
	}
}

func TestRunner_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	rows := []batch.Row{
		{ID: "u1", Reference: "a", Hypothesis: "a"},
		{ID: "u2", Reference: "b", Hypothesis: "c"},
		{ID: "u3", Reference: "", Hypothesis: "c"},
	}
	ctx := context.Background()
	if _, err := newRunner(t, wer.ModeWord, batch.WithMetrics(m)).Run(ctx, rows); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	byStatus := map[string]int64{}
	var active int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch met.Name {
			case "editscore.batch.rows":
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					status, _ := dp.Attributes.Value("status")
					byStatus[status.AsString()] += dp.Value
				}
			case "editscore.batch.active_workers":
				active = 0
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					active += dp.Value
				}
			}
		}
	}
	if byStatus[batch.StatusOK] != 2 || byStatus[batch.StatusEmptyReference] != 1 {
		t.Errorf("batch.rows by status = %v, want ok=2 empty_reference=1", byStatus)
	}
	if active != 0 {
		t.Errorf("active_workers = %d after run, want 0", active)
	}
}
