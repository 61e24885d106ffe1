// Package batch scores a corpus of reference/hypothesis pairs concurrently
// and aggregates corpus-level error rates.
//
// Rows are fanned out to a bounded pool of workers with an
// [errgroup.Group]. Per-row results keep input order regardless of the order
// in which workers finish. A row whose reference has no tokens does not fail
// the run: it is reported with an error message and left out of the corpus
// totals.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/editscore/internal/observe"
	"github.com/MrWong99/editscore/internal/wer"
	"github.com/MrWong99/editscore/pkg/align"
)

// Row statuses recorded on [observe.Metrics.BatchRows].
const (
	StatusOK             = "ok"
	StatusEmptyReference = "empty_reference"
)

// RowResult is the outcome of scoring one [Row].
type RowResult struct {
	ID string `json:"id"`

	// Result is nil when the row could not be scored.
	Result *wer.Result `json:"result,omitempty"`

	// Error describes why Result is nil.
	Error string `json:"error,omitempty"`
}

// Summary is the outcome of a batch run.
type Summary struct {
	Mode wer.Mode `json:"mode"`

	// Rows holds one result per input row, in input order.
	Rows []RowResult `json:"rows"`

	// Corpus aggregates the counts of every scored row. Its rate is total
	// edits over total reference tokens. Nil when no row could be scored.
	Corpus *align.Report `json:"corpus,omitempty"`

	// Skipped is the number of rows left out of Corpus.
	Skipped int `json:"skipped"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Option configures a [Runner].
type Option func(*Runner)

// WithWorkers sets the number of rows scored concurrently. Values below one
// select [runtime.NumCPU].
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithMetrics records row outcomes and worker occupancy on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// Runner scores corpora with one [wer.Evaluator].
type Runner struct {
	eval    *wer.Evaluator
	workers int
	metrics *observe.Metrics
}

// NewRunner returns a [Runner] that scores rows with eval.
func NewRunner(eval *wer.Evaluator, opts ...Option) *Runner {
	r := &Runner{eval: eval}
	for _, o := range opts {
		o(r)
	}
	if r.workers < 1 {
		r.workers = runtime.NumCPU()
	}
	return r
}

// Workers returns the configured concurrency.
func (r *Runner) Workers() int { return r.workers }

// Run scores every row. Cancelling ctx stops scheduling further rows and
// makes Run return the context error; rows already scored are discarded.
func (r *Runner) Run(ctx context.Context, rows []Row) (_ *Summary, err error) {
	start := time.Now()
	ctx, finish := observe.Track(ctx, "batch.run",
		observe.Attr("mode", string(r.eval.Mode())),
	)
	defer func() { finish(err) }()

	results := make([]RowResult, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.score(gctx, row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	// The loop may stop early without any goroutine observing the
	// cancellation.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	s := &Summary{Mode: r.eval.Mode(), Rows: results}
	var total align.Counts
	refLen := 0
	for _, res := range results {
		if res.Result == nil {
			s.Skipped++
			continue
		}
		total = total.Add(res.Result.Report.Counts)
		refLen += res.Result.Report.ReferenceLength
	}
	if refLen > 0 {
		rate, err := align.Rate(total.Errors(), refLen)
		if err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
		s.Corpus = &align.Report{Counts: total, ReferenceLength: refLen, Rate: rate}
	}
	s.Elapsed = time.Since(start)

	observe.Logger(ctx).Info("batch finished",
		"mode", s.Mode,
		"rows", len(rows),
		"skipped", s.Skipped,
		"workers", r.workers,
		"elapsed", s.Elapsed,
	)
	return s, nil
}

func (r *Runner) score(ctx context.Context, row Row) RowResult {
	if r.metrics != nil {
		r.metrics.ActiveWorkers.Add(ctx, 1)
		defer r.metrics.ActiveWorkers.Add(ctx, -1)
	}

	out := RowResult{ID: row.ID}
	res, err := r.eval.Evaluate(ctx, row.Reference, row.Hypothesis)
	status := StatusOK
	switch {
	case errors.Is(err, align.ErrEmptyReference):
		status = StatusEmptyReference
		out.Error = "empty reference"
		observe.Logger(ctx).Warn("batch: skipping row with empty reference",
			"id", row.ID,
			"line", row.Line,
		)
	case err != nil:
		status = "error"
		out.Error = err.Error()
	default:
		out.Result = res
	}
	if r.metrics != nil {
		r.metrics.RecordBatchRow(ctx, status)
	}
	return out
}
