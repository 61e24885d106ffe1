// Package wer computes word and character error rates between a reference
// transcript and a hypothesis.
//
// The [Evaluator] tokenises both texts according to its [Mode], optionally
// normalises them (see [Normalization]), aligns the token sequences with
// [align.Align], and summarises the alignment into an [align.Report].
//
// By default only the reference is normalised in word mode and nothing is
// normalised in character mode. This asymmetry reproduces existing reports
// bit for bit; use [WithNormalization]([NormalizeBoth]) to treat both sides
// alike.
package wer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/editscore/internal/normalize"
	"github.com/MrWong99/editscore/internal/observe"
	"github.com/MrWong99/editscore/pkg/align"
)

// Mode selects the token unit.
type Mode string

const (
	// ModeWord splits texts on whitespace.
	ModeWord Mode = "word"

	// ModeChar splits texts into Unicode code points, whitespace included.
	ModeChar Mode = "char"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeWord || m == ModeChar
}

// Normalization selects which side of the comparison is passed through
// [normalize.English] before tokenisation.
type Normalization string

const (
	// NormalizeDefault picks [NormalizeReference] in word mode and
	// [NormalizeNone] in character mode.
	NormalizeDefault Normalization = ""

	// NormalizeReference normalises the reference only.
	NormalizeReference Normalization = "reference"

	// NormalizeNone compares the raw texts.
	NormalizeNone Normalization = "none"

	// NormalizeBoth normalises reference and hypothesis identically.
	NormalizeBoth Normalization = "both"
)

// IsValid reports whether n is a recognised normalisation policy.
func (n Normalization) IsValid() bool {
	switch n {
	case NormalizeDefault, NormalizeReference, NormalizeNone, NormalizeBoth:
		return true
	}
	return false
}

// Result is the outcome of one evaluation.
type Result struct {
	Mode   Mode         `json:"mode"`
	Report align.Report `json:"report"`

	// Status is the per-position alignment. Only set with [WithStatus].
	Status []align.Step[string] `json:"status,omitempty"`

	// RefAligned and HypAligned are the HTML-highlighted aligned texts. Only
	// set with [WithHighlight].
	RefAligned string `json:"ref_aligned,omitempty"`
	HypAligned string `json:"hyp_aligned,omitempty"`
}

// Option configures an [Evaluator].
type Option func(*Evaluator)

// WithNormalization overrides the mode's default normalisation policy.
func WithNormalization(n Normalization) Option {
	return func(e *Evaluator) {
		e.norm = n
	}
}

// WithStatus makes results carry the full per-position alignment.
func WithStatus() Option {
	return func(e *Evaluator) {
		e.status = true
	}
}

// WithHighlight makes results carry HTML-highlighted aligned texts.
func WithHighlight() Option {
	return func(e *Evaluator) {
		e.highlight = true
	}
}

// WithMetrics records every evaluation on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// Evaluator scores reference/hypothesis pairs. It holds no mutable state and
// is safe for concurrent use.
type Evaluator struct {
	mode      Mode
	norm      Normalization
	status    bool
	highlight bool
	metrics   *observe.Metrics
}

// New returns an [Evaluator] for mode. It fails when mode or the selected
// normalisation policy is not recognised.
func New(mode Mode, opts ...Option) (*Evaluator, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("wer: invalid mode %q; valid values: word, char", mode)
	}
	e := &Evaluator{mode: mode}
	for _, o := range opts {
		o(e)
	}
	if !e.norm.IsValid() {
		return nil, fmt.Errorf("wer: invalid normalization %q; valid values: reference, none, both", e.norm)
	}
	if e.norm == NormalizeDefault {
		e.norm = NormalizeReference
		if mode == ModeChar {
			e.norm = NormalizeNone
		}
	}
	return e, nil
}

// Mode returns the evaluator's token unit.
func (e *Evaluator) Mode() Mode { return e.mode }

// Evaluate aligns hyp against ref and returns the resulting report. When the
// (normalised) reference has no tokens it returns an error wrapping
// [align.ErrEmptyReference].
func (e *Evaluator) Evaluate(ctx context.Context, ref, hyp string) (*Result, error) {
	start := time.Now()

	if e.norm == NormalizeReference || e.norm == NormalizeBoth {
		ref = normalize.English(ref)
	}
	if e.norm == NormalizeBoth {
		hyp = normalize.English(hyp)
	}

	r, h := e.tokenize(ref), e.tokenize(hyp)
	a := align.Align(r, h)
	report, err := align.Summarize(a, len(r))

	if e.metrics != nil {
		status := "ok"
		if errors.Is(err, align.ErrEmptyReference) {
			status = "empty_reference"
		}
		e.metrics.RecordAlignment(ctx, string(e.mode), status, time.Since(start).Seconds(), len(r)*len(h))
	}
	if err != nil {
		return nil, fmt.Errorf("wer: %w", err)
	}

	res := &Result{Mode: e.mode, Report: report}
	if e.status {
		res.Status = a.Steps
	}
	if e.highlight {
		sep := " "
		if e.mode == ModeChar {
			sep = ""
		}
		res.RefAligned, res.HypAligned = Highlight(a, sep)
	}
	return res, nil
}

func (e *Evaluator) tokenize(s string) []string {
	if e.mode == ModeChar {
		return align.Chars(s)
	}
	return align.Words(s)
}

// Compute is a convenience wrapper around [New] and [Evaluator.Evaluate].
func Compute(ref, hyp string, mode Mode, opts ...Option) (*Result, error) {
	e, err := New(mode, opts...)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(context.Background(), ref, hyp)
}
