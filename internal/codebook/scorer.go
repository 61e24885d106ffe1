package codebook

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/MrWong99/editscore/internal/observe"
	"github.com/MrWong99/editscore/pkg/align"
)

// DefaultThreshold is the largest normalised edit distance a word may have to
// its nearest codebook entry and still count as a match.
const DefaultThreshold = 0.4

// Match methods reported in [Match.Method].
const (
	MethodEditDistance = "edit_distance"
	MethodPhonetic     = "phonetic"
)

// Fallback resolves words the edit distance stage left unmatched. It is
// satisfied by *phonetic.Matcher built over [Codebook.Words].
type Fallback interface {
	Match(word string) (corrected string, confidence float64, matched bool)
}

// Match is the lookup result for one input word. An unmatched word has an
// empty BestWord and zero Similarity and Score.
type Match struct {
	// Word is the input word.
	Word string `json:"word"`

	// BestWord is the matched codebook word.
	BestWord string `json:"best_word"`

	// Similarity is 1 - distance/len(BestWord) for edit distance matches, or
	// the fallback's confidence.
	Similarity float64 `json:"similarity"`

	// Score is the codebook score of BestWord.
	Score float64 `json:"score"`

	// Method is the stage that produced the match, empty when unmatched.
	Method string `json:"method,omitempty"`
}

// Matched reports whether the word resolved to a codebook entry.
func (m Match) Matched() bool { return m.BestWord != "" }

// Result is the score of one sentence.
type Result struct {
	// Matches holds one entry per whitespace-separated input word, in order.
	Matches []Match `json:"matches"`

	// FinalScore is the sum of Similarity·Score over all words, rounded to
	// two decimal digits.
	FinalScore float64 `json:"final_score"`
}

// ByWord returns the matches keyed by input word. A word occurring more than
// once maps to its last occurrence.
func (r *Result) ByWord() map[string]Match {
	out := make(map[string]Match, len(r.Matches))
	for _, m := range r.Matches {
		out[m.Word] = m
	}
	return out
}

// Option configures a [Scorer].
type Option func(*Scorer)

// WithThreshold sets the match threshold on normalised edit distance.
// Default: [DefaultThreshold].
func WithThreshold(t float64) Option {
	return func(s *Scorer) {
		s.threshold = t
	}
}

// WithPhoneticFallback consults f for every word that has no codebook entry within
// the threshold. The fallback's word must be a codebook word to count.
func WithPhoneticFallback(f Fallback) Option {
	return func(s *Scorer) {
		s.fallback = f
	}
}

// WithMetrics records lookups and sentence latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scorer) {
		s.metrics = m
	}
}

type key struct {
	word  string
	runes []rune
	score float64
}

// Scorer resolves words to their nearest codebook entries. It is read-only
// after [NewScorer] and safe for concurrent use.
type Scorer struct {
	book      *Codebook
	keys      []key
	threshold float64
	fallback  Fallback
	metrics   *observe.Metrics
}

// NewScorer returns a [Scorer] over book.
func NewScorer(book *Codebook, opts ...Option) *Scorer {
	s := &Scorer{
		book:      book,
		threshold: DefaultThreshold,
		keys:      make([]key, len(book.entries)),
	}
	for i, e := range book.entries {
		s.keys[i] = key{word: e.Word, runes: []rune(e.Word), score: e.Score}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Threshold returns the configured match threshold.
func (s *Scorer) Threshold() float64 { return s.threshold }

// FindBest returns the codebook word nearest to word by character edit
// distance divided by the codebook word's length, together with the
// similarity (1 - that normalised distance) and the word's score.
//
// Entries are scanned in codebook order and a later entry replaces the
// current best only when strictly closer, so ties keep the earlier entry.
// When the best normalised distance exceeds the threshold the result is
// ("", 0, 0).
func (s *Scorer) FindBest(word string) (best string, similarity, score float64) {
	w := []rune(word)
	bestIdx, bestDist := -1, 1.0

	for i, k := range s.keys {
		kl := float64(len(k.runes))
		// The distance is at least the length difference; skip entries that
		// cannot beat the current best.
		if diff := math.Abs(float64(len(w)) - kl); diff/kl >= bestDist {
			continue
		}
		d := float64(align.Distance(w, k.runes)) / kl
		if d < bestDist {
			bestIdx, bestDist = i, d
		}
	}

	if bestIdx < 0 || bestDist > s.threshold {
		return "", 0, 0
	}
	k := s.keys[bestIdx]
	return k.word, 1 - bestDist, k.score
}

// Lookup resolves one word, consulting the fallback when configured.
func (s *Scorer) Lookup(ctx context.Context, word string) Match {
	m := Match{Word: word}
	if best, sim, score := s.FindBest(word); best != "" {
		m.BestWord, m.Similarity, m.Score, m.Method = best, sim, score, MethodEditDistance
		s.recordLookup(ctx, observe.OutcomeMatched)
		return m
	}

	if s.fallback != nil {
		if corrected, conf, ok := s.fallback.Match(word); ok {
			if score, known := s.book.Lookup(corrected); known {
				m.BestWord, m.Similarity, m.Score, m.Method = corrected, conf, score, MethodPhonetic
				s.recordLookup(ctx, observe.OutcomePhonetic)
				return m
			}
		}
	}

	s.recordLookup(ctx, observe.OutcomeUnmatched)
	return m
}

// Score resolves every whitespace-separated word of sentence and aggregates
// the final score.
func (s *Scorer) Score(ctx context.Context, sentence string) *Result {
	start := time.Now()
	words := strings.Fields(sentence)

	res := &Result{Matches: make([]Match, 0, len(words))}
	var total float64
	for _, w := range words {
		m := s.Lookup(ctx, w)
		res.Matches = append(res.Matches, m)
		total += m.Similarity * m.Score
	}
	res.FinalScore = math.Round(total*100) / 100

	if s.metrics != nil {
		s.metrics.SentenceDuration.Record(ctx, time.Since(start).Seconds())
	}
	observe.Logger(ctx).Debug("sentence scored",
		"words", len(words),
		"final_score", res.FinalScore,
		"elapsed", time.Since(start),
	)
	return res
}

func (s *Scorer) recordLookup(ctx context.Context, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordLookup(ctx, outcome)
	}
}
