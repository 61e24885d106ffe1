// Package phonetic matches misheard or misspelled words against a fixed
// vocabulary by pronunciation.
//
// A [Matcher] is built once per vocabulary. Construction computes the Double
// Metaphone codes of every vocabulary word; [Matcher.Match] then encodes the
// input word and ranks the vocabulary in two tiers:
//
//  1. Words sharing at least one Double Metaphone code with the input are
//     phonetic candidates. The candidate with the highest Jaro-Winkler
//     similarity wins if it reaches the phonetic threshold (default 0.70).
//  2. Without any phonetic candidate, the word with the highest plain
//     Jaro-Winkler similarity wins if it reaches the stricter fuzzy threshold
//     (default 0.85).
//
// Ties keep the earliest vocabulary word.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a word that
// shares a Double Metaphone code with the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a word without
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

type entry struct {
	word  string
	lower string
	codes [2]string
}

// Matcher is read-only after [New] and safe for concurrent use.
type Matcher struct {
	entries           []entry
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a [Matcher] over vocabulary. Blank words are ignored; order is
// preserved for tie-breaking.
func New(vocabulary []string, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}

	m.entries = make([]entry, 0, len(vocabulary))
	for _, w := range vocabulary {
		lower := strings.ToLower(strings.TrimSpace(w))
		if lower == "" {
			continue
		}
		p, s := matchr.DoubleMetaphone(lower)
		m.entries = append(m.entries, entry{word: w, lower: lower, codes: [2]string{p, s}})
	}
	return m
}

// Len returns the number of vocabulary words the matcher ranks.
func (m *Matcher) Len() int { return len(m.entries) }

// Match returns the vocabulary word that sounds most like word.
//
// When matched is false, corrected equals word and confidence is 0.
func (m *Matcher) Match(word string) (corrected string, confidence float64, matched bool) {
	in := strings.ToLower(strings.TrimSpace(word))
	if in == "" || len(m.entries) == 0 {
		return word, 0, false
	}
	p, s := matchr.DoubleMetaphone(in)
	inCodes := [2]string{p, s}

	best, bestScore, bestPhonetic := -1, 0.0, false
	for i, e := range m.entries {
		score := matchr.JaroWinkler(in, e.lower, false)
		if overlaps(inCodes, e.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = i, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return word, 0, false
	}
	return m.entries[best].word, bestScore, true
}

// overlaps reports whether the two code pairs share a non-empty code.
func overlaps(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		if x == b[0] || x == b[1] {
			return true
		}
	}
	return false
}
