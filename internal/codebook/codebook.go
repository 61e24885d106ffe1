// Package codebook scores sentences against a fixed vocabulary of weighted
// words.
//
// A [Codebook] is loaded once from a tab-separated file with a header row
// naming a "word" and a "score" column. A [Scorer] then resolves every word
// of a sentence to the nearest codebook entry by normalised character edit
// distance and sums the similarity-weighted scores into a final sentence
// score.
package codebook

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/MrWong99/editscore/internal/tsv"
)

// ErrLoad is wrapped by every error returned while reading a codebook.
var ErrLoad = errors.New("codebook: load failed")

// Entry is one vocabulary word and its score.
type Entry struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// Codebook is an ordered, read-only set of unique words with scores. The
// order is the order of first appearance in the source file.
type Codebook struct {
	entries []Entry
	index   map[string]int
}

// ParseOption configures [Parse] and [Load].
type ParseOption func(*parseOptions)

type parseOptions struct {
	lastWins bool
	source   string
}

// WithLastWins accepts duplicate words. The word keeps the position of its
// first occurrence and the score of its last one. Without this option a
// duplicate word fails the load.
func WithLastWins() ParseOption {
	return func(o *parseOptions) {
		o.lastWins = true
	}
}

// Load reads the codebook file at path. See [Parse] for the format.
func Load(path string, opts ...ParseOption) (*Codebook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrLoad, path, err)
	}
	defer f.Close()

	return Parse(f, append(opts, withSource(path))...)
}

func withSource(name string) ParseOption {
	return func(o *parseOptions) {
		o.source = name
	}
}

// Parse decodes a UTF-8 tab-separated codebook from r. The first row is a
// header that must contain the columns "word" and "score" (in any order,
// other columns are ignored). Every following row must have the header's
// column count, a non-empty word, and a score parseable as a float. Fields
// are never quoted; a quotation mark is part of the word.
func Parse(r io.Reader, opts ...ParseOption) (*Codebook, error) {
	o := parseOptions{source: "<reader>"}
	for _, fn := range opts {
		fn(&o)
	}

	tr := tsv.NewReader(r)

	header, err := tr.Header()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: missing header row", ErrLoad, o.source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, o.source, err)
	}
	wordCol, scoreCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "word":
			wordCol = i
		case "score":
			scoreCol = i
		}
	}
	if wordCol < 0 || scoreCol < 0 {
		return nil, fmt.Errorf("%w: %s: header must contain \"word\" and \"score\" columns, got %q", ErrLoad, o.source, header)
	}

	cb := &Codebook{index: make(map[string]int)}
	for {
		rec, err := tr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoad, o.source, err)
		}
		line := tr.Line()

		word := rec[wordCol]
		if word == "" {
			return nil, fmt.Errorf("%w: %s line %d: empty word", ErrLoad, o.source, line)
		}
		score, err := strconv.ParseFloat(strings.TrimSpace(rec[scoreCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: score for %q: %w", ErrLoad, o.source, line, word, err)
		}

		if i, dup := cb.index[word]; dup {
			if !o.lastWins {
				return nil, fmt.Errorf("%w: %s line %d: duplicate word %q", ErrLoad, o.source, line, word)
			}
			slog.Warn("codebook: duplicate word, keeping last score",
				"source", o.source,
				"line", line,
				"word", word,
				"previous", cb.entries[i].Score,
				"score", score,
			)
			cb.entries[i].Score = score
			continue
		}
		cb.index[word] = len(cb.entries)
		cb.entries = append(cb.entries, Entry{Word: word, Score: score})
	}

	if len(cb.entries) == 0 {
		slog.Warn("codebook: no entries; every word will be unmatched", "source", o.source)
	}
	return cb, nil
}

// New builds a [Codebook] from entries in order. It rejects empty and
// duplicate words with an error wrapping [ErrLoad].
func New(entries ...Entry) (*Codebook, error) {
	cb := &Codebook{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if e.Word == "" {
			return nil, fmt.Errorf("%w: entry %d: empty word", ErrLoad, i)
		}
		if _, dup := cb.index[e.Word]; dup {
			return nil, fmt.Errorf("%w: entry %d: duplicate word %q", ErrLoad, i, e.Word)
		}
		cb.index[e.Word] = len(cb.entries)
		cb.entries = append(cb.entries, e)
	}
	return cb, nil
}

// Len returns the number of entries.
func (c *Codebook) Len() int { return len(c.entries) }

// Entries returns a copy of the entries in order.
func (c *Codebook) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Words returns the vocabulary words in order.
func (c *Codebook) Words() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Word
	}
	return out
}

// Lookup returns the score of word and whether it is in the codebook.
func (c *Codebook) Lookup(word string) (float64, bool) {
	i, ok := c.index[word]
	if !ok {
		return 0, false
	}
	return c.entries[i].Score, true
}
