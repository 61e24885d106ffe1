// Package align computes minimum edit distance alignments between two token
// sequences.
//
// [Align] fills the classic Levenshtein cost table with unit costs for
// substitution, insertion, and deletion, records which operation produced
// every cell, and walks that backtrace from the bottom-right corner to
// reconstruct the optimal alignment. When several predecessors reach the same
// minimal cost the operation is chosen in the order
// substitution, deletion, insertion. Repeated tokens make such ties common, so
// this ordering is part of the observable contract.
//
// Tokens are any comparable type: words ([Words]) for word error rate,
// characters ([Chars]) for character error rate, or runes for plain string
// distance.
//
// All functions are pure and safe for concurrent use.
package align

import (
	"fmt"
	"slices"
	"strings"
)

// NoIndex marks the missing lane of an insertion (no reference token) or a
// deletion (no hypothesis token) in a [Step].
const NoIndex = -1

// Op is the edit operation that produced one position of an [Alignment].
type Op uint8

const (
	// OpMatch consumes one equal token from each sequence.
	OpMatch Op = iota

	// OpSubstitution consumes one token from each sequence where they differ.
	OpSubstitution

	// OpInsertion consumes one hypothesis token only.
	OpInsertion

	// OpDeletion consumes one reference token only.
	OpDeletion
)

// String returns the short status label used in reports: "OK", "SUB", "INS"
// or "DEL".
func (o Op) String() string {
	switch o {
	case OpMatch:
		return "OK"
	case OpSubstitution:
		return "SUB"
	case OpInsertion:
		return "INS"
	case OpDeletion:
		return "DEL"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// MarshalText implements [encoding.TextMarshaler] so that steps serialise with
// their status label.
func (o Op) MarshalText() ([]byte, error) {
	switch o {
	case OpMatch, OpSubstitution, OpInsertion, OpDeletion:
		return []byte(o.String()), nil
	}
	return nil, fmt.Errorf("align: invalid op %d", uint8(o))
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (o *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OK":
		*o = OpMatch
	case "SUB":
		*o = OpSubstitution
	case "INS":
		*o = OpInsertion
	case "DEL":
		*o = OpDeletion
	default:
		return fmt.Errorf("align: unknown op %q", b)
	}
	return nil
}

// Step is one position of an [Alignment].
//
// RefIndex and HypIndex are the 0-based positions of the consumed tokens in
// the original sequences. For an insertion Ref is the zero value and RefIndex
// is [NoIndex]; for a deletion the same holds for the hypothesis lane.
type Step[T comparable] struct {
	Op       Op  `json:"status"`
	Ref      T   `json:"ref"`
	Hyp      T   `json:"hyp"`
	RefIndex int `json:"ref_index"`
	HypIndex int `json:"hyp_index"`
}

// Alignment is the optimal left-to-right edit path between a reference and a
// hypothesis sequence.
type Alignment[T comparable] struct {
	// Steps is ordered left to right. len(Steps) >= max(len(ref), len(hyp)).
	Steps []Step[T]

	// Distance is the Levenshtein distance between the two sequences.
	Distance int
}

// Align computes the minimum edit distance alignment between ref and hyp.
// Either sequence may be empty. Time and memory are O(len(ref)·len(hyp)).
func Align[T comparable](ref, hyp []T) Alignment[T] {
	n, m := len(ref), len(hyp)
	width := m + 1

	cost := make([]int, (n+1)*width)
	trace := make([]Op, (n+1)*width)

	// First column: reach an empty hypothesis by deleting every reference token.
	for i := 1; i <= n; i++ {
		cost[i*width] = i
		trace[i*width] = OpDeletion
	}
	// First row: reach the hypothesis from an empty reference by insertions.
	for j := 1; j <= m; j++ {
		cost[j] = j
		trace[j] = OpInsertion
	}

	for i := 1; i <= n; i++ {
		row, prev := i*width, (i-1)*width
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				cost[row+j] = cost[prev+j-1]
				trace[row+j] = OpMatch
				continue
			}

			best, op := cost[prev+j-1]+1, OpSubstitution
			if del := cost[prev+j] + 1; del < best {
				best, op = del, OpDeletion
			}
			if ins := cost[row+j-1] + 1; ins < best {
				best, op = ins, OpInsertion
			}
			cost[row+j] = best
			trace[row+j] = op
		}
	}

	steps := make([]Step[T], 0, max(n, m))
	i, j := n, m
	for i > 0 || j > 0 {
		switch op := trace[i*width+j]; op {
		case OpMatch, OpSubstitution:
			i--
			j--
			steps = append(steps, Step[T]{Op: op, Ref: ref[i], Hyp: hyp[j], RefIndex: i, HypIndex: j})
		case OpDeletion:
			i--
			steps = append(steps, Step[T]{Op: OpDeletion, Ref: ref[i], RefIndex: i, HypIndex: NoIndex})
		case OpInsertion:
			j--
			steps = append(steps, Step[T]{Op: OpInsertion, Hyp: hyp[j], RefIndex: NoIndex, HypIndex: j})
		}
	}
	slices.Reverse(steps)

	return Alignment[T]{Steps: steps, Distance: cost[n*width+m]}
}

// Distance returns the Levenshtein distance between a and b without building
// the backtrace. It always equals Align(a, b).Distance and needs only
// O(len(b)) memory.
func Distance[T comparable](a, b []T) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1]
				continue
			}
			cur[j] = 1 + min(prev[j-1], prev[j], cur[j-1])
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Counts tallies the steps of a by operation.
func (a Alignment[T]) Counts() Counts {
	var c Counts
	for _, s := range a.Steps {
		switch s.Op {
		case OpMatch:
			c.Matches++
		case OpSubstitution:
			c.Substitutions++
		case OpInsertion:
			c.Insertions++
		case OpDeletion:
			c.Deletions++
		}
	}
	return c
}

// Reference returns the reference-lane tokens of a in order. It reproduces
// the reference sequence passed to [Align].
func (a Alignment[T]) Reference() []T {
	out := make([]T, 0, len(a.Steps))
	for _, s := range a.Steps {
		if s.Op != OpInsertion {
			out = append(out, s.Ref)
		}
	}
	return out
}

// Hypothesis returns the hypothesis-lane tokens of a in order. It reproduces
// the hypothesis sequence passed to [Align].
func (a Alignment[T]) Hypothesis() []T {
	out := make([]T, 0, len(a.Steps))
	for _, s := range a.Steps {
		if s.Op != OpDeletion {
			out = append(out, s.Hyp)
		}
	}
	return out
}

// Words splits s into whitespace-separated word tokens.
func Words(s string) []string {
	return strings.Fields(s)
}

// Chars splits s into one token per Unicode code point. Whitespace is kept.
func Chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
