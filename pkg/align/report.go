package align

import (
	"errors"
	"fmt"
	"math"
)

// ErrEmptyReference is returned when an error rate is requested against a
// reference of length zero. The rate is undefined in that case.
var ErrEmptyReference = errors.New("align: empty reference")

// Counts holds the number of steps of each [Op] in an alignment.
type Counts struct {
	Matches       int `json:"matches"`
	Substitutions int `json:"substitutions"`
	Insertions    int `json:"insertions"`
	Deletions     int `json:"deletions"`
}

// Errors returns the total number of edits: substitutions, insertions and
// deletions.
func (c Counts) Errors() int {
	return c.Substitutions + c.Insertions + c.Deletions
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Matches:       c.Matches + o.Matches,
		Substitutions: c.Substitutions + o.Substitutions,
		Insertions:    c.Insertions + o.Insertions,
		Deletions:     c.Deletions + o.Deletions,
	}
}

// Report is the aggregate metric for one alignment.
type Report struct {
	Counts

	// ReferenceLength is the number of reference tokens the rate is relative to.
	ReferenceLength int `json:"reference_length"`

	// Rate is (substitutions + insertions + deletions) / ReferenceLength,
	// rounded to three decimal digits.
	Rate float64 `json:"rate"`
}

// Summarize counts the operations in a and computes the error rate relative
// to referenceLength. It returns [ErrEmptyReference] when referenceLength is
// zero.
func Summarize[T comparable](a Alignment[T], referenceLength int) (Report, error) {
	c := a.Counts()
	rate, err := Rate(c.Errors(), referenceLength)
	if err != nil {
		return Report{}, err
	}
	return Report{Counts: c, ReferenceLength: referenceLength, Rate: rate}, nil
}

// Rate returns edits/referenceLength rounded to three decimal digits.
func Rate(edits, referenceLength int) (float64, error) {
	switch {
	case referenceLength == 0:
		return 0, ErrEmptyReference
	case referenceLength < 0:
		return 0, fmt.Errorf("align: negative reference length %d", referenceLength)
	}
	return math.Round(float64(edits)/float64(referenceLength)*1000) / 1000, nil
}
