// Package tsv reads plain tab-separated text. Fields are split on tabs only;
// quotes carry no meaning, so transcripts keep their quotation marks.
package tsv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrFieldCount is wrapped when a record's field count differs from the
// header's.
var ErrFieldCount = errors.New("wrong number of fields")

const maxLineBytes = 1 << 20

// Reader yields the records of a tab-separated input. The first non-empty
// line is the header; every later record must have as many fields. Blank
// lines are skipped, a leading UTF-8 byte order mark and trailing CR are
// removed.
type Reader struct {
	sc     *bufio.Scanner
	line   int
	header []string
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{sc: sc}
}

// Header reads the header record. It returns [io.EOF] when the input holds
// no non-empty line.
func (r *Reader) Header() ([]string, error) {
	if r.header != nil {
		return r.header, nil
	}
	rec, err := r.next()
	if err != nil {
		return nil, err
	}
	rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
	r.header = rec
	return rec, nil
}

// Read returns the next record, reading the header first if needed. It
// returns [io.EOF] at the end of the input.
func (r *Reader) Read() ([]string, error) {
	if r.header == nil {
		if _, err := r.Header(); err != nil {
			return nil, err
		}
	}
	rec, err := r.next()
	if err != nil {
		return nil, err
	}
	if len(rec) != len(r.header) {
		return nil, fmt.Errorf("line %d: %w (got %d, want %d)", r.line, ErrFieldCount, len(rec), len(r.header))
	}
	return rec, nil
}

// Line is the 1-based line number of the record last returned.
func (r *Reader) Line() int { return r.line }

func (r *Reader) next() ([]string, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSuffix(r.sc.Text(), "\r")
		if text == "" {
			continue
		}
		return strings.Split(text, "\t"), nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}
