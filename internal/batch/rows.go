package batch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MrWong99/editscore/internal/tsv"
)

// Row is one reference/hypothesis pair of a corpus.
type Row struct {
	ID         string
	Reference  string
	Hypothesis string

	// Line is the 1-based line of the row in its source, or 0 for rows not
	// read from a file.
	Line int
}

// ReadFile reads corpus rows from the TSV file at path. See [ReadRows].
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("batch: open %q: %w", path, err)
	}
	defer f.Close()

	rows, err := ReadRows(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// ReadRows decodes a tab-separated corpus. The first row is a header naming
// the columns "id", "reference" and "hypothesis" in any order. Empty
// reference or hypothesis fields are allowed; the row then scores as an
// empty text. Fields are never quoted.
func ReadRows(r io.Reader) ([]Row, error) {
	tr := tsv.NewReader(r)

	header, err := tr.Header()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("batch: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	cols := map[string]int{"id": -1, "reference": -1, "hypothesis": -1}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, ok := cols[name]; ok {
			cols[name] = i
		}
	}
	var missing []string
	for _, name := range []string{"id", "reference", "hypothesis"} {
		if cols[name] < 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("batch: header is missing columns %q", missing)
	}

	var rows []Row
	seen := make(map[string]int)
	for {
		rec, err := tr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
		line := tr.Line()

		row := Row{
			ID:         rec[cols["id"]],
			Reference:  rec[cols["reference"]],
			Hypothesis: rec[cols["hypothesis"]],
			Line:       line,
		}
		if row.ID == "" {
			return nil, fmt.Errorf("batch: line %d: empty id", line)
		}
		if prev, dup := seen[row.ID]; dup {
			return nil, fmt.Errorf("batch: line %d: duplicate id %q (first on line %d)", line, row.ID, prev)
		}
		seen[row.ID] = line
		rows = append(rows, row)
	}
	return rows, nil
}
