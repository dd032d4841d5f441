package tableio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/audience-hasher/internal/audience"
)

// ErrMissingDigestColumn means a digest table lacks FN, LN or PHONE.
var ErrMissingDigestColumn = errors.New("digest table missing required column")

// WriteDigests writes the FN,LN,PHONE header followed by one row per digest.
func WriteDigests(w io.Writer, digests []audience.DigestRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(audience.DigestSchema); err != nil {
		return fmt.Errorf("write digest header: %w", err)
	}
	for _, d := range digests {
		if err := cw.Write(d.Values()); err != nil {
			return fmt.Errorf("write digest row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// DigestTable is a digest file prepared for upload.
type DigestTable struct {
	// Rows hold FN, LN, PHONE in order. Every field is non-empty.
	Rows [][]string
	// Dropped counts rows skipped for having an empty field.
	Dropped int
}

// ReadDigests loads a digest CSV for upload. Header names are matched
// case-insensitively and extra columns are ignored. Rows missing any of the
// three values are dropped.
func ReadDigests(r io.Reader) (*DigestTable, error) {
	tbl, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int, len(tbl.Header))
	for i, h := range tbl.Header {
		key := strings.ToUpper(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	cols := make([]int, len(audience.DigestSchema))
	var missing []string
	for i, name := range audience.DigestSchema {
		j, ok := idx[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		cols[i] = j
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingDigestColumn, strings.Join(missing, ", "))
	}

	out := &DigestTable{Rows: make([][]string, 0, len(tbl.Rows))}
	for _, row := range tbl.Rows {
		vals, ok := pick(row, cols)
		if !ok {
			out.Dropped++
			continue
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, nil
}

func pick(row []string, cols []int) ([]string, bool) {
	vals := make([]string, len(cols))
	for i, c := range cols {
		if c >= len(row) || row[c] == "" {
			return nil, false
		}
		vals[i] = row[c]
	}
	return vals, true
}

// Records returns the rows as digest records.
func (t *DigestTable) Records() []audience.DigestRecord {
	out := make([]audience.DigestRecord, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = audience.DigestRecord{FN: r[0], LN: r[1], PHONE: r[2]}
	}
	return out
}
