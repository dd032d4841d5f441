// Package tableio reads customer tables into memory and writes the digest
// table handed to the advertising platform.
package tableio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/xuri/excelize/v2"
)

var (
	ErrUnreadableInput = errors.New("unreadable input")
	ErrNoHeader        = errors.New("input has no header row")
)

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks a format from a file name or object key. Anything that
// is not a spreadsheet is treated as CSV.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatCSV
	}
}

// ReadOptions selects how Read interprets its input.
type ReadOptions struct {
	Format Format
	// Sheet names the worksheet of an XLSX input. Empty means the first sheet.
	Sheet string
}

// Read loads a whole table. The first row is the header.
func Read(r io.Reader, opts ReadOptions) (*audience.Table, error) {
	switch opts.Format {
	case FormatXLSX:
		return ReadXLSX(r, opts.Sheet)
	case FormatCSV, "":
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrUnreadableInput, opts.Format)
	}
}

// ReadCSV parses comma-separated input with a header row. A leading UTF-8
// BOM is dropped and ragged rows are accepted.
func ReadCSV(r io.Reader) (*audience.Table, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, ErrNoHeader
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrUnreadableInput, err)
	}

	tbl := &audience.Table{Header: header}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

// ReadXLSX loads one worksheet of a workbook.
func ReadXLSX(r io.Reader, sheet string) (*audience.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrUnreadableInput, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoHeader
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadableInput, sheet, err)
	}

	// Leading blank rows are skipped so the first populated row is the header.
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}

	tbl := &audience.Table{Header: rows[0]}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// stripBOM wraps a reader to strip a UTF-8 BOM if present.
func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		return io.MultiReader(bytes.NewReader(buf[:n]), r)
	}
	if bytes.Equal(buf, []byte{0xEF, 0xBB, 0xBF}) {
		return r
	}
	return io.MultiReader(bytes.NewReader(buf), r)
}
