package tableio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	in := "\xEF\xBB\xBFName,Phone,Country\n" +
		"José O'Brien,\"+1 (555) 123-4567\",United States\n" +
		"\n" +
		"Short Row\n" +
		"a,b,c,extra\n"

	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Phone", "Country"}, tbl.Header, "BOM stripped from first header")
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"José O'Brien", "+1 (555) 123-4567", "United States"}, tbl.Rows[0])
	assert.Equal(t, []string{"Short Row"}, tbl.Rows[1])
	assert.Len(t, tbl.Rows[2], 4)
}

func TestReadCSVTinyInput(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tbl.Header)
	assert.Zero(t, tbl.Len())
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoHeader)

	_, err = ReadCSV(iotest.ErrReader(errors.New("disk gone")))
	assert.ErrorIs(t, err, ErrUnreadableInput)

	_, err = Read(strings.NewReader("a,b"), ReadOptions{Format: "parquet"})
	assert.ErrorIs(t, err, ErrUnreadableInput)
}

func buildWorkbook(t *testing.T, sheet string, rows [][]string) *bytes.Buffer {
	t.Helper()
	x := excelize.NewFile()
	if sheet != "Sheet1" {
		_, err := x.NewSheet(sheet)
		require.NoError(t, err)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, x.SetCellStr(sheet, cell, v))
		}
	}
	buf, err := x.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadXLSX(t *testing.T) {
	buf := buildWorkbook(t, "Sheet1", [][]string{
		{"First", "Last", "Phone", "Country"},
		{"Ann", "Lee", "2079460958", "UK"},
		{"", "", "", ""},
		{"Bo", "", "5551234567"},
	})

	tbl, err := Read(buf, ReadOptions{Format: FormatXLSX})
	require.NoError(t, err)

	assert.Equal(t, []string{"First", "Last", "Phone", "Country"}, tbl.Header)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "Ann", tbl.Record(0)["First"])
	assert.Equal(t, "", tbl.Record(1)["Last"])
}

func TestReadXLSXNamedSheet(t *testing.T) {
	buf := buildWorkbook(t, "customers", [][]string{{"Name"}, {"Cher"}})

	tbl, err := ReadXLSX(bytes.NewReader(buf.Bytes()), "customers")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Cher"}}, tbl.Rows)

	_, err = ReadXLSX(bytes.NewReader(buf.Bytes()), "missing")
	assert.ErrorIs(t, err, ErrUnreadableInput)

	_, err = ReadXLSX(strings.NewReader("not a zip"), "")
	assert.ErrorIs(t, err, ErrUnreadableInput)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatXLSX, DetectFormat("Customers.XLSX"))
	assert.Equal(t, FormatXLSX, DetectFormat("s3://bucket/in/list.xlsm"))
	assert.Equal(t, FormatCSV, DetectFormat("list.csv"))
	assert.Equal(t, FormatCSV, DetectFormat("export"))
}

func TestWriteDigests(t *testing.T) {
	var buf bytes.Buffer
	err := WriteDigests(&buf, []audience.DigestRecord{
		{FN: "aa", LN: "bb", PHONE: "cc"},
		{FN: "dd", LN: "", PHONE: "ee"},
	})
	require.NoError(t, err)
	assert.Equal(t, "FN,LN,PHONE\naa,bb,cc\ndd,,ee\n", buf.String())
}

func TestReadDigests(t *testing.T) {
	in := "phone,fn,ln,extra\n" +
		"p1,f1,l1,x\n" +
		"p2,,l2,x\n" +
		"p3,f3\n" +
		"p4,f4,l4\n"

	dt, err := ReadDigests(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"f1", "l1", "p1"}, {"f4", "l4", "p4"}}, dt.Rows)
	assert.Equal(t, 2, dt.Dropped)
}

func TestReadDigestsMissingColumn(t *testing.T) {
	_, err := ReadDigests(strings.NewReader("FN,PHONE\na,b\n"))
	require.ErrorIs(t, err, ErrMissingDigestColumn)
	assert.Contains(t, err.Error(), "LN")
}

func TestDigestRoundTripThroughUploadReader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDigests(&buf, []audience.DigestRecord{{FN: "a", LN: "b", PHONE: "c"}, {FN: "", LN: "b", PHONE: "c"}}))

	dt, err := ReadDigests(&buf)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "c"}}, dt.Rows)
	assert.Equal(t, 1, dt.Dropped)
}

func TestDigestTableRecords(t *testing.T) {
	dt, err := ReadDigests(strings.NewReader("phone,fn,ln\np1,f1,l1\n"))
	require.NoError(t, err)
	assert.Equal(t, []audience.DigestRecord{{FN: "f1", LN: "l1", PHONE: "p1"}}, dt.Records())
}
