package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/ignite/audience-hasher/internal/meta"
	"github.com/pterm/pterm"
)

// closestCountryEdits bounds the spelling hint shown for unresolved values.
const closestCountryEdits = 2

func renderTable(w io.Writer, data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, s)
	return err
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w, pterm.DefaultSection.Sprint(title))
}

// printColumns lists the header with positions, then the first n raw rows.
func printColumns(w io.Writer, t *audience.Table, n int) error {
	section(w, "Columns")
	cols := pterm.TableData{{"#", "Column"}}
	for i, h := range t.Header {
		cols = append(cols, []string{strconv.Itoa(i + 1), h})
	}
	if err := renderTable(w, cols); err != nil {
		return err
	}

	if n <= 0 || t.Len() == 0 {
		return nil
	}
	section(w, fmt.Sprintf("First %d of %d rows", min(n, t.Len()), t.Len()))
	rows := pterm.TableData{t.Header}
	for i := 0; i < min(n, t.Len()); i++ {
		row := make([]string, len(t.Header))
		copy(row, t.Rows[i])
		rows = append(rows, row)
	}
	return renderTable(w, rows)
}

// printSuggestion shows the guessed role columns as hash flags.
func printSuggestion(w io.Writer, m audience.ColumnMapping) error {
	section(w, "Suggested mapping")
	data := pterm.TableData{{"Flag", "Column"}}
	for _, f := range []struct{ flag, col string }{
		{"--first-name", m.FirstName},
		{"--last-name", m.LastName},
		{"--phone", m.Phone},
		{"--country", m.Country},
	} {
		col := f.col
		if col == "" {
			col = "(not found)"
		}
		data = append(data, []string{f.flag, col})
	}
	return renderTable(w, data)
}

// printCleaned shows the first n canonical rows before hashing.
func printCleaned(w io.Writer, records []audience.CanonicalRecord, n int) error {
	if n <= 0 || len(records) == 0 {
		return nil
	}
	section(w, "Cleaned preview")
	data := pterm.TableData{{"phone", "fn", "ln", "country_iso"}}
	for _, r := range records[:min(n, len(records))] {
		data = append(data, []string{r.Phone, r.FirstName, r.LastName, r.CountryISO})
	}
	return renderTable(w, data)
}

func printStats(w io.Writer, s audience.Stats) error {
	section(w, "Summary")
	data := pterm.TableData{
		{"Metric", "Value"},
		{"input rows", strconv.Itoa(s.InputRows)},
		{"filtered out", strconv.Itoa(s.FilteredRows)},
		{"duplicates removed", strconv.Itoa(s.DuplicateRows)},
		{"output rows", strconv.Itoa(s.OutputRows)},
		{"unresolved countries", strconv.Itoa(s.UnresolvedCountries)},
		{"malformed values", strconv.Itoa(s.MalformedValues)},
	}
	for _, k := range sortedKeys(s.MatchKinds) {
		data = append(data, []string{"country match: " + k, strconv.Itoa(s.MatchKinds[k])})
	}
	if err := renderTable(w, data); err != nil {
		return err
	}

	if len(s.UnresolvedByText) == 0 {
		return nil
	}
	section(w, "Unresolved country values")
	resolver := audience.DefaultCountryResolver()
	unresolved := pterm.TableData{{"Value", "Rows", "Closest country"}}
	for _, k := range sortedKeys(s.UnresolvedByText) {
		hint := ""
		if c, ok := resolver.Closest(k, closestCountryEdits); ok {
			hint = c.Name
		}
		unresolved = append(unresolved, []string{k, strconv.Itoa(s.UnresolvedByText[k]), hint})
	}
	return renderTable(w, unresolved)
}

func printUpload(w io.Writer, audienceID string, r *meta.UploadResult) error {
	section(w, "Upload")
	return renderTable(w, pterm.TableData{
		{"Metric", "Value"},
		{"audience", audienceID},
		{"session", strconv.FormatInt(r.SessionID, 10)},
		{"batches", strconv.Itoa(r.Batches)},
		{"submitted", strconv.Itoa(r.Submitted)},
		{"skipped", strconv.Itoa(r.Skipped)},
		{"received", strconv.Itoa(r.NumReceived)},
		{"invalid", strconv.Itoa(r.NumInvalid)},
	})
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
