package audience

import (
	"strings"
)

// RoleFilter labels errors about the optional row filter column.
const RoleFilter Role = "filter"

// Filter restricts a run to rows whose trimmed Column value is one of
// Values. It is inactive unless both are set.
type Filter struct {
	Column string   `json:"column,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Active reports whether the filter removes rows.
func (f Filter) Active() bool { return f.Column != "" && len(f.Values) > 0 }

// Options configures one pipeline run.
type Options struct {
	Mapping ColumnMapping
	Filter  Filter
}

// Stats aggregates what a run absorbed without failing.
type Stats struct {
	InputRows           int            `json:"input_rows"`
	FilteredRows        int            `json:"filtered_rows"`
	OutputRows          int            `json:"output_rows"`
	DuplicateRows       int            `json:"duplicate_rows"`
	UnresolvedCountries int            `json:"unresolved_countries"`
	MalformedValues     int            `json:"malformed_values"`
	UnresolvedByText    map[string]int `json:"unresolved_by_text,omitempty"`
	MatchKinds          map[string]int `json:"match_kinds,omitempty"`
}

// Result is the output of a run. Records and Digests are index-aligned.
type Result struct {
	Records []CanonicalRecord
	Digests []DigestRecord
	Stats   Stats
}

// Pipeline runs transform, dedupe and encode over a whole table. It holds
// no per-run state and may be shared.
type Pipeline struct {
	transformer *Transformer
}

// NewPipeline builds a Pipeline over resolver, or the default resolver when nil.
func NewPipeline(resolver *CountryResolver) *Pipeline {
	return &Pipeline{transformer: NewTransformer(resolver)}
}

// Run processes every row of table. Structural problems fail the whole
// batch before any row is read. When nothing survives deduplication Run
// returns the populated Result together with ErrEmptyResult so callers
// can still report the stats.
func (p *Pipeline) Run(table *Table, opts Options) (*Result, error) {
	if err := opts.Mapping.Check(table.Header); err != nil {
		return nil, err
	}
	if opts.Filter.Column != "" && !table.HasColumn(opts.Filter.Column) {
		return nil, &MissingColumnError{Role: RoleFilter, Column: opts.Filter.Column}
	}

	allowed := make(map[string]struct{}, len(opts.Filter.Values))
	for _, v := range opts.Filter.Values {
		allowed[strings.TrimSpace(v)] = struct{}{}
	}

	stats := Stats{
		InputRows:        table.Len(),
		UnresolvedByText: make(map[string]int),
		MatchKinds:       make(map[string]int),
	}

	records := make([]CanonicalRecord, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		raw := table.Record(i)
		if opts.Filter.Active() {
			if _, ok := allowed[strings.TrimSpace(raw[opts.Filter.Column])]; !ok {
				stats.FilteredRows++
				continue
			}
		}

		rec, report := p.transformer.TransformWithReport(raw, opts.Mapping)
		stats.MalformedValues += len(report.Malformed)
		stats.MatchKinds[report.Country.Match.String()]++
		if !report.Country.Resolved() {
			stats.UnresolvedCountries++
			if text := strings.TrimSpace(raw[opts.Mapping.Country]); text != "" {
				stats.UnresolvedByText[text]++
			}
		}
		records = append(records, rec)
	}

	unique := Dedupe(records)
	stats.DuplicateRows = len(records) - len(unique)
	stats.OutputRows = len(unique)

	res := &Result{
		Records: unique,
		Digests: EncodeAll(unique),
		Stats:   stats,
	}
	if len(unique) == 0 {
		return res, ErrEmptyResult
	}
	return res, nil
}
