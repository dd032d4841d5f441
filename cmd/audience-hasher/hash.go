package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/ignite/audience-hasher/internal/pkg/logger"
	"github.com/ignite/audience-hasher/internal/runlog"
	"github.com/ignite/audience-hasher/internal/tableio"
	"github.com/pterm/pterm"
)

type hashFlags struct {
	input, output, sheet string
	mapping              audience.ColumnMapping
	filterColumn         string
	filterValues         []string
	preview              int
}

func runHash(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, g := newFlagSet("hash", stderr)
	var f hashFlags
	fs.StringVar(&f.input, "input", "", "Input CSV or XLSX file (local path or s3://bucket/key)")
	fs.StringVar(&f.output, "output", "", "Digest CSV to write (local path or s3://bucket/key)")
	fs.StringVar(&f.sheet, "sheet", "", "Worksheet name for XLSX input (default: first sheet)")
	fs.StringVar(&f.mapping.FirstName, "first-name", "", "Column holding the first name, or the full name")
	fs.StringVar(&f.mapping.LastName, "last-name", "", "Column holding the last name; same as --first-name to split a full name")
	fs.StringVar(&f.mapping.Phone, "phone", "", "Column holding the phone number")
	fs.StringVar(&f.mapping.Country, "country", "", "Column holding the country name or code")
	fs.StringVar(&f.filterColumn, "filter-column", "", "Only keep rows whose value in this column is one of --filter-value")
	fs.StringArrayVar(&f.filterValues, "filter-value", nil, "Accepted value for --filter-column (repeatable)")
	fs.IntVar(&f.preview, "preview", -1, "Cleaned rows to show before hashing (default from config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if f.input == "" || f.output == "" {
		return usageErrorf("--input and --output are required")
	}

	cfg, err := loadConfig(g, stderr)
	if err != nil {
		return err
	}
	applyMappingDefaults(&f, cfg.Pipeline.Mapping.FirstName, cfg.Pipeline.Mapping.LastName,
		cfg.Pipeline.Mapping.Phone, cfg.Pipeline.Mapping.Country)
	if f.filterColumn == "" && len(f.filterValues) == 0 {
		f.filterColumn, f.filterValues = cfg.Pipeline.Filter.Column, cfg.Pipeline.Filter.Values
	}
	if f.preview < 0 {
		f.preview = cfg.Pipeline.PreviewRows
	}
	if (f.filterColumn == "") != (len(f.filterValues) == 0) {
		return usageErrorf("--filter-column and --filter-value must be given together")
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	entry := runlog.NewEntry("hash", f.input)
	entry.Output = f.output
	rec := a.recorder(ctx)

	stats, err := hashFile(ctx, a, f, stdout)
	if stats != nil {
		entry.ApplyStats(*stats)
	}
	a.record(ctx, rec, entry, err)
	return err
}

// applyMappingDefaults fills unset column flags from configuration.
func applyMappingDefaults(f *hashFlags, first, last, phone, country string) {
	if f.mapping.FirstName == "" {
		f.mapping.FirstName = first
	}
	if f.mapping.LastName == "" {
		f.mapping.LastName = last
	}
	if f.mapping.Phone == "" {
		f.mapping.Phone = phone
	}
	if f.mapping.Country == "" {
		f.mapping.Country = country
	}
}

func hashFile(ctx context.Context, a *app, f hashFlags, stdout io.Writer) (*audience.Stats, error) {
	table, err := a.readTable(ctx, f.input, f.sheet)
	if err != nil {
		return nil, err
	}

	logger.Info("hashing input",
		"input_file", f.input,
		"rows", table.Len(),
		"name_split", f.mapping.CombinedName(),
	)

	res, err := audience.NewPipeline(nil).Run(table, audience.Options{
		Mapping: f.mapping,
		Filter:  audience.Filter{Column: f.filterColumn, Values: f.filterValues},
	})
	if err != nil && !errors.Is(err, audience.ErrEmptyResult) {
		return nil, err
	}

	if perr := printCleaned(stdout, res.Records, f.preview); perr != nil {
		return &res.Stats, perr
	}
	if serr := printStats(stdout, res.Stats); serr != nil {
		return &res.Stats, serr
	}
	if err != nil {
		// empty result: nothing is written
		return &res.Stats, err
	}

	var buf bytes.Buffer
	if err := tableio.WriteDigests(&buf, res.Digests); err != nil {
		return &res.Stats, fmt.Errorf("encoding digests: %w", err)
	}
	if err := a.files.Write(ctx, f.output, buf.Bytes(), "text/csv"); err != nil {
		return &res.Stats, fmt.Errorf("writing %s: %w", f.output, err)
	}

	logger.Info("digests written",
		"output_file", f.output,
		"rows", res.Stats.OutputRows,
		"duplicates", res.Stats.DuplicateRows,
		"unresolved_countries", res.Stats.UnresolvedCountries,
	)
	fmt.Fprintln(stdout, pterm.Success.Sprintf("wrote %d rows to %s", res.Stats.OutputRows, f.output))
	return &res.Stats, nil
}
