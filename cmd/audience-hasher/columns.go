package main

import (
	"context"
	"io"

	"github.com/ignite/audience-hasher/internal/audience"
)

func runColumns(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, g := newFlagSet("columns", stderr)
	input := fs.String("input", "", "Input CSV or XLSX file (local path or s3://bucket/key)")
	sheet := fs.String("sheet", "", "Worksheet name for XLSX input (default: first sheet)")
	rows := fs.Int("rows", 5, "Number of raw rows to show")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *input == "" {
		return usageErrorf("--input is required")
	}

	cfg, err := loadConfig(g, stderr)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	table, err := a.readTable(ctx, *input, *sheet)
	if err != nil {
		return err
	}
	if err := printColumns(stdout, table, *rows); err != nil {
		return err
	}
	return printSuggestion(stdout, audience.SuggestMapping(table.Header))
}
