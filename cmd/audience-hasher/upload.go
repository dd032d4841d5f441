package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ignite/audience-hasher/internal/meta"
	"github.com/ignite/audience-hasher/internal/pkg/distlock"
	"github.com/ignite/audience-hasher/internal/pkg/logger"
	"github.com/ignite/audience-hasher/internal/runlog"
	"github.com/ignite/audience-hasher/internal/tableio"
	"github.com/pterm/pterm"
)

func runUpload(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, g := newFlagSet("upload", stderr)
	input := fs.String("input", "", "Digest CSV with FN,LN,PHONE columns (local path or s3://bucket/key)")
	audienceID := fs.String("audience-id", "", "Numeric ID of the existing Custom Audience")
	batchSize := fs.Int("batch-size", 0, fmt.Sprintf("Rows per request, at most %d (default from config)", meta.MaxBatchSize))
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *input == "" || *audienceID == "" {
		return usageErrorf("--input and --audience-id are required")
	}
	if err := meta.ValidateAudienceID(*audienceID); err != nil {
		return usageErrorf("%v", err)
	}
	if *batchSize < 0 || *batchSize > meta.MaxBatchSize {
		return usageErrorf("--batch-size must be between 1 and %d", meta.MaxBatchSize)
	}

	cfg, err := loadConfig(g, stderr)
	if err != nil {
		return err
	}
	if *batchSize > 0 {
		cfg.Meta.BatchSize = *batchSize
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	entry := runlog.NewEntry("upload", *input)
	entry.Output = "audience:" + *audienceID
	rec := a.recorder(ctx)

	err = uploadFile(ctx, a, *input, *audienceID, stdout, &entry)
	a.record(ctx, rec, entry, err)
	return err
}

func uploadFile(ctx context.Context, a *app, input, audienceID string, stdout io.Writer, entry *runlog.Entry) error {
	data, err := a.files.ReadAll(ctx, input)
	if err != nil {
		return err
	}
	digests, err := tableio.ReadDigests(bytes.NewReader(data))
	if err != nil {
		return err
	}
	entry.RowsIn = len(digests.Rows) + digests.Dropped
	entry.RowsFiltered = digests.Dropped
	if len(digests.Rows) == 0 {
		return meta.ErrNoRows
	}

	client := meta.NewClient(a.cfg.Meta)
	ttl := a.cfg.Redis.LockTTL()
	lock := distlock.NewLock(a.redis, a.db, "audience-upload:"+audienceID, ttl)
	renew := meta.BeforeBatch(func(ctx context.Context, _ int) error {
		return distlock.Renew(ctx, lock, ttl)
	})

	var result *meta.UploadResult
	err = distlock.WithLock(ctx, lock, func(ctx context.Context) error {
		logger.Info("uploading digests",
			"input_file", input,
			"audience_id", audienceID,
			"rows", len(digests.Rows),
			"batch_size", a.cfg.Meta.BatchSize,
		)
		var uerr error
		result, uerr = client.AddUsers(ctx, audienceID, digests.Records(), renew)
		return uerr
	})
	if result != nil {
		entry.RowsOut = result.NumReceived
		entry.Malformed = result.NumInvalid
	}
	if err != nil {
		if result != nil && result.Batches > 0 {
			logger.Warn("upload stopped after partial success", "audience_id", audienceID, "batches", result.Batches)
		}
		return fmt.Errorf("uploading to audience %s: %w", audienceID, err)
	}

	if err := printUpload(stdout, audienceID, result); err != nil {
		return err
	}
	fmt.Fprintln(stdout, pterm.Success.Sprint(result.String()))
	return nil
}
