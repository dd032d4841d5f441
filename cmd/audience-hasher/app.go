package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ignite/audience-hasher/internal/audience"
	"github.com/ignite/audience-hasher/internal/config"
	"github.com/ignite/audience-hasher/internal/pkg/logger"
	"github.com/ignite/audience-hasher/internal/runlog"
	"github.com/ignite/audience-hasher/internal/storage"
	"github.com/ignite/audience-hasher/internal/tableio"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func newFlagSet(name string, stderr io.Writer) (*pflag.FlagSet, *globalFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	g := &globalFlags{}
	fs.StringVar(&g.configPath, "config", "", "Path to YAML configuration file")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	return fs, g
}

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return usageErrorf("%v", err)
	}
	if fs.NArg() > 0 {
		return usageErrorf("unexpected argument %q", fs.Arg(0))
	}
	return nil
}

// loadConfig reads configuration and sets up the process logger.
func loadConfig(g *globalFlags, stderr io.Writer) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.SetOutput(stderr)
	if lvl, ok := logger.ParseLevel(cfg.Log.Level); ok {
		logger.SetLevel(lvl)
	}
	logger.SetRedactPII(cfg.Log.Redact())
	return cfg, nil
}

// app holds the collaborators shared by subcommands.
type app struct {
	cfg   *config.Config
	files *storage.Resolver
	db    *sql.DB
	redis *redis.Client

	awsOnce sync.Once
	aws     aws.Config
	awsErr  error

	closers []func() error
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	a.files = storage.NewResolver(storage.NewLocalStore(cfg.Storage.LocalPath), a.bucket)

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
	}
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		a.closers = append(a.closers, a.redis.Close)
	}
	return a, nil
}

// Close releases every connection the app opened, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

// awsConfig loads AWS credentials on first use so local runs never need them.
func (a *app) awsConfig(ctx context.Context) (aws.Config, error) {
	a.awsOnce.Do(func() {
		a.aws, a.awsErr = storage.LoadAWSConfig(ctx, a.cfg.Storage.AWSRegion, a.cfg.Storage.GetAWSProfile())
	})
	return a.aws, a.awsErr
}

func (a *app) bucket(ctx context.Context, name string) (storage.Store, error) {
	awsCfg, err := a.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return storage.S3BucketFactory(awsCfg)(ctx, name)
}

// readTable loads a CSV or XLSX table from a local path or s3:// URI.
func (a *app) readTable(ctx context.Context, uri, sheet string) (*audience.Table, error) {
	data, err := a.files.ReadAll(ctx, uri)
	if err != nil {
		return nil, err
	}
	return tableio.Read(bytes.NewReader(data), tableio.ReadOptions{
		Format: tableio.DetectFormat(uri),
		Sheet:  sheet,
	})
}

// recorder builds the configured run-log recorders. A backend that cannot
// be reached is skipped with a warning.
func (a *app) recorder(ctx context.Context) runlog.Recorder {
	var recs runlog.Multi
	for _, driver := range a.cfg.RunLog.Drivers {
		rec, err := a.openRecorder(ctx, driver)
		if err != nil {
			logger.Warn("run log backend unavailable", "driver", driver, "error", err)
			continue
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return runlog.Nop{}
	}
	return recs
}

func (a *app) openRecorder(ctx context.Context, driver string) (runlog.Recorder, error) {
	rl := a.cfg.RunLog
	switch driver {
	case "postgres":
		if a.db == nil {
			return nil, errors.New("database.url is not set")
		}
		rec := runlog.NewPostgresRecorder(a.db)
		if err := rec.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return rec, nil
	case "dynamodb":
		awsCfg, err := a.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return runlog.NewDynamoRecorder(dynamodb.NewFromConfig(awsCfg), rl.DynamoDBTable), nil
	case "mongodb":
		client, rec, err := runlog.ConnectMongo(ctx, rl.MongoURI, rl.MongoDatabase, rl.MongoCollection)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		return rec, nil
	case "kafka":
		w, err := runlog.NewKafkaWriter(rl.KafkaBrokers, rl.KafkaTopic)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, w.Close)
		return runlog.NewKafkaRecorder(w), nil
	}
	return nil, fmt.Errorf("unknown run log driver %q", driver)
}

// record finishes e and stores it. Run-log failures never fail the command.
func (a *app) record(ctx context.Context, rec runlog.Recorder, e runlog.Entry, runErr error) {
	e.Finish(runErr)
	// the caller's context may be canceled by now
	ctx = context.WithoutCancel(ctx)
	if err := rec.Record(ctx, e); err != nil {
		logger.Warn("run log write failed", "run_id", e.ID.String(), "error", err)
		return
	}
	logger.Debug("run recorded", "run_id", e.ID.String(), "status", e.Status)
}
