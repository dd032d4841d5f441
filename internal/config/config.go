package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Storage  StorageConfig  `yaml:"storage"`
	RunLog   RunLogConfig   `yaml:"runlog"`
	Meta     MetaConfig     `yaml:"meta"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level     string `yaml:"level" validate:"oneof=debug info warn warning error"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// PipelineConfig holds defaults for hashing runs. Command-line flags win.
type PipelineConfig struct {
	PreviewRows int           `yaml:"preview_rows" validate:"gte=0,lte=100"`
	Mapping     MappingConfig `yaml:"mapping"`
	Filter      FilterConfig  `yaml:"filter"`
}

// MappingConfig names the input column for each identity role.
type MappingConfig struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Phone     string `yaml:"phone"`
	Country   string `yaml:"country"`
}

// FilterConfig restricts runs to rows whose Column value is in Values.
type FilterConfig struct {
	Column string   `yaml:"column"`
	Values []string `yaml:"values"`
}

// StorageConfig configures input and output locations.
type StorageConfig struct {
	LocalPath  string `yaml:"local_path"`
	AWSRegion  string `yaml:"aws_region"`
	AWSProfile string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable override.
// "none" or "iam" force the default credential chain.
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	return c.AWSProfile
}

// RunLogConfig selects where run summaries are recorded.
type RunLogConfig struct {
	Drivers         []string `yaml:"drivers" validate:"dive,oneof=postgres dynamodb mongodb kafka"`
	DynamoDBTable   string   `yaml:"dynamodb_table"`
	MongoURI        string   `yaml:"mongo_uri"`
	MongoDatabase   string   `yaml:"mongo_database"`
	MongoCollection string   `yaml:"mongo_collection"`
	KafkaBrokers    []string `yaml:"kafka_brokers"`
	KafkaTopic      string   `yaml:"kafka_topic"`
}

// Enabled reports whether driver is selected.
func (c RunLogConfig) Enabled(driver string) bool {
	for _, d := range c.Drivers {
		if d == driver {
			return true
		}
	}
	return false
}

// MetaConfig holds the advertising platform API settings.
type MetaConfig struct {
	BaseURL        string `yaml:"base_url" validate:"url"`
	APIVersion     string `yaml:"api_version" validate:"required"`
	AccessToken    string `yaml:"access_token"`
	AppSecret      string `yaml:"app_secret"`
	BatchSize      int    `yaml:"batch_size" validate:"gte=1,lte=10000"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=1"`
	MaxRetries     int    `yaml:"max_retries" validate:"gte=0,lte=10"`
}

// Timeout returns the per-request timeout.
func (c MetaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig configures the upload lock backend.
type RedisConfig struct {
	URL            string `yaml:"url"`
	LockTTLSeconds int    `yaml:"lock_ttl_seconds" validate:"gte=1"`
}

// LockTTL returns how long an upload lock lives without renewal.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// DatabaseConfig configures the PostgreSQL run log and lock fallback.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Pipeline.PreviewRows == 0 {
		cfg.Pipeline.PreviewRows = 10
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.RunLog.MongoDatabase == "" {
		cfg.RunLog.MongoDatabase = "audience_hasher"
	}
	if cfg.RunLog.MongoCollection == "" {
		cfg.RunLog.MongoCollection = "hash_runs"
	}
	if cfg.RunLog.KafkaTopic == "" {
		cfg.RunLog.KafkaTopic = "audience.hash-runs"
	}
	if cfg.Meta.BaseURL == "" {
		cfg.Meta.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Meta.APIVersion == "" {
		cfg.Meta.APIVersion = "v19.0"
	}
	if cfg.Meta.BatchSize == 0 {
		cfg.Meta.BatchSize = 10000
	}
	if cfg.Meta.TimeoutSeconds == 0 {
		cfg.Meta.TimeoutSeconds = 60
	}
	if cfg.Meta.MaxRetries == 0 {
		cfg.Meta.MaxRetries = 3
	}
	if cfg.Redis.LockTTLSeconds == 0 {
		cfg.Redis.LockTTLSeconds = 900
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// An empty path skips the file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("AWS_PROFILE"); v != "" {
		cfg.Storage.AWSProfile = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("RUNLOG_DRIVERS"); v != "" {
		cfg.RunLog.Drivers = splitList(v)
	}
	if v := os.Getenv("DYNAMODB_RUNLOG_TABLE"); v != "" {
		cfg.RunLog.DynamoDBTable = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		cfg.RunLog.MongoURI = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.RunLog.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("META_ACCESS_TOKEN"); v != "" {
		cfg.Meta.AccessToken = v
	}
	if v := os.Getenv("META_APP_SECRET"); v != "" {
		cfg.Meta.AppSecret = v
	}
	if v := os.Getenv("META_API_VERSION"); v != "" {
		cfg.Meta.APIVersion = v
	}
	if v := os.Getenv("META_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("META_BATCH_SIZE: %w", err)
		}
		cfg.Meta.BatchSize = n
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	messages := make([]string, 0, len(v))
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(messages, "; "))
}

// Validate checks field constraints. The returned error is ValidationErrors.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(validateRunLog, RunLogConfig{})

	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fe.Namespace(), Message: describe(fe)})
	}
	return out
}

// validateRunLog enforces the settings each selected driver needs.
func validateRunLog(sl validator.StructLevel) {
	rl := sl.Current().Interface().(RunLogConfig)
	if rl.Enabled("dynamodb") && rl.DynamoDBTable == "" {
		sl.ReportError(rl.DynamoDBTable, "DynamoDBTable", "dynamodb_table", "required_if_driver", "dynamodb")
	}
	if rl.Enabled("mongodb") && rl.MongoURI == "" {
		sl.ReportError(rl.MongoURI, "MongoURI", "mongo_uri", "required_if_driver", "mongodb")
	}
	if rl.Enabled("kafka") && len(rl.KafkaBrokers) == 0 {
		sl.ReportError(rl.KafkaBrokers, "KafkaBrokers", "kafka_brokers", "required_if_driver", "kafka")
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if_driver":
		return fmt.Sprintf("is required when the %s driver is enabled", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
