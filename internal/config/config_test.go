package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
log:
  level: DEBUG
  redact_pii: false

pipeline:
  preview_rows: 5
  mapping:
    first_name: "Name"
    last_name: "Name"
    phone: "Mobile"
    country: "Country"
  filter:
    column: "Brand"
    values: ["Acme", "Globex"]

storage:
  local_path: "./test-data"
  aws_region: "eu-west-1"

runlog:
  drivers: ["postgres", "kafka"]
  kafka_brokers: ["localhost:9092"]

meta:
  api_version: "v20.0"
  batch_size: 500
  timeout_seconds: 45
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Redact())

	assert.Equal(t, 5, cfg.Pipeline.PreviewRows)
	assert.Equal(t, "Name", cfg.Pipeline.Mapping.FirstName)
	assert.Equal(t, "Mobile", cfg.Pipeline.Mapping.Phone)
	assert.Equal(t, "Brand", cfg.Pipeline.Filter.Column)
	assert.Equal(t, []string{"Acme", "Globex"}, cfg.Pipeline.Filter.Values)

	assert.Equal(t, "./test-data", cfg.Storage.LocalPath)
	assert.Equal(t, "eu-west-1", cfg.Storage.AWSRegion)

	assert.True(t, cfg.RunLog.Enabled("postgres"))
	assert.True(t, cfg.RunLog.Enabled("kafka"))
	assert.False(t, cfg.RunLog.Enabled("dynamodb"))
	assert.Equal(t, "audience.hash-runs", cfg.RunLog.KafkaTopic)

	assert.Equal(t, "v20.0", cfg.Meta.APIVersion)
	assert.Equal(t, 500, cfg.Meta.BatchSize)
	assert.Equal(t, "https://graph.facebook.com", cfg.Meta.BaseURL)

	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("meta:\n  access_token: \"tok\"\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Log.Redact())
	assert.Equal(t, 10, cfg.Pipeline.PreviewRows)
	assert.Equal(t, "us-east-1", cfg.Storage.AWSRegion)
	assert.Equal(t, "v19.0", cfg.Meta.APIVersion)
	assert.Equal(t, 10000, cfg.Meta.BatchSize)
	assert.Equal(t, 60, cfg.Meta.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Meta.MaxRetries)
	assert.Equal(t, 900, cfg.Redis.LockTTLSeconds)
	assert.Equal(t, "audience_hasher", cfg.RunLog.MongoDatabase)
	assert.Equal(t, "hash_runs", cfg.RunLog.MongoCollection)
	assert.Empty(t, cfg.RunLog.Drivers)

	want := Default().Meta
	want.AccessToken = "tok"
	assert.Equal(t, want, cfg.Meta)
}

func TestLoadFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
meta:
  access_token: "file-token"
  api_version: "v18.0"
runlog:
  drivers: ["postgres"]
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set environment variables
	os.Setenv("META_ACCESS_TOKEN", "env-token")
	os.Setenv("META_API_VERSION", "v21.0")
	os.Setenv("RUNLOG_DRIVERS", "dynamodb, mongodb")
	os.Setenv("DYNAMODB_RUNLOG_TABLE", "hash-runs")
	os.Setenv("REDIS_URL", "redis://localhost:6379/0")
	defer func() {
		os.Unsetenv("META_ACCESS_TOKEN")
		os.Unsetenv("META_API_VERSION")
		os.Unsetenv("RUNLOG_DRIVERS")
		os.Unsetenv("DYNAMODB_RUNLOG_TABLE")
		os.Unsetenv("REDIS_URL")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "env-token", cfg.Meta.AccessToken)
	assert.Equal(t, "v21.0", cfg.Meta.APIVersion)
	assert.Equal(t, []string{"dynamodb", "mongodb"}, cfg.RunLog.Drivers)
	assert.Equal(t, "hash-runs", cfg.RunLog.DynamoDBTable)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadFromEnvWithoutFile(t *testing.T) {
	os.Setenv("META_BATCH_SIZE", "250")
	defer os.Unsetenv("META_BATCH_SIZE")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Meta.BatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnvBadBatchSize(t *testing.T) {
	os.Setenv("META_BATCH_SIZE", "lots")
	defer os.Unsetenv("META_BATCH_SIZE")

	_, err := LoadFromEnv("")
	assert.Error(t, err)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("meta: [unterminated"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Log.Level = "loud"
	cfg.Meta.BatchSize = 20000
	cfg.RunLog.Drivers = []string{"dynamodb", "sqlite"}

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]string{}
	for _, v := range verrs {
		fields[v.Field] = v.Message
	}
	assert.Contains(t, fields, "Config.Log.Level")
	assert.Contains(t, fields, "Config.Meta.BatchSize")
	assert.Contains(t, fields, "Config.RunLog.Drivers[1]")
	assert.Equal(t, "is required when the dynamodb driver is enabled", fields["Config.RunLog.DynamoDBTable"])
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestValidateDriverRequirements(t *testing.T) {
	cfg := Default()
	cfg.RunLog.Drivers = []string{"mongodb", "kafka"}

	err := cfg.Validate()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)

	cfg.RunLog.MongoURI = "mongodb://localhost:27017"
	cfg.RunLog.KafkaBrokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.Validate())
}

func TestTimeout(t *testing.T) {
	cfg := MetaConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.Timeout())
}

func TestLockTTL(t *testing.T) {
	cfg := RedisConfig{LockTTLSeconds: 120}
	assert.Equal(t, 2*time.Minute, cfg.LockTTL())
}

func TestGetAWSProfile(t *testing.T) {
	cfg := StorageConfig{AWSProfile: "dev"}
	assert.Equal(t, "dev", cfg.GetAWSProfile())

	os.Setenv("AWS_PROFILE_OVERRIDE", "iam")
	defer os.Unsetenv("AWS_PROFILE_OVERRIDE")
	assert.Equal(t, "", cfg.GetAWSProfile())
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Name", cfg.Pipeline.Mapping.FirstName)
	assert.Equal(t, "audience-hash-runs", cfg.RunLog.DynamoDBTable)
	assert.NoError(t, cfg.Validate())
}
