package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, "localhost", cfg.Database.Host)
			assert.Equal(t, "jobs_db", cfg.Database.Database)
			assert.Equal(t, "jobs", cfg.Redis.Namespace)
			assert.Equal(t, "job_events", cfg.RabbitMQ.Exchange.Name)
			assert.Equal(t, 8, cfg.Worker.Concurrency)
			assert.Equal(t, 2*time.Minute, cfg.Worker.JobTimeout)
			assert.Equal(t, 5, cfg.Retry.MaxRetries)
			assert.True(t, cfg.Retry.HonorNextRetryAt)
			assert.True(t, cfg.Cleanup.DeleteFromStore)
			assert.Equal(t, "job-reports", cfg.Reports.S3.Bucket)
			assert.NoError(t, cfg.ValidateWorkerConfig())
		})
	}
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	// not set in the file
	assert.True(t, cfg.Cleanup.RemoveFromScheduler)
	assert.Equal(t, 5*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Retry.MaxDelay)
	assert.Equal(t, time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownTimeout)
}

func validConfig() *Config {
	cfg := Default()
	cfg.Database.Host = "localhost"
	cfg.Database.Database = "jobs_db"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database host", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host is required"},
		{name: "invalid database port", mutate: func(c *Config) { c.Database.Port = 70000 }, errString: "invalid database port"},
		{name: "missing database name", mutate: func(c *Config) { c.Database.Database = "" }, errString: "database name is required"},
		{name: "missing redis addr", mutate: func(c *Config) { c.Redis.Addr = "" }, errString: "redis addr is required"},
		{name: "rabbitmq disabled skips checks", mutate: func(c *Config) { c.RabbitMQ.Port = 0 }},
		{
			name: "rabbitmq without exchange",
			mutate: func(c *Config) {
				c.RabbitMQ.Host = "localhost"
				c.RabbitMQ.Exchange.Name = ""
			},
			errString: "rabbitmq exchange name is required",
		},
		{name: "negative max retries", mutate: func(c *Config) { c.Retry.MaxRetries = -1 }, errString: "max_retries"},
		{name: "base delay above max delay", mutate: func(c *Config) { c.Retry.BaseDelay = time.Hour }, errString: "base_delay"},
		{name: "invalid metrics port", mutate: func(c *Config) { c.Metrics.Port = 0 }, errString: "invalid metrics port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateAPIConfig())

	cfg.Server.Port = 0
	err := cfg.ValidateAPIConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero concurrency", mutate: func(c *Config) { c.Worker.Concurrency = 0 }, errString: "worker concurrency"},
		{name: "zero job timeout", mutate: func(c *Config) { c.Worker.JobTimeout = 0 }, errString: "job_timeout"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Scheduler.PollInterval = 0 }, errString: "poll_interval"},
		{name: "negative rearm delay", mutate: func(c *Config) { c.Scheduler.RearmDelay = -time.Second }, errString: "rearm_delay"},
		{name: "bucket without region", mutate: func(c *Config) { c.Reports.S3.Bucket = "b" }, errString: "s3 region"},
		{name: "shared checks run first", mutate: func(c *Config) { c.Database.Host = "" }, errString: "database host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.errString == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}
