package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poshook/pkg/retry"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Webhook: WebhookConfig{
			URL:             "https://hooks.example.com/pos",
			Timeout:         5 * time.Second,
			SignatureHeader: "X-Webhook-Signature",
		},
		Dispatcher: DispatcherConfig{
			MaxAttempts:         5,
			Concurrency:         4,
			QueueSize:           16,
			InitialInterval:     time.Second,
			MaxInterval:         time.Minute,
			Multiplier:          2,
			RandomizationFactor: 0.2,
		},
		Journal: JournalConfig{Backend: "none"},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.say-say.ru/api/iikotest", cfg.Webhook.URL)
	assert.Equal(t, 5, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, 4, cfg.Dispatcher.Concurrency)
	assert.Equal(t, time.Second, cfg.Dispatcher.InitialInterval)
	assert.Equal(t, 60*time.Second, cfg.Dispatcher.MaxInterval)
	assert.InDelta(t, 0.2, cfg.Dispatcher.RandomizationFactor, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.Classifier.CreatedWindow)
	assert.Equal(t, "none", cfg.Journal.Backend)
	assert.Empty(t, cfg.Broker.Type)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
webhook:
  url: https://hooks.example.com/pos
  signing_secret: s3cret
dispatcher:
  max_attempts: 3
  initial_interval: 250ms
circuit_breaker:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("WEBHOOK_BEARER_TOKEN", "token-1")
	t.Setenv("DISPATCHER_CONCURRENCY", "8")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://hooks.example.com/pos", cfg.Webhook.URL)
	assert.Equal(t, "s3cret", cfg.Webhook.SigningSecret)
	assert.Equal(t, "token-1", cfg.Webhook.BearerToken)
	assert.Equal(t, 3, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, 8, cfg.Dispatcher.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatcher.InitialInterval)
	assert.True(t, cfg.CircuitBreaker.Enabled)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantField: "server.port"},
		{name: "relative url", mutate: func(c *Config) { c.Webhook.URL = "/hooks" }, wantField: "webhook.url"},
		{name: "ftp url", mutate: func(c *Config) { c.Webhook.URL = "ftp://example.com" }, wantField: "webhook.url"},
		{name: "zero attempts", mutate: func(c *Config) { c.Dispatcher.MaxAttempts = 0 }, wantField: "dispatcher.max_attempts"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Dispatcher.Concurrency = 0 }, wantField: "dispatcher.concurrency"},
		{
			name:      "max below initial",
			mutate:    func(c *Config) { c.Dispatcher.MaxInterval = time.Millisecond },
			wantField: "dispatcher.max_interval",
		},
		{
			name:      "negative retry after cap",
			mutate:    func(c *Config) { c.Dispatcher.MaxRetryAfter = -time.Second },
			wantField: "dispatcher.max_retry_after",
		},
		{
			name:      "jitter out of range",
			mutate:    func(c *Config) { c.Dispatcher.RandomizationFactor = 1.5 },
			wantField: "dispatcher.randomization_factor",
		},
		{name: "unknown broker", mutate: func(c *Config) { c.Broker.Type = "rabbitmq" }, wantField: "broker.type"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Broker.Type = "kafka" }, wantField: "broker.kafka.brokers"},
		{name: "unknown journal", mutate: func(c *Config) { c.Journal.Backend = "etcd" }, wantField: "journal.backend"},
		{
			name:      "redis journal without redis",
			mutate:    func(c *Config) { c.Journal.Backend = "redis" },
			wantField: "database.redis.host",
		},
		{
			name:      "bad time zone",
			mutate:    func(c *Config) { c.Webhook.TimeZone = "Mars/Olympus" },
			wantField: "webhook.time_zone",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestRetryConfig_Policy(t *testing.T) {
	base := retry.Policy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: time.Minute, Multiplier: 2}

	assert.Equal(t, base, RetryConfig{}.Policy(base))

	got := RetryConfig{MaxAttempts: 7, MaxInterval: 10 * time.Second}.Policy(base)
	assert.Equal(t, 7, got.MaxAttempts)
	assert.Equal(t, time.Second, got.InitialInterval)
	assert.Equal(t, 10*time.Second, got.MaxInterval)
	assert.Equal(t, 2.0, got.Multiplier)
}
