package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
server:
  host: 0.0.0.0
  port: 8080
  grpc_port: 9090
storage:
  type: memory
  seed_file: config/seed.dev.yaml
jwt:
  secret: 0123456789abcdef0123456789abcdef
payment:
  provider: mock
  webhook_secret: whsk_test
commission:
  category_rates:
    Camping: "0.10"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "0.30", cfg.Commission.DefaultRate)
	assert.Equal(t, "0.10", cfg.Commission.CategoryRates["Camping"])

	assert.Equal(t, 3, cfg.Payment.RetryAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Payment.RetryBaseDelay())
	assert.Equal(t, 10*time.Second, cfg.Payment.CallTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Payment.IntentExpiry())
	assert.Equal(t, 24*time.Hour, cfg.Payment.RetryWindow())
	assert.Equal(t, 5*time.Minute, cfg.Payment.WebhookTolerance())
	assert.NotEmpty(t, cfg.Payment.CheckoutBaseURL)

	assert.Equal(t, []string{"log"}, cfg.Notification.Channels)
	assert.True(t, cfg.Notification.Enabled("LOG"))
	assert.False(t, cfg.Notification.Enabled("email"))
	assert.Equal(t, "admin", cfg.Notification.AdminRecipientID)

	assert.Equal(t, "0 */5 * * * *", cfg.Scheduler.PollPendingIntents)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
	assert.Equal(t, "0.0.0.0:9090", cfg.GetGRPCAddress())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_FORMAT", "tint")
	t.Setenv("NOTIFICATION_CHANNELS", "log, event")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("COMMISSION_DEFAULT_RATE", "0.25")

	cfg, err := Load(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, "tint", cfg.Log.Format)
	assert.Equal(t, []string{"log", "event"}, cfg.Notification.Channels)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notification.Kafka.Brokers)
	assert.Equal(t, "gearlend.booking-events", cfg.Notification.Kafka.Topic)
	assert.Equal(t, "0.25", cfg.Commission.DefaultRate)
}

func TestValidate_Errors(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Storage: StorageConfig{Type: "memory"},
			JWT:     JWTConfig{Secret: "0123456789abcdef0123456789abcdef"},
			Log:     LogConfig{Format: "json"},
			Payment: PaymentConfig{Provider: "mock", WebhookSecret: "whsk"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongo" }, "unknown storage type"},
		{"postgres needs host", func(c *Config) { c.Storage.Type = "postgres" }, "database host is required"},
		{"short jwt secret", func(c *Config) { c.JWT.Secret = "short" }, "at least 32 characters"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "unknown log format"},
		{"paymongo needs key", func(c *Config) { c.Payment.Provider = "paymongo" }, "payment secret key is required"},
		{"webhook secret", func(c *Config) { c.Payment.WebhookSecret = "" }, "webhook secret is required"},
		{"email channel", func(c *Config) { c.Notification.Channels = []string{"email"} }, "sendgrid api key"},
		{"push channel", func(c *Config) { c.Notification.Channels = []string{"push"} }, "fcm credentials file"},
		{"event channel", func(c *Config) { c.Notification.Channels = []string{"event"} }, "kafka brokers"},
		{"unknown channel", func(c *Config) { c.Notification.Channels = []string{"sms"} }, "unknown notification channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetDatabaseConnectionString(t *testing.T) {
	c := &Config{Database: DatabaseConfig{
		Host: "db", Port: 5432, User: "gearlend", Password: "pw", Database: "gearlend", SSLMode: "disable",
	}}
	assert.Equal(t, "postgres://gearlend:pw@db:5432/gearlend?sslmode=disable", c.GetDatabaseConnectionString())
}

func TestRouteSecurity(t *testing.T) {
	assert.Equal(t, SecurityPublic, RouteSecurity("POST", "/api/v1/webhooks/payments"))
	assert.Equal(t, SecurityPublic, RouteSecurity("GET", "/healthz"))
	assert.Equal(t, SecurityAccess, RouteSecurity("POST", "/api/v1/bookings/{id}/approve"))
	assert.Equal(t, SecurityAdmin, RouteSecurity("POST", "/api/v1/admin/notifications/retry"))
	assert.Equal(t, SecurityAccess, RouteSecurity("DELETE", "/api/v1/unknown"))
}
