package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	JWT          JWTConfig          `yaml:"jwt"`
	Storage      StorageConfig      `yaml:"storage"`
	Log          LogConfig          `yaml:"log"`
	Payment      PaymentConfig      `yaml:"payment"`
	Commission   CommissionConfig   `yaml:"commission"`
	Notification NotificationConfig `yaml:"notification"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	GRPCPort            int    `yaml:"grpc_port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// JWTConfig contains settings for validating identity service tokens
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Type     string `yaml:"type"`      // "postgres" or "memory"
	SeedFile string `yaml:"seed_file"` // catalog fixture for memory mode
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text" or "tint"
}

// PaymentConfig contains gateway and reconciliation settings
type PaymentConfig struct {
	Provider                string `yaml:"provider"` // "paymongo" or "mock"
	BaseURL                 string `yaml:"base_url"`
	SecretKey               string `yaml:"secret_key"`
	WebhookSecret           string `yaml:"webhook_secret"`
	WebhookToleranceSeconds int    `yaml:"webhook_tolerance_seconds"`
	ReturnURL               string `yaml:"return_url"`
	CheckoutBaseURL         string `yaml:"checkout_base_url"` // mock provider only
	RetryAttempts           int    `yaml:"retry_attempts"`
	RetryBaseDelayMillis    int    `yaml:"retry_base_delay_millis"`
	CallTimeoutSeconds      int    `yaml:"call_timeout_seconds"`
	IntentExpiryHours       int    `yaml:"intent_expiry_hours"`
	RetryWindowHours        int    `yaml:"retry_window_hours"`
	PollAfterMinutes        int    `yaml:"poll_after_minutes"`
}

func (p PaymentConfig) WebhookTolerance() time.Duration {
	return time.Duration(p.WebhookToleranceSeconds) * time.Second
}

func (p PaymentConfig) RetryBaseDelay() time.Duration {
	return time.Duration(p.RetryBaseDelayMillis) * time.Millisecond
}

func (p PaymentConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSeconds) * time.Second
}

func (p PaymentConfig) IntentExpiry() time.Duration {
	return time.Duration(p.IntentExpiryHours) * time.Hour
}

func (p PaymentConfig) RetryWindow() time.Duration {
	return time.Duration(p.RetryWindowHours) * time.Hour
}

func (p PaymentConfig) PollAfter() time.Duration {
	return time.Duration(p.PollAfterMinutes) * time.Minute
}

// CommissionConfig holds the platform commission rates as decimal strings.
// Category keys are matched case-insensitively.
type CommissionConfig struct {
	DefaultRate   string            `yaml:"default_rate"`
	CategoryRates map[string]string `yaml:"category_rates"`
}

// NotificationConfig contains dispatcher and channel settings
type NotificationConfig struct {
	Channels           []string       `yaml:"channels"` // "email", "push", "event", "log"
	Workers            int            `yaml:"workers"`
	QueueSize          int            `yaml:"queue_size"`
	MaxAttempts        int            `yaml:"max_attempts"`
	RetryBaseSeconds   int            `yaml:"retry_base_seconds"`
	SendTimeoutSeconds int            `yaml:"send_timeout_seconds"`
	AdminRecipientID   string         `yaml:"admin_recipient_id"`
	SendGrid           SendGridConfig `yaml:"sendgrid"`
	FCM                FCMConfig      `yaml:"fcm"`
	Kafka              KafkaConfig    `yaml:"kafka"`
}

func (n NotificationConfig) Enabled(channel string) bool {
	for _, c := range n.Channels {
		if strings.EqualFold(c, channel) {
			return true
		}
	}
	return false
}

func (n NotificationConfig) RetryBase() time.Duration {
	return time.Duration(n.RetryBaseSeconds) * time.Second
}

func (n NotificationConfig) SendTimeout() time.Duration {
	return time.Duration(n.SendTimeoutSeconds) * time.Second
}

type SendGridConfig struct {
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type FCMConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	PollPendingIntents    string `yaml:"poll_pending_intents"`
	ExpireStaleIntents    string `yaml:"expire_stale_intents"`
	RetryNotifications    string `yaml:"retry_notifications"`
	CloseReturnedBookings string `yaml:"close_returned_bookings"`
	BatchSize             int    `yaml:"batch_size"`
}

// Load reads configuration from a YAML file. A .env file in the working
// directory, when present, is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.GRPCPort)
	}

	// Storage
	if val := os.Getenv("STORAGE_TYPE"); val != "" {
		c.Storage.Type = val
	}
	if val := os.Getenv("SEED_FILE"); val != "" {
		c.Storage.SeedFile = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Payment
	if val := os.Getenv("PAYMENT_PROVIDER"); val != "" {
		c.Payment.Provider = val
	}
	if val := os.Getenv("PAYMONGO_SECRET_KEY"); val != "" {
		c.Payment.SecretKey = val
	}
	if val := os.Getenv("PAYMONGO_WEBHOOK_SECRET"); val != "" {
		c.Payment.WebhookSecret = val
	}

	// Commission
	if val := os.Getenv("COMMISSION_DEFAULT_RATE"); val != "" {
		c.Commission.DefaultRate = val
	}

	// Notification
	if val := os.Getenv("NOTIFICATION_CHANNELS"); val != "" {
		c.Notification.Channels = splitList(val)
	}
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Notification.SendGrid.APIKey = val
	}
	if val := os.Getenv("FCM_CREDENTIALS_FILE"); val != "" {
		c.Notification.FCM.CredentialsFile = val
	}
	if val := os.Getenv("KAFKA_BROKERS"); val != "" {
		c.Notification.Kafka.Brokers = splitList(val)
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 30
	}

	// Storage validation
	if c.Storage.Type == "" {
		c.Storage.Type = "postgres"
	}
	switch c.Storage.Type {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Log validation
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "tint":
	default:
		return fmt.Errorf("unknown log format: %s", c.Log.Format)
	}

	if err := c.validatePayment(); err != nil {
		return err
	}

	// Commission defaults
	if c.Commission.DefaultRate == "" {
		c.Commission.DefaultRate = "0.30"
	}

	if err := c.validateNotification(); err != nil {
		return err
	}

	// Scheduler defaults
	if c.Scheduler.PollPendingIntents == "" {
		c.Scheduler.PollPendingIntents = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.ExpireStaleIntents == "" {
		c.Scheduler.ExpireStaleIntents = "0 0 * * * *" // hourly
	}
	if c.Scheduler.RetryNotifications == "" {
		c.Scheduler.RetryNotifications = "30 * * * * *" // every minute
	}
	if c.Scheduler.CloseReturnedBookings == "" {
		c.Scheduler.CloseReturnedBookings = "0 0 1 * * *" // 1 AM UTC
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 100
	}

	return nil
}

func (c *Config) validatePayment() error {
	p := &c.Payment
	if p.Provider == "" {
		p.Provider = "paymongo"
	}
	switch p.Provider {
	case "paymongo":
		if p.SecretKey == "" {
			return fmt.Errorf("payment secret key is required")
		}
		if p.BaseURL == "" {
			p.BaseURL = "https://api.paymongo.com"
		}
	case "mock":
		if p.CheckoutBaseURL == "" {
			p.CheckoutBaseURL = "http://localhost:8080/mock-checkout"
		}
	default:
		return fmt.Errorf("unknown payment provider: %s", p.Provider)
	}
	if p.WebhookSecret == "" {
		return fmt.Errorf("payment webhook secret is required")
	}
	if p.WebhookToleranceSeconds == 0 {
		p.WebhookToleranceSeconds = 300
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 3
	}
	if p.RetryBaseDelayMillis == 0 {
		p.RetryBaseDelayMillis = 500
	}
	if p.CallTimeoutSeconds == 0 {
		p.CallTimeoutSeconds = 10
	}
	if p.IntentExpiryHours == 0 {
		p.IntentExpiryHours = 24
	}
	if p.RetryWindowHours == 0 {
		p.RetryWindowHours = 24
	}
	if p.PollAfterMinutes == 0 {
		p.PollAfterMinutes = 10
	}
	return nil
}

func (c *Config) validateNotification() error {
	n := &c.Notification
	if len(n.Channels) == 0 {
		n.Channels = []string{"log"}
	}
	for _, ch := range n.Channels {
		switch strings.ToLower(ch) {
		case "email":
			if n.SendGrid.APIKey == "" || n.SendGrid.FromEmail == "" {
				return fmt.Errorf("sendgrid api key and from email are required for the email channel")
			}
		case "push":
			if n.FCM.CredentialsFile == "" {
				return fmt.Errorf("fcm credentials file is required for the push channel")
			}
		case "event":
			if len(n.Kafka.Brokers) == 0 {
				return fmt.Errorf("kafka brokers are required for the event channel")
			}
			if n.Kafka.Topic == "" {
				n.Kafka.Topic = "gearlend.booking-events"
			}
			if n.Kafka.ClientID == "" {
				n.Kafka.ClientID = "gearlend-backend"
			}
		case "log":
		default:
			return fmt.Errorf("unknown notification channel: %s", ch)
		}
	}
	if n.SendGrid.FromName == "" {
		n.SendGrid.FromName = "Gearlend"
	}
	if n.AdminRecipientID == "" {
		n.AdminRecipientID = "admin"
	}
	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
