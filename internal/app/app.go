// Package app wires configuration into the storage, gateway, notification and
// service layers shared by the server and the cronjob runner.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gearlend-backend/internal/config"
	"gearlend-backend/internal/logger"
	"gearlend-backend/internal/money"
	"gearlend-backend/internal/notify"
	"gearlend-backend/internal/payment"
	"gearlend-backend/internal/repository"
	"gearlend-backend/internal/repository/memory"
	"gearlend-backend/internal/repository/postgres"
	"gearlend-backend/internal/service"

	_ "github.com/lib/pq"
)

type App struct {
	Config        *config.Config
	Store         repository.Store
	DB            *sql.DB // nil in memory mode
	Gateway       payment.Gateway
	Dispatcher    *notify.Dispatcher
	Engine        *service.Engine
	Notifications service.NotificationService

	closers []func() error
}

// New builds every component. The dispatcher is created but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.Store, a.DB = store, db
	if db != nil {
		a.closers = append(a.closers, db.Close)
	}

	a.Gateway = newGateway(cfg)

	rates, err := money.NewRateTable(cfg.Commission.DefaultRate, cfg.Commission.CategoryRates)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid commission configuration: %w", err)
	}

	channels, err := a.newChannels(ctx, store.Users())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Dispatcher = notify.NewDispatcher(store.Notifications(), channels, notify.Config{
		Workers:     cfg.Notification.Workers,
		QueueSize:   cfg.Notification.QueueSize,
		MaxAttempts: cfg.Notification.MaxAttempts,
		RetryBase:   cfg.Notification.RetryBase(),
		SendTimeout: cfg.Notification.SendTimeout(),
	})

	a.Engine = service.NewEngine(store, a.Gateway, rates, a.Dispatcher, service.EngineConfig{
		PaymentRetryWindow: cfg.Payment.RetryWindow(),
		IntentExpiry:       cfg.Payment.IntentExpiry(),
		WebhookSecret:      cfg.Payment.WebhookSecret,
		WebhookTolerance:   cfg.Payment.WebhookTolerance(),
		AdminRecipientID:   cfg.Notification.AdminRecipientID,
	})
	a.Notifications = service.NewNotificationService(store.Notifications(), a.Dispatcher)
	return a, nil
}

// Close releases channel producers and the database pool, last opened first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

// openStore connects to Postgres or builds the in-memory store with its seed.
func openStore(cfg *config.Config) (repository.Store, *sql.DB, error) {
	if cfg.Storage.Type == "memory" {
		logger.Info("Using in-memory storage", "seed_file", cfg.Storage.SeedFile)
		store := memory.NewStore()
		if cfg.Storage.SeedFile != "" {
			if err := store.LoadSeed(cfg.Storage.SeedFile); err != nil {
				return nil, nil, err
			}
		}
		return store, nil, nil
	}

	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	// Test database connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")
	return postgres.NewStore(db), db, nil
}

func newGateway(cfg *config.Config) payment.Gateway {
	var gw payment.Gateway
	switch cfg.Payment.Provider {
	case "mock":
		logger.Warn("Using mock payment gateway", "checkout_base_url", cfg.Payment.CheckoutBaseURL)
		gw = payment.NewMockGateway(cfg.Payment.CheckoutBaseURL)
	default:
		gw = payment.NewPayMongoGateway(cfg.Payment.BaseURL, cfg.Payment.SecretKey, cfg.Payment.ReturnURL, cfg.Payment.CallTimeout())
	}
	return payment.NewRetryingGateway(gw, cfg.Payment.RetryAttempts, cfg.Payment.RetryBaseDelay(), cfg.Payment.CallTimeout())
}

// newChannels builds the enabled notification channels in configuration order.
func (a *App) newChannels(ctx context.Context, users repository.UserRepository) ([]notify.Channel, error) {
	var channels []notify.Channel
	n := a.Config.Notification
	for _, name := range n.Channels {
		switch strings.ToLower(name) {
		case "email":
			channels = append(channels, notify.NewSendGridEmailChannel(n.SendGrid.APIKey, users, n.SendGrid.FromEmail, n.SendGrid.FromName))
		case "push":
			push, err := notify.NewFirebasePushChannel(ctx, n.FCM.CredentialsFile)
			if err != nil {
				return nil, err
			}
			channels = append(channels, push)
		case "event":
			ev, err := notify.NewKafkaEventChannel(n.Kafka.Brokers, n.Kafka.Topic, n.Kafka.ClientID)
			if err != nil {
				return nil, err
			}
			channels = append(channels, ev)
			a.closers = append(a.closers, ev.Close)
		case "log":
			channels = append(channels, notify.LogChannel{})
		default:
			return nil, fmt.Errorf("unknown notification channel: %s", name)
		}
	}
	logger.Info("Notification channels enabled", "channels", n.Channels)
	return channels, nil
}
