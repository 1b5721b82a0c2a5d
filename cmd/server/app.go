package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/warp/rent-ledger/config"
	rentkafka "github.com/warp/rent-ledger/events/kafka"
	"github.com/warp/rent-ledger/logging"
	"github.com/warp/rent-ledger/metrics"
	"github.com/warp/rent-ledger/rent"
	"github.com/warp/rent-ledger/store/sqlstore"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *sqlstore.Store
	metrics   *metrics.Collector
	publisher *rentkafka.Publisher // nil when kafka is disabled
	ledger    *rent.Ledger
	rollover  *rent.RolloverJob
}

func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.port != 0 {
		cfg.Server.Port = f.port
	}
	if f.dsn != "" {
		cfg.Database.DSN = f.dsn
	}
	if f.driver != "" {
		cfg.Database.Driver = f.driver
	}
	if f.port != 0 || f.dsn != "" || f.driver != "" {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return cfg, nil
}

func newApp(f *flags) (*app, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if cfg.Database.Driver == sqlstore.DriverSQLite && cfg.Database.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	opts := []rent.Option{
		rent.WithMetrics(a.metrics),
		rent.WithLocation(cfg.Rent.Location),
		rent.WithCurrency(cfg.Rent.Currency),
	}
	if cfg.Kafka.Enabled {
		a.publisher = rentkafka.NewPublisher(cfg.Kafka.Brokers)
		opts = append(opts, rent.WithPublisher(a.publisher))
		logger.Info("publishing events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	a.ledger = rent.NewLedger(store, append([]rent.Option{rent.WithLogger(logger.Named("ledger"))}, opts...)...)
	a.rollover = rent.NewRolloverJob(store, append([]rent.Option{rent.WithLogger(logger.Named("rollover"))}, opts...)...)

	logger.Info("rent ledger initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("timezone", cfg.Rent.Location.String()),
		zap.String("currency", cfg.Rent.Currency))
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	errs = append(errs, a.store.Close())
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
