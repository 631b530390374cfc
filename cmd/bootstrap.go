package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/smartbin/internal/classifier"
	"github.com/example/smartbin/internal/config"
	"github.com/example/smartbin/internal/grpcclient"
	"github.com/example/smartbin/internal/hardware"
	"github.com/example/smartbin/internal/logging"
	"github.com/example/smartbin/internal/repository"
	"github.com/example/smartbin/internal/usecase"
)

func loadRuntime() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	return cfg, logger, nil
}

// newRemoteClassifier builds the transport named by CLASSIFIER_BACKEND. The
// returned func releases its connection.
func newRemoteClassifier(ctx context.Context, cfg *config.Config, logger *zap.Logger) (classifier.Classifier, func(), error) {
	switch cfg.Classifier.Backend {
	case "grpc":
		client, conn, err := grpcclient.DialClassifier(ctx, cfg.Classifier.GRPCAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		return classifier.WithTimeout(client, cfg.Classifier.Timeout), func() { conn.Close() }, nil
	case "gemini":
		client, err := classifier.NewGemini(ctx, cfg.Classifier.GeminiAPIKey, cfg.Classifier.GeminiModel, logger)
		if err != nil {
			return nil, nil, err
		}
		return classifier.WithTimeout(client, cfg.Classifier.Timeout), func() { client.Close() }, nil
	default:
		return classifier.NewRemote(cfg.Classifier.Endpoint, cfg.Classifier.Timeout, logger), func() {}, nil
	}
}

func loadLocalModel(cfg *config.Config, logger *zap.Logger) (*classifier.Local, error) {
	return classifier.LoadLocal(cfg.Model.Path, classifier.LocalOptions{
		Width:   cfg.Model.Width,
		Height:  cfg.Model.Height,
		Layout:  classifier.Layout(cfg.Model.Layout),
		Classes: cfg.Model.Classes,
	}, logger)
}

// openBoard configures the sensor and LEDs. With LED_DRIVER=firmata the
// sensor stays on the Pi header and the LEDs move to the Arduino.
func openBoard(cfg *config.Config, logger *zap.Logger) (hardware.Board, error) {
	pinout, err := hardware.LoadPinout(cfg.Hardware.PinoutFile, hardware.Pinout{
		Sensor:           cfg.Hardware.SensorPin,
		StatusLED:        cfg.Hardware.StatusLEDPin,
		RecyclableLED:    cfg.Hardware.RecyclableLED,
		NonRecyclableLED: cfg.Hardware.NonRecyclableLED,
		SensorActiveLow:  cfg.Hardware.SensorActiveLow,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Hardware.LEDDriver != "firmata" {
		return hardware.OpenGPIO(pinout, logger)
	}

	sensor, err := hardware.OpenGPIOSensor(pinout, logger)
	if err != nil {
		return nil, err
	}
	leds, err := hardware.OpenFirmataLEDs(cfg.Hardware.FirmataPort, cfg.Hardware.FirmataBaud, pinout, logger)
	if err != nil {
		sensor.Close()
		return nil, err
	}
	return hardware.Compose(sensor, leds, leds.Close, sensor.Close), nil
}

// openHistory connects the cycle log and its cache. It returns a nil history
// when no DATABASE_DSN is configured.
func openHistory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*usecase.CycleHistory, func(), error) {
	if cfg.Storage.DatabaseDSN == "" {
		logger.Info("DATABASE_DSN not set, cycle history disabled")
		return nil, func() {}, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := openDatabase(initCtx, cfg.Storage.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	repo := repository.NewCycleRepository(db, logger)
	if err := repo.AutoMigrate(initCtx); err != nil {
		return nil, nil, fmt.Errorf("auto migrate failed: %w", err)
	}

	closers := []func(){func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}}
	var cache usecase.Cache = usecase.NopCache{}
	if cfg.Storage.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
		if err := client.Ping(initCtx).Err(); err != nil {
			logger.Warn("redis unavailable, serving history from the database only", zap.Error(err))
			client.Close()
		} else {
			cache = usecase.NewRedisCache(client)
			closers = append(closers, func() { client.Close() })
		}
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return usecase.NewCycleHistory(repo, cache, logger), closeAll, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}
