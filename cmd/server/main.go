// Package main provides the entry point for the DLMM backtesting server.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/solphase/dlmm-backend/internal/api"
	"github.com/solphase/dlmm-backend/internal/data"
	"github.com/solphase/dlmm-backend/internal/strategy"
	"github.com/solphase/dlmm-backend/pkg/types"
)

func main() {
	configFile := flag.String("config", "", "Config file path (yaml)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Starting DLMM backtesting server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("cacheSize", cfg.Data.CacheSize),
		zap.Bool("allowSynthetic", cfg.Data.AllowSynthetic),
	)

	seed := cfg.Data.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	cache := data.NewCache(cfg.Data.CacheSize, cfg.Data.CacheTTL)
	generator := data.NewGenerator(logger, rng)
	dataSvc := data.NewHistoricalService(logger, cache, nil, generator, cfg.Data.AllowSynthetic)
	registry := strategy.NewRegistry(logger)

	server := api.NewServer(logger, &cfg.Server, dataSvc, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Server stopped unexpectedly", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// appConfig is the full server configuration.
type appConfig struct {
	Server types.ServerConfig
	Data   types.DataConfig
}

// loadConfig reads configuration from defaults, an optional yaml file,
// and DLMM_* environment variables.
func loadConfig(path string) (*appConfig, error) {
	v := viper.New()

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocketPath", "/ws")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.enableMetrics", true)
	v.SetDefault("data.cacheSize", 32)
	v.SetDefault("data.cacheTtl", "12h")
	v.SetDefault("data.allowSynthetic", true)
	v.SetDefault("data.seed", 0)

	v.SetEnvPrefix("DLMM")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &appConfig{
		Server: types.ServerConfig{
			Host:          v.GetString("server.host"),
			Port:          v.GetInt("server.port"),
			WebSocketPath: v.GetString("server.websocketPath"),
			ReadTimeout:   v.GetDuration("server.readTimeout"),
			WriteTimeout:  v.GetDuration("server.writeTimeout"),
			EnableMetrics: v.GetBool("server.enableMetrics"),
		},
		Data: types.DataConfig{
			CacheSize:      v.GetInt("data.cacheSize"),
			CacheTTL:       v.GetDuration("data.cacheTtl"),
			AllowSynthetic: v.GetBool("data.allowSynthetic"),
			Seed:           v.GetInt64("data.seed"),
		},
	}
	return cfg, nil
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
