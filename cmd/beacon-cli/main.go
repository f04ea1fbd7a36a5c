package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/cli"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/platform"
)

func main() {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)
	if os.Getenv("BEACON_CLI_DEBUG") == "true" {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.WithField("env", cfg.Env).Debug("Configuration loaded")

	// Store and repository logs stay quiet unless debugging
	level := observability.ErrorLevel
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		level = observability.DebugLevel
	}
	storeLogger := observability.NewLoggerWithFormat(level, observability.TextFormat, os.Stderr)

	root := cli.NewRootCommand(&cli.App{
		Open: func() (*platform.Platform, error) { return platform.Open(cfg, storeLogger, nil) },
		Out:  os.Stdout,
		Log:  logger,
	})

	if err := root.Execute(); err != nil {
		logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
