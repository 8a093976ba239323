// Package main is the entry point for the signgate server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/signgate/internal/config"
	"github.com/vyrodovalexey/signgate/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(flag.CommandLine, os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags, config.LoggingConfig{})
	cfg := loadConfig(flags.configPath, logger)

	logger = initLogger(flags, cfg.Logging)
	defer func() { _ = logger.Sync() }()

	gin.SetMode(gin.ReleaseMode)

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize signgate", observability.Error(err))
	}

	if err := app.start(ctx); err != nil {
		app.close(ctx)
		logger.Fatal("failed to start signgate", observability.Error(err))
	}

	waitForShutdown(app, logger)
}

// parseFlags parses command line flags. Environment variables provide the
// defaults.
func parseFlags(fs *flag.FlagSet, args []string) cliFlags {
	var f cliFlags
	fs.StringVar(&f.configPath, "config", getEnvOrDefault(envConfigPath, "configs/signgate.yaml"),
		"Path to configuration file (YAML or TOML)")
	fs.StringVar(&f.logLevel, "log-level", getEnvOrDefault(envLogLevel, ""),
		"Log level (debug, info, warn, error); overrides the configuration")
	fs.StringVar(&f.logFormat, "log-format", getEnvOrDefault(envLogFormat, ""),
		"Log format (json, console); overrides the configuration")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")
	_ = fs.Parse(args)
	return f
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("signgate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger builds the logger from the configured values; flags take
// precedence.
func initLogger(flags cliFlags, base config.LoggingConfig) observability.Logger {
	logCfg := observability.DefaultLogConfig()
	logCfg.Fields = map[string]string{"service": "signgate", "version": version}
	if base.Level != "" {
		logCfg.Level = base.Level
	}
	if base.Format != "" {
		logCfg.Format = base.Format
	}
	if base.Output != "" {
		logCfg.Output = base.Output
	}
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}

	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	return logger
}

// loadConfig loads and validates the configuration.
func loadConfig(path string, logger observability.Logger) *config.Config {
	logger.Info("starting signgate",
		observability.String("version", version),
		observability.String("config", path),
	)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("address", cfg.Server.Address),
		observability.String("grpc_address", cfg.Server.GRPCAddress),
		observability.String("nonce_backend", cfg.NonceStore.NonceBackend()),
		observability.Int("inline_keys", len(cfg.Keys)),
		observability.Int("protected_routes", len(cfg.ProtectedRoutes)),
	)

	return cfg
}
