package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/worklog/internal/api"
	"github.com/goodtune/worklog/internal/config"
	"github.com/goodtune/worklog/internal/metrics"
	"github.com/goodtune/worklog/internal/storage"
	"github.com/goodtune/worklog/internal/storage/bolt"
	"github.com/goodtune/worklog/internal/storage/redis"
	"github.com/goodtune/worklog/internal/storage/sqlite"
	"github.com/goodtune/worklog/internal/systemd"
	"github.com/goodtune/worklog/internal/timespan"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the worklog API server",
	Long:  `Start the JSON API server and, when enabled, the Prometheus metrics endpoint.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting worklog")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	ledger, err := newLedger(cfg, store, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Dur("gap_tolerance", cfg.Tracking.GapToleranceDuration()).
		Int("entry_cache_size", cfg.Tracking.EntryCacheSize).
		Msg("Ledger initialized")

	// Initialize API Server
	apiConfig := api.Config{
		ListenAddr:     fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	apiServer := api.NewServer(apiConfig, ledger, logger)

	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API Server: %w", err)
	}

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Server.MetricsEnabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		// Use systemd socket-activated listener if available
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	logger.Info().Msg("worklog startup complete")
	logger.Info().Msgf("API: http://%s/api/v1", apiConfig.ListenAddr)
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s:%d/metrics", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	}

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if interval := systemd.WatchdogInterval(); interval > 0 {
		go runWatchdog(ctx, ledger, interval, logger)
	}

	// Wait for signals (shutdown or reload)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig != syscall.SIGHUP {
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
			break
		}

		// Only logging settings can change without a restart.
		logger.Info().Msg("SIGHUP received, reloading logging configuration...")
		reloaded, err := config.Load(configPath)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to reload configuration")
			continue
		}
		zerolog.SetGlobalLevel(parseLevel(reloaded.Logging.Level))
		logger.Info().Str("level", reloaded.Logging.Level).Msg("Logging configuration reloaded")
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("worklog stopped")

	return nil
}

// runWatchdog pings the systemd watchdog while storage stays readable.
func runWatchdog(ctx context.Context, ledger *timespan.Ledger, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			_, err := ledger.ActiveSpan(checkCtx)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("Storage check failed, skipping watchdog notification")
				continue
			}
			if err := systemd.NotifyWatchdog(); err != nil {
				logger.Warn().Err(err).Msg("Failed to send systemd watchdog notification")
			}
		}
	}
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case config.StorageBolt, "":
		return bolt.Open(cfg.Path)
	case config.StorageRedis:
		return redis.Open(cfg.Redis)
	case config.StorageSQLite:
		return sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newLedger(cfg *config.Config, store storage.Store, logger zerolog.Logger) (*timespan.Ledger, error) {
	ledger, err := timespan.NewLedger(store, timespan.Config{
		GapTolerance:   cfg.Tracking.GapToleranceDuration(),
		EntryCacheSize: cfg.Tracking.EntryCacheSize,
	}, timespan.RealClock{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	return ledger, nil
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
