package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/marmos91/transferd/internal/logger"
	"github.com/marmos91/transferd/internal/metrics"
	"github.com/marmos91/transferd/internal/version"
	"github.com/marmos91/transferd/pkg/api"
	"github.com/marmos91/transferd/pkg/download"
	"github.com/marmos91/transferd/pkg/reaper"
	"github.com/marmos91/transferd/pkg/store"
	"github.com/marmos91/transferd/pkg/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transferd server",
	Long: `Start the transferd server: the HTTP upload/download surface, the
background reaper, and (if enabled) the Prometheus metrics endpoint.

Examples:
  # Start with the default config location
  transferd serve

  # Start with a custom config
  transferd serve --config /etc/transferd/config.yaml

  # Override a key that the config file sets, via environment
  TRANSFERD_LOGGING_LEVEL=DEBUG transferd serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("transferd starting",
		"version", version.Version,
		"upload_limit", humanize.Bytes(uint64(cfg.Upload.LimitBytes)),
		"storage_cap", humanize.Bytes(uint64(cfg.Upload.MaxCombinedBytes)),
		"upload_dir", cfg.Upload.Dir,
	)

	metadataStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadataStore.Close() }()
	logger.Info("Metadata store ready", "type", cfg.Database.Type)

	var m *metrics.Metrics
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mm, promReg := metrics.New()
		m = mm
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(promReg))
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("Metrics server listening", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	} else {
		logger.Info("Metrics collection disabled")
	}

	uploadService, err := upload.New(metadataStore, upload.Config{
		Dir:                 cfg.Upload.Dir,
		LimitBytes:          cfg.Upload.LimitBytes,
		MaxCombinedBytes:    cfg.Upload.MaxCombinedBytes,
		TimeoutSecs:         cfg.Upload.TimeoutSecs,
		LifespanSecsDefault: cfg.Upload.LifespanSecsDefault,
	}, m)
	if err != nil {
		return fmt.Errorf("failed to initialize upload service: %w", err)
	}
	downloadService := download.New(metadataStore)

	sweeper := reaper.New(metadataStore, reaper.Config{
		UploadDir:           cfg.Upload.Dir,
		UploadTimeoutSecs:   cfg.Upload.TimeoutSecs,
		DownloadTimeoutSecs: cfg.Download.TimeoutSecs,
		SweepIntervalSecs:   cfg.Reaper.SweepIntervalSecs,
	}, m)
	go sweeper.Run(ctx)
	logger.Info("Reaper started", "interval_secs", cfg.Reaper.SweepIntervalSecs)

	router := api.NewRouter(api.RouterConfig{
		Upload:           uploadService,
		Download:         downloadService,
		UploadLimitBytes: cfg.Upload.LimitBytes,
		LifespanDefault:  cfg.Upload.LifespanSecsDefault,
		DownloadDefault:  cfg.Download.LimitDefault,
		RequestTimeout:   cfg.Server.WriteTimeout,
	})

	server := api.NewServer(api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("Server stopped gracefully")
	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("Server stopped")
	}
	return nil
}
