package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vefmedia/vef/internal/config"
	"github.com/vefmedia/vef/internal/database"
	"github.com/vefmedia/vef/internal/ffmpeg"
	vefhttp "github.com/vefmedia/vef/internal/http"
	"github.com/vefmedia/vef/internal/http/handlers"
	"github.com/vefmedia/vef/internal/repository"
	"github.com/vefmedia/vef/internal/scheduler"
	"github.com/vefmedia/vef/internal/startup"
	"github.com/vefmedia/vef/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vef server",
	Long: `Start the vef HTTP server and job scheduler.

The server exposes the job queue REST API, recovers jobs interrupted by
a previous shutdown, and processes queued jobs one at a time.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (overrides config)")
	serveCmd.Flags().Int("port", 0, "server port (overrides config)")
	serveCmd.Flags().String("database", "", "database DSN (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("database") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database")
	}

	logger := slog.Default()
	logger.Info("starting vef",
		"version", version.Short(),
		"address", cfg.Server.Address(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	if err := os.MkdirAll(cfg.Storage.DownloadsPath(), 0o755); err != nil {
		return fmt.Errorf("creating downloads directory: %w", err)
	}

	jobs := repository.NewJobRepository(db.DB)
	audits := repository.NewAuditRepository(db.DB)

	ffmpegBin, err := ffmpeg.ResolveBinary(cfg.FFmpeg.Bin)
	if err != nil {
		return fmt.Errorf("resolving ffmpeg binary: %w", err)
	}

	registry := ffmpeg.NewRegistry()
	supervisor := ffmpeg.NewSupervisor(ffmpegBin, cfg.FFmpeg.TimeoutFactor, registry, logger)

	encoders := ffmpeg.NewEncoderSet()
	if err := encoders.Probe(ctx, ffmpegBin); err != nil {
		logger.Warn("encoder probe failed, hardware encoders unavailable", "error", err)
	}

	processor := scheduler.BuildProcessor(cfg, supervisor, encoders, logger)
	sched := scheduler.New(jobs, audits, processor, cfg.Scheduler.PollInterval, logger)

	if err := sched.Recover(ctx); err != nil {
		return fmt.Errorf("recovering interrupted jobs: %w", err)
	}

	cleaner := startup.NewCleaner(jobs, cfg.Storage.DownloadsPath(), logger)
	if err := cleaner.Run(ctx); err != nil {
		logger.Warn("startup cleanup failed", "error", err)
	}
	if cfg.Cleanup.Enabled {
		if err := cleaner.Schedule(ctx, cfg.Cleanup.Cron); err != nil {
			return fmt.Errorf("scheduling cleanup: %w", err)
		}
		defer cleaner.Stop()
	}

	sched.Start(ctx)
	defer sched.Stop()

	server := vefhttp.NewServer(cfg.Server, logger, version.Version)
	api := server.API()

	handlers.NewHealthHandler(version.Version).WithDB(db.DB).Register(api)
	handlers.NewJobsHandler(jobs, audits, registry).WithLogger(logger).Register(api)
	handlers.NewOptionsHandler(encoders).Register(api)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("vef stopped")
	return nil
}
