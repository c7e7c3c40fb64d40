package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/yepShinjo/ml-forecasting/internal/config"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/drive"
	"github.com/yepShinjo/ml-forecasting/internal/repository"
	"github.com/yepShinjo/ml-forecasting/internal/sales"
	"github.com/yepShinjo/ml-forecasting/internal/service"
	"github.com/yepShinjo/ml-forecasting/pkg/logger"
)

type appKey struct{}

// app holds what setup wires for a command.
type app struct {
	cfg     *config.Config
	service *service.ReplenishmentService
	close   func() error
}

func fromContext(c *cli.Context) (*app, error) {
	a, ok := c.Context.Value(appKey{}).(*app)
	if !ok {
		return nil, fmt.Errorf("command was not set up")
	}
	return a, nil
}

func setup(c *cli.Context) error {
	base := config.Load()
	cfg := *base
	applyFlags(c, &cfg)

	logger.SetLevel(logger.LevelForMode(cfg.LogLevel, cfg.Server.Mode))

	filter := repository.SalesFilter{LocationIDs: c.Int64Slice("location-id")}
	if since := c.Timestamp("since"); since != nil {
		filter.Since = *since
	}

	svc, closeFn, err := service.NewFromConfig(c.Context, &cfg, filter)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return fmt.Errorf("failed to set up: %w", err)
	}

	c.Context = context.WithValue(c.Context, appKey{}, &app{cfg: &cfg, service: svc, close: closeFn})
	return nil
}

func teardown(c *cli.Context) error {
	if a, err := fromContext(c); err == nil && a.close != nil {
		return a.close()
	}
	return nil
}

// applyFlags overrides configuration with explicitly set flags.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("granularity") {
		cfg.Forecast.Granularity = c.String("granularity")
	}
	if c.IsSet("lead-time") {
		cfg.Forecast.LeadTimeDays = c.Int("lead-time")
	}
	if c.IsSet("top-n") {
		cfg.Forecast.TopN = c.Int("top-n")
	}
	if c.IsSet("workers") {
		cfg.Forecast.Workers = c.Int("workers")
	}
	if c.IsSet("output-dir") {
		cfg.Forecast.OutputDir = c.String("output-dir")
	}
	if c.IsSet("parallel-sources") {
		cfg.Forecast.ParallelSources = c.Int("parallel-sources")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
}

func listDatabases(c *cli.Context) error {
	a, err := fromContext(c)
	if err != nil {
		return err
	}

	names, err := a.service.ListDatabases(c.Context)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(c.App.Writer, name)
	}
	return nil
}

func runDatabases(c *cli.Context) error {
	a, err := fromContext(c)
	if err != nil {
		return err
	}
	if c.NArg() != 1 {
		return cli.Exit("run expects exactly one database argument", 2)
	}

	outcomes, err := a.service.RunDatabases(c.Context, c.Args().First(), a.cfg.Forecast.ParallelSources)
	if err != nil {
		return err
	}

	failed := 0
	for _, o := range outcomes {
		if o.Summary != nil {
			logSummary(o.Summary, o.Duration)
		}
		if o.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d databases failed", failed, len(outcomes))
	}
	return nil
}

func runCSV(c *cli.Context) error {
	a, err := fromContext(c)
	if err != nil {
		return err
	}
	return runSource(c.Context, a, sales.NewCSVSource(c.String("input"), a.cfg.Forecast.Location()))
}

func runDrive(c *cli.Context) error {
	a, err := fromContext(c)
	if err != nil {
		return err
	}
	if a.cfg.Drive.CredentialsJSON == "" {
		return fmt.Errorf("GOOGLE_DRIVE_CREDENTIALS_JSON is required for drive runs")
	}

	driveService, err := drive.NewService(c.Context, a.cfg.Drive.CredentialsJSON)
	if err != nil {
		return err
	}

	folderID := c.String("folder-id")
	if folderID == "" && c.String("folder-path") != "" {
		folderID, err = driveService.FindFolderByPath(c.Context, c.String("folder-path"))
		if err != nil {
			return err
		}
	}
	if folderID == "" {
		return fmt.Errorf("--folder-id or --folder-path is required")
	}

	downloadDir := a.cfg.Drive.DownloadDir
	files, err := drive.NewDownloader(driveService).DownloadFolderCSV(c.Context, drive.DownloadOptions{
		FolderID:    folderID,
		DownloadDir: downloadDir,
		Pattern:     c.String("pattern"),
	})
	if err != nil {
		return err
	}
	log.Info().Int("files", len(files)).Str("dir", downloadDir).Msg("sales exports downloaded")

	return runSource(c.Context, a, sales.NewCSVSource(downloadDir, a.cfg.Forecast.Location()))
}

func runSource(ctx context.Context, a *app, src sales.Source) error {
	start := time.Now()
	out, err := a.service.RunSource(ctx, src)
	if out != nil {
		logSummary(&out.Summary, time.Since(start))
	}
	return err
}

func logSummary(s *domain.RunSummary, elapsed time.Duration) {
	log.Info().
		Str("run_id", s.RunID).
		Str("source", s.Source).
		Str("granularity", string(s.Granularity)).
		Time("cutoff", s.Cutoff).
		Int("keys", s.TotalKeys).
		Int("forecasted", s.Forecasted).
		Int("fallback_insufficient_history", s.FallbackInsufficient).
		Int("fallback_forecast_failure", s.FallbackForecastFailure).
		Int("omitted", s.Omitted).
		Int("return_rows", s.ReturnRows).
		Dur("elapsed", elapsed).
		Msg("run finished")
}
