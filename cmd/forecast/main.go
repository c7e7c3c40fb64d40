package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("forecast failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "forecast",
		Usage: "Compute reorder and replenish levels from sales history",
		Flags: engineFlags(),
		Commands: []*cli.Command{
			{
				Name:   "databases",
				Usage:  "List the databases runs can target",
				Before: setup,
				After:  teardown,
				Action: listDatabases,
			},
			{
				Name:      "run",
				Usage:     "Run against databases: -1 for all, N for the first N, or a name",
				ArgsUsage: "<database>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "parallel-sources",
						Usage:   "Databases processed at once",
						EnvVars: []string{"FORECAST_PARALLEL_SOURCES"},
					},
				},
				Before: setup,
				After:  teardown,
				Action: runDatabases,
			},
			{
				Name:  "csv",
				Usage: "Run against CSV sales exports, writing results to CSV only",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Usage:    "CSV file or directory of CSV files",
						Required: true,
					},
				},
				Before: setup,
				After:  teardown,
				Action: runCSV,
			},
			{
				Name:  "drive",
				Usage: "Download sales exports from Google Drive, then run like csv",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "folder-id",
						Usage:   "Drive folder holding the exports",
						EnvVars: []string{"SALES_DRIVE_FOLDER_ID"},
					},
					&cli.StringFlag{
						Name:  "folder-path",
						Usage: "Drive folder path, resolved when --folder-id is empty",
					},
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Only download files whose name matches this glob",
					},
				},
				Before: setup,
				After:  teardown,
				Action: runDrive,
			},
		},
	}
}

func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "granularity",
			Usage:   "item, item_variation, location_item or location_item_variation",
			EnvVars: []string{"FORECAST_GRANULARITY"},
		},
		&cli.IntFlag{
			Name:    "lead-time",
			Usage:   "Lead time in days",
			EnvVars: []string{"FORECAST_LEAD_TIME_DAYS"},
		},
		&cli.IntFlag{
			Name:    "top-n",
			Usage:   "Keep only the N best selling items (0 keeps all)",
			EnvVars: []string{"FORECAST_TOP_N"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Concurrent key workers",
			EnvVars: []string{"FORECAST_WORKERS"},
		},
		&cli.StringFlag{
			Name:    "output-dir",
			Usage:   "Directory for result CSVs",
			EnvVars: []string{"FORECAST_OUTPUT_DIR"},
		},
		&cli.TimestampFlag{
			Name:   "since",
			Usage:  "Only extract sales on or after this date",
			Layout: "2006-01-02",
		},
		&cli.Int64SliceFlag{
			Name:  "location-id",
			Usage: "Only extract sales of these locations",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"LOG_LEVEL"},
		},
	}
}
