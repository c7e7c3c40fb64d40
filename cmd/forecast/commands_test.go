package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"github.com/yepShinjo/ml-forecasting/internal/config"
)

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{Forecast: config.ForecastConfig{Granularity: "item", LeadTimeDays: 7, TopN: 0}}

	app := &cli.App{
		Flags: engineFlags(),
		Action: func(c *cli.Context) error {
			applyFlags(c, cfg)
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"forecast", "--lead-time", "14", "--top-n", "50", "--output-dir", "/tmp/levels"}))

	assert.Equal(t, 14, cfg.Forecast.LeadTimeDays)
	assert.Equal(t, 50, cfg.Forecast.TopN)
	assert.Equal(t, "/tmp/levels", cfg.Forecast.OutputDir)
	assert.Equal(t, "item", cfg.Forecast.Granularity)
}

func TestCommandsRequireSetup(t *testing.T) {
	app := &cli.App{
		Action: func(c *cli.Context) error {
			_, err := fromContext(c)
			return err
		},
	}
	assert.Error(t, app.Run([]string{"forecast"}))
}

func TestAppCommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range newApp().Commands {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"databases", "run", "csv", "drive"}, names)
}
