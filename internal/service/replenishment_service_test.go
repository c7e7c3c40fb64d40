package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yepShinjo/ml-forecasting/internal/config"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/forecast"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline/replenishment"
	"github.com/yepShinjo/ml-forecasting/internal/repository"
	"github.com/yepShinjo/ml-forecasting/internal/sales"
	"github.com/yepShinjo/ml-forecasting/internal/storage"
)

// shortHistory is 10 days at 10 units for one key: a fallback run yielding 70/140.
func shortHistory() []domain.SaleRow {
	start := time.Date(2024, 6, 21, 10, 0, 0, 0, time.UTC)
	rows := make([]domain.SaleRow, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, domain.SaleRow{
			SoldAt:      start.AddDate(0, 0, i),
			LocationID:  1,
			ItemID:      10,
			VariationID: 100,
			Quantity:    10,
		})
	}
	return rows
}

func testServiceOptions(outputDir string) Options {
	engine := replenishment.DefaultOptions()
	engine.WorkerCount = 2
	engine.Estimator.Timeout = time.Second

	cfg := pipeline.DefaultPipelineConfig("replenishment")
	cfg.OutputDir = outputDir

	return Options{Engine: engine, Pipeline: cfg, UpsertLevels: true, StoragePrefix: "results"}
}

func TestRunSourceWritesCSVAndUploads(t *testing.T) {
	outDir := t.TempDir()
	store := storage.NewLocalStorage(t.TempDir())
	svc := NewReplenishmentService(forecast.Unavailable{}, nil, nil, store, testServiceOptions(outDir))

	out, err := svc.RunSource(context.Background(), sales.Static{SourceName: "exports", Rows: shortHistory()})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, int64(70), out.Results[0].ReorderLevel)
	assert.Equal(t, int64(140), out.Results[0].ReplenishLevel)
	assert.Equal(t, "exports", out.Summary.Source)
	assert.NotEmpty(t, out.Summary.RunID)

	files, err := filepath.Glob(filepath.Join(outDir, "forecast_exports_*.csv"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "1,10,100,,,70,140,false")

	objects, err := store.ListObjects(context.Background(), "results/exports/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestRunDatabasePersists(t *testing.T) {
	runs := &mockRuns{}
	results := &mockResults{}
	levels := &mockLevelsCache{}
	backend := &Backend{Sales: sales.Static{SourceName: "shop", Rows: shortHistory()}, Runs: runs, Results: results}

	results.On("Ping", mock.Anything).Return(nil)
	runs.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	results.On("AppendResults", mock.Anything, mock.Anything, mock.MatchedBy(func(r []domain.ReplenishmentResult) bool {
		return len(r) == 1
	})).Return(nil)
	results.On("UpsertCurrentLevels", mock.Anything, mock.Anything).Return(nil)
	levels.On("InvalidateDatabase", mock.Anything, "shop").Return(nil)
	runs.On("InsertOmissions", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(r *pipeline.Run) bool {
		return r.Status == pipeline.StatusCompleted && r.FallbackInsufficient == 1 && r.CompletedAt != nil
	})).Return(nil)

	svc := NewReplenishmentService(forecast.Unavailable{}, staticBackends{backend: backend}, levels, nil, testServiceOptions(""))

	out, err := svc.RunDatabase(context.Background(), RunRequest{Database: "shop"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Summary.FallbackInsufficient)

	runs.AssertExpectations(t)
	results.AssertExpectations(t)
	levels.AssertExpectations(t)
}

func TestRunSkipsUpsertWithoutLocation(t *testing.T) {
	results := &mockResults{}
	backend := &Backend{Sales: sales.Static{SourceName: "shop", Rows: shortHistory()}, Results: results}

	results.On("Ping", mock.Anything).Return(nil)
	results.On("AppendResults", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewReplenishmentService(forecast.Unavailable{}, staticBackends{backend: backend}, nil, nil, testServiceOptions(""))

	_, err := svc.RunDatabase(context.Background(), RunRequest{Granularity: "item"})
	require.NoError(t, err)
	results.AssertNotCalled(t, "UpsertCurrentLevels", mock.Anything, mock.Anything)
}

func TestRunAbortsWhenSinkUnavailable(t *testing.T) {
	runs := &mockRuns{}
	results := &mockResults{}
	backend := &Backend{Sales: sales.Static{SourceName: "shop", Rows: shortHistory()}, Runs: runs, Results: results}
	results.On("Ping", mock.Anything).Return(errors.New("connection refused"))

	svc := NewReplenishmentService(forecast.Unavailable{}, nil, nil, nil, testServiceOptions(""))

	out, err := svc.Run(context.Background(), backend, replenishment.DefaultOptions())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	runs.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}

func TestRunAbortsWhenSourceFails(t *testing.T) {
	runs := &mockRuns{}
	results := &mockResults{}
	backend := &Backend{Sales: failingSource{err: errors.New("timeout")}, Runs: runs, Results: results}

	results.On("Ping", mock.Anything).Return(nil)
	runs.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(r *pipeline.Run) bool {
		return r.Status == pipeline.StatusFailed && r.ErrorMessage != ""
	})).Return(nil)

	svc := NewReplenishmentService(forecast.Unavailable{}, nil, nil, nil, testServiceOptions(t.TempDir()))

	out, err := svc.Run(context.Background(), backend, replenishment.DefaultOptions())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	runs.AssertExpectations(t)
	results.AssertNotCalled(t, "AppendResults", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunReportsPersistenceFailure(t *testing.T) {
	runs := &mockRuns{}
	results := &mockResults{}
	backend := &Backend{Sales: sales.Static{SourceName: "shop", Rows: shortHistory()}, Runs: runs, Results: results}

	results.On("Ping", mock.Anything).Return(nil)
	runs.On("CreateRun", mock.Anything, mock.Anything).Return(nil)
	results.On("AppendResults", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))
	results.On("UpsertCurrentLevels", mock.Anything, mock.Anything).Return(nil)
	runs.On("InsertOmissions", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	runs.On("UpdateRun", mock.Anything, mock.MatchedBy(func(r *pipeline.Run) bool {
		return r.Status == pipeline.StatusFailed
	})).Return(nil)

	svc := NewReplenishmentService(forecast.Unavailable{}, nil, nil, nil, testServiceOptions(""))

	out, err := svc.Run(context.Background(), backend, replenishment.DefaultOptions())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	require.NotNil(t, out)
	assert.Len(t, out.Results, 1)
	runs.AssertExpectations(t)
}

func TestRunDatabaseRequestErrors(t *testing.T) {
	svc := NewReplenishmentService(forecast.Unavailable{}, nil, nil, nil, testServiceOptions(""))

	_, err := svc.RunDatabase(context.Background(), RunRequest{Granularity: "region"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.RunDatabase(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, ErrNoBackend)

	failing := NewReplenishmentService(forecast.Unavailable{}, staticBackends{err: domain.ErrSourceUnavailable}, nil, nil, testServiceOptions(""))
	_, err = failing.RunDatabase(context.Background(), RunRequest{})
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestListLevelsCacheMiss(t *testing.T) {
	results := &mockResults{}
	levels := &mockLevelsCache{}
	filter := domain.LevelsFilter{LocationIDs: []int64{1}, Limit: 10}
	rows := []domain.CurrentLevel{{LocationID: 1, ItemID: 10, ReorderLevel: 70, ReplenishLevel: 140}}

	levels.On("GetLevels", mock.Anything, "shop", filter).Return(nil, false, nil)
	results.On("ListCurrentLevels", mock.Anything, filter).Return(rows, nil)
	levels.On("SetLevels", mock.Anything, "shop", filter, rows).Return(nil)

	svc := NewReplenishmentService(nil, staticBackends{backend: &Backend{Results: results}}, levels, nil, testServiceOptions(""))

	got, err := svc.ListLevels(context.Background(), "shop", filter)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
	levels.AssertExpectations(t)
}

func TestListLevelsCacheHit(t *testing.T) {
	results := &mockResults{}
	levels := &mockLevelsCache{}
	filter := domain.LevelsFilter{Limit: 10}
	rows := []domain.CurrentLevel{{LocationID: 2}}
	levels.On("GetLevels", mock.Anything, "shop", filter).Return(rows, true, nil)

	svc := NewReplenishmentService(nil, staticBackends{backend: &Backend{Results: results}}, levels, nil, testServiceOptions(""))

	got, err := svc.ListLevels(context.Background(), "shop", filter)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
	results.AssertNotCalled(t, "ListCurrentLevels", mock.Anything, mock.Anything)
}

func TestGetRun(t *testing.T) {
	runs := &mockRuns{}
	run := &pipeline.Run{ID: "abc", Status: pipeline.StatusCompleted}
	runs.On("GetRun", mock.Anything, "abc").Return(run, nil)
	runs.On("GetOmissions", mock.Anything, "abc").Return(nil, nil)
	runs.On("GetRun", mock.Anything, "missing").Return(nil, nil)

	svc := NewReplenishmentService(nil, staticBackends{backend: &Backend{Runs: runs}}, nil, nil, testServiceOptions(""))

	detail, err := svc.GetRun(context.Background(), "", "abc")
	require.NoError(t, err)
	assert.Equal(t, run, detail.Run)
	assert.NotNil(t, detail.Omissions)

	_, err = svc.GetRun(context.Background(), "", "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunStatsDefaultsWindow(t *testing.T) {
	runs := &mockRuns{}
	runs.On("GetRunStats", mock.Anything, mock.MatchedBy(func(since time.Time) bool {
		return time.Since(since) > 29*24*time.Hour
	})).Return(&pipeline.RunMetrics{Runs: 3}, nil)

	svc := NewReplenishmentService(nil, staticBackends{backend: &Backend{Runs: runs}}, nil, nil, testServiceOptions(""))

	metrics, err := svc.RunStats(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), metrics.Runs)
}

func TestRunDatabases(t *testing.T) {
	backend := &Backend{Sales: sales.Static{SourceName: "shop", Rows: shortHistory()}}
	svc := NewReplenishmentService(forecast.Unavailable{}, staticBackends{backend: backend, names: []string{"a", "b", "c"}}, nil, nil, testServiceOptions(""))

	outcomes, err := svc.RunDatabases(context.Background(), "2", 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a", outcomes[0].Source)
	assert.Equal(t, "b", outcomes[1].Source)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		require.NotNil(t, o.Summary)
		assert.Equal(t, 1, o.Summary.FallbackInsufficient)
	}

	_, err = svc.RunDatabases(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunDatabasesKeepsGoingAfterFailure(t *testing.T) {
	backend := &Backend{Sales: failingSource{err: errors.New("down")}}
	svc := NewReplenishmentService(forecast.Unavailable{}, staticBackends{backend: backend, names: []string{"a", "b"}}, nil, nil, testServiceOptions(""))

	outcomes, err := svc.RunDatabases(context.Background(), "-1", 1)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, domain.ErrSourceUnavailable)
		assert.Nil(t, o.Summary)
	}
}

func TestNewFromConfigWithoutExternalServices(t *testing.T) {
	cfg := &config.Config{
		Forecast: config.ForecastConfig{Granularity: "location_item", LeadTimeDays: 14, OutputDir: t.TempDir(), ParallelSources: 3},
	}

	svc, closeFn, err := NewFromConfig(context.Background(), cfg, repository.SalesFilter{})
	require.NoError(t, err)
	defer func() { assert.NoError(t, closeFn()) }()

	assert.Equal(t, domain.GranularityLocationItem, svc.opts.Engine.Granularity)
	assert.Equal(t, 14, svc.opts.Engine.Estimator.LeadTimeDays)
	assert.Equal(t, 3, svc.opts.Pipeline.SourceParallel)
	assert.IsType(t, forecast.Unavailable{}, svc.forecaster)
}

func TestCloseAllRunsInReverse(t *testing.T) {
	var order []int
	closeFn := closeAll([]func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return errors.New("boom") },
	})
	assert.ErrorContains(t, closeFn(), "boom")
	assert.Equal(t, []int{2, 1}, order)
}

func TestListLevelsKeysCacheByResolvedDatabase(t *testing.T) {
	results := &mockResults{}
	levels := &mockLevelsCache{}
	filter := domain.LevelsFilter{Limit: 100}
	backend := &Backend{Sales: sales.Static{SourceName: "pos_main"}, Results: results}

	levels.On("GetLevels", mock.Anything, "pos_main", filter).Return(nil, false, nil)
	results.On("ListCurrentLevels", mock.Anything, filter).Return(nil, nil)
	levels.On("SetLevels", mock.Anything, "pos_main", filter, []domain.CurrentLevel{}).Return(nil)

	svc := NewReplenishmentService(nil, staticBackends{backend: backend}, levels, nil, testServiceOptions(""))

	got, err := svc.ListLevels(context.Background(), "", filter)
	require.NoError(t, err)
	assert.NotNil(t, got)
	levels.AssertExpectations(t)
}
