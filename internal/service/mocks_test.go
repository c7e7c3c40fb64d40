package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
)

type mockRuns struct{ mock.Mock }

func (m *mockRuns) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRuns) CreateRun(ctx context.Context, run *pipeline.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRuns) UpdateRun(ctx context.Context, run *pipeline.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRuns) GetRun(ctx context.Context, id string) (*pipeline.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*pipeline.Run)
	return run, args.Error(1)
}

func (m *mockRuns) InsertOmissions(ctx context.Context, runID string, omissions []domain.Omission) error {
	return m.Called(ctx, runID, omissions).Error(0)
}

func (m *mockRuns) GetOmissions(ctx context.Context, runID string) ([]domain.Omission, error) {
	args := m.Called(ctx, runID)
	omissions, _ := args.Get(0).([]domain.Omission)
	return omissions, args.Error(1)
}

func (m *mockRuns) GetRunStats(ctx context.Context, since time.Time) (*pipeline.RunMetrics, error) {
	args := m.Called(ctx, since)
	metrics, _ := args.Get(0).(*pipeline.RunMetrics)
	return metrics, args.Error(1)
}

type mockResults struct{ mock.Mock }

func (m *mockResults) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockResults) AppendResults(ctx context.Context, runID string, results []domain.ReplenishmentResult) error {
	return m.Called(ctx, runID, results).Error(0)
}

func (m *mockResults) UpsertCurrentLevels(ctx context.Context, results []domain.ReplenishmentResult) error {
	return m.Called(ctx, results).Error(0)
}

func (m *mockResults) ListCurrentLevels(ctx context.Context, filter domain.LevelsFilter) ([]domain.CurrentLevel, error) {
	args := m.Called(ctx, filter)
	levels, _ := args.Get(0).([]domain.CurrentLevel)
	return levels, args.Error(1)
}

func (m *mockResults) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type mockLevelsCache struct{ mock.Mock }

func (m *mockLevelsCache) GetLevels(ctx context.Context, database string, filter domain.LevelsFilter) ([]domain.CurrentLevel, bool, error) {
	args := m.Called(ctx, database, filter)
	levels, _ := args.Get(0).([]domain.CurrentLevel)
	return levels, args.Bool(1), args.Error(2)
}

func (m *mockLevelsCache) SetLevels(ctx context.Context, database string, filter domain.LevelsFilter, levels []domain.CurrentLevel) error {
	return m.Called(ctx, database, filter, levels).Error(0)
}

func (m *mockLevelsCache) InvalidateDatabase(ctx context.Context, database string) error {
	return m.Called(ctx, database).Error(0)
}

type staticBackends struct {
	backend *Backend
	names   []string
	err     error
}

func (s staticBackends) Backend(context.Context, string) (*Backend, error) {
	return s.backend, s.err
}

func (s staticBackends) ListDatabases(context.Context) ([]string, error) {
	return s.names, s.err
}

type failingSource struct{ err error }

func (failingSource) Name() string { return "broken" }

func (f failingSource) LoadSales(context.Context) ([]domain.SaleRow, error) {
	return nil, f.err
}
