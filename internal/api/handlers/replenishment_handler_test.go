package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
	"github.com/yepShinjo/ml-forecasting/internal/scheduler"
	"github.com/yepShinjo/ml-forecasting/internal/service"
)

type mockService struct{ mock.Mock }

func (m *mockService) RunDatabase(ctx context.Context, req service.RunRequest) (*domain.RunOutput, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).(*domain.RunOutput)
	return out, args.Error(1)
}

func (m *mockService) GetRun(ctx context.Context, database, id string) (*service.RunDetail, error) {
	args := m.Called(ctx, database, id)
	detail, _ := args.Get(0).(*service.RunDetail)
	return detail, args.Error(1)
}

func (m *mockService) RunStats(ctx context.Context, database string, days int) (*pipeline.RunMetrics, error) {
	args := m.Called(ctx, database, days)
	metrics, _ := args.Get(0).(*pipeline.RunMetrics)
	return metrics, args.Error(1)
}

func (m *mockService) ListLevels(ctx context.Context, database string, filter domain.LevelsFilter) ([]domain.CurrentLevel, error) {
	args := m.Called(ctx, database, filter)
	levels, _ := args.Get(0).([]domain.CurrentLevel)
	return levels, args.Error(1)
}

func newRouter(svc ReplenishmentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewReplenishmentHandler(svc)
	r := gin.New()
	r.POST("/runs", h.StartRun)
	r.GET("/runs/stats", h.GetRunStats)
	r.GET("/runs/:id", h.GetRun)
	r.GET("/levels", h.GetLevels)
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartRun(t *testing.T) {
	svc := &mockService{}
	out := &domain.RunOutput{
		Results: []domain.ReplenishmentResult{{LocationID: 1}},
		Summary: domain.RunSummary{RunID: "run-1", Source: "shop", Forecasted: 1},
	}
	svc.On("RunDatabase", mock.Anything, service.RunRequest{Database: "shop", Granularity: "item"}).Return(out, nil)

	w := serve(newRouter(svc), http.MethodPost, "/runs", `{"source":"database","database":"shop","granularity":"item"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Summary domain.RunSummary `json:"summary"`
		Results int               `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body.Summary.RunID)
	assert.Equal(t, 1, body.Results)
}

func TestStartRunErrors(t *testing.T) {
	svc := &mockService{}
	svc.On("RunDatabase", mock.Anything, service.RunRequest{Database: "down"}).
		Return(nil, domain.ErrSourceUnavailable)
	svc.On("RunDatabase", mock.Anything, service.RunRequest{Granularity: "region"}).
		Return(nil, service.ErrInvalidRequest)
	svc.On("RunDatabase", mock.Anything, service.RunRequest{Database: "partial"}).
		Return(&domain.RunOutput{}, errors.New("persist failed"))
	r := newRouter(svc)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/runs", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/runs", `{"source":"csv"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/runs", `{"database":"down"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/runs", `{"granularity":"region"}`).Code)
	assert.Equal(t, http.StatusAccepted, serve(r, http.MethodPost, "/runs", `{"database":"partial"}`).Code)
}

func TestGetRun(t *testing.T) {
	svc := &mockService{}
	detail := &service.RunDetail{Run: &pipeline.Run{ID: "abc"}, Omissions: []domain.Omission{}}
	svc.On("GetRun", mock.Anything, "shop", "abc").Return(detail, nil)
	svc.On("GetRun", mock.Anything, "", "nope").Return(nil, service.ErrRunNotFound)
	r := newRouter(svc)

	w := serve(r, http.MethodGet, "/runs/abc?database=shop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"abc"`)

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/runs/nope", "").Code)
}

func TestGetRunStats(t *testing.T) {
	svc := &mockService{}
	svc.On("RunStats", mock.Anything, "", 7).Return(&pipeline.RunMetrics{Runs: 2}, nil)

	w := serve(newRouter(svc), http.MethodGet, "/runs/stats?days=7", "")
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestGetLevels(t *testing.T) {
	svc := &mockService{}
	filter := domain.LevelsFilter{LocationIDs: []int64{1, 2, 3}, ItemIDs: []int64{10}, Limit: 5, Offset: 10}
	svc.On("ListLevels", mock.Anything, "shop", filter).Return([]domain.CurrentLevel{{LocationID: 1, ReorderLevel: 70}}, nil)

	w := serve(newRouter(svc), http.MethodGet, "/levels?database=shop&location_id=1,2&location_id=3&item_id=10&item_id=x&limit=5&offset=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reorder_level":70`)
	svc.AssertExpectations(t)
}

func TestGetLevelsDefaults(t *testing.T) {
	svc := &mockService{}
	svc.On("ListLevels", mock.Anything, "", domain.LevelsFilter{Limit: 100}).Return(nil, service.ErrNoBackend)

	w := serve(newRouter(svc), http.MethodGet, "/levels?limit=-3", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type fixedStatus struct{ status scheduler.Status }

func (f fixedStatus) Status() scheduler.Status { return f.status }

func TestScheduleStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/schedule", NewScheduleHandler(fixedStatus{scheduler.Status{Running: true}}).GetStatus)

	w := serve(r, http.MethodGet, "/schedule", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"running":true`)
}
