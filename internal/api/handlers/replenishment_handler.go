package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
	"github.com/yepShinjo/ml-forecasting/internal/service"
)

// ReplenishmentService is the part of the service the HTTP layer uses.
type ReplenishmentService interface {
	RunDatabase(ctx context.Context, req service.RunRequest) (*domain.RunOutput, error)
	GetRun(ctx context.Context, database, id string) (*service.RunDetail, error)
	RunStats(ctx context.Context, database string, days int) (*pipeline.RunMetrics, error)
	ListLevels(ctx context.Context, database string, filter domain.LevelsFilter) ([]domain.CurrentLevel, error)
}

type ReplenishmentHandler struct {
	service ReplenishmentService
}

func NewReplenishmentHandler(service ReplenishmentService) *ReplenishmentHandler {
	return &ReplenishmentHandler{service: service}
}

type startRunRequest struct {
	Source      string `json:"source"`
	Database    string `json:"database"`
	Granularity string `json:"granularity"`
}

// StartRun runs the engine against a database and returns the run summary.
func (h *ReplenishmentHandler) StartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Source != "" && req.Source != "database" {
		errorResponse(c, http.StatusBadRequest, "unsupported source "+req.Source)
		return
	}

	out, err := h.service.RunDatabase(c.Request.Context(), service.RunRequest{
		Database:    req.Database,
		Granularity: req.Granularity,
	})
	if err != nil && out == nil {
		serviceError(c, err)
		return
	}
	if err != nil {
		// The run finished but was cancelled or could not be fully persisted.
		c.JSON(http.StatusAccepted, gin.H{"summary": out.Summary, "results": len(out.Results), "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": out.Summary, "results": len(out.Results)})
}

func (h *ReplenishmentHandler) GetRun(c *gin.Context) {
	detail, err := h.service.GetRun(c.Request.Context(), c.Query("database"), c.Param("id"))
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *ReplenishmentHandler) GetRunStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	stats, err := h.service.RunStats(c.Request.Context(), c.Query("database"), days)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ReplenishmentHandler) GetLevels(c *gin.Context) {
	filter := domain.LevelsFilter{
		LocationIDs: parseInt64List(c, "location_id"),
		ItemIDs:     parseInt64List(c, "item_id"),
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	levels, err := h.service.ListLevels(c.Request.Context(), c.Query("database"), filter)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": levels, "limit": filter.Limit, "offset": filter.Offset})
}

// parseInt64List accepts repeated params and comma-separated values. Invalid
// entries are skipped.
func parseInt64List(c *gin.Context, param string) []int64 {
	var result []int64
	for _, value := range c.QueryArray(param) {
		for _, part := range strings.Split(value, ",") {
			if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
				result = append(result, id)
			}
		}
	}
	return result
}

func serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRunNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoBackend), errors.Is(err, domain.ErrSourceUnavailable):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	log.Error().Int("status", statusCode).Msg(message)
	c.JSON(statusCode, gin.H{"error": message})
}
