package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yepShinjo/ml-forecasting/internal/scheduler"
)

type ScheduleStatus interface {
	Status() scheduler.Status
}

type ScheduleHandler struct {
	schedule ScheduleStatus
}

func NewScheduleHandler(schedule ScheduleStatus) *ScheduleHandler {
	return &ScheduleHandler{schedule: schedule}
}

func (h *ScheduleHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.schedule.Status())
}
