package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/http/dto"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/service"
)

// ScheduleDispatcher resolves days through an instance's schedule provider.
type ScheduleDispatcher interface {
	GetSchedule(ctx context.Context, appID int64, start, end time.Time) (map[string]model.DaySchedule, error)
}

type ScheduleHandler struct {
	schedules    service.ScheduleService
	availability service.AvailabilityService
	providers    ScheduleDispatcher
	now          func() time.Time
}

func NewScheduleHandler(schedules service.ScheduleService, availability service.AvailabilityService, providers ScheduleDispatcher) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, availability: availability, providers: providers, now: time.Now}
}

// weekQuery reads an integer week from the query. Absent, it is the
// current week.
func (h *ScheduleHandler) weekQuery(c *gin.Context, name string) (model.Week, bool) {
	raw, ok := c.GetQuery(name)
	if !ok {
		return model.WeekOf(h.now()), true
	}
	w, err := strconv.Atoi(raw)
	if err != nil || w < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return model.Week(w), true
}

func (h *ScheduleHandler) Get(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	week, ok := h.weekQuery(c, "week")
	if !ok {
		return
	}
	sched, err := h.schedules.Get(c.Request.Context(), appID, week)
	if err != nil {
		respondError(c, err, "load schedule")
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (h *ScheduleHandler) Set(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.SetSchedulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: schedules keyed by week are required"})
		return
	}
	if err := h.schedules.SetMany(c.Request.Context(), appID, req.Schedules, req.Replace); err != nil {
		respondError(c, err, "save schedules")
		return
	}
	c.Status(http.StatusNoContent)
}

// Remove resets one week, or with from every week from then on.
func (h *ScheduleHandler) Remove(c *gin.Context) {
	ctx := c.Request.Context()
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}

	if _, ok := c.GetQuery("from"); ok {
		from, ok := h.weekQuery(c, "from")
		if !ok {
			return
		}
		n, err := h.schedules.RemoveFrom(ctx, appID, from)
		if err != nil {
			respondError(c, err, "remove schedules")
			return
		}
		c.JSON(http.StatusOK, dto.RemovedResponse{Removed: n})
		return
	}

	if _, ok := c.GetQuery("week"); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week or from is required"})
		return
	}
	week, ok := h.weekQuery(c, "week")
	if !ok {
		return
	}
	if err := h.schedules.Remove(ctx, appID, week); err != nil {
		respondError(c, err, "remove schedule")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Copy(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.CopyScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: target weeks are required"})
		return
	}
	weeks, err := h.schedules.Copy(c.Request.Context(), appID, req.From, req.To, req.Replace)
	if err != nil {
		respondError(c, err, "copy schedule")
		return
	}
	c.JSON(http.StatusOK, dto.WeeksResponse{Weeks: weeks})
}

func (h *ScheduleHandler) Repeat(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	var req service.RepeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	weeks, err := h.schedules.Repeat(c.Request.Context(), appID, req)
	if err != nil {
		respondError(c, err, "repeat schedule")
		return
	}
	c.JSON(http.StatusOK, dto.WeeksResponse{Weeks: weeks})
}

// Days resolves working hours per date. Dates are read in the tz query
// location, UTC by default. Schedule providers answer for their own
// instances; any other instance resolves its overrides directly.
func (h *ScheduleHandler) Days(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	days, err := h.providers.GetSchedule(c.Request.Context(), appID, start, end)
	if errors.Is(err, app.ErrCapabilityNotSupported) {
		days, err = h.availability.GetSchedule(c.Request.Context(), appID, start, end)
	}
	if err != nil {
		respondError(c, err, "resolve schedule")
		return
	}
	c.JSON(http.StatusOK, dto.DaysResponse{Days: days})
}

func (h *ScheduleHandler) GetDefault(c *gin.Context) {
	def, err := h.schedules.Default(c.Request.Context())
	if err != nil {
		respondError(c, err, "load default schedule")
		return
	}
	if def == nil {
		def = model.WeekSchedule{}
	}
	c.JSON(http.StatusOK, gin.H{"schedule": def})
}

func (h *ScheduleHandler) PutDefault(c *gin.Context) {
	var req struct {
		Schedule model.WeekSchedule `json:"schedule" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: schedule is required"})
		return
	}
	if err := h.schedules.SetDefault(c.Request.Context(), req.Schedule); err != nil {
		respondError(c, err, "save default schedule")
		return
	}
	c.Status(http.StatusNoContent)
}
