package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/service"
)

type AvailabilityHandler struct {
	availability service.AvailabilityService
}

func NewAvailabilityHandler(availability service.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// Busy aggregates busy intervals across calendars. A failing provider is
// reported in its own entry and does not fail the request.
func (h *AvailabilityHandler) Busy(c *gin.Context) {
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	results, err := h.availability.AggregateBusyTimes(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err, "aggregate busy times")
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": results})
}

func (h *AvailabilityHandler) InstanceBusy(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	start, end, ok := timeRange(c)
	if !ok {
		return
	}
	busy, err := h.availability.GetBusyTimes(c.Request.Context(), appID, start, end)
	if err != nil {
		respondError(c, err, "load busy times")
		return
	}
	c.JSON(http.StatusOK, gin.H{"busy_times": busy})
}

// timeRange reads start and end as RFC 3339 timestamps or dates. Dates are
// midnight in the tz location, UTC by default.
func timeRange(c *gin.Context) (time.Time, time.Time, bool) {
	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tz"})
			return time.Time{}, time.Time{}, false
		}
	}

	start, err := parseTime(c.Query("start"), loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start"})
		return time.Time{}, time.Time{}, false
	}
	end, err := parseTime(c.Query("end"), loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end"})
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}
