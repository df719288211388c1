package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/model"
)

// Dispatcher sends work to the integration behind an instance.
type Dispatcher interface {
	SendMail(ctx context.Context, appID int64, msg model.MailMessage) (*model.MailResult, error)
	SendTextMessage(ctx context.Context, appID int64, msg model.TextMessage) (*model.TextMessageResult, error)
	CreateEvent(ctx context.Context, appID int64, ev model.CalendarEvent) (*model.CalendarEventResult, error)
	UpdateEvent(ctx context.Context, appID int64, ev model.CalendarEvent) (*model.CalendarEventResult, error)
	DeleteEvent(ctx context.Context, appID int64, uid string) error
}

type DispatchHandler struct {
	apps Dispatcher
}

func NewDispatchHandler(apps Dispatcher) *DispatchHandler {
	return &DispatchHandler{apps: apps}
}

func (h *DispatchHandler) SendMail(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	var msg model.MailMessage
	if err := c.ShouldBindJSON(&msg); err != nil || len(msg.To) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: at least one recipient is required"})
		return
	}

	res, err := h.apps.SendMail(c.Request.Context(), appID, msg)
	if err != nil {
		respondError(c, err, "send mail")
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *DispatchHandler) SendText(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	var msg model.TextMessage
	if err := c.ShouldBindJSON(&msg); err != nil || msg.To == "" || msg.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: to and body are required"})
		return
	}

	res, err := h.apps.SendTextMessage(c.Request.Context(), appID, msg)
	if err != nil {
		respondError(c, err, "send text message")
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *DispatchHandler) bindEvent(c *gin.Context) (model.CalendarEvent, bool) {
	var ev model.CalendarEvent
	if err := c.ShouldBindJSON(&ev); err != nil || ev.UID == "" || !ev.Start.Before(ev.End) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: uid and a start before end are required"})
		return ev, false
	}
	return ev, true
}

func (h *DispatchHandler) CreateEvent(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	ev, ok := h.bindEvent(c)
	if !ok {
		return
	}
	res, err := h.apps.CreateEvent(c.Request.Context(), appID, ev)
	if err != nil {
		respondError(c, err, "create event")
		return
	}
	c.JSON(http.StatusCreated, res)
}

// UpdateEvent takes the event uid from the path.
func (h *DispatchHandler) UpdateEvent(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	var ev model.CalendarEvent
	if err := c.ShouldBindJSON(&ev); err != nil || !ev.Start.Before(ev.End) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: start must be before end"})
		return
	}
	ev.UID = c.Param("uid")

	res, err := h.apps.UpdateEvent(c.Request.Context(), appID, ev)
	if err != nil {
		respondError(c, err, "update event")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *DispatchHandler) DeleteEvent(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.apps.DeleteEvent(c.Request.Context(), appID, c.Param("uid")); err != nil {
		respondError(c, err, "delete event")
		return
	}
	c.Status(http.StatusNoContent)
}
