package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/http/dto"
	"basegraph.app/booking/internal/model"
)

// InstanceManager is the part of app.Manager the instance API uses.
type InstanceManager interface {
	Create(ctx context.Context, typeName string) (*model.AppInstance, error)
	Get(ctx context.Context, appID int64) (*model.AppInstance, error)
	List(ctx context.Context) ([]model.AppInstance, error)
	ListByCapability(ctx context.Context, caps ...app.Capability) ([]model.AppInstance, error)
	Update(ctx context.Context, appID int64, patch model.AppInstancePatch) (*model.AppInstance, error)
	Delete(ctx context.Context, appID int64) error
	Configure(ctx context.Context, appID int64, data json.RawMessage) (*model.AppInstance, error)
	Reauthorize(ctx context.Context, appID int64) (*model.AppInstance, string, error)
	MaskedData(inst *model.AppInstance) json.RawMessage
}

type InstanceHandler struct {
	apps     InstanceManager
	registry *app.Registry
}

func NewInstanceHandler(apps InstanceManager, registry *app.Registry) *InstanceHandler {
	return &InstanceHandler{apps: apps, registry: registry}
}

func (h *InstanceHandler) respond(c *gin.Context, status int, inst *model.AppInstance) {
	c.JSON(status, dto.ToInstanceResponse(inst, h.apps.MaskedData(inst)))
}

func (h *InstanceHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: type_name is required"})
		return
	}

	inst, err := h.apps.Create(ctx, req.TypeName)
	if err != nil {
		respondError(c, err, "create app instance")
		return
	}
	h.respond(c, http.StatusCreated, inst)
}

func (h *InstanceHandler) Get(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	inst, err := h.apps.Get(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err, "load app instance")
		return
	}
	h.respond(c, http.StatusOK, inst)
}

// List returns every instance, or those supporting all capabilities named
// in the capability query parameter.
func (h *InstanceHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		instances []model.AppInstance
		err       error
	)
	if names := c.QueryArray("capability"); len(names) > 0 {
		caps := make([]app.Capability, 0, len(names))
		for _, n := range names {
			if !knownCapability(app.Capability(n)) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown capability " + n})
				return
			}
			caps = append(caps, app.Capability(n))
		}
		instances, err = h.apps.ListByCapability(ctx, caps...)
	} else {
		instances, err = h.apps.List(ctx)
	}
	if err != nil {
		respondError(c, err, "list app instances")
		return
	}

	resp := make([]dto.InstanceResponse, len(instances))
	for i := range instances {
		resp[i] = dto.ToInstanceResponse(&instances[i], h.apps.MaskedData(&instances[i]))
	}
	c.JSON(http.StatusOK, gin.H{"instances": resp})
}

func (h *InstanceHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.UpdateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	inst, err := h.apps.Update(ctx, appID, model.AppInstancePatch{Status: req.Status, Account: req.Account})
	if err != nil {
		respondError(c, err, "update app instance")
		return
	}
	h.respond(c, http.StatusOK, inst)
}

func (h *InstanceHandler) Delete(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.apps.Delete(c.Request.Context(), appID); err != nil {
		respondError(c, err, "delete app instance")
		return
	}
	c.Status(http.StatusNoContent)
}

// Configure passes the raw request body to the integration's handshake.
func (h *InstanceHandler) Configure(c *gin.Context) {
	ctx := c.Request.Context()
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body must be a JSON object"})
		return
	}

	inst, err := h.apps.Configure(ctx, appID, body)
	if err != nil {
		respondError(c, err, "configure app instance")
		return
	}
	h.respond(c, http.StatusOK, inst)
}

func (h *InstanceHandler) Reauthorize(c *gin.Context) {
	appID, ok := appIDParam(c, "id")
	if !ok {
		return
	}
	inst, loginURL, err := h.apps.Reauthorize(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err, "reauthorize app instance")
		return
	}
	c.JSON(http.StatusOK, dto.ReauthorizeResponse{
		Instance: dto.ToInstanceResponse(inst, h.apps.MaskedData(inst)),
		LoginURL: loginURL,
	})
}

func (h *InstanceHandler) Types(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"types": h.registry.Types()})
}

func (h *InstanceHandler) Schema(c *gin.Context) {
	schema, err := h.registry.ConfigSchema(c.Param("type"))
	if err != nil {
		respondError(c, err, "build config schema")
		return
	}
	c.JSON(http.StatusOK, schema)
}

func knownCapability(c app.Capability) bool {
	for _, k := range app.AllCapabilities {
		if k == c {
			return true
		}
	}
	return false
}
