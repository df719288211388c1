package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/http/dto"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/oauth"
	"basegraph.app/booking/internal/store"
)

type OAuthManager interface {
	LoginURL(ctx context.Context, appID int64) (string, error)
	HandleRedirect(ctx context.Context, query url.Values) oauth.Result
}

type OAuthHandler struct {
	apps OAuthManager
}

func NewOAuthHandler(apps OAuthManager) *OAuthHandler {
	return &OAuthHandler{apps: apps}
}

// Login redirects the browser to the provider's consent page.
func (h *OAuthHandler) Login(c *gin.Context) {
	appID, ok := appIDParam(c, "app_id")
	if !ok {
		return
	}
	loginURL, err := h.apps.LoginURL(c.Request.Context(), appID)
	if err != nil {
		respondError(c, err, "build login url")
		return
	}
	c.Redirect(http.StatusFound, loginURL)
}

// Redirect completes the authorization. The outcome is returned as JSON for
// the frontend to render.
func (h *OAuthHandler) Redirect(c *gin.Context) {
	res := h.apps.HandleRedirect(c.Request.Context(), c.Request.URL.Query())

	resp := dto.OAuthRedirectResponse{}
	if res.AppID != 0 {
		resp.AppID = id.Format(res.AppID)
	}
	if res.Err == nil {
		resp.Status = string(model.AppStatusConnected)
		resp.Account = res.Account
		c.JSON(http.StatusOK, resp)
		return
	}

	resp.Error = oauth.ErrorKey(res.Err)
	resp.ErrorArgs = res.ErrArgs
	if errors.Is(res.Err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, resp)
		return
	}
	if !errors.Is(res.Err, app.ErrCapabilityNotSupported) && !errors.Is(res.Err, oauth.ErrMissingState) {
		resp.Status = string(model.AppStatusFailed)
	}
	c.JSON(http.StatusBadRequest, resp)
}
