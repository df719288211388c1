package dto

import (
	"encoding/json"
	"time"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/model"
)

type CreateInstanceRequest struct {
	TypeName string `json:"type_name" binding:"required"`
}

// UpdateInstanceRequest changes bookkeeping fields only. Data goes through
// configure.
type UpdateInstanceRequest struct {
	Status  *model.AppStatus `json:"status,omitempty"`
	Account *string          `json:"account,omitempty"`
}

type InstanceResponse struct {
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	StatusText *model.StatusText `json:"status_text,omitempty"`
	TypeName   string            `json:"type_name"`
	Status     model.AppStatus   `json:"status"`
	Account    string            `json:"account"`
	Data       json.RawMessage   `json:"data"`
	ID         string            `json:"id"`
}

// ToInstanceResponse renders inst with data already masked by the caller.
func ToInstanceResponse(inst *model.AppInstance, masked json.RawMessage) InstanceResponse {
	return InstanceResponse{
		ID:         id.Format(inst.ID),
		TypeName:   inst.TypeName,
		Status:     inst.Status,
		StatusText: inst.StatusText,
		Account:    inst.Account,
		Data:       masked,
		CreatedAt:  inst.CreatedAt,
		UpdatedAt:  inst.UpdatedAt,
	}
}

type ReauthorizeResponse struct {
	Instance InstanceResponse `json:"instance"`
	LoginURL string           `json:"login_url,omitempty"`
}

// OAuthRedirectResponse reports an OAuth redirect outcome to the caller
// that rendered the login link.
type OAuthRedirectResponse struct {
	AppID     string   `json:"app_id,omitempty"`
	Status    string   `json:"status,omitempty"`
	Account   string   `json:"account,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorArgs []string `json:"error_args,omitempty"`
}
