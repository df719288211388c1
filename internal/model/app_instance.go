package model

import (
	"encoding/json"
	"time"
)

// AppStatus is the connection state of an installed integration.
type AppStatus string

const (
	AppStatusPending       AppStatus = "pending"
	AppStatusConnected     AppStatus = "connected"
	AppStatusFailed        AppStatus = "failed"
	AppStatusNotConfigured AppStatus = "not_configured"
)

func (s AppStatus) Valid() bool {
	switch s {
	case AppStatusPending, AppStatusConnected, AppStatusFailed, AppStatusNotConfigured:
		return true
	}
	return false
}

// StatusText explains a status to operators as a localization key with
// positional arguments.
type StatusText struct {
	Key  string   `json:"key"`
	Args []string `json:"args,omitempty"`
}

func (t StatusText) IsZero() bool {
	return t.Key == "" && len(t.Args) == 0
}

// Token is the OAuth credential set stored on an app instance.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

type AppInstance struct {
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	StatusText *StatusText     `json:"status_text,omitempty"`
	Token      *Token          `json:"-"` // never expose tokens in API
	TypeName   string          `json:"type_name"`
	Status     AppStatus       `json:"status"`
	Account    string          `json:"account"`
	Data       json.RawMessage `json:"data"`
	ID         int64           `json:"id"`
}

// AppInstancePatch is a partial update. Nil fields are left untouched.
// A zero StatusText clears the stored one.
type AppInstancePatch struct {
	Status     *AppStatus
	StatusText *StatusText
	Account    *string
	Data       json.RawMessage
	Token      *Token
	ClearToken bool
}

func (p AppInstancePatch) IsEmpty() bool {
	return p.Status == nil && p.StatusText == nil && p.Account == nil &&
		p.Data == nil && p.Token == nil && !p.ClearToken
}

// Apply merges the patch into inst in place.
func (p AppInstancePatch) Apply(inst *AppInstance) {
	if p.Status != nil {
		inst.Status = *p.Status
	}
	if p.StatusText != nil {
		if p.StatusText.IsZero() {
			inst.StatusText = nil
		} else {
			st := *p.StatusText
			inst.StatusText = &st
		}
	}
	if p.Account != nil {
		inst.Account = *p.Account
	}
	if p.Data != nil {
		inst.Data = append(json.RawMessage(nil), p.Data...)
	}
	if p.ClearToken {
		inst.Token = nil
	}
	if p.Token != nil {
		tok := *p.Token
		inst.Token = &tok
	}
}

// StatusPatch builds a patch that sets status and replaces the status text.
func StatusPatch(status AppStatus, text StatusText) AppInstancePatch {
	return AppInstancePatch{Status: &status, StatusText: &text}
}
