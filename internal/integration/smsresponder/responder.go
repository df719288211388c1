// Package smsresponder turns customer SMS replies into booking actions.
package smsresponder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/queue"
)

const (
	TypeName = "sms_responder"

	KeyInvalidConfig = "sms_responder.invalid_config"
)

// Action is what a reply asks the booking workflow to do.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionCancel  Action = "cancel"
	ActionUnknown Action = "unknown"
)

var (
	defaultConfirm = []string{"YES", "Y", "CONFIRM", "OK"}
	defaultCancel  = []string{"NO", "N", "CANCEL", "STOP"}
)

// Data optionally replaces the default keyword lists.
type Data struct {
	ConfirmKeywords []string `json:"confirm_keywords,omitempty" validate:"omitempty,max=20,dive,required,max=32"`
	CancelKeywords  []string `json:"cancel_keywords,omitempty" validate:"omitempty,max=20,dive,required,max=32"`
}

func Registration() app.Registration {
	return app.Registration{
		TypeName: TypeName,
		Title:    "SMS auto responder",
		Config:   Data{},
		Factory: func(svc app.Services) any {
			return &Responder{svc: svc}
		},
	}
}

type Responder struct {
	svc app.Services
}

func (r *Responder) Configure(ctx context.Context, _ *model.AppInstance, raw json.RawMessage) (*app.ConfigureResult, error) {
	var d Data
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
		}
	}
	if err := r.svc.Validator().StructCtx(ctx, d); err != nil {
		return nil, app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
	}
	if overlap := intersect(d.confirm(), d.cancel()); overlap != "" {
		return nil, app.NewStatusError(fmt.Errorf("%w: keyword %q both confirms and cancels", app.ErrInvalidConfig, overlap), KeyInvalidConfig, overlap)
	}

	out, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding responder data: %w", err)
	}
	return &app.ConfigureResult{Data: out, Account: "SMS auto responder"}, nil
}

// Respond classifies the reply by its first word and queues it for the
// booking workflow.
func (r *Responder) Respond(ctx context.Context, inst *model.AppInstance, reply model.TextReply) (*model.RespondResult, error) {
	if r.svc.Notifier == nil {
		return nil, errors.New("notification queue is not configured")
	}

	var d Data
	if len(inst.Data) > 0 {
		if err := json.Unmarshal(inst.Data, &d); err != nil {
			return nil, fmt.Errorf("decoding responder data: %w", err)
		}
	}
	action := d.Classify(reply.Body)

	n := queue.Notification{
		Kind:     queue.NotificationTextReply,
		AppID:    reply.AppID,
		TypeName: TypeName,
		Payload: map[string]any{
			"action":         action,
			"responder_id":   inst.ID,
			"text_id":        reply.TextID,
			"from":           reply.From,
			"body":           reply.Body,
			"appointment_id": reply.AppointmentID,
			"customer_id":    reply.CustomerID,
			"data":           reply.Data,
			"received_at":    reply.ReceivedAt,
		},
	}
	if err := r.svc.Notifier.Enqueue(ctx, n); err != nil {
		return nil, fmt.Errorf("queueing text reply: %w", err)
	}

	slog.InfoContext(ctx, "text reply handled",
		"app_id", reply.AppID, "responder_id", inst.ID, "action", action)

	participant := model.ParticipantUnknown
	if reply.CustomerID != "" {
		participant = model.ParticipantCustomer
	}
	return &model.RespondResult{HandledBy: TypeName, ParticipantType: participant}, nil
}

// Classify maps the first word of body to an action, ignoring case and
// punctuation.
func (d Data) Classify(body string) Action {
	word := firstWord(body)
	if word == "" {
		return ActionUnknown
	}
	for _, k := range d.confirm() {
		if strings.EqualFold(word, k) {
			return ActionConfirm
		}
	}
	for _, k := range d.cancel() {
		if strings.EqualFold(word, k) {
			return ActionCancel
		}
	}
	return ActionUnknown
}

func (d Data) confirm() []string {
	if len(d.ConfirmKeywords) > 0 {
		return d.ConfirmKeywords
	}
	return defaultConfirm
}

func (d Data) cancel() []string {
	if len(d.CancelKeywords) > 0 {
		return d.CancelKeywords
	}
	return defaultCancel
}

func firstWord(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func intersect(a, b []string) string {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return x
			}
		}
	}
	return ""
}
