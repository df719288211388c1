package textbelt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/common/metrics"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/queue"
	"basegraph.app/booking/internal/webhook"
)

// replyPayload is the body Textbelt posts for an inbound reply.
type replyPayload struct {
	TextID     string `json:"textId"`
	FromNumber string `json:"fromNumber"`
	Text       string `json:"text"`
	Data       string `json:"data"`
}

func badRequest(reason string) app.WebhookResponse {
	return app.WebhookResponse{Status: http.StatusBadRequest, Body: map[string]string{"error": reason}}
}

// ProcessWebhook authenticates an inbound reply and hands it to the
// configured responder, or to the notification queue without one. It never
// changes the instance status. A delivery that is not answered with 201
// leaves no replay record, so the sender may retry it.
func (t *Textbelt) ProcessWebhook(ctx context.Context, inst *model.AppInstance, req app.WebhookRequest) app.WebhookResponse {
	key, err := t.apiKey(inst)
	if err != nil {
		slog.ErrorContext(ctx, "textbelt webhook without api key", "app_id", inst.ID, "error", err)
		metrics.RecordWebhookVerification(TypeName, "misconfigured")
		return badRequest("not configured")
	}

	auth := webhook.Authenticator{
		Guard:     t.svc.Replay,
		Tolerance: t.svc.Config.Webhook.TimestampTolerance,
	}
	timestamp := req.Header.Get(HeaderTimestamp)
	signature := req.Header.Get(HeaderSignature)
	if err := auth.Verify(ctx, []byte(key), timestamp, signature, req.Body); err != nil {
		slog.WarnContext(ctx, "textbelt webhook rejected",
			"app_id", inst.ID,
			"has_timestamp", timestamp != "",
			"has_signature", signature != "",
			"reason", err.Error())
		metrics.RecordWebhookVerification(TypeName, verificationResult(err))
		return badRequest("invalid signature")
	}
	metrics.RecordWebhookVerification(TypeName, "accepted")

	accepted := false
	defer func() {
		if !accepted {
			auth.Release(context.WithoutCancel(ctx), timestamp, signature)
		}
	}()

	var payload replyPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return badRequest("malformed body")
	}

	corr := webhook.DecodeCorrelation(payload.Data)
	if corr.AppID != "" && corr.AppID != id.Format(inst.ID) {
		slog.WarnContext(ctx, "textbelt reply addressed to another app", "app_id", inst.ID, "correlated_app_id", corr.AppID)
		return badRequest("correlation mismatch")
	}

	reply := model.TextReply{
		AppID:         inst.ID,
		TextID:        payload.TextID,
		From:          payload.FromNumber,
		Body:          strings.TrimSpace(payload.Text),
		AppointmentID: corr.AppointmentID,
		CustomerID:    corr.CustomerID,
		Data:          corr.Data,
		ReceivedAt:    time.Now().UTC(),
	}

	result, err := t.respond(ctx, inst, reply)
	if err != nil {
		slog.ErrorContext(ctx, "text reply not handled", "app_id", inst.ID, "error", err)
		return app.WebhookResponse{Status: http.StatusInternalServerError, Body: map[string]string{"error": "reply not handled"}}
	}
	accepted = true
	return app.WebhookResponse{Status: http.StatusCreated, Body: result}
}

func (t *Textbelt) respond(ctx context.Context, inst *model.AppInstance, reply model.TextReply) (*model.RespondResult, error) {
	d, _ := decodeData(inst.Data)
	if d.ResponderAppID != "" && t.svc.Instances != nil {
		responder, err := t.responder(ctx, d.ResponderAppID)
		if err != nil {
			return nil, err
		}
		return responder.obj.Respond(ctx, responder.inst, reply)
	}

	if t.svc.Notifier == nil {
		return nil, errors.New("no responder and no notifier configured")
	}
	n := queue.Notification{
		Kind:     queue.NotificationTextReply,
		AppID:    inst.ID,
		TypeName: TypeName,
		Payload:  reply,
	}
	if err := t.svc.Notifier.Enqueue(ctx, n); err != nil {
		return nil, err
	}
	return &model.RespondResult{HandledBy: "queue", ParticipantType: model.ParticipantUnknown}, nil
}

type resolvedResponder struct {
	inst *model.AppInstance
	obj  app.TextMessageResponder
}

func (t *Textbelt) responder(ctx context.Context, raw string) (*resolvedResponder, error) {
	appID, err := id.Parse(raw)
	if err != nil {
		return nil, err
	}
	inst, err := t.svc.Instances.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	obj, err := t.svc.Instances.Object(inst)
	if err != nil {
		return nil, err
	}
	r, ok := obj.(app.TextMessageResponder)
	if !ok {
		return nil, app.ErrCapabilityNotSupported
	}
	return &resolvedResponder{inst: inst, obj: r}, nil
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, webhook.ErrMissingHeaders):
		return "missing_headers"
	case errors.Is(err, webhook.ErrStaleTimestamp):
		return "stale"
	case errors.Is(err, webhook.ErrReplayed):
		return "replayed"
	default:
		return "bad_signature"
	}
}
