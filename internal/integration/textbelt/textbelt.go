// Package textbelt sends SMS through Textbelt and receives signed replies.
package textbelt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/queue"
	"basegraph.app/booking/internal/webhook"
)

const (
	TypeName       = "textbelt"
	DefaultAPIBase = "https://textbelt.com"

	HeaderTimestamp = "X-textbelt-timestamp"
	HeaderSignature = "X-textbelt-signature"

	mask         = "********"
	maxErrorBody = 4 << 10
)

// Status text keys.
const (
	KeyInvalidConfig = "textbelt.invalid_config"
	KeyInvalidKey    = "textbelt.invalid_key"
	KeyOutOfQuota    = "textbelt.out_of_quota"
	KeyAPIError      = "textbelt.api_error"
	KeyNoResponder   = "textbelt.invalid_responder"
)

// Data is the instance data of a Textbelt app. APIKey is stored encrypted.
type Data struct {
	APIKey string `json:"api_key" validate:"required" jsonschema:"description=Textbelt API key"`
	Sender string `json:"sender,omitempty" validate:"omitempty,max=11" jsonschema:"description=Sender name shown where supported"`
	// ResponderAppID names the app instance that handles inbound replies.
	ResponderAppID string `json:"responder_app_id,omitempty" validate:"omitempty,numeric"`
}

type Options struct {
	APIBase string
}

func Registration(opts Options) app.Registration {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}
	return app.Registration{
		TypeName: TypeName,
		Title:    "Textbelt SMS",
		Config:   Data{},
		Factory: func(svc app.Services) any {
			return &Textbelt{svc: svc, opts: opts}
		},
	}
}

type Textbelt struct {
	svc  app.Services
	opts Options
}

func decodeData(raw json.RawMessage) (Data, error) {
	var d Data
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decoding textbelt data: %w", err)
	}
	return d, nil
}

// apiKey returns the decrypted key of inst.
func (t *Textbelt) apiKey(inst *model.AppInstance) (string, error) {
	d, err := decodeData(inst.Data)
	if err != nil {
		return "", err
	}
	if d.APIKey == "" {
		return "", fmt.Errorf("%w: textbelt api key", app.ErrMissingSecret)
	}
	key, err := t.svc.Cipher().Decrypt(d.APIKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", app.ErrMissingSecret, err)
	}
	return key, nil
}

func (t *Textbelt) MaskData(inst *model.AppInstance) json.RawMessage {
	d, err := decodeData(inst.Data)
	if err != nil {
		return json.RawMessage("{}")
	}
	if d.APIKey != "" {
		d.APIKey = mask
	}
	raw, _ := json.Marshal(d)
	return raw
}

// Configure validates data, checks the key against the quota endpoint and
// returns the data with the key encrypted. Submitting the mask keeps the
// stored key.
func (t *Textbelt) Configure(ctx context.Context, inst *model.AppInstance, raw json.RawMessage) (*app.ConfigureResult, error) {
	d, err := decodeData(raw)
	if err != nil {
		return nil, app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
	}

	key := strings.TrimSpace(d.APIKey)
	if key == mask {
		if key, err = t.apiKey(inst); err != nil {
			return nil, app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
		}
	}
	d.APIKey = key

	if err := t.svc.Validator().StructCtx(ctx, d); err != nil {
		return nil, app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
	}

	if d.ResponderAppID != "" {
		if err := t.checkResponder(ctx, d.ResponderAppID); err != nil {
			return nil, err
		}
	}

	if err := t.checkQuota(ctx, key); err != nil {
		return nil, err
	}

	if d.APIKey, err = t.svc.Cipher().Encrypt(key); err != nil {
		return nil, fmt.Errorf("encrypting textbelt key: %w", err)
	}
	out, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding textbelt data: %w", err)
	}

	account := "textbelt"
	if len(key) > 4 {
		account = "textbelt ***" + key[len(key)-4:]
	}
	return &app.ConfigureResult{Data: out, Account: account}, nil
}

func (t *Textbelt) checkResponder(ctx context.Context, raw string) error {
	invalid := func(err error) error {
		return app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyNoResponder, raw)
	}
	if t.svc.Instances == nil {
		return invalid(errors.New("instances are not available"))
	}
	appID, err := id.Parse(raw)
	if err != nil {
		return invalid(err)
	}
	responder, err := t.svc.Instances.Get(ctx, appID)
	if err != nil {
		return invalid(err)
	}
	obj, err := t.svc.Instances.Object(responder)
	if err != nil {
		return invalid(err)
	}
	if !app.Supports(obj, app.CapabilityTextResponder) {
		return invalid(fmt.Errorf("%s cannot respond to text messages", responder.TypeName))
	}
	return nil
}

type quotaResponse struct {
	Error          string `json:"error"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Success        bool   `json:"success"`
}

func (t *Textbelt) checkQuota(ctx context.Context, key string) error {
	var resp quotaResponse
	if err := t.call(ctx, http.MethodGet, "/quota/"+key, nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return app.NewStatusError(errors.New("textbelt rejected the api key"), KeyInvalidKey)
	}
	if resp.QuotaRemaining <= 0 {
		return app.NewStatusError(errors.New("textbelt quota exhausted"), KeyOutOfQuota)
	}
	return nil
}

type sendRequest struct {
	Phone           string `json:"phone"`
	Message         string `json:"message"`
	Key             string `json:"key"`
	Sender          string `json:"sender,omitempty"`
	ReplyWebhookURL string `json:"replyWebhookUrl"`
	WebhookData     string `json:"webhookData"`
}

type sendResponse struct {
	Error          string `json:"error"`
	TextID         string `json:"textId"`
	QuotaRemaining int    `json:"quotaRemaining"`
	Success        bool   `json:"success"`
}

// ReplyWebhookURL is where Textbelt posts replies for appID.
func ReplyWebhookURL(publicBaseURL string, appID int64) string {
	return strings.TrimRight(publicBaseURL, "/") + "/webhooks/" + id.Format(appID)
}

// SendTextMessage sends msg with a reply webhook carrying the correlation
// of the message. A message Textbelt refuses is reported as unsuccessful,
// an exhausted quota as an error.
func (t *Textbelt) SendTextMessage(ctx context.Context, inst *model.AppInstance, msg model.TextMessage) (*model.TextMessageResult, error) {
	key, err := t.apiKey(inst)
	if err != nil {
		return nil, err
	}
	d, _ := decodeData(inst.Data)

	correlation := webhook.EncodeCorrelation(webhook.Correlation{
		AppID:         id.Format(inst.ID),
		AppointmentID: msg.AppointmentID,
		CustomerID:    msg.CustomerID,
		Data:          msg.Data,
	})
	req := sendRequest{
		Phone:           msg.To,
		Message:         msg.Body,
		Key:             key,
		Sender:          d.Sender,
		ReplyWebhookURL: ReplyWebhookURL(t.svc.Config.Webhook.PublicBaseURL, inst.ID),
		WebhookData:     correlation,
	}

	var resp sendResponse
	if err := t.call(ctx, http.MethodPost, "/text", req, &resp); err != nil {
		return nil, err
	}

	if !resp.Success {
		if strings.Contains(strings.ToLower(resp.Error), "quota") {
			return nil, app.NewStatusError(errors.New(resp.Error), KeyOutOfQuota)
		}
		slog.WarnContext(ctx, "textbelt refused message", "app_id", inst.ID, "reason", resp.Error)
		return &model.TextMessageResult{Success: false, Data: map[string]any{"error": resp.Error}}, nil
	}

	result := &model.TextMessageResult{
		Success: true,
		TextID:  resp.TextID,
		Data:    map[string]any{"quota_remaining": resp.QuotaRemaining},
	}

	if t.svc.Notifier != nil {
		n := queue.Notification{
			Kind:     queue.NotificationTextSent,
			AppID:    inst.ID,
			TypeName: TypeName,
			Payload: map[string]string{
				"text_id":        resp.TextID,
				"appointment_id": msg.AppointmentID,
				"customer_id":    msg.CustomerID,
			},
		}
		if err := t.svc.Notifier.Enqueue(ctx, n); err != nil {
			slog.WarnContext(ctx, "failed to enqueue text sent notification", "app_id", inst.ID, "error", err)
		}
	}
	return result, nil
}

// call sends a JSON request to the Textbelt API. Textbelt answers refusals
// with 200 and success=false, so only transport and 5xx errors fail here.
func (t *Textbelt) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding textbelt request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(t.opts.APIBase, "/")+path, body)
	if err != nil {
		return fmt.Errorf("building textbelt request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.svc.Client().Do(req)
	if err != nil {
		return fmt.Errorf("calling textbelt %s: %w", method, withoutURL(err))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return app.NewStatusError(fmt.Errorf("textbelt returned %d: %s", resp.StatusCode, msg), KeyAPIError)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return app.NewStatusError(fmt.Errorf("decoding textbelt response: %w", err), KeyAPIError)
	}
	return nil
}

// withoutURL drops the request URL from transport errors. Quota lookups
// carry the api key in the path.
func withoutURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
