package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/oauth"
)

// Capability names a contract an integration object may satisfy.
type Capability string

const (
	CapabilityCalendarBusyTimes Capability = "calendar_busy_times"
	CapabilityCalendarWriter    Capability = "calendar_writer"
	CapabilityMailSender        Capability = "mail_sender"
	CapabilityTextSender        Capability = "text_sender"
	CapabilityTextResponder     Capability = "text_responder"
	CapabilityScheduleProvider  Capability = "schedule_provider"
	CapabilityWebhookReceiver   Capability = "webhook_receiver"
	CapabilityOAuth             Capability = "oauth"
	CapabilityTearDown          Capability = "teardown"
	CapabilityConfigurable      Capability = "configurable"
	CapabilityDataMasker        Capability = "data_masker"
)

// AllCapabilities in a stable order.
var AllCapabilities = []Capability{
	CapabilityCalendarBusyTimes,
	CapabilityCalendarWriter,
	CapabilityMailSender,
	CapabilityTextSender,
	CapabilityTextResponder,
	CapabilityScheduleProvider,
	CapabilityWebhookReceiver,
	CapabilityOAuth,
	CapabilityTearDown,
	CapabilityConfigurable,
	CapabilityDataMasker,
}

type CalendarBusyTimes interface {
	GetBusyTimes(ctx context.Context, inst *model.AppInstance, start, end time.Time) ([]model.BusyTime, error)
}

type CalendarWriter interface {
	CreateEvent(ctx context.Context, inst *model.AppInstance, ev model.CalendarEvent) (*model.CalendarEventResult, error)
	UpdateEvent(ctx context.Context, inst *model.AppInstance, ev model.CalendarEvent) (*model.CalendarEventResult, error)
	DeleteEvent(ctx context.Context, inst *model.AppInstance, uid string) error
}

type MailSender interface {
	SendMail(ctx context.Context, inst *model.AppInstance, msg model.MailMessage) (*model.MailResult, error)
}

type TextMessageSender interface {
	SendTextMessage(ctx context.Context, inst *model.AppInstance, msg model.TextMessage) (*model.TextMessageResult, error)
}

type TextMessageResponder interface {
	Respond(ctx context.Context, inst *model.AppInstance, reply model.TextReply) (*model.RespondResult, error)
}

// ScheduleProvider returns working hours keyed by ISO date.
type ScheduleProvider interface {
	GetSchedule(ctx context.Context, inst *model.AppInstance, start, end time.Time) (map[string]model.DaySchedule, error)
}

// WebhookRequest carries an inbound callback unmodified.
type WebhookRequest struct {
	Header http.Header
	Body   []byte
}

type WebhookResponse struct {
	Body   any
	Status int
}

type WebhookReceiver interface {
	ProcessWebhook(ctx context.Context, inst *model.AppInstance, req WebhookRequest) WebhookResponse
}

type OAuthApp interface {
	LoginURL(ctx context.Context, inst *model.AppInstance) (string, error)
	ProcessRedirect(ctx context.Context, query url.Values) oauth.Result
}

// TearDowner releases external resources before an instance is deleted.
type TearDowner interface {
	TearDown(ctx context.Context, inst *model.AppInstance) error
}

// ConfigureResult is what a successful handshake persists.
type ConfigureResult struct {
	Data    json.RawMessage
	Account string
}

// Configurable validates submitted settings and performs a provider handshake.
type Configurable interface {
	Configure(ctx context.Context, inst *model.AppInstance, data json.RawMessage) (*ConfigureResult, error)
}

// DataMasker hides secrets in instance data before it leaves the service.
type DataMasker interface {
	MaskData(inst *model.AppInstance) json.RawMessage
}

// Supports reports whether obj satisfies every named capability.
func Supports(obj any, caps ...Capability) bool {
	for _, c := range caps {
		if !supports(obj, c) {
			return false
		}
	}
	return true
}

func supports(obj any, c Capability) bool {
	var ok bool
	switch c {
	case CapabilityCalendarBusyTimes:
		_, ok = obj.(CalendarBusyTimes)
	case CapabilityCalendarWriter:
		_, ok = obj.(CalendarWriter)
	case CapabilityMailSender:
		_, ok = obj.(MailSender)
	case CapabilityTextSender:
		_, ok = obj.(TextMessageSender)
	case CapabilityTextResponder:
		_, ok = obj.(TextMessageResponder)
	case CapabilityScheduleProvider:
		_, ok = obj.(ScheduleProvider)
	case CapabilityWebhookReceiver:
		_, ok = obj.(WebhookReceiver)
	case CapabilityOAuth:
		_, ok = obj.(OAuthApp)
	case CapabilityTearDown:
		_, ok = obj.(TearDowner)
	case CapabilityConfigurable:
		_, ok = obj.(Configurable)
	case CapabilityDataMasker:
		_, ok = obj.(DataMasker)
	}
	return ok
}

// ParseCapability validates a capability name from user input.
func ParseCapability(s string) (Capability, bool) {
	for _, c := range AllCapabilities {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
