package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/gomega"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/oauth"
)

const adminKey = "test-admin-key"

// fakeCalendar is an OAuth calendar with busy times and event writes.
type fakeCalendar struct {
	svc app.Services
}

type fakeCalendarData struct {
	CalendarID string `json:"calendar_id" validate:"required"`
	Secret     string `json:"secret,omitempty"`
}

func fakeCalendarRegistration() app.Registration {
	return app.Registration{
		TypeName: "fake_calendar",
		Title:    "Fake calendar",
		Config:   fakeCalendarData{},
		Factory:  func(svc app.Services) any { return &fakeCalendar{svc: svc} },
	}
}

func (f *fakeCalendar) LoginURL(_ context.Context, inst *model.AppInstance) (string, error) {
	return "https://auth.example.com/?state=" + id.Format(inst.ID), nil
}

func (f *fakeCalendar) ProcessRedirect(_ context.Context, query url.Values) oauth.Result {
	if query.Get("code") == "" {
		return oauth.Result{Err: oauth.ErrMissingCode}
	}
	return oauth.Result{Account: "owner@example.com", Token: &model.Token{AccessToken: "a", RefreshToken: "r"}}
}

func (f *fakeCalendar) GetBusyTimes(_ context.Context, _ *model.AppInstance, start, _ time.Time) ([]model.BusyTime, error) {
	return []model.BusyTime{{Start: start.Add(time.Hour), End: start.Add(2 * time.Hour), Title: "Dentist"}}, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, _ *model.AppInstance, ev model.CalendarEvent) (*model.CalendarEventResult, error) {
	if ev.Title == "fail" {
		return nil, app.NewStatusError(errors.New("boom"), "fake.unavailable")
	}
	return &model.CalendarEventResult{UID: ev.UID, ExternalID: "ext-" + ev.UID}, nil
}

func (f *fakeCalendar) UpdateEvent(_ context.Context, _ *model.AppInstance, ev model.CalendarEvent) (*model.CalendarEventResult, error) {
	return &model.CalendarEventResult{UID: ev.UID, ExternalID: "ext-" + ev.UID}, nil
}

func (f *fakeCalendar) DeleteEvent(context.Context, *model.AppInstance, string) error {
	return nil
}

func (f *fakeCalendar) Configure(ctx context.Context, _ *model.AppInstance, raw json.RawMessage) (*app.ConfigureResult, error) {
	var d fakeCalendarData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, app.NewStatusError(app.ErrInvalidConfig, "fake.invalid")
	}
	if err := f.svc.Validator().StructCtx(ctx, d); err != nil {
		return nil, app.NewStatusError(app.ErrInvalidConfig, "fake.invalid")
	}
	return &app.ConfigureResult{Data: raw, Account: d.CalendarID}, nil
}

func (f *fakeCalendar) MaskData(inst *model.AppInstance) json.RawMessage {
	var d fakeCalendarData
	_ = json.Unmarshal(inst.Data, &d)
	if d.Secret != "" {
		d.Secret = "********"
	}
	raw, _ := json.Marshal(d)
	return raw
}

// fakeReceiver accepts webhooks whose body is {"ok":true}.
type fakeReceiver struct{}

func fakeReceiverRegistration() app.Registration {
	return app.Registration{
		TypeName: "fake_receiver",
		Title:    "Fake receiver",
		Factory:  func(app.Services) any { return fakeReceiver{} },
	}
}

func (fakeReceiver) ProcessWebhook(_ context.Context, _ *model.AppInstance, req app.WebhookRequest) app.WebhookResponse {
	var body struct {
		OK bool `json:"ok"`
	}
	if json.Unmarshal(req.Body, &body) != nil || !body.OK || req.Header.Get("X-Signature") != "good" {
		return app.WebhookResponse{Status: http.StatusBadRequest, Body: map[string]string{"error": "rejected"}}
	}
	return app.WebhookResponse{Status: http.StatusCreated, Body: map[string]string{"status": "accepted"}}
}

// do performs a request against router with the admin key set.
func do(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			Expect(json.NewEncoder(&buf).Encode(b)).To(Succeed())
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-API-Key", adminKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())
	return out
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}
