package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/oauth"
	"basegraph.app/booking/internal/queue"
	"basegraph.app/booking/internal/store"
)

type calendarConfig struct {
	CalendarID string `json:"calendar_id" validate:"required"`
}

// fakeCalendar is an OAuth calendar with teardown.
type fakeCalendar struct {
	svc      app.Services
	busy     func(ctx context.Context) ([]model.BusyTime, error)
	redirect func(query url.Values) oauth.Result
	teardown func(ctx context.Context, inst *model.AppInstance) error
}

func (f *fakeCalendar) GetBusyTimes(ctx context.Context, _ *model.AppInstance, _, _ time.Time) ([]model.BusyTime, error) {
	if f.busy != nil {
		return f.busy(ctx)
	}
	return nil, nil
}

func (f *fakeCalendar) LoginURL(_ context.Context, inst *model.AppInstance) (string, error) {
	return "https://auth.example.com/?state=" + id.Format(inst.ID), nil
}

func (f *fakeCalendar) ProcessRedirect(_ context.Context, query url.Values) oauth.Result {
	if f.redirect != nil {
		return f.redirect(query)
	}
	if query.Get("code") == "" {
		return oauth.Result{Err: oauth.ErrMissingCode}
	}
	return oauth.Result{Account: "owner@example.com", Token: &model.Token{AccessToken: "a", RefreshToken: "r"}}
}

func (f *fakeCalendar) TearDown(ctx context.Context, inst *model.AppInstance) error {
	if f.teardown != nil {
		return f.teardown(ctx, inst)
	}
	return nil
}

// fakeMailer is configurable and masks its password.
type fakeMailer struct {
	handshake func(ctx context.Context, cfg mailerConfig) error
	sent      *[]model.MailMessage
}

type mailerConfig struct {
	Host     string `json:"host"`
	Password string `json:"password"`
}

func (f *fakeMailer) Configure(ctx context.Context, _ *model.AppInstance, data json.RawMessage) (*app.ConfigureResult, error) {
	var cfg mailerConfig
	if err := json.Unmarshal(data, &cfg); err != nil || cfg.Host == "" {
		return nil, app.NewStatusError(app.ErrInvalidConfig, "mailer.invalid")
	}
	if f.handshake != nil {
		if err := f.handshake(ctx, cfg); err != nil {
			return nil, err
		}
	}
	return &app.ConfigureResult{Data: data, Account: cfg.Host}, nil
}

func (f *fakeMailer) MaskData(inst *model.AppInstance) json.RawMessage {
	var cfg mailerConfig
	_ = json.Unmarshal(inst.Data, &cfg)
	if cfg.Password != "" {
		cfg.Password = "********"
	}
	raw, _ := json.Marshal(cfg)
	return raw
}

func (f *fakeMailer) SendMail(_ context.Context, _ *model.AppInstance, msg model.MailMessage) (*model.MailResult, error) {
	if f.sent != nil {
		*f.sent = append(*f.sent, msg)
	}
	if msg.Subject == "fail" {
		return nil, errors.New("smtp 554")
	}
	return &model.MailResult{MessageID: "<1@example.com>"}, nil
}

type recordingProducer struct {
	mu   sync.Mutex
	sent []queue.Notification
}

func (p *recordingProducer) Enqueue(_ context.Context, n queue.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func (p *recordingProducer) kinds() []queue.NotificationKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []queue.NotificationKind
	for _, n := range p.sent {
		out = append(out, n.Kind)
	}
	return out
}

var _ store.Provider = (*store.MemoryStores)(nil)

// recordingStores snapshots every app instance written through Update.
type recordingStores struct {
	*store.MemoryStores
	writes *[]model.AppInstance
}

func (s recordingStores) AppInstances() store.AppInstanceStore {
	return recordingInstances{AppInstanceStore: s.MemoryStores.AppInstances(), writes: s.writes}
}

type recordingInstances struct {
	store.AppInstanceStore
	writes *[]model.AppInstance
}

func (r recordingInstances) Update(ctx context.Context, id int64, patch model.AppInstancePatch) (*model.AppInstance, error) {
	inst, err := r.AppInstanceStore.Update(ctx, id, patch)
	if err == nil {
		*r.writes = append(*r.writes, *inst)
	}
	return inst, err
}
