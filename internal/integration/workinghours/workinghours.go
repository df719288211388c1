// Package workinghours exposes the weekly schedule overrides of an instance
// as a schedule provider.
package workinghours

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
)

const (
	TypeName = "working_hours"

	KeyInvalidConfig = "working_hours.invalid_config"
)

var errNoResolver = errors.New("schedule resolver is not configured")

type Data struct {
	Title string `json:"title,omitempty" validate:"omitempty,max=120"`
	// Timezone, when set, decides which calendar day a query bound falls on.
	Timezone string `json:"timezone,omitempty" validate:"omitempty,timezone"`
}

func Registration() app.Registration {
	return app.Registration{
		TypeName: TypeName,
		Title:    "Working hours",
		Config:   Data{},
		Factory: func(svc app.Services) any {
			return &WorkingHours{svc: svc}
		},
	}
}

type WorkingHours struct {
	svc app.Services
}

func (w *WorkingHours) Configure(ctx context.Context, _ *model.AppInstance, raw json.RawMessage) (*app.ConfigureResult, error) {
	var d Data
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
		}
	}
	if err := w.svc.Validator().StructCtx(ctx, d); err != nil {
		return nil, app.NewStatusError(fmt.Errorf("%w: %v", app.ErrInvalidConfig, err), KeyInvalidConfig)
	}

	out, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding working hours data: %w", err)
	}
	account := d.Title
	if account == "" {
		account = "Working hours"
	}
	return &app.ConfigureResult{Data: out, Account: account}, nil
}

func (w *WorkingHours) GetSchedule(ctx context.Context, inst *model.AppInstance, start, end time.Time) (map[string]model.DaySchedule, error) {
	if w.svc.Schedules == nil {
		return nil, errNoResolver
	}

	var d Data
	if len(inst.Data) > 0 {
		if err := json.Unmarshal(inst.Data, &d); err != nil {
			return nil, fmt.Errorf("decoding working hours data: %w", err)
		}
	}
	if d.Timezone != "" {
		loc, err := time.LoadLocation(d.Timezone)
		if err != nil {
			return nil, app.NewStatusError(err, KeyInvalidConfig, d.Timezone)
		}
		start, end = start.In(loc), end.In(loc)
	}

	return w.svc.Schedules.GetSchedule(ctx, inst.ID, start, end)
}

// TearDown drops every override stored for the instance.
func (w *WorkingHours) TearDown(ctx context.Context, inst *model.AppInstance) error {
	if w.svc.Overrides == nil {
		return nil
	}
	if err := w.svc.Overrides.DeleteAll(ctx, inst.ID); err != nil {
		return fmt.Errorf("removing working hours: %w", err)
	}
	slog.InfoContext(ctx, "working hours removed", "app_id", inst.ID)
	return nil
}
