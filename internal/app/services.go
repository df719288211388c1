package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"basegraph.app/booking/common/secrets"
	"basegraph.app/booking/core/config"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/queue"
	"basegraph.app/booking/internal/store"
	"basegraph.app/booking/internal/webhook"
)

// InstanceResolver looks up other app instances, e.g. a designated responder.
type InstanceResolver interface {
	Get(ctx context.Context, id int64) (*model.AppInstance, error)
	Object(inst *model.AppInstance) (any, error)
}

// ScheduleResolver resolves per-day working hours of an app instance.
type ScheduleResolver interface {
	GetSchedule(ctx context.Context, appID int64, start, end time.Time) (map[string]model.DaySchedule, error)
}

// Services is the shared context handed to integration factories. Factories
// must not perform I/O; the zero value is used to probe capabilities.
type Services struct {
	Settings   store.SettingStore
	Overrides  store.ScheduleOverrideStore
	Notifier   queue.Producer
	Secrets    secrets.Cipher
	Replay     webhook.ReplayGuard
	Instances  InstanceResolver
	Schedules  ScheduleResolver
	Validate   *validator.Validate
	HTTPClient *http.Client
	// Update applies a partial update to the instance the object was
	// resolved for.
	Update func(ctx context.Context, patch model.AppInstancePatch) (*model.AppInstance, error)
	Config config.Config
}

var defaultValidate = validator.New(validator.WithRequiredStructEnabled())

// Validator returns the shared validator or a default one.
func (s Services) Validator() *validator.Validate {
	if s.Validate != nil {
		return s.Validate
	}
	return defaultValidate
}

func (s Services) Client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}
	return http.DefaultClient
}

// Cipher returns the secrets cipher. Without one, values are stored as is.
func (s Services) Cipher() secrets.Cipher {
	if s.Secrets != nil {
		return s.Secrets
	}
	c, _ := secrets.New("")
	return c
}
