package store

import (
	"context"
	"errors"

	"basegraph.app/booking/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// AppInstanceStore defines the contract for app instance data access
type AppInstanceStore interface {
	Create(ctx context.Context, inst *model.AppInstance) error
	GetByID(ctx context.Context, id int64) (*model.AppInstance, error)
	// Update merges patch into the stored row, last writer wins.
	Update(ctx context.Context, id int64, patch model.AppInstancePatch) (*model.AppInstance, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]model.AppInstance, error)
	ListByType(ctx context.Context, typeNames []string) ([]model.AppInstance, error)
}

// ScheduleOverrideStore defines the contract for per-week schedule overrides
type ScheduleOverrideStore interface {
	GetMany(ctx context.Context, appID int64, weeks []model.Week) (map[model.Week]model.ScheduleOverride, error)
	// UpsertMany writes all schedules in one batch. Without replace, weeks
	// that already have an override keep it.
	UpsertMany(ctx context.Context, appID int64, schedules map[model.Week]model.WeekSchedule, replace bool) error
	Delete(ctx context.Context, appID int64, week model.Week) error
	// DeleteFrom removes the override of week and every later week.
	DeleteFrom(ctx context.Context, appID int64, week model.Week) (int64, error)
	DeleteAll(ctx context.Context, appID int64) error
}

// SettingStore is an opaque JSON key-value store
type SettingStore interface {
	Get(ctx context.Context, key string, dst any) error
	Put(ctx context.Context, key string, value any) error
}

// Provider exposes the stores, either pool-backed or bound to a transaction.
type Provider interface {
	AppInstances() AppInstanceStore
	ScheduleOverrides() ScheduleOverrideStore
	Settings() SettingStore
}
