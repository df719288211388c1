package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"basegraph.app/booking/common/logger"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/store"
)

// DefaultScheduleKey is the settings key of the global default schedule.
const DefaultScheduleKey = "default_schedule"

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrInvalidRepeat   = errors.New("invalid repeat request")
	ErrPastWeek        = errors.New("week is in the past")
	// ErrUnreadableOverride marks a stored week that no longer decodes. It
	// stays until the week is removed or overwritten.
	ErrUnreadableOverride = errors.New("stored schedule override is unreadable")
)

// ScheduleWeek is the effective schedule of one week.
type ScheduleWeek struct {
	Schedule  model.WeekSchedule `json:"schedule"`
	Week      model.Week         `json:"week"`
	IsDefault bool               `json:"is_default"`
}

// RepeatRequest repeats the schedule of From every Interval weeks, Count
// times in total, never past MaxWeek when set.
type RepeatRequest struct {
	MaxWeek  *model.Week `json:"max_week"`
	From     model.Week  `json:"from"`
	Interval int         `json:"interval" validate:"min=1"`
	Count    int         `json:"count" validate:"min=1,max=520"`
	Replace  bool        `json:"replace"`
}

type ScheduleService interface {
	// Get returns the override of week or, without one, the default schedule.
	// An unreadable override is reported, never replaced by the default.
	Get(ctx context.Context, appID int64, week model.Week) (*ScheduleWeek, error)
	SetMany(ctx context.Context, appID int64, schedules map[model.Week]model.WeekSchedule, replace bool) error
	Remove(ctx context.Context, appID int64, week model.Week) error
	// RemoveFrom resets week and every later week to the default.
	RemoveFrom(ctx context.Context, appID int64, week model.Week) (int64, error)
	// Copy writes the effective schedule of from into every target week that
	// is not in the past and returns the weeks written.
	Copy(ctx context.Context, appID int64, from model.Week, to []model.Week, replace bool) ([]model.Week, error)
	Repeat(ctx context.Context, appID int64, req RepeatRequest) ([]model.Week, error)
	Default(ctx context.Context) (model.WeekSchedule, error)
	SetDefault(ctx context.Context, schedule model.WeekSchedule) error
}

type scheduleService struct {
	overrides store.ScheduleOverrideStore
	settings  store.SettingStore
	validate  *validator.Validate
	now       func() time.Time
}

func NewScheduleService(overrides store.ScheduleOverrideStore, settings store.SettingStore, validate *validator.Validate, now func() time.Time) ScheduleService {
	if now == nil {
		now = time.Now
	}
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &scheduleService{
		overrides: overrides,
		settings:  settings,
		validate:  validate,
		now:       now,
	}
}

func (s *scheduleService) Get(ctx context.Context, appID int64, week model.Week) (*ScheduleWeek, error) {
	rows, err := s.overrides.GetMany(ctx, appID, []model.Week{week})
	if err != nil {
		return nil, fmt.Errorf("loading schedule override: %w", err)
	}

	if o, ok := rows[week]; ok {
		if o.Invalid {
			return nil, fmt.Errorf("%w: week %d", ErrUnreadableOverride, week)
		}
		return &ScheduleWeek{Week: week, Schedule: o.Schedule}, nil
	}

	def, err := s.Default(ctx)
	if err != nil {
		return nil, err
	}
	return &ScheduleWeek{Week: week, Schedule: def, IsDefault: true}, nil
}

func (s *scheduleService) SetMany(ctx context.Context, appID int64, schedules map[model.Week]model.WeekSchedule, replace bool) error {
	if len(schedules) == 0 {
		return nil
	}
	for week, sched := range schedules {
		if err := s.check(ctx, sched); err != nil {
			return fmt.Errorf("week %d: %w", week, err)
		}
	}

	if err := s.overrides.UpsertMany(ctx, appID, schedules, replace); err != nil {
		return fmt.Errorf("saving schedule overrides: %w", err)
	}

	slog.InfoContext(ctx, "schedule overrides saved",
		"app_id", appID, "weeks", len(schedules), "replace", replace)
	return nil
}

func (s *scheduleService) Remove(ctx context.Context, appID int64, week model.Week) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{AppID: &appID, Week: logger.Ptr(int(week))})
	if err := s.overrides.Delete(ctx, appID, week); err != nil {
		return fmt.Errorf("removing schedule override: %w", err)
	}
	slog.InfoContext(ctx, "schedule override removed")
	return nil
}

func (s *scheduleService) RemoveFrom(ctx context.Context, appID int64, week model.Week) (int64, error) {
	if week < s.currentWeek() {
		return 0, fmt.Errorf("%w: %d", ErrPastWeek, week)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{AppID: &appID, Week: logger.Ptr(int(week))})
	n, err := s.overrides.DeleteFrom(ctx, appID, week)
	if err != nil {
		return 0, fmt.Errorf("removing schedule overrides: %w", err)
	}
	slog.InfoContext(ctx, "schedule overrides reset", "removed", n)
	return n, nil
}

func (s *scheduleService) Copy(ctx context.Context, appID int64, from model.Week, to []model.Week, replace bool) ([]model.Week, error) {
	src, err := s.Get(ctx, appID, from)
	if err != nil {
		return nil, err
	}
	return s.writeTargets(ctx, appID, src.Schedule, to, replace)
}

func (s *scheduleService) Repeat(ctx context.Context, appID int64, req RepeatRequest) ([]model.Week, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRepeat, err)
	}

	src, err := s.Get(ctx, appID, req.From)
	if err != nil {
		return nil, err
	}

	targets := make([]model.Week, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		w := req.From + model.Week(i*req.Interval)
		if req.MaxWeek != nil && w > *req.MaxWeek {
			break
		}
		targets = append(targets, w)
	}
	return s.writeTargets(ctx, appID, src.Schedule, targets, req.Replace)
}

// writeTargets stores schedule for each target that is not in the past.
func (s *scheduleService) writeTargets(ctx context.Context, appID int64, schedule model.WeekSchedule, targets []model.Week, replace bool) ([]model.Week, error) {
	current := s.currentWeek()
	batch := make(map[model.Week]model.WeekSchedule, len(targets))
	for _, w := range targets {
		if w < current {
			continue
		}
		batch[w] = schedule
	}
	if len(batch) == 0 {
		return []model.Week{}, nil
	}

	if err := s.SetMany(ctx, appID, batch, replace); err != nil {
		return nil, err
	}

	written := make([]model.Week, 0, len(batch))
	for w := range batch {
		written = append(written, w)
	}
	sort.Slice(written, func(i, j int) bool { return written[i] < written[j] })
	return written, nil
}

// Default returns the global default schedule. A missing or unreadable
// setting yields an empty schedule so that days resolve to no data.
func (s *scheduleService) Default(ctx context.Context) (model.WeekSchedule, error) {
	var def model.WeekSchedule
	err := s.settings.Get(ctx, DefaultScheduleKey, &def)
	switch {
	case err == nil:
		return def, nil
	case errors.Is(err, store.ErrNotFound):
		slog.WarnContext(ctx, "default schedule is not configured")
		return model.WeekSchedule{}, nil
	default:
		slog.ErrorContext(ctx, "failed to load default schedule", "error", err)
		return model.WeekSchedule{}, nil
	}
}

func (s *scheduleService) SetDefault(ctx context.Context, schedule model.WeekSchedule) error {
	if err := s.check(ctx, schedule); err != nil {
		return err
	}
	if schedule == nil {
		schedule = model.WeekSchedule{}
	}
	if err := s.settings.Put(ctx, DefaultScheduleKey, schedule); err != nil {
		return fmt.Errorf("saving default schedule: %w", err)
	}
	slog.InfoContext(ctx, "default schedule updated", "days", len(schedule))
	return nil
}

func (s *scheduleService) check(ctx context.Context, schedule model.WeekSchedule) error {
	for i := range schedule {
		if err := s.validate.StructCtx(ctx, schedule[i]); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
	}
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	return nil
}

func (s *scheduleService) currentWeek() model.Week {
	return model.WeekOf(s.now())
}
