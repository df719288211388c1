package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/store"
)

// MaxScheduleDays bounds the date range of a single schedule query.
const MaxScheduleDays = 366

var ErrInvalidRange = fmt.Errorf("%w: date range", app.ErrInvalidRequest)

// ProviderBusyTimes is the outcome of one calendar instance during
// aggregation. Exactly one of BusyTimes and Err is meaningful.
type ProviderBusyTimes struct {
	Err       error            `json:"-"`
	TypeName  string           `json:"type_name"`
	Error     string           `json:"error,omitempty"`
	BusyTimes []model.BusyTime `json:"busy_times"`
	AppID     int64            `json:"app_id"`
}

type AvailabilityService interface {
	// GetSchedule resolves working hours per ISO date between the calendar
	// dates of start and end, inclusive. Days without shifts are absent.
	GetSchedule(ctx context.Context, appID int64, start, end time.Time) (map[string]model.DaySchedule, error)
	GetBusyTimes(ctx context.Context, appID int64, start, end time.Time) ([]model.BusyTime, error)
	// AggregateBusyTimes queries every calendar instance concurrently and
	// reports each provider separately.
	AggregateBusyTimes(ctx context.Context, start, end time.Time) ([]ProviderBusyTimes, error)
}

type availabilityService struct {
	overrides   store.ScheduleOverrideStore
	schedules   ScheduleService
	apps        *app.Manager
	maxParallel int
}

func NewAvailabilityService(overrides store.ScheduleOverrideStore, schedules ScheduleService, apps *app.Manager, maxParallel int) AvailabilityService {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &availabilityService{
		overrides:   overrides,
		schedules:   schedules,
		apps:        apps,
		maxParallel: maxParallel,
	}
}

func (s *availabilityService) GetSchedule(ctx context.Context, appID int64, start, end time.Time) (map[string]model.DaySchedule, error) {
	days, err := expandDays(start, end)
	if err != nil {
		return nil, err
	}

	var weeks []model.Week
	seen := make(map[model.Week]bool)
	for _, d := range days {
		w := model.WeekOf(d)
		if !seen[w] {
			seen[w] = true
			weeks = append(weeks, w)
		}
	}

	overrides, err := s.overrides.GetMany(ctx, appID, weeks)
	if err != nil {
		return nil, fmt.Errorf("loading schedule overrides: %w", err)
	}

	var def model.WeekSchedule
	needDefault := false
	for _, w := range weeks {
		if _, ok := overrides[w]; !ok {
			needDefault = true
			break
		}
	}
	if needDefault {
		if def, err = s.schedules.Default(ctx); err != nil {
			return nil, err
		}
	}

	result := make(map[string]model.DaySchedule, len(days))
	for _, d := range days {
		w := model.WeekOf(d)
		sched, isDefault := def, true
		if o, ok := overrides[w]; ok {
			if o.Invalid {
				continue
			}
			sched, isDefault = o.Schedule, false
		}

		weekday := model.ISOWeekday(d)
		shifts, ok := sched.ShiftsFor(weekday)
		if !ok || len(shifts) == 0 {
			continue
		}

		date := model.ISODate(d)
		result[date] = model.DaySchedule{
			Date:      date,
			Week:      w,
			Weekday:   weekday,
			Shifts:    append([]model.Shift(nil), shifts...),
			IsDefault: isDefault,
		}
	}
	return result, nil
}

func (s *availabilityService) GetBusyTimes(ctx context.Context, appID int64, start, end time.Time) ([]model.BusyTime, error) {
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}
	busy, err := s.apps.GetBusyTimes(ctx, appID, start, end)
	if err != nil {
		return nil, err
	}
	return normalizeBusyTimes(appID, busy), nil
}

func (s *availabilityService) AggregateBusyTimes(ctx context.Context, start, end time.Time) ([]ProviderBusyTimes, error) {
	if !start.Before(end) {
		return nil, ErrInvalidRange
	}

	instances, err := s.apps.ListByCapability(ctx, app.CapabilityCalendarBusyTimes)
	if err != nil {
		return nil, fmt.Errorf("listing calendar instances: %w", err)
	}

	var candidates []model.AppInstance
	for _, inst := range instances {
		if inst.Status == model.AppStatusConnected || inst.Status == model.AppStatusFailed {
			candidates = append(candidates, inst)
		}
	}

	results := make([]ProviderBusyTimes, len(candidates))
	sem := make(chan struct{}, s.maxParallel)
	var wg sync.WaitGroup

	for i := range candidates {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst := candidates[i]
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = abandoned(ctx, &inst)
				return
			}
			if ctx.Err() != nil {
				results[i] = abandoned(ctx, &inst)
				return
			}
			results[i] = s.fetchOne(ctx, &inst, start, end)
		}(i)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	slog.InfoContext(ctx, "busy times aggregated", "providers", len(results), "failed", failed)
	return results, nil
}

// abandoned is the result of an instance never queried because the caller
// went away.
func abandoned(ctx context.Context, inst *model.AppInstance) ProviderBusyTimes {
	err := context.Cause(ctx)
	return ProviderBusyTimes{AppID: inst.ID, TypeName: inst.TypeName, Err: err, Error: err.Error()}
}

func (s *availabilityService) fetchOne(ctx context.Context, inst *model.AppInstance, start, end time.Time) ProviderBusyTimes {
	res := ProviderBusyTimes{AppID: inst.ID, TypeName: inst.TypeName}

	obj, err := s.apps.Object(inst)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		return res
	}
	cal, ok := obj.(app.CalendarBusyTimes)
	if !ok {
		res.Err = app.ErrCapabilityNotSupported
		res.Error = res.Err.Error()
		return res
	}

	busy, err := s.apps.BusyTimesOf(ctx, inst, cal, start, end)
	if err != nil {
		res.Err = err
		res.Error = app.StatusKeyProviderError
		var perr *app.ProviderError
		if errors.As(err, &perr) {
			res.Error = perr.Text.Key
		}
		return res
	}
	res.BusyTimes = normalizeBusyTimes(inst.ID, busy)
	return res
}

// normalizeBusyTimes orders intervals by start and gives id-less intervals
// a stable id derived from the instance and interval.
func normalizeBusyTimes(appID int64, busy []model.BusyTime) []model.BusyTime {
	out := make([]model.BusyTime, 0, len(busy))
	for _, b := range busy {
		if b.UID == "" {
			key := fmt.Sprintf("%d|%d|%d", appID, b.Start.UnixNano(), b.End.UnixNano())
			b.UID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// expandDays lists the calendar dates from start to end inclusive, in the
// location of start.
func expandDays(start, end time.Time) ([]time.Time, error) {
	end = end.In(start.Location())
	first := time.Date(start.Year(), start.Month(), start.Day(), 12, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 12, 0, 0, 0, start.Location())
	if last.Before(first) {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidRange)
	}

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if len(days) == MaxScheduleDays {
			return nil, fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxScheduleDays)
		}
		days = append(days, d)
	}
	return days, nil
}
