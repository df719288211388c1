package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"basegraph.app/booking/core/db"
	"basegraph.app/booking/internal/model"
)

const scheduleOverridesTable = "schedule_overrides"

type scheduleOverrideStore struct {
	conn db.DBTX
}

func newScheduleOverrideStore(conn db.DBTX) ScheduleOverrideStore {
	return &scheduleOverrideStore{conn: conn}
}

func (s *scheduleOverrideStore) GetMany(ctx context.Context, appID int64, weeks []model.Week) (map[model.Week]model.ScheduleOverride, error) {
	result := make(map[model.Week]model.ScheduleOverride, len(weeks))
	if len(weeks) == 0 {
		return result, nil
	}

	ids := make([]int, len(weeks))
	for i, w := range weeks {
		ids[i] = int(w)
	}

	query, args, err := dialect.From(scheduleOverridesTable).Prepared(true).
		Select("week", "schedule", "updated_at").
		Where(goqu.C("app_id").Eq(appID), goqu.C("week").In(ids)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedule overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			week int
			raw  []byte
			o    model.ScheduleOverride
		)
		if err := rows.Scan(&week, &raw, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning schedule override: %w", err)
		}
		o.AppID = appID
		o.Week = model.Week(week)
		if err := json.Unmarshal(raw, &o.Schedule); err != nil {
			slog.WarnContext(ctx, "malformed schedule override",
				"app_id", appID, "week", week, "error", err)
			o.Invalid = true
			o.Schedule = nil
		}
		result[o.Week] = o
	}
	return result, rows.Err()
}

func (s *scheduleOverrideStore) UpsertMany(ctx context.Context, appID int64, schedules map[model.Week]model.WeekSchedule, replace bool) error {
	if len(schedules) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]any, 0, len(schedules))
	for _, week := range sortedWeeks(schedules) {
		sched := schedules[week]
		if sched == nil {
			sched = model.WeekSchedule{}
		}
		raw, err := json.Marshal(sched)
		if err != nil {
			return fmt.Errorf("encoding schedule for week %d: %w", week, err)
		}
		rows = append(rows, goqu.Record{
			"app_id":     appID,
			"week":       int(week),
			"schedule":   string(raw),
			"updated_at": now,
		})
	}

	ds := dialect.Insert(scheduleOverridesTable).Prepared(true).Rows(rows...)
	if replace {
		ds = ds.OnConflict(goqu.DoUpdate("app_id, week", goqu.Record{
			"schedule":   goqu.L("EXCLUDED.schedule"),
			"updated_at": goqu.L("EXCLUDED.updated_at"),
		}))
	} else {
		ds = ds.OnConflict(goqu.DoNothing())
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}
	if _, err := s.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting schedule overrides: %w", err)
	}
	return nil
}

func (s *scheduleOverrideStore) Delete(ctx context.Context, appID int64, week model.Week) error {
	_, err := s.delete(ctx, goqu.C("app_id").Eq(appID), goqu.C("week").Eq(int(week)))
	return err
}

func (s *scheduleOverrideStore) DeleteFrom(ctx context.Context, appID int64, week model.Week) (int64, error) {
	return s.delete(ctx, goqu.C("app_id").Eq(appID), goqu.C("week").Gte(int(week)))
}

func (s *scheduleOverrideStore) DeleteAll(ctx context.Context, appID int64) error {
	_, err := s.delete(ctx, goqu.C("app_id").Eq(appID))
	return err
}

func (s *scheduleOverrideStore) delete(ctx context.Context, where ...exp.Expression) (int64, error) {
	query, args, err := dialect.Delete(scheduleOverridesTable).Prepared(true).
		Where(where...).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building delete: %w", err)
	}

	tag, err := s.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting schedule overrides: %w", err)
	}
	return tag.RowsAffected(), nil
}

func sortedWeeks(schedules map[model.Week]model.WeekSchedule) []model.Week {
	weeks := make([]model.Week, 0, len(schedules))
	for w := range schedules {
		weeks = append(weeks, w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i] < weeks[j] })
	return weeks
}
