package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"basegraph.app/booking/internal/model"
)

// MemoryStores keeps every entity in process memory. It backs local runs
// with STORE_DRIVER=memory and the test suites.
type MemoryStores struct {
	instances *memoryAppInstanceStore
	overrides *memoryScheduleOverrideStore
	settings  *memorySettingStore
}

func NewMemoryStores() *MemoryStores {
	return &MemoryStores{
		instances: &memoryAppInstanceStore{rows: make(map[int64]model.AppInstance)},
		overrides: &memoryScheduleOverrideStore{rows: make(map[int64]map[model.Week]model.ScheduleOverride)},
		settings:  &memorySettingStore{rows: make(map[string][]byte)},
	}
}

func (m *MemoryStores) AppInstances() AppInstanceStore           { return m.instances }
func (m *MemoryStores) ScheduleOverrides() ScheduleOverrideStore { return m.overrides }
func (m *MemoryStores) Settings() SettingStore                   { return m.settings }

// WithTx runs fn against the same stores. Memory stores have no rollback.
func (m *MemoryStores) WithTx(_ context.Context, fn func(stores Provider) error) error {
	return fn(m)
}

type memoryAppInstanceStore struct {
	mu   sync.RWMutex
	rows map[int64]model.AppInstance
}

func (s *memoryAppInstanceStore) Create(_ context.Context, inst *model.AppInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[inst.ID]; exists {
		return fmt.Errorf("app instance %d already exists", inst.ID)
	}
	now := time.Now().UTC()
	inst.CreatedAt = now
	inst.UpdatedAt = now
	if len(inst.Data) == 0 {
		inst.Data = json.RawMessage("{}")
	}
	s.rows[inst.ID] = cloneInstance(*inst)
	return nil
}

func (s *memoryAppInstanceStore) GetByID(_ context.Context, id int64) (*model.AppInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneInstance(inst)
	return &out, nil
}

func (s *memoryAppInstanceStore) Update(_ context.Context, id int64, patch model.AppInstancePatch) (*model.AppInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(&inst)
	inst.UpdatedAt = time.Now().UTC()
	s.rows[id] = cloneInstance(inst)

	out := cloneInstance(inst)
	return &out, nil
}

func (s *memoryAppInstanceStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *memoryAppInstanceStore) List(_ context.Context) ([]model.AppInstance, error) {
	return s.filter(func(model.AppInstance) bool { return true }), nil
}

func (s *memoryAppInstanceStore) ListByType(_ context.Context, typeNames []string) ([]model.AppInstance, error) {
	wanted := make(map[string]bool, len(typeNames))
	for _, t := range typeNames {
		wanted[t] = true
	}
	return s.filter(func(inst model.AppInstance) bool { return wanted[inst.TypeName] }), nil
}

func (s *memoryAppInstanceStore) filter(keep func(model.AppInstance) bool) []model.AppInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.AppInstance, 0, len(s.rows))
	for _, inst := range s.rows {
		if keep(inst) {
			result = append(result, cloneInstance(inst))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func cloneInstance(inst model.AppInstance) model.AppInstance {
	out := inst
	out.Data = append(json.RawMessage(nil), inst.Data...)
	if inst.StatusText != nil {
		st := *inst.StatusText
		st.Args = append([]string(nil), inst.StatusText.Args...)
		out.StatusText = &st
	}
	if inst.Token != nil {
		tok := *inst.Token
		out.Token = &tok
	}
	return out
}

type memoryScheduleOverrideStore struct {
	mu   sync.RWMutex
	rows map[int64]map[model.Week]model.ScheduleOverride
}

func (s *memoryScheduleOverrideStore) GetMany(_ context.Context, appID int64, weeks []model.Week) (map[model.Week]model.ScheduleOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[model.Week]model.ScheduleOverride, len(weeks))
	for _, w := range weeks {
		if o, ok := s.rows[appID][w]; ok {
			o.Schedule = cloneSchedule(o.Schedule)
			result[w] = o
		}
	}
	return result, nil
}

func (s *memoryScheduleOverrideStore) UpsertMany(_ context.Context, appID int64, schedules map[model.Week]model.WeekSchedule, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byWeek, ok := s.rows[appID]
	if !ok {
		byWeek = make(map[model.Week]model.ScheduleOverride)
		s.rows[appID] = byWeek
	}

	now := time.Now().UTC()
	for week, sched := range schedules {
		if _, exists := byWeek[week]; exists && !replace {
			continue
		}
		if sched == nil {
			sched = model.WeekSchedule{}
		}
		byWeek[week] = model.ScheduleOverride{
			AppID:     appID,
			Week:      week,
			Schedule:  cloneSchedule(sched),
			UpdatedAt: now,
		}
	}
	return nil
}

func (s *memoryScheduleOverrideStore) Delete(_ context.Context, appID int64, week model.Week) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows[appID], week)
	return nil
}

func (s *memoryScheduleOverrideStore) DeleteFrom(_ context.Context, appID int64, week model.Week) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for w := range s.rows[appID] {
		if w >= week {
			delete(s.rows[appID], w)
			n++
		}
	}
	return n, nil
}

func (s *memoryScheduleOverrideStore) DeleteAll(_ context.Context, appID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, appID)
	return nil
}

func cloneSchedule(in model.WeekSchedule) model.WeekSchedule {
	if in == nil {
		return nil
	}
	out := make(model.WeekSchedule, len(in))
	for i, d := range in {
		out[i] = model.DayShifts{
			Weekday: d.Weekday,
			Shifts:  append([]model.Shift{}, d.Shifts...),
		}
	}
	return out
}

type memorySettingStore struct {
	mu   sync.RWMutex
	rows map[string][]byte
}

func (s *memorySettingStore) Get(_ context.Context, key string, dst any) error {
	s.mu.RLock()
	raw, ok := s.rows[key]
	s.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding setting %s: %w", key, err)
	}
	return nil
}

func (s *memorySettingStore) Put(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key] = raw
	return nil
}
