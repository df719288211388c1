package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/booking/core/config"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/service"
	"basegraph.app/booking/internal/store"
)

type stubCalendar struct {
	inFlight *atomic.Int32
	peak     *atomic.Int32
	busy     []model.BusyTime
	err      error
}

func (c *stubCalendar) GetBusyTimes(_ context.Context, _ *model.AppInstance, _, _ time.Time) ([]model.BusyTime, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return c.busy, c.err
}

// invalidWeeks flags stored overrides of some weeks as undecodable.
type invalidWeeks struct {
	store.ScheduleOverrideStore
	weeks map[model.Week]bool
}

func (s invalidWeeks) GetMany(ctx context.Context, appID int64, weeks []model.Week) (map[model.Week]model.ScheduleOverride, error) {
	rows, err := s.ScheduleOverrideStore.GetMany(ctx, appID, weeks)
	if err != nil {
		return nil, err
	}
	for w, o := range rows {
		if s.weeks[w] {
			o.Invalid = true
			o.Schedule = nil
			rows[w] = o
		}
	}
	return rows, nil
}

var _ = Describe("AvailabilityService", func() {
	var (
		ctx       context.Context
		stores    *store.MemoryStores
		manager   *app.Manager
		schedules service.ScheduleService
		avail     service.AvailabilityService
		inFlight  atomic.Int32
		peak      atomic.Int32
		calendars map[string]*stubCalendar
	)

	t0 := time.Date(2030, time.January, 7, 9, 0, 0, 0, time.UTC)

	BeforeEach(func() {
		ctx = context.Background()
		stores = store.NewMemoryStores()
		inFlight.Store(0)
		peak.Store(0)
		calendars = map[string]*stubCalendar{
			"cal_a": {inFlight: &inFlight, peak: &peak, busy: []model.BusyTime{
				{Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour), UID: "a2", Title: "later"},
				{Start: t0, End: t0.Add(time.Hour), UID: "a1", Title: "first"},
			}},
			"cal_b": {inFlight: &inFlight, peak: &peak, err: app.NewStatusError(errors.New("503"), "calendar.unavailable")},
			"cal_c": {inFlight: &inFlight, peak: &peak, busy: []model.BusyTime{
				{Start: t0, End: t0.Add(30 * time.Minute), Title: "no id"},
			}},
		}

		var regs []app.Registration
		for name, cal := range calendars {
			cal := cal
			regs = append(regs, app.Registration{TypeName: name, Factory: func(app.Services) any { return cal }})
		}
		regs = append(regs, app.Registration{TypeName: "notes", Factory: func(app.Services) any { return struct{}{} }})

		var cfg config.Config
		cfg.Provider.Timeout = 2 * time.Second
		manager = app.NewManager(stores, stores, app.NewRegistry(regs...), app.Services{Config: cfg})
		services := service.NewServices(stores, manager, nil, config.ProviderConfig{MaxParallel: 8})
		schedules = services.Schedules()
		avail = services.Availability()
	})

	create := func(typeName string, status model.AppStatus) *model.AppInstance {
		inst, err := manager.Create(ctx, typeName)
		Expect(err).NotTo(HaveOccurred())
		inst, err = manager.Update(ctx, inst.ID, model.AppInstancePatch{Status: &status})
		Expect(err).NotTo(HaveOccurred())
		return inst
	}

	Describe("AggregateBusyTimes", func() {
		It("isolates a failing provider", func() {
			a := create("cal_a", model.AppStatusConnected)
			b := create("cal_b", model.AppStatusConnected)
			c := create("cal_c", model.AppStatusFailed)
			create("cal_a", model.AppStatusPending)
			create("notes", model.AppStatusConnected)

			results, err := avail.AggregateBusyTimes(ctx, t0, t0.Add(24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))

			byID := map[int64]service.ProviderBusyTimes{}
			for _, r := range results {
				byID[r.AppID] = r
			}

			Expect(byID[a.ID].Err).NotTo(HaveOccurred())
			Expect(byID[a.ID].BusyTimes).To(HaveLen(2))
			Expect(byID[a.ID].BusyTimes[0].UID).To(Equal("a1"))

			Expect(errors.Is(byID[b.ID].Err, app.ErrProviderFailed)).To(BeTrue())
			Expect(byID[b.ID].Error).To(Equal("calendar.unavailable"))

			Expect(byID[c.ID].Err).NotTo(HaveOccurred())
			Expect(byID[c.ID].BusyTimes[0].UID).NotTo(BeEmpty())

			stored, err := manager.Get(ctx, b.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusFailed))
			Expect(stored.StatusText.Key).To(Equal("calendar.unavailable"))

			stored, err = manager.Get(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusConnected))

			stored, err = manager.Get(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusConnected))
		})

		It("queries providers concurrently", func() {
			for i := 0; i < 3; i++ {
				create("cal_a", model.AppStatusConnected)
			}
			_, err := avail.AggregateBusyTimes(ctx, t0, t0.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(peak.Load()).To(BeNumerically(">", 1))
		})

		It("gives id-less intervals stable ids", func() {
			c := create("cal_c", model.AppStatusConnected)
			first, err := avail.GetBusyTimes(ctx, c.ID, t0, t0.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			second, err := avail.GetBusyTimes(ctx, c.ID, t0, t0.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(first[0].UID).To(Equal(second[0].UID))
		})

		It("stops waiting for a slot once the caller is gone", func() {
			a := create("cal_a", model.AppStatusConnected)
			create("cal_a", model.AppStatusConnected)

			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			results, err := avail.AggregateBusyTimes(cancelled, t0, t0.Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(errors.Is(r.Err, context.Canceled)).To(BeTrue())
				Expect(r.BusyTimes).To(BeEmpty())
			}
			Expect(peak.Load()).To(BeZero())

			stored, err := manager.Get(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusConnected))
		})

		It("rejects empty ranges", func() {
			_, err := avail.AggregateBusyTimes(ctx, t0, t0)
			Expect(errors.Is(err, service.ErrInvalidRange)).To(BeTrue())
		})
	})

	Describe("GetSchedule", func() {
		const appID = int64(99)
		monday2200 := model.Week(2200).Date(1)

		It("resolves the default and an explicit closed override", func() {
			Expect(schedules.SetDefault(ctx, mondayShift("09:00", "17:00"))).To(Succeed())

			days, err := avail.GetSchedule(ctx, appID, monday2200, monday2200)
			Expect(err).NotTo(HaveOccurred())
			Expect(days).To(HaveKey("2012-03-05"))
			Expect(days["2012-03-05"].Shifts).To(Equal([]model.Shift{{Start: "09:00", End: "17:00"}}))
			Expect(days["2012-03-05"].IsDefault).To(BeTrue())

			Expect(schedules.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{2200: {}}, true)).To(Succeed())

			days, err = avail.GetSchedule(ctx, appID, monday2200, monday2200)
			Expect(err).NotTo(HaveOccurred())
			Expect(days).To(BeEmpty())

			week, err := schedules.Get(ctx, appID, 2200)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.IsDefault).To(BeFalse())
		})

		It("omits days without shifts across weeks", func() {
			Expect(schedules.SetDefault(ctx, model.WeekSchedule{
				{Weekday: 1, Shifts: []model.Shift{{Start: "09:00", End: "17:00"}}},
				{Weekday: 2, Shifts: []model.Shift{}},
				{Weekday: 3, Shifts: []model.Shift{{Start: "10:00", End: "12:00"}}},
			})).To(Succeed())
			Expect(schedules.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{
				2201: {{Weekday: 5, Shifts: []model.Shift{{Start: "08:00", End: "09:00"}}}},
			}, true)).To(Succeed())

			days, err := avail.GetSchedule(ctx, appID, monday2200, model.Week(2201).Date(7))
			Expect(err).NotTo(HaveOccurred())
			Expect(days).To(HaveLen(3))
			Expect(days).To(HaveKey(model.ISODate(model.Week(2200).Date(1))))
			Expect(days).To(HaveKey(model.ISODate(model.Week(2200).Date(3))))
			Expect(days).To(HaveKey(model.ISODate(model.Week(2201).Date(5))))
			Expect(days[model.ISODate(model.Week(2201).Date(5))].IsDefault).To(BeFalse())
			Expect(days[model.ISODate(model.Week(2201).Date(5))].Week).To(Equal(model.Week(2201)))
		})

		It("omits the days of an undecodable week without failing the range", func() {
			Expect(schedules.SetDefault(ctx, mondayShift("09:00", "17:00"))).To(Succeed())
			Expect(schedules.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{
				2200: mondayShift("07:00", "08:00"),
			}, true)).To(Succeed())

			flagged := invalidWeeks{ScheduleOverrideStore: stores.ScheduleOverrides(), weeks: map[model.Week]bool{2200: true}}
			resolver := service.NewAvailabilityService(flagged, schedules, manager, 1)

			days, err := resolver.GetSchedule(ctx, appID, monday2200, model.Week(2201).Date(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(days).To(HaveLen(1))
			Expect(days).To(HaveKey(model.ISODate(model.Week(2201).Date(1))))
		})

		It("rejects reversed and oversized ranges", func() {
			_, err := avail.GetSchedule(ctx, appID, monday2200, monday2200.AddDate(0, 0, -1))
			Expect(errors.Is(err, service.ErrInvalidRange)).To(BeTrue())

			_, err = avail.GetSchedule(ctx, appID, monday2200, monday2200.AddDate(2, 0, 0))
			Expect(errors.Is(err, service.ErrInvalidRange)).To(BeTrue())
		})
	})
})
