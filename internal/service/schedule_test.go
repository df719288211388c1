package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/service"
	"basegraph.app/booking/internal/store"
)

func mondayShift(start, end string) model.WeekSchedule {
	return model.WeekSchedule{{Weekday: 1, Shifts: []model.Shift{{Start: start, End: end}}}}
}

var _ = Describe("ScheduleService", func() {
	const appID = int64(7)

	var (
		ctx     context.Context
		stores  *store.MemoryStores
		current model.Week
		svc     service.ScheduleService
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = store.NewMemoryStores()
		current = 2900
		now := func() time.Time { return current.Date(3).Add(10 * time.Hour) }
		svc = service.NewScheduleService(stores.ScheduleOverrides(), stores.Settings(), nil, now)
	})

	weeksStored := func(from, to model.Week) []model.Week {
		var weeks []model.Week
		for w := from; w <= to; w++ {
			weeks = append(weeks, w)
		}
		rows, err := stores.ScheduleOverrides().GetMany(ctx, appID, weeks)
		Expect(err).NotTo(HaveOccurred())
		var out []model.Week
		for _, w := range weeks {
			if _, ok := rows[w]; ok {
				out = append(out, w)
			}
		}
		return out
	}

	Describe("Get", func() {
		It("falls back to the default schedule", func() {
			Expect(svc.SetDefault(ctx, mondayShift("09:00", "17:00"))).To(Succeed())

			week, err := svc.Get(ctx, appID, 2200)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.IsDefault).To(BeTrue())
			Expect(week.Schedule).To(Equal(mondayShift("09:00", "17:00")))
		})

		It("never fails without a default or an override", func() {
			week, err := svc.Get(ctx, appID, 2200)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.IsDefault).To(BeTrue())
			Expect(week.Schedule).To(BeEmpty())
		})

		It("reports an unreadable override instead of the default", func() {
			Expect(svc.SetDefault(ctx, mondayShift("09:00", "17:00"))).To(Succeed())
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{2200: mondayShift("10:00", "11:00")}, true)).To(Succeed())
			svc = service.NewScheduleService(
				invalidWeeks{ScheduleOverrideStore: stores.ScheduleOverrides(), weeks: map[model.Week]bool{2200: true}},
				stores.Settings(), nil, nil)

			week, err := svc.Get(ctx, appID, 2200)
			Expect(errors.Is(err, service.ErrUnreadableOverride)).To(BeTrue())
			Expect(week).To(BeNil())
		})

		It("returns an explicit empty override as not default", func() {
			Expect(svc.SetDefault(ctx, mondayShift("09:00", "17:00"))).To(Succeed())
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{2200: {}}, true)).To(Succeed())

			week, err := svc.Get(ctx, appID, 2200)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.IsDefault).To(BeFalse())
			Expect(week.Schedule).To(BeEmpty())
		})
	})

	Describe("SetMany", func() {
		It("fills gaps without clobbering", func() {
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{3000: mondayShift("08:00", "12:00")}, false)).To(Succeed())
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{3000: mondayShift("10:00", "18:00")}, false)).To(Succeed())

			week, err := svc.Get(ctx, appID, 3000)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.Schedule).To(Equal(mondayShift("08:00", "12:00")))
		})

		It("overwrites when replacing", func() {
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{3000: mondayShift("08:00", "12:00")}, true)).To(Succeed())
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{3000: mondayShift("10:00", "18:00")}, true)).To(Succeed())

			week, err := svc.Get(ctx, appID, 3000)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.Schedule).To(Equal(mondayShift("10:00", "18:00")))
		})

		It("rejects invalid schedules before writing anything", func() {
			err := svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{
				3000: mondayShift("08:00", "12:00"),
				3001: mondayShift("18:00", "12:00"),
			}, true)
			Expect(errors.Is(err, service.ErrInvalidSchedule)).To(BeTrue())
			Expect(weeksStored(3000, 3001)).To(BeEmpty())
		})

		It("rejects weekdays out of range", func() {
			err := svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{3000: {{Weekday: 9}}}, true)
			Expect(errors.Is(err, service.ErrInvalidSchedule)).To(BeTrue())
		})
	})

	Describe("RemoveFrom", func() {
		It("removes the week and every later week only", func() {
			batch := map[model.Week]model.WeekSchedule{}
			for w := model.Week(2900); w <= 2905; w++ {
				batch[w] = mondayShift("09:00", "10:00")
			}
			Expect(svc.SetMany(ctx, appID, batch, true)).To(Succeed())

			n, err := svc.RemoveFrom(ctx, appID, 2903)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(3)))
			Expect(weeksStored(2900, 2905)).To(Equal([]model.Week{2900, 2901, 2902}))
		})

		It("refuses to reset past weeks", func() {
			_, err := svc.RemoveFrom(ctx, appID, current-1)
			Expect(errors.Is(err, service.ErrPastWeek)).To(BeTrue())
		})
	})

	It("removes a single week", func() {
		Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{3000: mondayShift("09:00", "10:00")}, true)).To(Succeed())
		Expect(svc.Remove(ctx, appID, 3000)).To(Succeed())
		week, err := svc.Get(ctx, appID, 3000)
		Expect(err).NotTo(HaveOccurred())
		Expect(week.IsDefault).To(BeTrue())
	})

	Describe("Repeat", func() {
		It("writes an arithmetic progression bounded by max week", func() {
			w0 := current
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{w0: mondayShift("09:00", "13:00")}, true)).To(Succeed())

			maxWeek := w0 + 10
			written, err := svc.Repeat(ctx, appID, service.RepeatRequest{From: w0, Interval: 2, Count: 6, MaxWeek: &maxWeek})
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(Equal([]model.Week{w0, w0 + 2, w0 + 4, w0 + 6, w0 + 8, w0 + 10}))
			Expect(weeksStored(w0, w0+12)).To(Equal(written))

			week, err := svc.Get(ctx, appID, w0+8)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.Schedule).To(Equal(mondayShift("09:00", "13:00")))
		})

		It("skips weeks before the current week", func() {
			w0 := current - 4
			Expect(svc.SetDefault(ctx, mondayShift("09:00", "17:00"))).To(Succeed())

			written, err := svc.Repeat(ctx, appID, service.RepeatRequest{From: w0, Interval: 2, Count: 6})
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(Equal([]model.Week{current, current + 2, current + 4, current + 6}))
			Expect(weeksStored(w0, current-1)).To(BeEmpty())
		})

		It("stops at max week", func() {
			maxWeek := current + 3
			written, err := svc.Repeat(ctx, appID, service.RepeatRequest{From: current, Interval: 2, Count: 10, MaxWeek: &maxWeek})
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(Equal([]model.Week{current, current + 2}))
		})

		It("keeps hand tuned weeks unless replacing", func() {
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{
				current:     mondayShift("09:00", "13:00"),
				current + 1: mondayShift("07:00", "08:00"),
			}, true)).To(Succeed())

			_, err := svc.Repeat(ctx, appID, service.RepeatRequest{From: current, Interval: 1, Count: 3})
			Expect(err).NotTo(HaveOccurred())

			week, err := svc.Get(ctx, appID, current+1)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.Schedule).To(Equal(mondayShift("07:00", "08:00")))

			week, err = svc.Get(ctx, appID, current+2)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.Schedule).To(Equal(mondayShift("09:00", "13:00")))
		})

		It("rejects a zero interval", func() {
			_, err := svc.Repeat(ctx, appID, service.RepeatRequest{From: current, Interval: 0, Count: 3})
			Expect(errors.Is(err, service.ErrInvalidRepeat)).To(BeTrue())
		})
	})

	Describe("Copy", func() {
		It("copies the effective schedule into future weeks only", func() {
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{current - 2: mondayShift("11:00", "12:00")}, true)).To(Succeed())

			written, err := svc.Copy(ctx, appID, current-2, []model.Week{current - 1, current + 5, current + 1}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(written).To(Equal([]model.Week{current + 1, current + 5}))
			Expect(weeksStored(current-1, current-1)).To(BeEmpty())
		})
	})

	Describe("unreadable source weeks", func() {
		BeforeEach(func() {
			Expect(svc.SetDefault(ctx, mondayShift("09:00", "17:00"))).To(Succeed())
			Expect(svc.SetMany(ctx, appID, map[model.Week]model.WeekSchedule{current: mondayShift("10:00", "11:00")}, true)).To(Succeed())
			now := func() time.Time { return current.Date(3).Add(10 * time.Hour) }
			svc = service.NewScheduleService(
				invalidWeeks{ScheduleOverrideStore: stores.ScheduleOverrides(), weeks: map[model.Week]bool{current: true}},
				stores.Settings(), nil, now)
		})

		It("never copies the default in their place", func() {
			_, err := svc.Copy(ctx, appID, current, []model.Week{current + 1}, true)
			Expect(errors.Is(err, service.ErrUnreadableOverride)).To(BeTrue())
			Expect(weeksStored(current+1, current+1)).To(BeEmpty())
		})

		It("never repeats the default from them", func() {
			_, err := svc.Repeat(ctx, appID, service.RepeatRequest{From: current, Interval: 1, Count: 3, Replace: true})
			Expect(errors.Is(err, service.ErrUnreadableOverride)).To(BeTrue())
			Expect(weeksStored(current+1, current+2)).To(BeEmpty())
		})

		It("resolves to the default once removed", func() {
			Expect(svc.Remove(ctx, appID, current)).To(Succeed())
			week, err := svc.Get(ctx, appID, current)
			Expect(err).NotTo(HaveOccurred())
			Expect(week.IsDefault).To(BeTrue())
		})
	})

	Describe("Default", func() {
		It("validates before saving", func() {
			err := svc.SetDefault(ctx, model.WeekSchedule{{Weekday: 1, Shifts: []model.Shift{{Start: "25:00", End: "26:00"}}}})
			Expect(errors.Is(err, service.ErrInvalidSchedule)).To(BeTrue())

			def, err := svc.Default(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(def).To(BeEmpty())
		})
	})
})
