package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/core/config"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/queue"
	"basegraph.app/booking/internal/store"
)

var _ = Describe("Manager", func() {
	var (
		ctx      context.Context
		stores   *store.MemoryStores
		notifier *recordingProducer
		calendar *fakeCalendar
		mailer   *fakeMailer
		sent     []model.MailMessage
		writes   []model.AppInstance
		manager  *app.Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		stores = store.NewMemoryStores()
		notifier = &recordingProducer{}
		calendar = &fakeCalendar{}
		sent = nil
		mailer = &fakeMailer{sent: &sent}

		registry := app.NewRegistry(
			app.Registration{
				TypeName: "calendar",
				Factory: func(svc app.Services) any {
					calendar.svc = svc
					return calendar
				},
			},
			app.Registration{
				TypeName: "mailer",
				Factory:  func(app.Services) any { return mailer },
			},
		)

		var cfg config.Config
		cfg.Provider.Timeout = time.Second
		writes = nil
		manager = app.NewManager(recordingStores{MemoryStores: stores, writes: &writes}, stores, registry, app.Services{Notifier: notifier, Config: cfg})
	})

	connect := func(appID int64) {
		connected := model.AppStatusConnected
		_, err := manager.Update(ctx, appID, model.AppInstancePatch{Status: &connected})
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("Create", func() {
		It("creates a pending instance with empty data", func() {
			inst, err := manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())
			Expect(inst.ID).To(BeNumerically(">", 0))
			Expect(inst.Status).To(Equal(model.AppStatusPending))
			Expect(string(inst.Data)).To(Equal("{}"))

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.TypeName).To(Equal("calendar"))
		})

		It("rejects unknown types", func() {
			_, err := manager.Create(ctx, "fax")
			Expect(errors.Is(err, app.ErrUnknownType)).To(BeTrue())

			all, err := manager.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})
	})

	Describe("Update", func() {
		It("rejects statuses outside the state machine", func() {
			inst, err := manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())

			bogus := model.AppStatus("sleeping")
			_, err = manager.Update(ctx, inst.ID, model.AppInstancePatch{Status: &bogus})
			Expect(err).To(HaveOccurred())
		})

		It("reports missing instances", func() {
			_, err := manager.Update(ctx, 42, model.StatusPatch(model.AppStatusFailed, model.StatusText{Key: "x"}))
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("tears down before removing the row and its overrides", func() {
			inst, err := manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())
			Expect(stores.ScheduleOverrides().UpsertMany(ctx, inst.ID, map[model.Week]model.WeekSchedule{
				2200: {{Weekday: 1, Shifts: []model.Shift{{Start: "09:00", End: "17:00"}}}},
			}, true)).To(Succeed())

			var existedDuringTeardown bool
			calendar.teardown = func(ctx context.Context, inst *model.AppInstance) error {
				_, err := manager.Get(ctx, inst.ID)
				existedDuringTeardown = err == nil
				return nil
			}

			Expect(manager.Delete(ctx, inst.ID)).To(Succeed())
			Expect(existedDuringTeardown).To(BeTrue())

			_, err = manager.Get(ctx, inst.ID)
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())

			overrides, err := stores.ScheduleOverrides().GetMany(ctx, inst.ID, []model.Week{2200})
			Expect(err).NotTo(HaveOccurred())
			Expect(overrides).To(BeEmpty())
		})

		It("keeps the row when teardown fails", func() {
			inst, err := manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())
			calendar.teardown = func(context.Context, *model.AppInstance) error {
				return errors.New("provider unreachable")
			}

			Expect(manager.Delete(ctx, inst.ID)).NotTo(Succeed())
			_, err = manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("deletes apps without a teardown hook", func() {
			inst, err := manager.Create(ctx, "mailer")
			Expect(err).NotTo(HaveOccurred())
			Expect(manager.Delete(ctx, inst.ID)).To(Succeed())
		})
	})

	Describe("ListByCapability", func() {
		It("returns only instances of supporting types", func() {
			cal, err := manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())
			_, err = manager.Create(ctx, "mailer")
			Expect(err).NotTo(HaveOccurred())

			busy, err := manager.ListByCapability(ctx, app.CapabilityCalendarBusyTimes)
			Expect(err).NotTo(HaveOccurred())
			Expect(busy).To(HaveLen(1))
			Expect(busy[0].ID).To(Equal(cal.ID))

			none, err := manager.ListByCapability(ctx, app.CapabilityTextResponder)
			Expect(err).NotTo(HaveOccurred())
			Expect(none).To(BeEmpty())
		})
	})

	Describe("Configure", func() {
		var inst *model.AppInstance

		BeforeEach(func() {
			var err error
			inst, err = manager.Create(ctx, "mailer")
			Expect(err).NotTo(HaveOccurred())
		})

		It("connects and stores data and account in one update", func() {
			updated, err := manager.Configure(ctx, inst.ID, json.RawMessage(`{"host":"smtp.example.com","password":"hunter2"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(model.AppStatusConnected))
			Expect(updated.StatusText).To(BeNil())
			Expect(updated.Account).To(Equal("smtp.example.com"))
			Expect(string(manager.MaskedData(updated))).NotTo(ContainSubstring("hunter2"))

			Expect(writes).To(HaveLen(1))
			Expect(writes[0].Status).To(Equal(model.AppStatusConnected))
			Expect(writes[0].Account).To(Equal("smtp.example.com"))
			Expect(string(writes[0].Data)).To(ContainSubstring("smtp.example.com"))
		})

		It("never exposes a connected instance without its data on reconfigure", func() {
			_, err := manager.Configure(ctx, inst.ID, json.RawMessage(`{"host":"a.example.com"}`))
			Expect(err).NotTo(HaveOccurred())
			writes = nil

			_, err = manager.Configure(ctx, inst.ID, json.RawMessage(`{"host":"b.example.com"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(writes).To(HaveLen(1))
			Expect(writes[0].Account).To(Equal("b.example.com"))
		})

		It("leaves the status alone on invalid input", func() {
			_, err := manager.Configure(ctx, inst.ID, json.RawMessage(`{}`))
			Expect(errors.Is(err, app.ErrInvalidConfig)).To(BeTrue())

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusPending))
		})

		It("marks the instance failed when the handshake fails", func() {
			mailer.handshake = func(context.Context, mailerConfig) error {
				return app.NewStatusError(errors.New("535 auth"), "smtp.auth_failed")
			}

			_, err := manager.Configure(ctx, inst.ID, json.RawMessage(`{"host":"smtp.example.com"}`))
			Expect(errors.Is(err, app.ErrProviderFailed)).To(BeTrue())

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusFailed))
			Expect(stored.StatusText.Key).To(Equal("smtp.auth_failed"))
		})

		It("refuses apps that are not configurable", func() {
			cal, err := manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())
			_, err = manager.Configure(ctx, cal.ID, json.RawMessage(`{}`))
			Expect(errors.Is(err, app.ErrCapabilityNotSupported)).To(BeTrue())
		})
	})

	Describe("OAuth", func() {
		var inst *model.AppInstance

		BeforeEach(func() {
			var err error
			inst, err = manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())
		})

		redirect := func(values url.Values) url.Values {
			values.Set("state", id.Format(inst.ID))
			return values
		}

		It("connects and stores the token on success", func() {
			res := manager.HandleRedirect(ctx, redirect(url.Values{"code": {"abc"}}))
			Expect(res.Err).NotTo(HaveOccurred())
			Expect(res.AppID).To(Equal(inst.ID))

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusConnected))
			Expect(stored.Account).To(Equal("owner@example.com"))
			Expect(stored.Token).NotTo(BeNil())
			Expect(stored.Token.RefreshToken).To(Equal("r"))
		})

		It("marks the instance failed with the error key", func() {
			res := manager.HandleRedirect(ctx, redirect(url.Values{}))
			Expect(res.Err).To(HaveOccurred())

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusFailed))
			Expect(stored.StatusText.Key).To(Equal("oauth.missing_code"))
		})

		It("fails without a state parameter", func() {
			res := manager.HandleRedirect(ctx, url.Values{"code": {"abc"}})
			Expect(res.Err).To(HaveOccurred())
			Expect(res.AppID).To(BeZero())
		})

		It("reauthorizes by clearing the token and returning a login url", func() {
			Expect(manager.HandleRedirect(ctx, redirect(url.Values{"code": {"abc"}})).Err).NotTo(HaveOccurred())

			updated, loginURL, err := manager.Reauthorize(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(model.AppStatusPending))
			Expect(updated.StatusText.Key).To(Equal(app.StatusKeyReauthorizing))
			Expect(updated.Token).To(BeNil())
			Expect(loginURL).To(ContainSubstring(id.Format(inst.ID)))
		})

		It("reauthorizes non-oauth apps without a login url", func() {
			m, err := manager.Create(ctx, "mailer")
			Expect(err).NotTo(HaveOccurred())
			updated, loginURL, err := manager.Reauthorize(ctx, m.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Status).To(Equal(model.AppStatusPending))
			Expect(loginURL).To(BeEmpty())
		})
	})

	Describe("Call", func() {
		var inst *model.AppInstance

		BeforeEach(func() {
			var err error
			inst, err = manager.Create(ctx, "mailer")
			Expect(err).NotTo(HaveOccurred())
		})

		It("moves a pending instance to connected on success", func() {
			res, err := manager.SendMail(ctx, inst.ID, model.MailMessage{Subject: "hi", To: []string{"a@example.com"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.MessageID).NotTo(BeEmpty())
			Expect(sent).To(HaveLen(1))

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusConnected))
		})

		It("marks the instance failed and notifies when a connected app breaks", func() {
			connect(inst.ID)

			_, err := manager.SendMail(ctx, inst.ID, model.MailMessage{Subject: "fail"})
			Expect(errors.Is(err, app.ErrProviderFailed)).To(BeTrue())

			var perr *app.ProviderError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.AppID).To(Equal(inst.ID))
			Expect(perr.Capability).To(Equal(app.CapabilityMailSender))
			Expect(perr.Text.Key).To(Equal(app.StatusKeyProviderError))

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusFailed))
			Expect(notifier.kinds()).To(Equal([]queue.NotificationKind{queue.NotificationStatusLost}))
		})

		It("does not notify for failures of instances that were not connected", func() {
			_, err := manager.SendMail(ctx, inst.ID, model.MailMessage{Subject: "fail"})
			Expect(err).To(HaveOccurred())
			Expect(notifier.kinds()).To(BeEmpty())
		})

		It("recovers a failed instance on the next success", func() {
			_, err := manager.SendMail(ctx, inst.ID, model.MailMessage{Subject: "fail"})
			Expect(err).To(HaveOccurred())

			_, err = manager.SendMail(ctx, inst.ID, model.MailMessage{Subject: "ok"})
			Expect(err).NotTo(HaveOccurred())

			stored, err := manager.Get(ctx, inst.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.AppStatusConnected))
			Expect(stored.StatusText).To(BeNil())
		})

		It("bounds provider calls with the configured timeout", func() {
			cal, err := manager.Create(ctx, "calendar")
			Expect(err).NotTo(HaveOccurred())
			calendar.busy = func(ctx context.Context) ([]model.BusyTime, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}

			obj, err := manager.Object(cal)
			Expect(err).NotTo(HaveOccurred())
			busy := obj.(app.CalendarBusyTimes)

			start := time.Now()
			err = manager.Call(ctx, cal, app.CapabilityCalendarBusyTimes, func(ctx context.Context) error {
				_, err := busy.GetBusyTimes(ctx, cal, start, start.Add(time.Hour))
				return err
			})
			Expect(errors.Is(err, app.ErrProviderFailed)).To(BeTrue())
			Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
			Expect(cal.Status).To(Equal(model.AppStatusFailed))
		})

		It("refuses capabilities the type lacks", func() {
			_, err := manager.CreateEvent(ctx, inst.ID, model.CalendarEvent{UID: "1"})
			Expect(errors.Is(err, app.ErrCapabilityNotSupported)).To(BeTrue())
		})
	})

	It("binds Update to the resolved instance", func() {
		inst, err := manager.Create(ctx, "calendar")
		Expect(err).NotTo(HaveOccurred())
		_, err = manager.Object(inst)
		Expect(err).NotTo(HaveOccurred())

		account := "bound@example.com"
		_, err = calendar.svc.Update(ctx, model.AppInstancePatch{Account: &account})
		Expect(err).NotTo(HaveOccurred())

		stored, err := manager.Get(ctx, inst.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Account).To(Equal(account))
	})
})
