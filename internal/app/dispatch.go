package app

import (
	"context"
	"fmt"
	"time"

	"basegraph.app/booking/internal/model"
)

// resolveAs loads an instance and asserts its object implements T.
func resolveAs[T any](ctx context.Context, m *Manager, appID int64, capability Capability) (*model.AppInstance, T, error) {
	var zero T
	inst, err := m.Get(ctx, appID)
	if err != nil {
		return nil, zero, err
	}
	obj, err := m.Object(inst)
	if err != nil {
		return nil, zero, err
	}
	impl, ok := obj.(T)
	if !ok {
		return nil, zero, fmt.Errorf("%w: %s lacks %s", ErrCapabilityNotSupported, inst.TypeName, capability)
	}
	return inst, impl, nil
}

// GetBusyTimes fetches busy intervals from one calendar instance.
func (m *Manager) GetBusyTimes(ctx context.Context, appID int64, start, end time.Time) ([]model.BusyTime, error) {
	inst, cal, err := resolveAs[CalendarBusyTimes](ctx, m, appID, CapabilityCalendarBusyTimes)
	if err != nil {
		return nil, err
	}
	return m.BusyTimesOf(ctx, inst, cal, start, end)
}

// BusyTimesOf is GetBusyTimes for an already resolved instance.
func (m *Manager) BusyTimesOf(ctx context.Context, inst *model.AppInstance, cal CalendarBusyTimes, start, end time.Time) ([]model.BusyTime, error) {
	var busy []model.BusyTime
	err := m.Call(ctx, inst, CapabilityCalendarBusyTimes, func(ctx context.Context) error {
		var err error
		busy, err = cal.GetBusyTimes(ctx, inst, start, end)
		return err
	})
	return busy, err
}

// GetSchedule resolves per-day working hours through a schedule provider.
func (m *Manager) GetSchedule(ctx context.Context, appID int64, start, end time.Time) (map[string]model.DaySchedule, error) {
	inst, provider, err := resolveAs[ScheduleProvider](ctx, m, appID, CapabilityScheduleProvider)
	if err != nil {
		return nil, err
	}
	var days map[string]model.DaySchedule
	err = m.Call(ctx, inst, CapabilityScheduleProvider, func(ctx context.Context) error {
		var err error
		days, err = provider.GetSchedule(ctx, inst, start, end)
		return err
	})
	return days, err
}

func (m *Manager) SendMail(ctx context.Context, appID int64, msg model.MailMessage) (*model.MailResult, error) {
	inst, sender, err := resolveAs[MailSender](ctx, m, appID, CapabilityMailSender)
	if err != nil {
		return nil, err
	}

	var res *model.MailResult
	err = m.Call(ctx, inst, CapabilityMailSender, func(ctx context.Context) error {
		var err error
		res, err = sender.SendMail(ctx, inst, msg)
		return err
	})
	return res, err
}

func (m *Manager) SendTextMessage(ctx context.Context, appID int64, msg model.TextMessage) (*model.TextMessageResult, error) {
	inst, sender, err := resolveAs[TextMessageSender](ctx, m, appID, CapabilityTextSender)
	if err != nil {
		return nil, err
	}

	var res *model.TextMessageResult
	err = m.Call(ctx, inst, CapabilityTextSender, func(ctx context.Context) error {
		var err error
		res, err = sender.SendTextMessage(ctx, inst, msg)
		return err
	})
	return res, err
}

func (m *Manager) CreateEvent(ctx context.Context, appID int64, ev model.CalendarEvent) (*model.CalendarEventResult, error) {
	inst, writer, err := resolveAs[CalendarWriter](ctx, m, appID, CapabilityCalendarWriter)
	if err != nil {
		return nil, err
	}

	var res *model.CalendarEventResult
	err = m.Call(ctx, inst, CapabilityCalendarWriter, func(ctx context.Context) error {
		var err error
		res, err = writer.CreateEvent(ctx, inst, ev)
		return err
	})
	return res, err
}

func (m *Manager) UpdateEvent(ctx context.Context, appID int64, ev model.CalendarEvent) (*model.CalendarEventResult, error) {
	inst, writer, err := resolveAs[CalendarWriter](ctx, m, appID, CapabilityCalendarWriter)
	if err != nil {
		return nil, err
	}

	var res *model.CalendarEventResult
	err = m.Call(ctx, inst, CapabilityCalendarWriter, func(ctx context.Context) error {
		var err error
		res, err = writer.UpdateEvent(ctx, inst, ev)
		return err
	})
	return res, err
}

func (m *Manager) DeleteEvent(ctx context.Context, appID int64, uid string) error {
	inst, writer, err := resolveAs[CalendarWriter](ctx, m, appID, CapabilityCalendarWriter)
	if err != nil {
		return err
	}

	return m.Call(ctx, inst, CapabilityCalendarWriter, func(ctx context.Context) error {
		return writer.DeleteEvent(ctx, inst, uid)
	})
}

// ProcessWebhook hands an inbound callback to the instance's receiver.
// Receivers answer with their own status codes and never change the
// instance status.
func (m *Manager) ProcessWebhook(ctx context.Context, appID int64, req WebhookRequest) (WebhookResponse, error) {
	inst, receiver, err := resolveAs[WebhookReceiver](ctx, m, appID, CapabilityWebhookReceiver)
	if err != nil {
		return WebhookResponse{}, err
	}
	return receiver.ProcessWebhook(ctx, inst, req), nil
}
