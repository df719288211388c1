package googlecalendar

import (
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"net/http"
	"net/url"
	"time"

	"basegraph.app/booking/internal/model"
)

const uidProperty = "booking_uid"

// EventID maps a booking UID to a valid Google event id. Google accepts
// base32hex characters, which include lowercase hex.
func EventID(uid string) string {
	sum := sha1.Sum([]byte(uid)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func (c *Calendar) eventPath(inst *model.AppInstance, uid string) string {
	p := "/calendars/" + url.PathEscape(c.calendarID(inst)) + "/events"
	if uid != "" {
		p += "/" + EventID(uid)
	}
	return p
}

func toGoogleEvent(ev model.CalendarEvent) event {
	out := event{
		ID:          EventID(ev.UID),
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &eventTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &eventTime{DateTime: ev.End.Format(time.RFC3339)},
		Extended:    &extendedProp{Private: map[string]string{uidProperty: ev.UID}},
	}
	for _, email := range ev.Attendees {
		out.Attendees = append(out.Attendees, attendee{Email: email})
	}
	return out
}

// CreateEvent inserts ev. An event already stored under the same UID is
// updated instead.
func (c *Calendar) CreateEvent(ctx context.Context, inst *model.AppInstance, ev model.CalendarEvent) (*model.CalendarEventResult, error) {
	client, err := c.client(ctx, inst)
	if err != nil {
		return nil, err
	}
	var created event
	status, err := c.do(ctx, client, http.MethodPost, c.eventPath(inst, ""), nil, toGoogleEvent(ev), &created)
	if status == http.StatusConflict {
		return c.UpdateEvent(ctx, inst, ev)
	}
	if err != nil {
		return nil, err
	}
	return &model.CalendarEventResult{UID: ev.UID, ExternalID: created.ID, Link: created.HTMLLink}, nil
}

func (c *Calendar) UpdateEvent(ctx context.Context, inst *model.AppInstance, ev model.CalendarEvent) (*model.CalendarEventResult, error) {
	client, err := c.client(ctx, inst)
	if err != nil {
		return nil, err
	}
	var updated event
	if _, err := c.do(ctx, client, http.MethodPut, c.eventPath(inst, ev.UID), nil, toGoogleEvent(ev), &updated); err != nil {
		return nil, err
	}
	return &model.CalendarEventResult{UID: ev.UID, ExternalID: updated.ID, Link: updated.HTMLLink}, nil
}

// DeleteEvent removes the event of uid. Missing events count as deleted.
func (c *Calendar) DeleteEvent(ctx context.Context, inst *model.AppInstance, uid string) error {
	client, err := c.client(ctx, inst)
	if err != nil {
		return err
	}
	status, err := c.do(ctx, client, http.MethodDelete, c.eventPath(inst, uid), nil, nil, nil)
	if status == http.StatusNotFound || status == http.StatusGone {
		return nil
	}
	return err
}
