package googlecalendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"basegraph.app/booking/internal/model"
)

// pageSize is the per-page cap requested from events.list.
const pageSize = 250

type eventList struct {
	Items         []event `json:"items"`
	NextPageToken string  `json:"nextPageToken"`
	TimeZone      string  `json:"timeZone"`
}

type event struct {
	Start        *eventTime    `json:"start,omitempty"`
	End          *eventTime    `json:"end,omitempty"`
	ID           string        `json:"id,omitempty"`
	Status       string        `json:"status,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	Description  string        `json:"description,omitempty"`
	Location     string        `json:"location,omitempty"`
	Transparency string        `json:"transparency,omitempty"`
	HTMLLink     string        `json:"htmlLink,omitempty"`
	Attendees    []attendee    `json:"attendees,omitempty"`
	Extended     *extendedProp `json:"extendedProperties,omitempty"`
}

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

type attendee struct {
	Email string `json:"email"`
}

type extendedProp struct {
	Private map[string]string `json:"private,omitempty"`
}

// GetBusyTimes lists blocking events overlapping [start, end). Pages are
// fetched until Google returns no continuation token.
func (c *Calendar) GetBusyTimes(ctx context.Context, inst *model.AppInstance, start, end time.Time) ([]model.BusyTime, error) {
	client, err := c.client(ctx, inst)
	if err != nil {
		return nil, err
	}
	path := "/calendars/" + url.PathEscape(c.calendarID(inst)) + "/events"

	var busy []model.BusyTime
	pageToken := ""
	seen := make(map[string]bool)
	for {
		query := url.Values{
			"timeMin":      {start.UTC().Format(time.RFC3339)},
			"timeMax":      {end.UTC().Format(time.RFC3339)},
			"singleEvents": {"true"},
			"orderBy":      {"startTime"},
			"maxResults":   {fmt.Sprint(pageSize)},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page eventList
		if _, err := c.do(ctx, client, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, err
		}

		loc := time.UTC
		if page.TimeZone != "" {
			if l, err := time.LoadLocation(page.TimeZone); err == nil {
				loc = l
			}
		}
		for _, ev := range page.Items {
			if b, ok := toBusyTime(ev, loc); ok {
				busy = append(busy, b)
			}
		}

		if page.NextPageToken == "" {
			return busy, nil
		}
		if seen[page.NextPageToken] {
			return nil, fmt.Errorf("google calendar repeated page token")
		}
		seen[page.NextPageToken] = true
		pageToken = page.NextPageToken
	}
}

// toBusyTime keeps events that block time and have a start, an end and a title.
func toBusyTime(ev event, loc *time.Location) (model.BusyTime, bool) {
	if ev.Transparency == "transparent" || ev.Status == "cancelled" || ev.Summary == "" {
		return model.BusyTime{}, false
	}
	start, ok := ev.Start.parse(loc)
	if !ok {
		return model.BusyTime{}, false
	}
	end, ok := ev.End.parse(loc)
	if !ok {
		return model.BusyTime{}, false
	}
	return model.BusyTime{Start: start, End: end, UID: ev.ID, Title: ev.Summary}, true
}

func (t *eventTime) parse(loc *time.Location) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, err == nil
	}
	if t.Date != "" {
		v, err := time.ParseInLocation(time.DateOnly, t.Date, loc)
		return v, err == nil
	}
	return time.Time{}, false
}
