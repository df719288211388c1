package model

import "time"

// BusyTime is a normalized interval during which a calendar is blocked.
type BusyTime struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	UID   string    `json:"uid"`
	Title string    `json:"title"`
}

// CalendarEvent is a provider-agnostic event keyed by UID.
type CalendarEvent struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	UID         string    `json:"uid"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

type CalendarEventResult struct {
	UID        string `json:"uid"`
	ExternalID string `json:"external_id"`
	Link       string `json:"link,omitempty"`
}
