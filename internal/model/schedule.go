package model

import (
	"errors"
	"fmt"
	"time"
)

const shiftLayout = "15:04"

// Shift is a working interval within a day as HH:MM times.
type Shift struct {
	Start string `json:"start" validate:"required,datetime=15:04"`
	End   string `json:"end" validate:"required,datetime=15:04"`
}

// DayShifts lists the shifts of one ISO weekday (1 = Monday).
type DayShifts struct {
	Shifts  []Shift `json:"shifts" validate:"dive"`
	Weekday int     `json:"weekday" validate:"min=1,max=7"`
}

// WeekSchedule is an ordered list of per-weekday shift lists.
type WeekSchedule []DayShifts

// ShiftsFor returns the shifts for weekday and whether the schedule has an
// entry for it.
func (s WeekSchedule) ShiftsFor(weekday int) ([]Shift, bool) {
	for _, d := range s {
		if d.Weekday == weekday {
			return d.Shifts, true
		}
	}
	return nil, false
}

// Validate checks weekday range, duplicate weekdays and shift ordering.
func (s WeekSchedule) Validate() error {
	seen := make(map[int]bool, len(s))
	for _, d := range s {
		if d.Weekday < 1 || d.Weekday > 7 {
			return fmt.Errorf("weekday %d out of range", d.Weekday)
		}
		if seen[d.Weekday] {
			return fmt.Errorf("weekday %d listed twice", d.Weekday)
		}
		seen[d.Weekday] = true
		for _, sh := range d.Shifts {
			if err := sh.Validate(); err != nil {
				return fmt.Errorf("weekday %d: %w", d.Weekday, err)
			}
		}
	}
	return nil
}

func (sh Shift) Validate() error {
	start, err := time.Parse(shiftLayout, sh.Start)
	if err != nil {
		return fmt.Errorf("invalid shift start %q", sh.Start)
	}
	end, err := time.Parse(shiftLayout, sh.End)
	if err != nil {
		return fmt.Errorf("invalid shift end %q", sh.End)
	}
	if !start.Before(end) {
		return errors.New("shift must start before it ends")
	}
	return nil
}

type ScheduleOverride struct {
	UpdatedAt time.Time    `json:"updated_at"`
	Schedule  WeekSchedule `json:"schedule"`
	AppID     int64        `json:"app_id"`
	Week      Week         `json:"week"`
	// Invalid is set when the stored schedule could not be decoded.
	Invalid bool `json:"-"`
}

// DaySchedule is the resolved working hours of a single date.
type DaySchedule struct {
	Date      string  `json:"date"`
	Shifts    []Shift `json:"shifts"`
	Week      Week    `json:"week"`
	Weekday   int     `json:"weekday"`
	IsDefault bool    `json:"is_default"`
}
