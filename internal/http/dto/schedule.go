package dto

import "basegraph.app/booking/internal/model"

type SetSchedulesRequest struct {
	Schedules map[model.Week]model.WeekSchedule `json:"schedules" binding:"required"`
	Replace   bool                              `json:"replace"`
}

type CopyScheduleRequest struct {
	To      []model.Week `json:"to" binding:"required,min=1"`
	From    model.Week   `json:"from"`
	Replace bool         `json:"replace"`
}

type WeeksResponse struct {
	Weeks []model.Week `json:"weeks"`
}

type RemovedResponse struct {
	Removed int64 `json:"removed"`
}

type DaysResponse struct {
	Days map[string]model.DaySchedule `json:"days"`
}
