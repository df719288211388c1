package service

import (
	"github.com/go-playground/validator/v10"

	"basegraph.app/booking/core/config"
	"basegraph.app/booking/internal/app"
	"basegraph.app/booking/internal/store"
)

type Services struct {
	stores   store.Provider
	apps     *app.Manager
	validate *validator.Validate
	cfg      config.ProviderConfig
}

func NewServices(stores store.Provider, apps *app.Manager, validate *validator.Validate, cfg config.ProviderConfig) *Services {
	return &Services{
		stores:   stores,
		apps:     apps,
		validate: validate,
		cfg:      cfg,
	}
}

func (s *Services) Apps() *app.Manager {
	return s.apps
}

func (s *Services) Schedules() ScheduleService {
	return NewScheduleService(s.stores.ScheduleOverrides(), s.stores.Settings(), s.validate, nil)
}

func (s *Services) Availability() AvailabilityService {
	return NewAvailabilityService(s.stores.ScheduleOverrides(), s.Schedules(), s.apps, s.cfg.MaxParallel)
}
