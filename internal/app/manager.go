package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"basegraph.app/booking/common/id"
	"basegraph.app/booking/common/logger"
	"basegraph.app/booking/common/metrics"
	"basegraph.app/booking/internal/model"
	"basegraph.app/booking/internal/oauth"
	"basegraph.app/booking/internal/queue"
	"basegraph.app/booking/internal/store"
)

// ErrProviderFailed is what callers see when an integration call fails.
// The provider specific cause is logged and persisted as status text.
var ErrProviderFailed = errors.New("integration provider call failed")

type ProviderError struct {
	Text       model.StatusText
	TypeName   string
	Capability Capability
	AppID      int64
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s call to %s app %d failed: %s", e.Capability, e.TypeName, e.AppID, e.Text.Key)
}

func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderFailed
}

// Manager owns the app instance lifecycle and resolves instances to the
// objects implementing their capabilities.
type Manager struct {
	stores   store.Provider
	tx       store.TxRunner
	registry *Registry
	base     Services
}

func NewManager(stores store.Provider, tx store.TxRunner, registry *Registry, base Services) *Manager {
	return &Manager{
		stores:   stores,
		tx:       tx,
		registry: registry,
		base:     base,
	}
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// SetScheduleResolver completes the shared services once the availability
// resolver, which itself depends on the manager, exists.
func (m *Manager) SetScheduleResolver(r ScheduleResolver) {
	m.base.Schedules = r
}

func (m *Manager) servicesFor(inst *model.AppInstance) Services {
	svc := m.base
	svc.Settings = m.stores.Settings()
	svc.Overrides = m.stores.ScheduleOverrides()
	svc.Instances = m
	appID := inst.ID
	svc.Update = func(ctx context.Context, patch model.AppInstancePatch) (*model.AppInstance, error) {
		return m.Update(ctx, appID, patch)
	}
	return svc
}

// Object resolves the integration object backing inst.
func (m *Manager) Object(inst *model.AppInstance) (any, error) {
	return m.registry.Resolve(inst.TypeName, m.servicesFor(inst))
}

func (m *Manager) Create(ctx context.Context, typeName string) (*model.AppInstance, error) {
	if !m.registry.Has(typeName) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}

	inst := &model.AppInstance{
		ID:       id.New(),
		TypeName: typeName,
		Status:   model.AppStatusPending,
		Data:     json.RawMessage("{}"),
	}
	if err := m.stores.AppInstances().Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("creating app instance: %w", err)
	}

	slog.InfoContext(ctx, "app instance created", "app_id", inst.ID, "type_name", typeName)
	return inst, nil
}

func (m *Manager) Get(ctx context.Context, appID int64) (*model.AppInstance, error) {
	return m.stores.AppInstances().GetByID(ctx, appID)
}

func (m *Manager) List(ctx context.Context) ([]model.AppInstance, error) {
	return m.stores.AppInstances().List(ctx)
}

// Update merges patch into the instance. Concurrent updates are last writer wins.
func (m *Manager) Update(ctx context.Context, appID int64, patch model.AppInstancePatch) (*model.AppInstance, error) {
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", *patch.Status)
	}

	inst, err := m.stores.AppInstances().Update(ctx, appID, patch)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil {
		metrics.RecordStatus(inst.TypeName, string(inst.Status))
	}
	return inst, nil
}

// Delete runs the integration's teardown hook and then removes the row
// together with its schedule overrides. A failed teardown keeps the row.
func (m *Manager) Delete(ctx context.Context, appID int64) error {
	inst, err := m.Get(ctx, appID)
	if err != nil {
		return err
	}

	obj, err := m.Object(inst)
	if err != nil {
		return err
	}
	if td, ok := obj.(TearDowner); ok {
		if err := td.TearDown(ctx, inst); err != nil {
			return fmt.Errorf("tearing down app %d: %w", appID, err)
		}
	}

	err = m.tx.WithTx(ctx, func(stores store.Provider) error {
		if err := stores.ScheduleOverrides().DeleteAll(ctx, appID); err != nil {
			return err
		}
		return stores.AppInstances().Delete(ctx, appID)
	})
	if err != nil {
		return fmt.Errorf("deleting app %d: %w", appID, err)
	}

	slog.InfoContext(ctx, "app instance deleted", "app_id", appID, "type_name", inst.TypeName)
	return nil
}

// ListByCapability returns instances whose objects satisfy every capability.
func (m *Manager) ListByCapability(ctx context.Context, caps ...Capability) ([]model.AppInstance, error) {
	return m.stores.AppInstances().ListByType(ctx, m.registry.TypesSupporting(caps...))
}

// Configure validates data through the integration and performs its
// handshake. Success and failure are each persisted as one update.
func (m *Manager) Configure(ctx context.Context, appID int64, data json.RawMessage) (*model.AppInstance, error) {
	inst, err := m.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	obj, err := m.Object(inst)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(Configurable)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configurable", ErrCapabilityNotSupported, inst.TypeName)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		AppID:      &inst.ID,
		TypeName:   &inst.TypeName,
		Capability: logger.Ptr(string(CapabilityConfigurable)),
	})

	var res *ConfigureResult
	err = m.call(ctx, inst, CapabilityConfigurable, false, func(ctx context.Context) error {
		var err error
		res, err = c.Configure(ctx, inst, data)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Status, account and data land together so the instance never reads
	// as connected without its configuration.

	connected := model.AppStatusConnected
	return m.Update(ctx, appID, model.AppInstancePatch{
		Status:     &connected,
		StatusText: &model.StatusText{},
		Account:    &res.Account,
		Data:       res.Data,
	})
}

// Reauthorize moves any instance back to pending. OAuth apps drop their
// token and get a fresh login URL.
func (m *Manager) Reauthorize(ctx context.Context, appID int64) (*model.AppInstance, string, error) {
	inst, err := m.Get(ctx, appID)
	if err != nil {
		return nil, "", err
	}
	obj, err := m.Object(inst)
	if err != nil {
		return nil, "", err
	}

	pending := model.AppStatusPending
	patch := model.AppInstancePatch{
		Status:     &pending,
		StatusText: &model.StatusText{Key: StatusKeyReauthorizing},
	}
	oa, isOAuth := obj.(OAuthApp)
	if isOAuth {
		patch.ClearToken = true
	}

	updated, err := m.Update(ctx, appID, patch)
	if err != nil {
		return nil, "", err
	}
	if !isOAuth {
		return updated, "", nil
	}

	loginURL, err := oa.LoginURL(ctx, updated)
	if err != nil {
		return nil, "", fmt.Errorf("building login url: %w", err)
	}
	return updated, loginURL, nil
}

func (m *Manager) LoginURL(ctx context.Context, appID int64) (string, error) {
	inst, err := m.Get(ctx, appID)
	if err != nil {
		return "", err
	}
	obj, err := m.Object(inst)
	if err != nil {
		return "", err
	}
	oa, ok := obj.(OAuthApp)
	if !ok {
		return "", fmt.Errorf("%w: %s has no oauth login", ErrCapabilityNotSupported, inst.TypeName)
	}
	return oa.LoginURL(ctx, inst)
}

// HandleRedirect processes an OAuth redirect and persists its outcome on
// the instance named by state.
func (m *Manager) HandleRedirect(ctx context.Context, query url.Values) oauth.Result {
	appID, err := oauth.ParseState(query)
	if err != nil {
		return oauth.Result{Err: err}
	}

	inst, err := m.Get(ctx, appID)
	if err != nil {
		return oauth.Result{AppID: appID, Err: err}
	}
	obj, err := m.Object(inst)
	if err != nil {
		return oauth.Result{AppID: appID, Err: err}
	}
	oa, ok := obj.(OAuthApp)
	if !ok {
		return oauth.Result{AppID: appID, Err: ErrCapabilityNotSupported}
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{AppID: &appID, TypeName: &inst.TypeName})
	sc := logger.StartSpan(ctx, "oauth.redirect")
	res := oa.ProcessRedirect(sc.Context(), query)
	sc.Finish(res.Err)
	res.AppID = appID

	var patch model.AppInstancePatch
	if res.Err != nil {
		slog.WarnContext(ctx, "oauth redirect failed", "app_id", appID, "error", res.Err)
		patch = model.StatusPatch(model.AppStatusFailed, model.StatusText{Key: oauth.ErrorKey(res.Err), Args: res.ErrArgs})
	} else {
		connected := model.AppStatusConnected
		patch = model.AppInstancePatch{
			Status:     &connected,
			StatusText: &model.StatusText{},
			Account:    &res.Account,
			Token:      res.Token,
		}
	}

	if _, err := m.Update(ctx, appID, patch); err != nil {
		slog.ErrorContext(ctx, "failed to persist oauth redirect outcome", "app_id", appID, "error", err)
		if res.Err == nil {
			return oauth.Result{AppID: appID, Err: err}
		}
	}
	return res
}

// MaskedData returns instance data safe to hand to callers.
func (m *Manager) MaskedData(inst *model.AppInstance) json.RawMessage {
	obj, err := m.Object(inst)
	if err != nil {
		return json.RawMessage("{}")
	}
	if dm, ok := obj.(DataMasker); ok {
		return dm.MaskData(inst)
	}
	return inst.Data
}

// Call runs one provider call under the configured timeout, records
// metrics and updates the instance status as a side effect. Failures are
// returned as *ProviderError.
func (m *Manager) Call(ctx context.Context, inst *model.AppInstance, capability Capability, fn func(ctx context.Context) error) error {
	return m.call(ctx, inst, capability, true, fn)
}

// call is Call with the success status update optional. Failures are
// always recorded.
func (m *Manager) call(ctx context.Context, inst *model.AppInstance, capability Capability, recordSuccess bool, fn func(ctx context.Context) error) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		AppID:      &inst.ID,
		TypeName:   &inst.TypeName,
		Capability: logger.Ptr(string(capability)),
	})

	callCtx := ctx
	if timeout := m.base.Config.Provider.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sc := logger.StartProviderSpan(callCtx, string(capability))
	start := time.Now()
	err := fn(sc.Context())
	sc.Finish(err)
	metrics.RecordProviderCall(inst.TypeName, string(capability), err, time.Since(start))

	if err == nil {
		if recordSuccess {
			m.RecordOutcome(context.WithoutCancel(ctx), inst, nil)
		}
		return nil
	}
	m.RecordOutcome(context.WithoutCancel(ctx), inst, err)

	slog.WarnContext(ctx, "integration call failed", "error", err)

	if isCallerError(err) {
		return err
	}
	return &ProviderError{
		AppID:      inst.ID,
		TypeName:   inst.TypeName,
		Capability: capability,
		Text:       StatusTextFor(err, StatusKeyProviderError),
	}
}

// RecordOutcome sets connected after a successful call and failed with a
// reason after a failed one. inst is refreshed in place. Store errors are
// logged, not returned. Invalid operator input leaves the status alone.
func (m *Manager) RecordOutcome(ctx context.Context, inst *model.AppInstance, callErr error) {
	var patch model.AppInstancePatch
	switch {
	case callErr == nil:
		if inst.Status == model.AppStatusConnected && inst.StatusText == nil {
			return
		}
		patch = model.StatusPatch(model.AppStatusConnected, model.StatusText{})
	case isCallerError(callErr):
		return
	default:
		patch = model.StatusPatch(model.AppStatusFailed, StatusTextFor(callErr, StatusKeyProviderError))
	}

	updated, err := m.Update(ctx, inst.ID, patch)
	if err != nil {
		slog.ErrorContext(ctx, "failed to record integration status", "app_id", inst.ID, "error", err)
		return
	}

	if callErr != nil && inst.Status == model.AppStatusConnected && m.base.Notifier != nil {
		n := queue.Notification{
			Kind:     queue.NotificationStatusLost,
			AppID:    inst.ID,
			TypeName: inst.TypeName,
			Payload:  updated.StatusText,
		}
		if err := m.base.Notifier.Enqueue(ctx, n); err != nil {
			slog.WarnContext(ctx, "failed to enqueue status notification", "app_id", inst.ID, "error", err)
		}
	}
	*inst = *updated
}

func isCallerError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrInvalidRequest)
}
