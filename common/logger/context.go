package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment so that provider calls, webhook handling and
// schedule mutations carry the app instance they act on without threading it by hand.
type LogFields struct {
	AppID      *int64  // App instance ID
	TypeName   *string // Integration type (e.g., "google_calendar", "textbelt")
	Week       *int    // Schedule week identifier
	Capability *string // Capability being exercised (e.g., "calendar_busy_times")
	Component  string  // Component name (OTel semantic convention style, e.g., "booking.availability.resolver")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.AppID != nil {
		result.AppID = new.AppID
	}
	if new.TypeName != nil {
		result.TypeName = new.TypeName
	}
	if new.Week != nil {
		result.Week = new.Week
	}
	if new.Capability != nil {
		result.Capability = new.Capability
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{AppID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}
