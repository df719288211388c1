package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// streamMaxLen bounds the notification stream. Trimming is approximate so
// XADD stays O(1).
const streamMaxLen = 100_000

type Producer interface {
	Enqueue(ctx context.Context, n Notification) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, n Notification) error {
	fields, err := streamFields(withTrace(ctx, n))
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued notification", "kind", n.Kind, "app_id", n.AppID, "type_name", n.TypeName)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

// withTrace stamps n with the trace of ctx so that consumers can continue it.
func withTrace(ctx context.Context, n Notification) Notification {
	if n.TraceID != nil {
		return n
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		traceID := sc.TraceID().String()
		n.TraceID = &traceID
	}
	return n
}

func streamFields(n Notification) (map[string]any, error) {
	attempt := n.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding notification payload: %w", err)
	}

	fields := map[string]any{
		"kind":      string(n.Kind),
		"app_id":    n.AppID,
		"type_name": n.TypeName,
		"payload":   string(payload),
		"attempt":   attempt,
	}
	if n.TraceID != nil && *n.TraceID != "" {
		fields["trace_id"] = *n.TraceID
	}
	return fields, nil
}

type logProducer struct {
	logger *slog.Logger
}

// NewLogProducer returns a Producer that only logs. Used when no redis URL
// is configured.
func NewLogProducer(logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &logProducer{logger: logger}
}

func (p *logProducer) Enqueue(ctx context.Context, n Notification) error {
	if _, err := streamFields(n); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "notification dropped, no redis configured", "kind", n.Kind, "app_id", n.AppID)
	return nil
}

func (p *logProducer) Close() error { return nil }
