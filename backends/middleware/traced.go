package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gannonmg/lockbox/internal/observability"
	"github.com/gannonmg/lockbox/pkg/backend"
)

// Traced emits an OpenTelemetry span per backend call. Spans carry the
// backend name, namespace and key name; values never reach a span.
type Traced struct {
	next   backend.Backend
	name   string
	tracer trace.Tracer
}

// NewTraced wraps next with span creation using the global tracer provider.
func NewTraced(next backend.Backend, name string) *Traced {
	return &Traced{
		next:   next,
		name:   name,
		tracer: otel.Tracer(observability.TracerName),
	}
}

// Put delegates inside a client span.
func (t *Traced) Put(ctx context.Context, namespace, key string, value []byte) error {
	ctx, span := observability.StartStoreSpan(ctx, t.tracer, "secretstore.put", observability.StoreSpanAttributes{
		Backend:   t.name,
		Namespace: namespace,
		Key:       key,
	})
	defer span.End()

	err := t.next.Put(ctx, namespace, key, value)
	if err != nil {
		observability.RecordError(span, err)
	}
	return err
}

// Get delegates inside a client span.
func (t *Traced) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	ctx, span := observability.StartStoreSpan(ctx, t.tracer, "secretstore.get", observability.StoreSpanAttributes{
		Backend:   t.name,
		Namespace: namespace,
		Key:       key,
	})
	defer span.End()

	value, err := t.next.Get(ctx, namespace, key)
	if err != nil {
		observability.RecordError(span, err)
	}
	return value, err
}

// Delete delegates inside a client span.
func (t *Traced) Delete(ctx context.Context, namespace, key string) error {
	ctx, span := observability.StartStoreSpan(ctx, t.tracer, "secretstore.delete", observability.StoreSpanAttributes{
		Backend:   t.name,
		Namespace: namespace,
		Key:       key,
	})
	defer span.End()

	err := t.next.Delete(ctx, namespace, key)
	if err != nil {
		observability.RecordError(span, err)
	}
	return err
}

// Clear delegates inside a client span.
func (t *Traced) Clear(ctx context.Context, namespace string, classes []backend.Class) error {
	ctx, span := observability.StartStoreSpan(ctx, t.tracer, "secretstore.clear", observability.StoreSpanAttributes{
		Backend:   t.name,
		Namespace: namespace,
		Classes:   len(classes),
	})
	defer span.End()

	err := t.next.Clear(ctx, namespace, classes)
	if err != nil {
		observability.RecordError(span, err)
	}
	return err
}
