package queue

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Queuer = (*MemoryQueuer)(nil)

// In process queue backed by a buffered channel. Messages are lost on shutdown and a message whose
// handler fails is dropped, so delivery is at most once.
type MemoryQueuer struct {
	messages chan []byte
}

func NewMemoryQueuer(size int) *MemoryQueuer {
	return &MemoryQueuer{messages: make(chan []byte, size)}
}

// Never blocks. Returns ErrQueueFull when the buffer is exhausted.
func (q *MemoryQueuer) Enqueue(ctx context.Context, message any) error {
	_, span := tracer.Start(ctx, "Memory.Enqueue")
	defer span.End()

	msgJSON, err := json.Marshal(message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal message")
		return err
	}

	select {
	case q.messages <- msgJSON:
	default:
		span.RecordError(ErrQueueFull)
		span.SetStatus(codes.Error, "queue full")
		return ErrQueueFull
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "enqueued message")
	return nil
}

func (q *MemoryQueuer) Dequeue(
	ctx context.Context,
	timeout time.Duration,
	handler MessageHandler,
) error {
	ctx, span := tracer.Start(ctx, "Memory.Dequeue", trace.WithAttributes(
		attribute.Int64("timeoutSecs", int64(timeout.Seconds())),
	))
	defer span.End()

	var msg []byte
	select {
	case <-ctx.Done():
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "context cancelled")
		return ctx.Err()
	case msg = <-q.messages:
	}

	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := handler.Handle(handlerCtx, msg); err != nil {
		if IsPoison(err) {
			span.AddEvent("poisoned_message")
		}
		span.AddEvent("failed_message_handler", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "dequeued message but failed to handle")
		return nil
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "dequeued message")
	return nil
}

// Number of buffered messages
func (q *MemoryQueuer) Len() int {
	return len(q.messages)
}
