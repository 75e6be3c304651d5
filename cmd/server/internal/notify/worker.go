package notify

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetmon/triage-api/internal/logger"
	"github.com/sweetmon/triage-api/internal/queue"
)

const dequeueBackoff = time.Second

// Run consumes the queue with `workers` goroutines until ctx is cancelled
func Run(
	ctx context.Context,
	qr queue.Queuer,
	handler queue.MessageHandler,
	workers int,
	timeout time.Duration,
) {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consume(ctx, qr, handler, timeout, i)
		}()
	}
	wg.Wait()
}

func consume(
	ctx context.Context,
	qr queue.Queuer,
	handler queue.MessageHandler,
	timeout time.Duration,
	worker int,
) {
OUTER:
	for {
		func() {
			//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
			ctx, span := tracer.Start(ctx, "Run.Loop", trace.WithAttributes(
				attribute.Int("worker", worker),
			))
			defer span.End()

			if err := qr.Dequeue(ctx, timeout, handler); err != nil {
				if ctx.Err() != nil {
					return
				}

				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to dequeue and handle message")
				logger.Logger.ErrorContext(ctx, "failed to dequeue notification", "worker", worker, "error", err)

				select {
				case <-ctx.Done():
				case <-time.After(dequeueBackoff):
				}
			}
		}()

		select {
		case <-ctx.Done():
			break OUTER
		default:
			continue
		}
	}
}
