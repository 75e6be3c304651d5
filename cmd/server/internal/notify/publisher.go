package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sweetmon/triage-api/internal/logger"
	triageotel "github.com/sweetmon/triage-api/internal/otel"
	"github.com/sweetmon/triage-api/internal/queue"
	"github.com/sweetmon/triage-api/internal/types"
)

const DefaultPublishTimeout = 10 * time.Second

// Publisher hands events to the queue off the caller's goroutine
type Publisher struct {
	queuer  queue.Queuer
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewPublisher(queuer queue.Queuer, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{queuer: queuer, timeout: timeout}
}

// Publish never blocks. The enqueue outlives the caller's context; a failed enqueue drops the event
func (p *Publisher) Publish(ctx context.Context, event types.NotificationEvent) {
	event.Trace = triageotel.Inject(ctx)
	ctx = context.WithoutCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		if err := p.queuer.Enqueue(ctx, event); err != nil {
			logger.Logger.WarnContext(
				ctx,
				"dropped notification",
				"owner", event.OwnerID,
				"crash", event.RecordID,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every in flight Publish has finished
func (p *Publisher) Wait() {
	p.wg.Wait()
}
