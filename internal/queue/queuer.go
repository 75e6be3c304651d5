// Package queue carries notification events from the ingestion path to the dispatcher workers
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/sweetmon/triage-api/internal/queue")

//go:generate mockgen -destination ./mock/mock.go -package mock . Queuer,MessageHandler

// Queuer moves JSON encoded messages between processes. Delivery is at least once for the
// Azure backend and at most once for the in-memory one
type Queuer interface {
	// Enqueue may block while the backend accepts the message
	Enqueue(ctx context.Context, message any) error
	// Dequeue waits for one message and runs handler on it with at most timeout to finish.
	//
	// A handler returning a poison error drops the message, any other error hands it back for a retry.
	Dequeue(ctx context.Context, timeout time.Duration, handler MessageHandler) error
}

var ErrQueueFull = errors.New("queue is full")

type MessageHandler interface {
	Handle(ctx context.Context, message []byte) error
}

// Marks a message that can never be handled, so it is not requeued
type PoisonError struct {
	Err error
}

func (p PoisonError) Error() string {
	return fmt.Sprintf("poisoned message: %v", p.Err)
}

func (p PoisonError) Unwrap() error {
	return p.Err
}

func WrapPoisonError(err error) error {
	return &PoisonError{Err: err}
}

// IsPoison reports whether any error in err's chain is a poison error
func IsPoison(err error) bool {
	var pe *PoisonError
	return errors.As(err, &pe)
}
