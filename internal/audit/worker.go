package audit

import (
	"context"
)

// Worker consumes audit events from a channel and persists them through the
// publisher. It keeps background processing testable without wiring queue
// implementations into services.
type Worker struct {
	publisher *Publisher
	inbox     <-chan Event
}

func NewWorker(publisher *Publisher, inbox <-chan Event) *Worker {
	return &Worker{publisher: publisher, inbox: inbox}
}

// Run drains the inbox until the context is cancelled. Emit failures are
// already logged by the publisher; the worker keeps draining.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			_ = w.publisher.Emit(ctx, event)
		}
	}
}
