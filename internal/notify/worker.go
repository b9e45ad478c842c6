package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/status-garden/internal/domain"
)

// EventSender delivers one rendered message.
type EventSender interface {
	Send(ctx context.Context, subject, body string) error
}

// Worker drains the notifier queue and delivers events. Delivery is
// single-attempt; a failed send is logged and dropped.
type Worker struct {
	notifier *Notifier
	sender   EventSender

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a notification worker.
func NewWorker(notifier *Notifier, sender EventSender) *Worker {
	return &Worker{
		notifier: notifier,
		sender:   sender,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker")
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker. Queued but undelivered events are dropped.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("notification worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event := <-w.notifier.Events():
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event *domain.Event) {
	start := time.Now()

	subject, body := Render(event)

	if err := w.sender.Send(ctx, subject, body); err != nil {
		recordEventSent(string(event.Kind), "failed")
		slog.Warn("notification delivery failed",
			"kind", event.Kind,
			"service_id", event.ServiceID,
			"error", err,
		)
		return
	}

	recordEventSent(string(event.Kind), "success")
	recordSendDuration(time.Since(start))

	slog.Debug("notification sent",
		"kind", event.Kind,
		"service_id", event.ServiceID,
		"duration", time.Since(start),
	)
}
