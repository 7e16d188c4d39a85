package notify

import (
	"context"
	"log"

	"homepanel/internal/taskqueue"
)

// Sender queues alerts on the task queue; delivery and retries happen on the
// worker side. SendAlert reports whether the alert was accepted for delivery.
type Sender struct{}

// NewSender creates a queue-backed notification sender
func NewSender() *Sender {
	return &Sender{}
}

// SendAlert enqueues one alert
func (s *Sender) SendAlert(ctx context.Context, eventType string, details map[string]any) bool {
	if err := ctx.Err(); err != nil {
		log.Printf("NOTIFY: dropping alert %s: %v", eventType, err)
		return false
	}
	if err := taskqueue.EnqueueAlert(eventType, details); err != nil {
		log.Printf("NOTIFY: failed to enqueue alert %s: %v", eventType, err)
		return false
	}
	return true
}
