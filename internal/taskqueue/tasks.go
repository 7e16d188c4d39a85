package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
)

// TypeSendAlert delivers one out-of-band alert to the configured webhook
const TypeSendAlert = "notify:send_alert"

// AlertPayload is the task payload for TypeSendAlert
type AlertPayload struct {
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details"`
}

// EnqueueAlert queues an alert for delivery. Asynq retries transient
// delivery failures so the engine does not have to.
func EnqueueAlert(eventType string, details map[string]any) error {
	if asynqClient == nil {
		return fmt.Errorf("task queue not started")
	}
	payload, err := json.Marshal(AlertPayload{EventType: eventType, Details: details})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeSendAlert, payload)
	info, err := asynqClient.Enqueue(task, asynq.MaxRetry(3), asynq.Timeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	log.Printf("TASKQUEUE: enqueued alert task %s (%s)", info.ID, eventType)
	return nil
}

// handleSendAlertTask posts the alert to the configured webhook
func handleSendAlertTask(ctx context.Context, t *asynq.Task) error {
	var payload AlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal alert payload: %w", err)
	}

	if webhookURL == "" {
		log.Printf("TASKQUEUE: no webhook configured, dropping alert %s", payload.EventType)
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event_type": payload.EventType,
		"details":    payload.Details,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	log.Printf("TASKQUEUE: delivered alert %s", payload.EventType)
	return nil
}
