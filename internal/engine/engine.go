package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"homepanel/internal/metrics"
	"homepanel/internal/models"

	"github.com/google/uuid"
)

// DeviceState is the current state of one device as seen by the engine
type DeviceState struct {
	On          bool
	Temperature *float64
}

// DeviceStateStore owns current device state. Implementations persist every
// mutation before announcing it; reads may be served from cache.
type DeviceStateStore interface {
	GetDeviceState(ctx context.Context, homeID, room, name string) (DeviceState, error)
	SetDeviceState(ctx context.Context, homeID, room, name string, on bool) error
	SetTemperature(ctx context.Context, homeID, room, name string, value float64) error
	SwitchStates(ctx context.Context, homeID string) (map[string]bool, error)
	TemperatureStates(ctx context.Context, homeID string) (map[string]float64, error)
	SensorValue(ctx context.Context, homeID, key string) (float64, bool, error)
}

// AutomationRepository owns automation definitions and their running stats
type AutomationRepository interface {
	ListEnabledAutomations(ctx context.Context, homeID string) ([]models.Automation, error)
	RecordExecutionStats(ctx context.Context, automationID string, executedAt time.Time, errorMessage *string) error
	AppendExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) error
}

// Broadcaster fans events out to connected real-time clients. Fire-and-forget;
// at-least-once delivery is acceptable.
type Broadcaster interface {
	Publish(event string, payload any)
}

// NotificationSender delivers out-of-band alerts
type NotificationSender interface {
	SendAlert(ctx context.Context, eventType string, details map[string]any) bool
}

// Engine evaluates automation triggers and runs their actions. Two entry
// points share executeAutomation: OnDeviceChanged reacts to a single device
// mutation, Tick sweeps time/sensor/steady-state triggers once a minute.
type Engine struct {
	devices  DeviceStateStore
	repo     AutomationRepository
	executor *Executor
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewEngine creates an automation engine
func NewEngine(devices DeviceStateStore, repo AutomationRepository, broadcaster Broadcaster, notifier NotificationSender) *Engine {
	return &Engine{
		devices:  devices,
		repo:     repo,
		executor: NewExecutor(devices, broadcaster, notifier),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
}

// OnDeviceChanged runs the event path for one device mutation. It is called
// synchronously from the mutation code path after the primary state change is
// committed; the caller logs the results but does not react to automation
// failures. Only a repository outage returns an error.
func (e *Engine) OnDeviceChanged(ctx context.Context, homeID, room, name string, newState bool, userID string) ([]models.ExecutionResult, error) {
	deviceKey := models.DeviceKey(room, name)

	automations, err := e.repo.ListEnabledAutomations(ctx, homeID)
	if err != nil {
		return nil, fmt.Errorf("list automations for home %s: %w", homeID, err)
	}

	var results []models.ExecutionResult
	var persistErr error
	for _, a := range automations {
		if !MatchesDeviceEvent(a.Trigger, deviceKey, newState) {
			continue
		}
		triggerData := map[string]any{
			"source":  "device_event",
			"device":  deviceKey,
			"state":   newState,
			"user_id": userID,
		}
		result, err := e.runAutomation(ctx, a, triggerData)
		if err != nil {
			if persistErr == nil {
				persistErr = err
			}
			continue
		}
		if result != nil {
			results = append(results, *result)
		}
	}
	return results, persistErr
}

// Tick runs the periodic path once: time triggers at minute-equality, device
// triggers against persisted state (toggle skipped), sensor triggers against
// the current reading. Invoked every 60s by the scheduler; also called
// directly by tests.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()

	automations, err := e.repo.ListEnabledAutomations(ctx, "")
	if err != nil {
		return fmt.Errorf("list automations: %w", err)
	}

	var persistErr error
	for _, a := range automations {
		fire := false
		triggerData := map[string]any{"source": "tick", "time": now.Format("15:04")}

		switch a.Trigger.Type {
		case models.TriggerTime:
			fire = MatchesTimeNow(a.Trigger, now)

		case models.TriggerDevice:
			if a.Trigger.State == models.StateToggle {
				continue
			}
			room, name, ok := models.SplitDeviceKey(a.Trigger.Device)
			if !ok {
				continue
			}
			state, err := e.devices.GetDeviceState(ctx, a.HomeID, room, name)
			if errors.Is(err, models.ErrDeviceNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("read device %s: %w", a.Trigger.Device, err)
			}
			fire = MatchesDevicePoll(a.Trigger, state.On)
			triggerData["device"] = a.Trigger.Device
			triggerData["state"] = state.On

		case models.TriggerSensor:
			value, present, err := e.devices.SensorValue(ctx, a.HomeID, a.Trigger.Sensor)
			if err != nil {
				return fmt.Errorf("read sensor %s: %w", a.Trigger.Sensor, err)
			}
			fire = MatchesSensor(a.Trigger, value, present)
			if present {
				triggerData["sensor"] = a.Trigger.Sensor
				triggerData["value"] = value
			}
		}

		if !fire {
			continue
		}
		if _, err := e.runAutomation(ctx, a, triggerData); err != nil && persistErr == nil {
			persistErr = err
		}
	}
	return persistErr
}

// runAutomation guards against concurrent re-entry for the same automation id
// and delegates to executeAutomation. A nil result means the run was skipped
// because a previous execution is still in flight.
func (e *Engine) runAutomation(ctx context.Context, a models.Automation, triggerData map[string]any) (*models.ExecutionResult, error) {
	if !e.tryAcquire(a.ID) {
		log.Printf("ENGINE: automation %s (%s) still in flight, skipping", a.ID, a.Name)
		return nil, nil
	}
	defer e.release(a.ID)

	result, err := e.executeAutomation(ctx, a, triggerData)
	return &result, err
}

// executeAutomation runs every action in order, never stopping early on a
// single action error, then persists the execution record (best-effort) and
// the automation's running stats. The returned error is non-nil only when the
// stats write fails; per-action failures live in the result.
func (e *Engine) executeAutomation(ctx context.Context, a models.Automation, triggerData map[string]any) (models.ExecutionResult, error) {
	start := e.now()

	var actionResults []models.ActionResult
	var errs []string
	for _, action := range a.Actions {
		result := e.executor.Execute(ctx, a.HomeID, action)
		actionResults = append(actionResults, result)
		if result.Status == models.StatusError {
			errs = append(errs, result.Error)
		}
	}

	end := e.now()
	elapsedMs := end.Sub(start).Milliseconds()

	status := models.StatusSuccess
	var errorMessage *string
	if len(errs) > 0 {
		status = models.StatusError
		joined := strings.Join(errs, "; ")
		errorMessage = &joined
	}

	triggerRaw, _ := json.Marshal(triggerData)
	record := &models.ExecutionRecord{
		ID:              uuid.NewString(),
		AutomationID:    a.ID,
		Status:          status,
		TriggerData:     triggerRaw,
		ActionsExecuted: actionResults,
		ErrorMessage:    errorMessage,
		ExecutionTimeMs: elapsedMs,
		ExecutedAt:      end,
	}
	if err := e.repo.AppendExecutionRecord(ctx, record); err != nil {
		log.Printf("ENGINE: execution log append for automation %s failed: %v", a.ID, err)
	}

	metrics.Count("automation.executions", 1, "status:"+status)
	if status == models.StatusError {
		metrics.Count("automation.action_errors", int64(len(errs)))
	}
	metrics.Timing("automation.execution_time", time.Duration(elapsedMs)*time.Millisecond)

	result := models.ExecutionResult{
		AutomationID:    a.ID,
		AutomationName:  a.Name,
		Status:          status,
		ActionsExecuted: len(actionResults),
		Errors:          errs,
		ExecutionTimeMs: elapsedMs,
	}

	if err := e.repo.RecordExecutionStats(ctx, a.ID, end, errorMessage); err != nil {
		return result, fmt.Errorf("record stats for automation %s: %w", a.ID, err)
	}

	log.Printf("ENGINE: automation %s (%s) executed, status=%s actions=%d in %dms",
		a.ID, a.Name, status, len(actionResults), elapsedMs)
	return result, nil
}

func (e *Engine) tryAcquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	metrics.Gauge("automation.in_flight", float64(len(e.inFlight)))
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, id)
	metrics.Gauge("automation.in_flight", float64(len(e.inFlight)))
}
