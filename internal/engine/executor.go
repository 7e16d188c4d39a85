package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"homepanel/internal/models"
)

// notifyTimeout bounds the notification path so a slow sender cannot stall
// the sweep; a timeout becomes a normal per-action error outcome.
const notifyTimeout = 5 * time.Second

// Broadcast event names consumed by connected clients
const (
	EventUpdateButton     = "update_button"
	EventSyncButtonStates = "sync_button_states"
	EventUpdateTemp       = "update_temperature"
	EventSyncTemp         = "sync_temperature"
	EventNotification     = "automation_notification"
)

// Executor applies single action descriptors against the device store and
// the outbound side effects. It never returns a Go error: every failure is
// folded into the ActionResult so one bad action cannot abort the rest of an
// automation run.
type Executor struct {
	devices     DeviceStateStore
	broadcaster Broadcaster
	notifier    NotificationSender
}

// NewExecutor creates an action executor
func NewExecutor(devices DeviceStateStore, broadcaster Broadcaster, notifier NotificationSender) *Executor {
	return &Executor{devices: devices, broadcaster: broadcaster, notifier: notifier}
}

// Execute applies one action and reports its outcome
func (x *Executor) Execute(ctx context.Context, homeID string, action models.Action) models.ActionResult {
	result := models.ActionResult{Type: action.Type, Status: models.StatusSuccess, Action: action}

	var err error
	switch action.Type {
	case models.ActionDevice:
		err = x.switchDevice(ctx, homeID, action.Device, action.State, false)
	case models.ActionThermostatControl:
		err = x.switchDevice(ctx, homeID, action.Device, action.State, true)
	case models.ActionSetTemperature:
		if action.Temperature == nil {
			err = fmt.Errorf("set_temperature action for %s missing temperature", action.Thermostat)
		} else {
			err = x.setTemperature(ctx, homeID, action.Thermostat, *action.Temperature)
		}
	case models.ActionNotification:
		err = x.sendNotification(ctx, homeID, action.Message)
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	if err != nil {
		result.Status = models.StatusError
		result.Error = err.Error()
	}
	return result
}

// switchDevice computes and persists the new on/off state of a switch or a
// thermostat enable toggle, then fans the change out to connected clients.
func (x *Executor) switchDevice(ctx context.Context, homeID, deviceKey, state string, thermostat bool) error {
	room, name, ok := models.SplitDeviceKey(deviceKey)
	if !ok {
		return fmt.Errorf("bad device key %q", deviceKey)
	}

	current, err := x.devices.GetDeviceState(ctx, homeID, room, name)
	if err != nil {
		return fmt.Errorf("device %s: %w", deviceKey, err)
	}

	newState := current.On
	switch state {
	case models.StateOn:
		newState = true
	case models.StateOff:
		newState = false
	case models.StateToggle:
		newState = !current.On
	}

	if err := x.devices.SetDeviceState(ctx, homeID, room, name, newState); err != nil {
		return fmt.Errorf("set state of %s: %w", deviceKey, err)
	}

	if thermostat {
		x.broadcaster.Publish(EventUpdateTemp, map[string]any{
			"home_id": homeID, "device": deviceKey, "state": newState, "temperature": current.Temperature,
		})
		x.syncTemperatures(ctx, homeID)
	} else {
		x.broadcaster.Publish(EventUpdateButton, map[string]any{
			"home_id": homeID, "device": deviceKey, "state": newState,
		})
		x.syncSwitches(ctx, homeID)
	}
	return nil
}

// setTemperature persists a thermostat target. The 16-30 range check belongs
// to the user-facing API; automations write whatever an admin configured.
func (x *Executor) setTemperature(ctx context.Context, homeID, thermostatKey string, value float64) error {
	room, name, ok := models.SplitDeviceKey(thermostatKey)
	if !ok {
		return fmt.Errorf("bad thermostat key %q", thermostatKey)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("temperature for %s is not a number", thermostatKey)
	}

	if _, err := x.devices.GetDeviceState(ctx, homeID, room, name); err != nil {
		return fmt.Errorf("thermostat %s: %w", thermostatKey, err)
	}
	if err := x.devices.SetTemperature(ctx, homeID, room, name, value); err != nil {
		return fmt.Errorf("set temperature of %s: %w", thermostatKey, err)
	}

	x.broadcaster.Publish(EventUpdateTemp, map[string]any{
		"home_id": homeID, "device": thermostatKey, "temperature": value,
	})
	x.syncTemperatures(ctx, homeID)
	return nil
}

// sendNotification pushes an out-of-band alert and mirrors it to connected
// clients. Does not touch device state.
func (x *Executor) sendNotification(ctx context.Context, homeID, message string) error {
	x.broadcaster.Publish(EventNotification, map[string]any{
		"home_id": homeID, "message": message,
	})

	sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()
	if !x.notifier.SendAlert(sendCtx, "automation", map[string]any{"home_id": homeID, "message": message}) {
		return fmt.Errorf("notification send failed")
	}
	return nil
}

// syncSwitches broadcasts a full on/off snapshot so clients that missed the
// single-device event converge anyway. Snapshot failures only cost the batch
// event; the state change itself is already persisted and announced.
func (x *Executor) syncSwitches(ctx context.Context, homeID string) {
	states, err := x.devices.SwitchStates(ctx, homeID)
	if err != nil {
		log.Printf("EXECUTOR: switch snapshot for home %s failed: %v", homeID, err)
		return
	}
	x.broadcaster.Publish(EventSyncButtonStates, map[string]any{"home_id": homeID, "states": states})
}

func (x *Executor) syncTemperatures(ctx context.Context, homeID string) {
	temps, err := x.devices.TemperatureStates(ctx, homeID)
	if err != nil {
		log.Printf("EXECUTOR: temperature snapshot for home %s failed: %v", homeID, err)
		return
	}
	x.broadcaster.Publish(EventSyncTemp, map[string]any{"home_id": homeID, "temperatures": temps})
}
