package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Device type values
const (
	DeviceSwitch     = "switch"
	DeviceThermostat = "thermostat"
)

// Trigger type values
const (
	TriggerDevice = "device"
	TriggerTime   = "time"
	TriggerSensor = "sensor"
)

// Action type values
const (
	ActionDevice            = "device"
	ActionThermostatControl = "thermostat_control"
	ActionSetTemperature    = "set_temperature"
	ActionNotification      = "notification"
)

// Trigger/action state values for switch-like targets
const (
	StateOn     = "on"
	StateOff    = "off"
	StateToggle = "toggle"
)

// Sensor condition values
const (
	ConditionAbove  = "above"
	ConditionBelow  = "below"
	ConditionEquals = "equals"
)

// Execution status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Temperature range accepted by the user-facing thermostat API.
// Automation actions intentionally bypass this check.
const (
	TemperatureMin = 16.0
	TemperatureMax = 30.0
)

var weekdayCodes = map[string]bool{
	"mon": true, "tue": true, "wed": true, "thu": true,
	"fri": true, "sat": true, "sun": true,
}

// ErrInvalidDescriptor marks a malformed trigger or action descriptor.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// ErrDeviceNotFound is returned when a composite device key resolves to no
// device in the home. Dangling automation references degrade to a no-op.
var ErrDeviceNotFound = errors.New("device not found")

// Device represents a switch or thermostat in a room
type Device struct {
	ID          string   `json:"id"`
	HomeID      string   `json:"home_id"`
	Room        string   `json:"room"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	State       bool     `json:"state"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Key returns the composite "{room}_{name}" key automations use to
// reference a device. Unique per home.
func (d Device) Key() string {
	return DeviceKey(d.Room, d.Name)
}

// DeviceKey builds the composite device key
func DeviceKey(room, name string) string {
	return room + "_" + name
}

// SplitDeviceKey splits a "{room}_{name}" key back into its parts.
// Room names never contain underscores; device names may.
func SplitDeviceKey(key string) (room, name string, ok bool) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Trigger describes what fires an automation. Exactly one variant applies,
// selected by Type; Validate rejects descriptors with missing variant fields
// so evaluation code never needs defensive lookups.
type Trigger struct {
	Type string `json:"type"`

	// device variant
	Device string `json:"device,omitempty"`
	State  string `json:"state,omitempty"`

	// time variant
	Time string   `json:"time,omitempty"`
	Days []string `json:"days,omitempty"`

	// sensor variant
	Sensor    string  `json:"sensor,omitempty"`
	Condition string  `json:"condition,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Validate checks the trigger descriptor for the fields its variant requires
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerDevice:
		if t.Device == "" {
			return fmt.Errorf("%w: device trigger missing device key", ErrInvalidDescriptor)
		}
		if t.State != StateOn && t.State != StateOff && t.State != StateToggle {
			return fmt.Errorf("%w: device trigger state %q", ErrInvalidDescriptor, t.State)
		}
	case TriggerTime:
		if _, err := time.Parse("15:04", t.Time); err != nil {
			return fmt.Errorf("%w: time trigger time %q", ErrInvalidDescriptor, t.Time)
		}
		for _, day := range t.Days {
			if !weekdayCodes[day] {
				return fmt.Errorf("%w: time trigger day %q", ErrInvalidDescriptor, day)
			}
		}
	case TriggerSensor:
		if t.Sensor == "" {
			return fmt.Errorf("%w: sensor trigger missing sensor key", ErrInvalidDescriptor)
		}
		if t.Condition != ConditionAbove && t.Condition != ConditionBelow && t.Condition != ConditionEquals {
			return fmt.Errorf("%w: sensor trigger condition %q", ErrInvalidDescriptor, t.Condition)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidDescriptor, t.Type)
	}
	return nil
}

// Action describes one step an automation performs. Same flat tagged layout
// as Trigger.
type Action struct {
	Type string `json:"type"`

	// device / thermostat_control variants
	Device string `json:"device,omitempty"`
	State  string `json:"state,omitempty"`

	// set_temperature variant
	Thermostat  string   `json:"thermostat,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	// notification variant
	Message string `json:"message,omitempty"`
}

// Validate checks the action descriptor for the fields its variant requires
func (a Action) Validate() error {
	switch a.Type {
	case ActionDevice, ActionThermostatControl:
		if a.Device == "" {
			return fmt.Errorf("%w: %s action missing device key", ErrInvalidDescriptor, a.Type)
		}
		if a.State != StateOn && a.State != StateOff && a.State != StateToggle {
			return fmt.Errorf("%w: %s action state %q", ErrInvalidDescriptor, a.Type, a.State)
		}
	case ActionSetTemperature:
		if a.Thermostat == "" {
			return fmt.Errorf("%w: set_temperature action missing thermostat key", ErrInvalidDescriptor)
		}
		if a.Temperature == nil {
			return fmt.Errorf("%w: set_temperature action missing temperature", ErrInvalidDescriptor)
		}
	case ActionNotification:
		if a.Message == "" {
			return fmt.Errorf("%w: notification action missing message", ErrInvalidDescriptor)
		}
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidDescriptor, a.Type)
	}
	return nil
}

// Automation is a trigger plus an ordered, non-empty list of actions.
// Name is unique per home, compared case-insensitively.
type Automation struct {
	ID             string     `json:"id"`
	HomeID         string     `json:"home_id"`
	Name           string     `json:"name"`
	Trigger        Trigger    `json:"trigger"`
	Actions        []Action   `json:"actions"`
	Enabled        bool       `json:"enabled"`
	ExecutionCount int        `json:"execution_count"`
	ErrorCount     int        `json:"error_count"`
	LastExecuted   *time.Time `json:"last_executed,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	LastErrorTime  *time.Time `json:"last_error_time,omitempty"`
}

// Validate checks the trigger and every action. Actions order is execution
// order; an empty list is rejected.
func (a Automation) Validate() error {
	if err := a.Trigger.Validate(); err != nil {
		return err
	}
	if len(a.Actions) == 0 {
		return fmt.Errorf("%w: automation has no actions", ErrInvalidDescriptor)
	}
	for i, action := range a.Actions {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

// DecodeTrigger unmarshals and validates a stored trigger descriptor
func DecodeTrigger(raw json.RawMessage) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(raw, &t); err != nil {
		return Trigger{}, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if err := t.Validate(); err != nil {
		return Trigger{}, err
	}
	return t, nil
}

// DecodeActions unmarshals and validates a stored action list
func DecodeActions(raw json.RawMessage) ([]Action, error) {
	var actions []Action
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: empty action list", ErrInvalidDescriptor)
	}
	for i, action := range actions {
		if err := action.Validate(); err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return actions, nil
}

// ActionResult is the outcome of one executed action
type ActionResult struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	Action Action `json:"action"`
	Error  string `json:"error,omitempty"`
}

// ExecutionResult summarizes one automation run for the caller
type ExecutionResult struct {
	AutomationID    string   `json:"automation_id"`
	AutomationName  string   `json:"automation_name"`
	Status          string   `json:"status"`
	ActionsExecuted int      `json:"actions_executed_count"`
	Errors          []string `json:"errors,omitempty"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
}

// ExecutionRecord is one append-only row of the execution log
type ExecutionRecord struct {
	ID              string          `json:"id"`
	AutomationID    string          `json:"automation_id"`
	Status          string          `json:"execution_status"`
	TriggerData     json.RawMessage `json:"trigger_data"`
	ActionsExecuted []ActionResult  `json:"actions_executed"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	ExecutedAt      time.Time       `json:"executed_at"`
}

// WeekdayCode returns the lowercase three-letter code for t's weekday
func WeekdayCode(t time.Time) string {
	return strings.ToLower(t.Weekday().String()[:3])
}
