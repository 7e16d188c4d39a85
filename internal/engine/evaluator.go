package engine

import (
	"math"
	"time"

	"homepanel/internal/models"
)

// sensorEqualsTolerance absorbs floating-point noise in equals conditions
const sensorEqualsTolerance = 0.01

// MatchesDeviceEvent decides whether a device trigger fires for an incoming
// state-change event. Toggle triggers fire on any change of the watched
// device, regardless of direction.
func MatchesDeviceEvent(t models.Trigger, deviceKey string, newState bool) bool {
	if t.Type != models.TriggerDevice || t.Device != deviceKey {
		return false
	}
	switch t.State {
	case models.StateToggle:
		return true
	case models.StateOn:
		return newState
	case models.StateOff:
		return !newState
	}
	return false
}

// MatchesDevicePoll decides whether a device trigger fires against the
// currently persisted state during a periodic sweep. Toggle has no
// steady-state meaning, so toggle triggers never fire here.
func MatchesDevicePoll(t models.Trigger, currentState bool) bool {
	if t.Type != models.TriggerDevice {
		return false
	}
	switch t.State {
	case models.StateOn:
		return currentState
	case models.StateOff:
		return !currentState
	}
	return false
}

// MatchesTimeNow decides whether a time trigger fires at the given instant.
// Matching is minute-granularity equality: the trigger fires for at most one
// sweep per day. A sweep delayed past that minute misses the trigger for the
// day; accepted behavior.
func MatchesTimeNow(t models.Trigger, now time.Time) bool {
	if t.Type != models.TriggerTime {
		return false
	}
	if len(t.Days) > 0 {
		today := models.WeekdayCode(now)
		found := false
		for _, day := range t.Days {
			if day == today {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return t.Time == now.Format("15:04")
}

// MatchesSensor decides whether a sensor trigger fires for the current
// reading. present is false when the sensor key has no reading; the trigger
// never fires then.
func MatchesSensor(t models.Trigger, value float64, present bool) bool {
	if t.Type != models.TriggerSensor || !present {
		return false
	}
	switch t.Condition {
	case models.ConditionAbove:
		return value > t.Value
	case models.ConditionBelow:
		return value < t.Value
	case models.ConditionEquals:
		return math.Abs(value-t.Value) < sensorEqualsTolerance
	}
	return false
}
