package engine

import (
	"context"
	"errors"
	"testing"

	"homepanel/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory DeviceStateStore for tests
type fakeStore struct {
	devices map[string]DeviceState
	sensors map[string]float64

	getErr error
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		devices: make(map[string]DeviceState),
		sensors: make(map[string]float64),
	}
}

func storeKey(homeID, room, name string) string {
	return homeID + "/" + models.DeviceKey(room, name)
}

func (s *fakeStore) GetDeviceState(_ context.Context, homeID, room, name string) (DeviceState, error) {
	if s.getErr != nil {
		return DeviceState{}, s.getErr
	}
	state, ok := s.devices[storeKey(homeID, room, name)]
	if !ok {
		return DeviceState{}, models.ErrDeviceNotFound
	}
	return state, nil
}

func (s *fakeStore) SetDeviceState(_ context.Context, homeID, room, name string, on bool) error {
	if s.setErr != nil {
		return s.setErr
	}
	key := storeKey(homeID, room, name)
	state, ok := s.devices[key]
	if !ok {
		return models.ErrDeviceNotFound
	}
	state.On = on
	s.devices[key] = state
	return nil
}

func (s *fakeStore) SetTemperature(_ context.Context, homeID, room, name string, value float64) error {
	if s.setErr != nil {
		return s.setErr
	}
	key := storeKey(homeID, room, name)
	state, ok := s.devices[key]
	if !ok {
		return models.ErrDeviceNotFound
	}
	state.Temperature = &value
	s.devices[key] = state
	return nil
}

func (s *fakeStore) SwitchStates(_ context.Context, homeID string) (map[string]bool, error) {
	out := make(map[string]bool)
	for key, state := range s.devices {
		if state.Temperature == nil {
			out[key] = state.On
		}
	}
	return out, nil
}

func (s *fakeStore) TemperatureStates(_ context.Context, homeID string) (map[string]float64, error) {
	out := make(map[string]float64)
	for key, state := range s.devices {
		if state.Temperature != nil {
			out[key] = *state.Temperature
		}
	}
	return out, nil
}

func (s *fakeStore) SensorValue(_ context.Context, homeID, key string) (float64, bool, error) {
	if s.getErr != nil {
		return 0, false, s.getErr
	}
	value, ok := s.sensors[homeID+"/"+key]
	return value, ok, nil
}

type broadcastCall struct {
	event   string
	payload any
}

// fakeBroadcaster records published events
type fakeBroadcaster struct {
	calls []broadcastCall
}

func (b *fakeBroadcaster) Publish(event string, payload any) {
	b.calls = append(b.calls, broadcastCall{event: event, payload: payload})
}

func (b *fakeBroadcaster) events() []string {
	var names []string
	for _, c := range b.calls {
		names = append(names, c.event)
	}
	return names
}

// fakeNotifier records alerts and can be told to fail
type fakeNotifier struct {
	alerts []map[string]any
	fail   bool
}

func (n *fakeNotifier) SendAlert(_ context.Context, eventType string, details map[string]any) bool {
	n.alerts = append(n.alerts, details)
	return !n.fail
}

func seedSwitch(s *fakeStore, homeID, room, name string, on bool) {
	s.devices[storeKey(homeID, room, name)] = DeviceState{On: on}
}

func seedThermostat(s *fakeStore, homeID, room, name string, on bool, temp float64) {
	s.devices[storeKey(homeID, room, name)] = DeviceState{On: on, Temperature: &temp}
}

func floatPtr(v float64) *float64 { return &v }

func TestExecutorSwitchDevice(t *testing.T) {
	tests := []struct {
		name    string
		initial bool
		state   string
		wantOn  bool
	}{
		{"turn on", false, models.StateOn, true},
		{"turn off", true, models.StateOff, false},
		{"toggle from off", false, models.StateToggle, true},
		{"toggle from on", true, models.StateToggle, false},
		{"on is idempotent", true, models.StateOn, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seedSwitch(store, "h1", "kitchen", "light", tt.initial)
			bc := &fakeBroadcaster{}
			x := NewExecutor(store, bc, &fakeNotifier{})

			result := x.Execute(context.Background(), "h1", models.Action{
				Type: models.ActionDevice, Device: "kitchen_light", State: tt.state,
			})

			assert.Equal(t, models.StatusSuccess, result.Status)
			got, err := store.GetDeviceState(context.Background(), "h1", "kitchen", "light")
			require.NoError(t, err)
			assert.Equal(t, tt.wantOn, got.On)
			assert.Equal(t, []string{EventUpdateButton, EventSyncButtonStates}, bc.events())
		})
	}
}

func TestExecutorThermostatControl(t *testing.T) {
	store := newFakeStore()
	seedThermostat(store, "h1", "living", "thermostat", false, 21)
	bc := &fakeBroadcaster{}
	x := NewExecutor(store, bc, &fakeNotifier{})

	result := x.Execute(context.Background(), "h1", models.Action{
		Type: models.ActionThermostatControl, Device: "living_thermostat", State: models.StateOn,
	})

	assert.Equal(t, models.StatusSuccess, result.Status)
	got, err := store.GetDeviceState(context.Background(), "h1", "living", "thermostat")
	require.NoError(t, err)
	assert.True(t, got.On)
	assert.Equal(t, []string{EventUpdateTemp, EventSyncTemp}, bc.events())
}

func TestExecutorSetTemperature(t *testing.T) {
	t.Run("persists and broadcasts", func(t *testing.T) {
		store := newFakeStore()
		seedThermostat(store, "h1", "living", "thermostat", true, 20)
		bc := &fakeBroadcaster{}
		x := NewExecutor(store, bc, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionSetTemperature, Thermostat: "living_thermostat", Temperature: floatPtr(21.5),
		})

		assert.Equal(t, models.StatusSuccess, result.Status)
		got, _ := store.GetDeviceState(context.Background(), "h1", "living", "thermostat")
		assert.Equal(t, 21.5, *got.Temperature)
		assert.Equal(t, []string{EventUpdateTemp, EventSyncTemp}, bc.events())
	})

	t.Run("no range clamp on the automation path", func(t *testing.T) {
		store := newFakeStore()
		seedThermostat(store, "h1", "living", "thermostat", true, 20)
		x := NewExecutor(store, &fakeBroadcaster{}, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionSetTemperature, Thermostat: "living_thermostat", Temperature: floatPtr(45),
		})

		assert.Equal(t, models.StatusSuccess, result.Status)
		got, _ := store.GetDeviceState(context.Background(), "h1", "living", "thermostat")
		assert.Equal(t, 45.0, *got.Temperature)
	})

	t.Run("missing temperature field is a per-action error", func(t *testing.T) {
		store := newFakeStore()
		seedThermostat(store, "h1", "living", "thermostat", true, 20)
		x := NewExecutor(store, &fakeBroadcaster{}, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionSetTemperature, Thermostat: "living_thermostat",
		})

		assert.Equal(t, models.StatusError, result.Status)
		assert.Contains(t, result.Error, "missing temperature")
		got, _ := store.GetDeviceState(context.Background(), "h1", "living", "thermostat")
		assert.Equal(t, 20.0, *got.Temperature)
	})

	t.Run("unknown thermostat is a per-action error", func(t *testing.T) {
		store := newFakeStore()
		x := NewExecutor(store, &fakeBroadcaster{}, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionSetTemperature, Thermostat: "living_thermostat", Temperature: floatPtr(21),
		})

		assert.Equal(t, models.StatusError, result.Status)
		assert.Contains(t, result.Error, "living_thermostat")
	})
}

func TestExecutorNotification(t *testing.T) {
	t.Run("success broadcasts and delivers", func(t *testing.T) {
		bc := &fakeBroadcaster{}
		notifier := &fakeNotifier{}
		x := NewExecutor(newFakeStore(), bc, notifier)

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionNotification, Message: "laundry done",
		})

		assert.Equal(t, models.StatusSuccess, result.Status)
		assert.Equal(t, []string{EventNotification}, bc.events())
		require.Len(t, notifier.alerts, 1)
		assert.Equal(t, "laundry done", notifier.alerts[0]["message"])
	})

	t.Run("delivery failure is a per-action error", func(t *testing.T) {
		x := NewExecutor(newFakeStore(), &fakeBroadcaster{}, &fakeNotifier{fail: true})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionNotification, Message: "laundry done",
		})

		assert.Equal(t, models.StatusError, result.Status)
	})
}

func TestExecutorErrorFolding(t *testing.T) {
	t.Run("missing device becomes a result, not a panic", func(t *testing.T) {
		x := NewExecutor(newFakeStore(), &fakeBroadcaster{}, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionDevice, Device: "kitchen_light", State: models.StateOn,
		})

		assert.Equal(t, models.StatusError, result.Status)
		assert.NotEmpty(t, result.Error)
	})

	t.Run("store outage becomes a result", func(t *testing.T) {
		store := newFakeStore()
		seedSwitch(store, "h1", "kitchen", "light", false)
		store.setErr = errors.New("connection refused")
		x := NewExecutor(store, &fakeBroadcaster{}, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionDevice, Device: "kitchen_light", State: models.StateOn,
		})

		assert.Equal(t, models.StatusError, result.Status)
		assert.Contains(t, result.Error, "connection refused")
	})

	t.Run("unknown action type becomes a result", func(t *testing.T) {
		x := NewExecutor(newFakeStore(), &fakeBroadcaster{}, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{Type: "teleport"})

		assert.Equal(t, models.StatusError, result.Status)
		assert.Contains(t, result.Error, "teleport")
	})

	t.Run("bad device key becomes a result", func(t *testing.T) {
		x := NewExecutor(newFakeStore(), &fakeBroadcaster{}, &fakeNotifier{})

		result := x.Execute(context.Background(), "h1", models.Action{
			Type: models.ActionDevice, Device: "nounderscore", State: models.StateOn,
		})

		assert.Equal(t, models.StatusError, result.Status)
	})
}
