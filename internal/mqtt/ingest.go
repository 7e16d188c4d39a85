package mqtt

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"homepanel/internal/broadcast"
	"homepanel/internal/devstore"
	"homepanel/internal/engine"
	"homepanel/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topic layout:
//
//	homes/{home_id}/devices/{room}_{name}/state   {"state": bool, "temperature": number}
//	homes/{home_id}/sensors/{key}/value           "23.5" or {"value": 23.5}
const (
	deviceStateTopic = "homes/+/devices/+/state"
	sensorValueTopic = "homes/+/sensors/+/value"
)

// Ingest feeds device reports and sensor readings from the MQTT broker into
// the device store and fires the engine's event path on state changes.
type Ingest struct {
	client    mqtt.Client
	store     *devstore.Store
	publisher *broadcast.Publisher
	engine    *engine.Engine
}

// NewIngest creates the MQTT ingest
func NewIngest(client mqtt.Client, store *devstore.Store, publisher *broadcast.Publisher, eng *engine.Engine) *Ingest {
	return &Ingest{client: client, store: store, publisher: publisher, engine: eng}
}

// Start subscribes to the device and sensor topics
func (i *Ingest) Start() error {
	if token := i.client.Subscribe(deviceStateTopic, 1, i.onDeviceState); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	if token := i.client.Subscribe(sensorValueTopic, 1, i.onSensorValue); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Println("MQTT: ingest subscribed")
	return nil
}

// Stop disconnects from the broker
func (i *Ingest) Stop() {
	i.client.Disconnect(250)
	log.Println("MQTT: ingest stopped")
}

type deviceReport struct {
	State       *bool    `json:"state"`
	Temperature *float64 `json:"temperature"`
}

func (i *Ingest) onDeviceState(_ mqtt.Client, msg mqtt.Message) {
	homeID, deviceKey, ok := parseTopic(msg.Topic(), "devices")
	if !ok {
		log.Printf("MQTT: ignoring malformed topic %s", msg.Topic())
		return
	}
	room, name, ok := models.SplitDeviceKey(deviceKey)
	if !ok {
		log.Printf("MQTT: ignoring bad device key in topic %s", msg.Topic())
		return
	}

	var report deviceReport
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		log.Printf("MQTT: bad device report on %s: %v", msg.Topic(), err)
		return
	}

	ctx := context.Background()

	if report.Temperature != nil {
		if err := i.store.SetTemperature(ctx, homeID, room, name, *report.Temperature); err != nil {
			log.Printf("MQTT: temperature report for %s failed: %v", deviceKey, err)
		} else {
			i.publisher.Publish(engine.EventUpdateTemp, map[string]any{
				"home_id": homeID, "device": deviceKey, "temperature": *report.Temperature,
			})
		}
	}

	if report.State == nil {
		return
	}
	if err := i.store.SetDeviceState(ctx, homeID, room, name, *report.State); err != nil {
		log.Printf("MQTT: state report for %s failed: %v", deviceKey, err)
		return
	}
	i.publisher.Publish(engine.EventUpdateButton, map[string]any{
		"home_id": homeID, "device": deviceKey, "state": *report.State,
	})

	results, err := i.engine.OnDeviceChanged(ctx, homeID, room, name, *report.State, "")
	if err != nil {
		log.Printf("MQTT: automation sweep for %s failed: %v", deviceKey, err)
		return
	}
	if len(results) > 0 {
		log.Printf("MQTT: device %s fired %d automation(s)", deviceKey, len(results))
	}
}

func (i *Ingest) onSensorValue(_ mqtt.Client, msg mqtt.Message) {
	homeID, sensorKey, ok := parseTopic(msg.Topic(), "sensors")
	if !ok {
		log.Printf("MQTT: ignoring malformed topic %s", msg.Topic())
		return
	}

	value, ok := parseSensorPayload(msg.Payload())
	if !ok {
		log.Printf("MQTT: bad sensor payload on %s: %q", msg.Topic(), msg.Payload())
		return
	}
	if err := i.store.WriteSensorValue(context.Background(), homeID, sensorKey, value); err != nil {
		log.Printf("MQTT: sensor write for %s/%s failed: %v", homeID, sensorKey, err)
	}
}

// parseTopic extracts (home_id, key) from homes/{home}/{kind}/{key}/{leaf}
func parseTopic(topic, kind string) (homeID, key string, ok bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "homes" || parts[2] != kind {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// parseSensorPayload accepts a bare number or {"value": n}
func parseSensorPayload(payload []byte) (float64, bool) {
	var value float64
	if err := json.Unmarshal(payload, &value); err == nil {
		return value, true
	}
	var wrapped struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.Value != nil {
		return *wrapped.Value, true
	}
	return 0, false
}
