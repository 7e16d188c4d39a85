package devstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"homepanel/internal/db"
	"homepanel/internal/engine"
	"homepanel/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	cacheTTL  = time.Hour
	sensorTTL = 30 * time.Minute
)

// Store is the device state store: Postgres is the source of truth, Redis
// serves reads and holds the ephemeral sensor value map. Every write goes
// database first, then invalidates the cache entry, so a broadcast that
// follows a write never races a stale read.
type Store struct {
	db    *db.DB
	redis *redis.Client
}

// NewStore creates a device state store
func NewStore(dbConn *db.DB, redisClient *redis.Client) *Store {
	return &Store{db: dbConn, redis: redisClient}
}

type cachedState struct {
	State       bool     `json:"state"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func deviceCacheKey(homeID, room, name string) string {
	return fmt.Sprintf("device:%s:%s", homeID, models.DeviceKey(room, name))
}

func sensorKey(homeID, key string) string {
	return fmt.Sprintf("sensor:%s:%s", homeID, key)
}

// GetDeviceState returns the current state of one device
func (s *Store) GetDeviceState(ctx context.Context, homeID, room, name string) (engine.DeviceState, error) {
	cacheKey := deviceCacheKey(homeID, room, name)
	if raw, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
		var cached cachedState
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return engine.DeviceState{On: cached.State, Temperature: cached.Temperature}, nil
		}
		log.Printf("DEVSTORE: dropping corrupt cache entry %s", cacheKey)
		s.redis.Del(ctx, cacheKey)
	}

	device, err := s.db.GetDevice(ctx, homeID, room, name)
	if errors.Is(err, db.ErrNotFound) {
		return engine.DeviceState{}, models.ErrDeviceNotFound
	}
	if err != nil {
		return engine.DeviceState{}, err
	}

	if raw, err := json.Marshal(cachedState{State: device.State, Temperature: device.Temperature}); err == nil {
		s.redis.Set(ctx, cacheKey, raw, cacheTTL)
	}
	return engine.DeviceState{On: device.State, Temperature: device.Temperature}, nil
}

// SetDeviceState persists a new on/off state and invalidates the cache entry
func (s *Store) SetDeviceState(ctx context.Context, homeID, room, name string, on bool) error {
	err := s.db.UpdateDeviceState(ctx, homeID, room, name, on)
	if errors.Is(err, db.ErrNotFound) {
		return models.ErrDeviceNotFound
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, homeID, room, name)
	return nil
}

// SetTemperature persists a thermostat target and invalidates the cache entry
func (s *Store) SetTemperature(ctx context.Context, homeID, room, name string, value float64) error {
	err := s.db.UpdateDeviceTemperature(ctx, homeID, room, name, value)
	if errors.Is(err, db.ErrNotFound) {
		return models.ErrDeviceNotFound
	}
	if err != nil {
		return err
	}
	s.invalidate(ctx, homeID, room, name)
	return nil
}

// SwitchStates returns the on/off snapshot of every switch in a home
func (s *Store) SwitchStates(ctx context.Context, homeID string) (map[string]bool, error) {
	devices, err := s.db.ListDevices(ctx, homeID)
	if err != nil {
		return nil, err
	}
	states := make(map[string]bool)
	for _, device := range devices {
		if device.Type == models.DeviceSwitch {
			states[device.Key()] = device.State
		}
	}
	return states, nil
}

// TemperatureStates returns the target temperature snapshot of every
// thermostat in a home
func (s *Store) TemperatureStates(ctx context.Context, homeID string) (map[string]float64, error) {
	devices, err := s.db.ListDevices(ctx, homeID)
	if err != nil {
		return nil, err
	}
	temps := make(map[string]float64)
	for _, device := range devices {
		if device.Type == models.DeviceThermostat && device.Temperature != nil {
			temps[device.Key()] = *device.Temperature
		}
	}
	return temps, nil
}

// SensorValue reads the latest reading for a sensor key. present is false
// when no reading exists or the stored value is unparseable.
func (s *Store) SensorValue(ctx context.Context, homeID, key string) (float64, bool, error) {
	raw, err := s.redis.Get(ctx, sensorKey(homeID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("DEVSTORE: unparseable sensor value for %s/%s: %q", homeID, key, raw)
		return 0, false, nil
	}
	return value, true, nil
}

// WriteSensorValue stores a sensor reading; readings expire so stale sensors
// stop matching rather than matching forever on the last value.
func (s *Store) WriteSensorValue(ctx context.Context, homeID, key string, value float64) error {
	return s.redis.Set(ctx, sensorKey(homeID, key), strconv.FormatFloat(value, 'f', -1, 64), sensorTTL).Err()
}

// Invalidate drops the cache entry of a device; used by the management API
// after create/delete.
func (s *Store) Invalidate(ctx context.Context, homeID, room, name string) {
	s.invalidate(ctx, homeID, room, name)
}

func (s *Store) invalidate(ctx context.Context, homeID, room, name string) {
	if err := s.redis.Del(ctx, deviceCacheKey(homeID, room, name)).Err(); err != nil {
		log.Printf("DEVSTORE: cache invalidation for %s failed: %v", models.DeviceKey(room, name), err)
	}
}
