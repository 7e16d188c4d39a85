package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"homepanel/internal/engine"
	"homepanel/internal/models"
	webModels "homepanel/internal/web/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DeviceRepository is the slice of the database layer the device routes need
type DeviceRepository interface {
	ListDevices(ctx context.Context, homeID string) ([]models.Device, error)
	InsertDevice(ctx context.Context, device *models.Device) error
	DeviceKeyExists(ctx context.Context, homeID, room, name string) (bool, error)
	DeleteDevice(ctx context.Context, homeID, deviceID string) (room, name string, err error)
}

// StateStore is the mutation path for device state; all writes go through it
// so persistence, cache invalidation and broadcast stay consistent
type StateStore interface {
	GetDeviceState(ctx context.Context, homeID, room, name string) (engine.DeviceState, error)
	SetDeviceState(ctx context.Context, homeID, room, name string, on bool) error
	SetTemperature(ctx context.Context, homeID, room, name string, value float64) error
	Invalidate(ctx context.Context, homeID, room, name string)
}

// AutomationEngine is the part of the engine the device routes invoke
type AutomationEngine interface {
	OnDeviceChanged(ctx context.Context, homeID, room, name string, newState bool, userID string) ([]models.ExecutionResult, error)
}

// Publisher fans a state change out to connected clients
type Publisher interface {
	Publish(event string, payload any)
}

func RegisterDeviceRoutes(r *gin.Engine, repo DeviceRepository, store StateStore, publisher Publisher, eng AutomationEngine) {
	devices := r.Group("/homes/:home_id/devices")
	{
		devices.GET("", func(c *gin.Context) {
			homeID := c.Param("home_id")
			list, err := repo.ListDevices(c, homeID)
			if err != nil {
				log.Printf("WEB: failed to list devices for home %s: %v", homeID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch devices"})
				return
			}
			if list == nil {
				list = []models.Device{}
			}
			c.JSON(http.StatusOK, list)
		})

		devices.POST("", func(c *gin.Context) {
			homeID := c.Param("home_id")
			var req webModels.AddDeviceRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			if req.Type != models.DeviceSwitch && req.Type != models.DeviceThermostat {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown device type"})
				return
			}

			exists, err := repo.DeviceKeyExists(c, homeID, req.Room, req.Name)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create device"})
				return
			}
			if exists {
				c.JSON(http.StatusConflict, gin.H{"error": "Device key already exists in this home"})
				return
			}

			device := models.Device{
				ID:          req.ID,
				HomeID:      homeID,
				Room:        req.Room,
				Name:        req.Name,
				Type:        req.Type,
				State:       req.State,
				Temperature: req.Temperature,
			}
			if device.ID == "" {
				device.ID = uuid.NewString()
			}
			if err := repo.InsertDevice(c, &device); err != nil {
				log.Printf("WEB: failed to insert device %s: %v", device.Key(), err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create device"})
				return
			}
			// A previously deleted device at the same key may still be cached.
			store.Invalidate(c, homeID, req.Room, req.Name)
			c.JSON(http.StatusCreated, device)
		})

		devices.DELETE("/:id", func(c *gin.Context) {
			homeID := c.Param("home_id")
			room, name, err := repo.DeleteDevice(c, homeID, c.Param("id"))
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
				return
			}
			// Drop the cached state entry too; a stale hit would keep the
			// deleted device matching poll triggers until the TTL expires.
			// Automations referencing the deleted key keep their definition;
			// the dangling reference simply never matches again.
			store.Invalidate(c, homeID, room, name)
			c.JSON(http.StatusOK, gin.H{"status": "Device deleted"})
		})

		devices.POST("/:room/:name/state", func(c *gin.Context) {
			var req webModels.SetStateRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			applyState(c, store, publisher, eng, *req.State, req.UserID)
		})

		devices.POST("/:room/:name/toggle", func(c *gin.Context) {
			homeID, room, name := c.Param("home_id"), c.Param("room"), c.Param("name")
			current, err := store.GetDeviceState(c, homeID, room, name)
			if errors.Is(err, models.ErrDeviceNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
				return
			}
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to toggle device"})
				return
			}
			applyState(c, store, publisher, eng, !current.On, c.Query("user_id"))
		})

		devices.PUT("/:room/:name/temperature", func(c *gin.Context) {
			homeID, room, name := c.Param("home_id"), c.Param("room"), c.Param("name")
			var req webModels.SetTemperatureRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}
			value := *req.Temperature
			if value < models.TemperatureMin || value > models.TemperatureMax {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Temperature out of range"})
				return
			}

			err := store.SetTemperature(c, homeID, room, name, value)
			if errors.Is(err, models.ErrDeviceNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Thermostat not found"})
				return
			}
			if err != nil {
				log.Printf("WEB: failed to set temperature of %s: %v", models.DeviceKey(room, name), err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set temperature"})
				return
			}

			publisher.Publish(engine.EventUpdateTemp, map[string]any{
				"home_id": homeID, "device": models.DeviceKey(room, name), "temperature": value,
			})
			c.JSON(http.StatusOK, gin.H{"device": models.DeviceKey(room, name), "temperature": value})
		})
	}
}

// applyState commits a state change, announces it, then runs the automation
// event path. The response does not depend on automation outcomes: the
// primary change is already committed when they run.
func applyState(c *gin.Context, store StateStore, publisher Publisher, eng AutomationEngine, newState bool, userID string) {
	homeID, room, name := c.Param("home_id"), c.Param("room"), c.Param("name")
	deviceKey := models.DeviceKey(room, name)

	err := store.SetDeviceState(c, homeID, room, name, newState)
	if errors.Is(err, models.ErrDeviceNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}
	if err != nil {
		log.Printf("WEB: failed to set state of %s: %v", deviceKey, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set device state"})
		return
	}

	publisher.Publish(engine.EventUpdateButton, map[string]any{
		"home_id": homeID, "device": deviceKey, "state": newState,
	})

	results, err := eng.OnDeviceChanged(c, homeID, room, name, newState, userID)
	if err != nil {
		log.Printf("WEB: automation sweep for %s failed: %v", deviceKey, err)
	}
	for _, result := range results {
		log.Printf("WEB: device %s fired automation %s (%s), status=%s",
			deviceKey, result.AutomationID, result.AutomationName, result.Status)
	}

	c.JSON(http.StatusOK, gin.H{
		"device":               deviceKey,
		"state":                newState,
		"automations_executed": len(results),
	})
}
