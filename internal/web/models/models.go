package models

import "homepanel/internal/models"

// AddDeviceRequest creates a device; ID is server-generated when absent
type AddDeviceRequest struct {
	ID          string   `json:"id"`
	Room        string   `json:"room" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Type        string   `json:"type" binding:"required"`
	State       bool     `json:"state"`
	Temperature *float64 `json:"temperature"`
}

// SetStateRequest sets a device's on/off state
type SetStateRequest struct {
	State  *bool  `json:"state" binding:"required"`
	UserID string `json:"user_id"`
}

// SetTemperatureRequest sets a thermostat target through the user-facing
// path, which enforces the valid range
type SetTemperatureRequest struct {
	Temperature *float64 `json:"temperature" binding:"required"`
	UserID      string   `json:"user_id"`
}

// AddAutomationRequest creates an automation
type AddAutomationRequest struct {
	Name    string          `json:"name" binding:"required"`
	Trigger models.Trigger  `json:"trigger"`
	Actions []models.Action `json:"actions"`
	Enabled bool            `json:"enabled"`
}

// UpdateAutomationRequest patches an automation; nil fields keep their value
type UpdateAutomationRequest struct {
	Name    *string          `json:"name"`
	Trigger *models.Trigger  `json:"trigger"`
	Actions *[]models.Action `json:"actions"`
	Enabled *bool            `json:"enabled"`
}
