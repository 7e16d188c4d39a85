package db

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"homepanel/internal/models"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// GetDevice fetches a device by its (home, room, name) composite key
func (d *DB) GetDevice(ctx context.Context, homeID, room, name string) (*models.Device, error) {
	var device models.Device
	err := d.pool.QueryRow(ctx,
		"SELECT device_id, home_id, room, name, type, state, temperature FROM devices WHERE home_id = $1 AND room = $2 AND name = $3",
		homeID, room, name).
		Scan(&device.ID, &device.HomeID, &device.Room, &device.Name, &device.Type, &device.State, &device.Temperature)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// ListDevices fetches all devices of a home
func (d *DB) ListDevices(ctx context.Context, homeID string) ([]models.Device, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT device_id, home_id, room, name, type, state, temperature FROM devices WHERE home_id = $1 ORDER BY room, name",
		homeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var device models.Device
		if err := rows.Scan(&device.ID, &device.HomeID, &device.Room, &device.Name, &device.Type, &device.State, &device.Temperature); err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

// InsertDevice creates a new device row
func (d *DB) InsertDevice(ctx context.Context, device *models.Device) error {
	_, err := d.pool.Exec(ctx,
		"INSERT INTO devices (device_id, home_id, room, name, type, state, temperature) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		device.ID, device.HomeID, device.Room, device.Name, device.Type, device.State, device.Temperature)
	return err
}

// DeviceKeyExists reports whether a home already has a device at (room, name)
func (d *DB) DeviceKeyExists(ctx context.Context, homeID, room, name string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM devices WHERE home_id = $1 AND room = $2 AND name = $3)",
		homeID, room, name).Scan(&exists)
	return exists, err
}

// DeleteDevice removes a device row and returns its (room, name) key so the
// caller can drop the cached state entry
func (d *DB) DeleteDevice(ctx context.Context, homeID, deviceID string) (room, name string, err error) {
	err = d.pool.QueryRow(ctx,
		"DELETE FROM devices WHERE home_id = $1 AND device_id = $2 RETURNING room, name",
		homeID, deviceID).Scan(&room, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return room, name, err
}

// UpdateDeviceState sets a device's on/off state
func (d *DB) UpdateDeviceState(ctx context.Context, homeID, room, name string, state bool) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE devices SET state = $1 WHERE home_id = $2 AND room = $3 AND name = $4",
		state, homeID, room, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDeviceTemperature sets a thermostat's target temperature
func (d *DB) UpdateDeviceTemperature(ctx context.Context, homeID, room, name string, value float64) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE devices SET temperature = $1 WHERE home_id = $2 AND room = $3 AND name = $4 AND type = $5",
		value, homeID, room, name, models.DeviceThermostat)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const automationColumns = "id, home_id, name, trigger, actions, enabled, execution_count, error_count, last_executed, last_error, last_error_time"

func scanAutomation(row pgx.Row) (*models.Automation, error) {
	var a models.Automation
	var triggerRaw, actionsRaw json.RawMessage
	err := row.Scan(&a.ID, &a.HomeID, &a.Name, &triggerRaw, &actionsRaw, &a.Enabled,
		&a.ExecutionCount, &a.ErrorCount, &a.LastExecuted, &a.LastError, &a.LastErrorTime)
	if err != nil {
		return nil, err
	}
	if a.Trigger, err = models.DecodeTrigger(triggerRaw); err != nil {
		return nil, err
	}
	if a.Actions, err = models.DecodeActions(actionsRaw); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAutomationByID fetches one automation
func (d *DB) GetAutomationByID(ctx context.Context, homeID, id string) (*models.Automation, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE home_id = $1 AND id = $2", homeID, id)
	a, err := scanAutomation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAutomations fetches all automations of a home
func (d *DB) ListAutomations(ctx context.Context, homeID string) ([]models.Automation, error) {
	return d.queryAutomations(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE home_id = $1 ORDER BY name", homeID)
}

// ListEnabledAutomations fetches enabled automations. An empty homeID sweeps
// all homes (the periodic tick path).
func (d *DB) ListEnabledAutomations(ctx context.Context, homeID string) ([]models.Automation, error) {
	if homeID == "" {
		return d.queryAutomations(ctx,
			"SELECT "+automationColumns+" FROM automations WHERE enabled = true ORDER BY id")
	}
	return d.queryAutomations(ctx,
		"SELECT "+automationColumns+" FROM automations WHERE enabled = true AND home_id = $1 ORDER BY id", homeID)
}

func (d *DB) queryAutomations(ctx context.Context, sql string, args ...any) ([]models.Automation, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var automations []models.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			if errors.Is(err, models.ErrInvalidDescriptor) {
				// A malformed stored descriptor must not take down the sweep.
				log.Printf("DB: skipping automation with bad descriptor: %v", err)
				continue
			}
			return nil, err
		}
		automations = append(automations, *a)
	}
	return automations, rows.Err()
}

// AutomationNameExists reports whether a home already has an automation with
// the given name, compared case-insensitively. excludeID skips the automation
// being updated.
func (d *DB) AutomationNameExists(ctx context.Context, homeID, name, excludeID string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM automations WHERE home_id = $1 AND LOWER(name) = LOWER($2) AND id <> $3)",
		homeID, name, excludeID).Scan(&exists)
	return exists, err
}

// InsertAutomation creates a new automation row
func (d *DB) InsertAutomation(ctx context.Context, a *models.Automation) error {
	triggerRaw, err := json.Marshal(a.Trigger)
	if err != nil {
		return err
	}
	actionsRaw, err := json.Marshal(a.Actions)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx,
		"INSERT INTO automations (id, home_id, name, trigger, actions, enabled) VALUES ($1, $2, $3, $4, $5, $6)",
		a.ID, a.HomeID, a.Name, triggerRaw, actionsRaw, a.Enabled)
	return err
}

// UpdateAutomation rewrites an automation's definition fields
func (d *DB) UpdateAutomation(ctx context.Context, a *models.Automation) error {
	triggerRaw, err := json.Marshal(a.Trigger)
	if err != nil {
		return err
	}
	actionsRaw, err := json.Marshal(a.Actions)
	if err != nil {
		return err
	}
	tag, err := d.pool.Exec(ctx,
		"UPDATE automations SET name = $1, trigger = $2, actions = $3, enabled = $4 WHERE home_id = $5 AND id = $6",
		a.Name, triggerRaw, actionsRaw, a.Enabled, a.HomeID, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAutomation removes an automation and its execution log
func (d *DB) DeleteAutomation(ctx context.Context, homeID, id string) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM automations WHERE home_id = $1 AND id = $2", homeID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	_, err = d.pool.Exec(ctx, "DELETE FROM automation_executions WHERE automation_id = $1", id)
	return err
}

// RecordExecutionStats applies one run's outcome to the automation's counters
func (d *DB) RecordExecutionStats(ctx context.Context, automationID string, executedAt time.Time, errorMessage *string) error {
	if errorMessage == nil {
		_, err := d.pool.Exec(ctx,
			"UPDATE automations SET execution_count = execution_count + 1, last_executed = $1 WHERE id = $2",
			executedAt, automationID)
		return err
	}
	_, err := d.pool.Exec(ctx,
		"UPDATE automations SET execution_count = execution_count + 1, error_count = error_count + 1, last_executed = $1, last_error = $2, last_error_time = $1 WHERE id = $3",
		executedAt, *errorMessage, automationID)
	return err
}

// AppendExecutionRecord appends one row to the execution log
func (d *DB) AppendExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) error {
	actionsRaw, err := json.Marshal(rec.ActionsExecuted)
	if err != nil {
		return err
	}
	_, err = d.pool.Exec(ctx,
		"INSERT INTO automation_executions (id, automation_id, execution_status, trigger_data, actions_executed, error_message, execution_time_ms, executed_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		rec.ID, rec.AutomationID, rec.Status, rec.TriggerData, actionsRaw, rec.ErrorMessage, rec.ExecutionTimeMs, rec.ExecutedAt)
	return err
}

// ListExecutionRecords fetches the most recent execution log rows
func (d *DB) ListExecutionRecords(ctx context.Context, automationID string, limit int) ([]models.ExecutionRecord, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, automation_id, execution_status, trigger_data, actions_executed, error_message, execution_time_ms, executed_at FROM automation_executions WHERE automation_id = $1 ORDER BY executed_at DESC LIMIT $2",
		automationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		var actionsRaw json.RawMessage
		if err := rows.Scan(&rec.ID, &rec.AutomationID, &rec.Status, &rec.TriggerData, &actionsRaw, &rec.ErrorMessage, &rec.ExecutionTimeMs, &rec.ExecutedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actionsRaw, &rec.ActionsExecuted); err != nil {
			log.Printf("DB: bad actions_executed payload for execution %s: %v", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
