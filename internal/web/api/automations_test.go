package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"homepanel/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAutomationRepo struct {
	automations []models.Automation
	records     map[string][]models.ExecutionRecord
}

func (r *fakeAutomationRepo) ListAutomations(_ context.Context, homeID string) ([]models.Automation, error) {
	var out []models.Automation
	for _, a := range r.automations {
		if a.HomeID == homeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAutomationRepo) GetAutomationByID(_ context.Context, homeID, id string) (*models.Automation, error) {
	for _, a := range r.automations {
		if a.HomeID == homeID && a.ID == id {
			copied := a
			return &copied, nil
		}
	}
	return nil, models.ErrDeviceNotFound
}

func (r *fakeAutomationRepo) AutomationNameExists(_ context.Context, homeID, name, excludeID string) (bool, error) {
	for _, a := range r.automations {
		if a.HomeID == homeID && a.ID != excludeID && strings.EqualFold(a.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAutomationRepo) InsertAutomation(_ context.Context, a *models.Automation) error {
	r.automations = append(r.automations, *a)
	return nil
}

func (r *fakeAutomationRepo) UpdateAutomation(_ context.Context, updated *models.Automation) error {
	for i, a := range r.automations {
		if a.HomeID == updated.HomeID && a.ID == updated.ID {
			r.automations[i] = *updated
			return nil
		}
	}
	return models.ErrDeviceNotFound
}

func (r *fakeAutomationRepo) DeleteAutomation(_ context.Context, homeID, id string) error {
	for i, a := range r.automations {
		if a.HomeID == homeID && a.ID == id {
			r.automations = append(r.automations[:i], r.automations[i+1:]...)
			return nil
		}
	}
	return models.ErrDeviceNotFound
}

func (r *fakeAutomationRepo) ListExecutionRecords(_ context.Context, automationID string, limit int) ([]models.ExecutionRecord, error) {
	records := r.records[automationID]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func automationRouter(repo *fakeAutomationRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterAutomationRoutes(r, repo)
	return r
}

func validAutomationBody() gin.H {
	return gin.H{
		"name": "Morning lights",
		"trigger": gin.H{
			"type": "time", "time": "07:30", "days": []string{"mon", "tue", "wed", "thu", "fri"},
		},
		"actions": []gin.H{
			{"type": "device", "device": "kitchen_light", "state": "on"},
		},
		"enabled": true,
	}
}

func TestCreateAutomation(t *testing.T) {
	t.Run("creates and returns the automation", func(t *testing.T) {
		repo := &fakeAutomationRepo{}
		r := automationRouter(repo)

		w := doJSON(t, r, http.MethodPost, "/homes/h1/automations", validAutomationBody())

		require.Equal(t, http.StatusCreated, w.Code)
		var created models.Automation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "h1", created.HomeID)
		assert.Len(t, repo.automations, 1)
	})

	t.Run("duplicate name conflicts case-insensitively", func(t *testing.T) {
		repo := &fakeAutomationRepo{automations: []models.Automation{
			{ID: "a1", HomeID: "h1", Name: "morning LIGHTS"},
		}}
		r := automationRouter(repo)

		w := doJSON(t, r, http.MethodPost, "/homes/h1/automations", validAutomationBody())
		assert.Equal(t, http.StatusConflict, w.Code)

		// Same name in another home is fine.
		w = doJSON(t, r, http.MethodPost, "/homes/h2/automations", validAutomationBody())
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("empty action list rejected", func(t *testing.T) {
		r := automationRouter(&fakeAutomationRepo{})

		body := validAutomationBody()
		body["actions"] = []gin.H{}
		w := doJSON(t, r, http.MethodPost, "/homes/h1/automations", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed trigger rejected", func(t *testing.T) {
		r := automationRouter(&fakeAutomationRepo{})

		body := validAutomationBody()
		body["trigger"] = gin.H{"type": "time", "time": "7am"}
		w := doJSON(t, r, http.MethodPost, "/homes/h1/automations", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUpdateAutomation(t *testing.T) {
	seed := func() *fakeAutomationRepo {
		return &fakeAutomationRepo{automations: []models.Automation{
			{
				ID: "a1", HomeID: "h1", Name: "Morning lights", Enabled: true,
				Trigger: models.Trigger{Type: models.TriggerTime, Time: "07:30"},
				Actions: []models.Action{{Type: models.ActionDevice, Device: "kitchen_light", State: models.StateOn}},
			},
			{
				ID: "a2", HomeID: "h1", Name: "Night lights", Enabled: true,
				Trigger: models.Trigger{Type: models.TriggerTime, Time: "22:00"},
				Actions: []models.Action{{Type: models.ActionDevice, Device: "kitchen_light", State: models.StateOff}},
			},
		}}
	}

	t.Run("patches only the provided fields", func(t *testing.T) {
		repo := seed()
		r := automationRouter(repo)

		w := doJSON(t, r, http.MethodPatch, "/homes/h1/automations/a1", gin.H{"enabled": false})

		require.Equal(t, http.StatusOK, w.Code)
		var updated models.Automation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
		assert.False(t, updated.Enabled)
		assert.Equal(t, "Morning lights", updated.Name)
		assert.Equal(t, "07:30", updated.Trigger.Time)
	})

	t.Run("rename onto an existing name conflicts", func(t *testing.T) {
		r := automationRouter(seed())

		w := doJSON(t, r, http.MethodPatch, "/homes/h1/automations/a1", gin.H{"name": "night lights"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("keeping its own name is not a conflict", func(t *testing.T) {
		r := automationRouter(seed())

		w := doJSON(t, r, http.MethodPatch, "/homes/h1/automations/a1", gin.H{"name": "Morning lights"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		r := automationRouter(seed())

		w := doJSON(t, r, http.MethodPatch, "/homes/h1/automations/missing", gin.H{"enabled": false})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("patching in an invalid trigger rejected", func(t *testing.T) {
		r := automationRouter(seed())

		w := doJSON(t, r, http.MethodPatch, "/homes/h1/automations/a1", gin.H{
			"trigger": gin.H{"type": "sensor", "sensor": "", "condition": "above"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteAutomation(t *testing.T) {
	repo := &fakeAutomationRepo{automations: []models.Automation{
		{ID: "a1", HomeID: "h1", Name: "Morning lights"},
	}}
	r := automationRouter(repo)

	w := doJSON(t, r, http.MethodDelete, "/homes/h1/automations/a1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, repo.automations)

	w = doJSON(t, r, http.MethodDelete, "/homes/h1/automations/a1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListExecutionRecords(t *testing.T) {
	records := make([]models.ExecutionRecord, 80)
	for i := range records {
		records[i] = models.ExecutionRecord{ID: "r", AutomationID: "a1", Status: models.StatusSuccess}
	}
	repo := &fakeAutomationRepo{
		automations: []models.Automation{{ID: "a1", HomeID: "h1", Name: "Morning lights"}},
		records:     map[string][]models.ExecutionRecord{"a1": records},
	}
	r := automationRouter(repo)

	t.Run("default limit", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/homes/h1/automations/a1/executions", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got []models.ExecutionRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 50)
	})

	t.Run("explicit limit", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/homes/h1/automations/a1/executions?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got []models.ExecutionRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 10)
	})

	t.Run("out-of-range limit falls back to the default", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/homes/h1/automations/a1/executions?limit=9999", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got []models.ExecutionRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Len(t, got, 50)
	})

	t.Run("unknown automation is 404", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/homes/h1/automations/missing/executions", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
