package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"homepanel/internal/models"
	webModels "homepanel/internal/web/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AutomationRepository is the slice of the database layer the automation
// routes need. The engine reads definitions through its own contract; these
// routes own create/update/delete and the uniqueness invariant.
type AutomationRepository interface {
	ListAutomations(ctx context.Context, homeID string) ([]models.Automation, error)
	GetAutomationByID(ctx context.Context, homeID, id string) (*models.Automation, error)
	AutomationNameExists(ctx context.Context, homeID, name, excludeID string) (bool, error)
	InsertAutomation(ctx context.Context, a *models.Automation) error
	UpdateAutomation(ctx context.Context, a *models.Automation) error
	DeleteAutomation(ctx context.Context, homeID, id string) error
	ListExecutionRecords(ctx context.Context, automationID string, limit int) ([]models.ExecutionRecord, error)
}

func RegisterAutomationRoutes(r *gin.Engine, repo AutomationRepository) {
	automations := r.Group("/homes/:home_id/automations")
	{
		automations.GET("", func(c *gin.Context) {
			homeID := c.Param("home_id")
			list, err := repo.ListAutomations(c, homeID)
			if err != nil {
				log.Printf("WEB: failed to list automations for home %s: %v", homeID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch automations"})
				return
			}
			if list == nil {
				list = []models.Automation{}
			}
			c.JSON(http.StatusOK, list)
		})

		automations.POST("", func(c *gin.Context) {
			homeID := c.Param("home_id")
			var req webModels.AddAutomationRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}

			automation := models.Automation{
				ID:      uuid.NewString(),
				HomeID:  homeID,
				Name:    req.Name,
				Trigger: req.Trigger,
				Actions: req.Actions,
				Enabled: req.Enabled,
			}
			if err := automation.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			exists, err := repo.AutomationNameExists(c, homeID, req.Name, automation.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create automation"})
				return
			}
			if exists {
				c.JSON(http.StatusConflict, gin.H{"error": "Automation name already exists in this home"})
				return
			}

			if err := repo.InsertAutomation(c, &automation); err != nil {
				log.Printf("WEB: failed to insert automation %q: %v", req.Name, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create automation"})
				return
			}
			c.JSON(http.StatusCreated, automation)
		})

		automations.PATCH("/:id", func(c *gin.Context) {
			homeID, id := c.Param("home_id"), c.Param("id")
			var req webModels.UpdateAutomationRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
				return
			}

			existing, err := repo.GetAutomationByID(c, homeID, id)
			if err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Automation not found"})
				return
			}

			if req.Name != nil {
				existing.Name = *req.Name
			}
			if req.Trigger != nil {
				existing.Trigger = *req.Trigger
			}
			if req.Actions != nil {
				existing.Actions = *req.Actions
			}
			if req.Enabled != nil {
				existing.Enabled = *req.Enabled
			}
			if err := existing.Validate(); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			exists, err := repo.AutomationNameExists(c, homeID, existing.Name, id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update automation"})
				return
			}
			if exists {
				c.JSON(http.StatusConflict, gin.H{"error": "Automation name already exists in this home"})
				return
			}

			if err := repo.UpdateAutomation(c, existing); err != nil {
				log.Printf("WEB: failed to update automation %s: %v", id, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update automation"})
				return
			}
			c.JSON(http.StatusOK, existing)
		})

		automations.DELETE("/:id", func(c *gin.Context) {
			homeID, id := c.Param("home_id"), c.Param("id")
			if err := repo.DeleteAutomation(c, homeID, id); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Automation not found"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "Automation deleted"})
		})

		automations.GET("/:id/executions", func(c *gin.Context) {
			homeID, id := c.Param("home_id"), c.Param("id")
			if _, err := repo.GetAutomationByID(c, homeID, id); err != nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "Automation not found"})
				return
			}

			limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
			if err != nil || limit < 1 || limit > 500 {
				limit = 50
			}
			records, err := repo.ListExecutionRecords(c, id, limit)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("WEB: failed to list executions for %s: %v", id, err)
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch executions"})
				return
			}
			if records == nil {
				records = []models.ExecutionRecord{}
			}
			c.JSON(http.StatusOK, records)
		})
	}
}
