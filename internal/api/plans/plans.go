// Package plans exposes the subscription plan catalogue. The catalogue is
// config-loaded and immutable, so this is a read-only surface.
package plans

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oneira/oneira/internal/billing"
)

// PlanHandlers serves the plan catalogue
type PlanHandlers struct {
	catalogue *billing.Catalogue
}

// NewPlanHandlers creates a new PlanHandlers instance
func NewPlanHandlers(catalogue *billing.Catalogue) *PlanHandlers {
	return &PlanHandlers{catalogue: catalogue}
}

// ListPlansHandler returns every plan in catalogue order. Public route: pricing
// is shown before signup.
// GET /v1/plans
func (h *PlanHandlers) ListPlansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"plans": h.catalogue.List(),
		})
	}
}
