package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulD95-git/savouryheaven/services"
	"github.com/PaulD95-git/savouryheaven/utils"
)

type AvailabilityController struct {
	Service *services.AvailabilityService
}

func NewAvailabilityController(svc *services.AvailabilityService) *AvailabilityController {
	return &AvailabilityController{Service: svc}
}

// GetAvailableSlots -> GET /api/available-slots/?date=YYYY-MM-DD
func (ac *AvailabilityController) GetAvailableSlots(c *gin.Context) {
	slots, err := ac.Service.ForDate(c.Request.Context(), c.Query("date"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Available slots", slots)
}
