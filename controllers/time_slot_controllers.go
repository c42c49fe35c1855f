package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PaulD95-git/savouryheaven/services"
	"github.com/PaulD95-git/savouryheaven/utils"
)

type TimeSlotController struct {
	Service *services.TimeSlotService
}

func NewTimeSlotController(svc *services.TimeSlotService) *TimeSlotController {
	return &TimeSlotController{Service: svc}
}

// GetActiveTimeSlots is the public list of bookable slots.
func (tc *TimeSlotController) GetActiveTimeSlots(c *gin.Context) {
	slots, err := tc.Service.List(c.Request.Context(), false)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Active time slots", slots)
}

// GetAllTimeSlots lists active slots; ?all=true includes inactive ones.
func (tc *TimeSlotController) GetAllTimeSlots(c *gin.Context) {
	slots, err := tc.Service.List(c.Request.Context(), c.Query("all") == "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All time slots", slots)
}

func (tc *TimeSlotController) CreateTimeSlot(c *gin.Context) {
	var input services.TimeSlotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	slot, err := tc.Service.Create(c.Request.Context(), input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Time slot created", slot)
}

func (tc *TimeSlotController) UpdateTimeSlot(c *gin.Context) {
	id, ok := parseID(c, "slot_id")
	if !ok {
		return
	}

	var input services.TimeSlotInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	slot, err := tc.Service.Update(c.Request.Context(), id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Time slot updated", slot)
}

func (tc *TimeSlotController) DeleteTimeSlot(c *gin.Context) {
	id, ok := parseID(c, "slot_id")
	if !ok {
		return
	}

	if err := tc.Service.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Time slot deleted", nil)
}
