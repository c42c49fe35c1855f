package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/services"
	"github.com/PaulD95-git/savouryheaven/utils"
)

const qrSize = 256

type ReservationController struct {
	Service *services.ReservationService
	Tokens  *utils.TokenManager
}

func NewReservationController(svc *services.ReservationService, tokens *utils.TokenManager) *ReservationController {
	return &ReservationController{Service: svc, Tokens: tokens}
}

// CreateReservation books a table. Anonymous callers get back a
// reservation token, also set as a cookie, to manage the booking later.
func (rc *ReservationController) CreateReservation(c *gin.Context) {
	var input services.ReservationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	actor := actorFrom(c)
	reservation, err := rc.Service.Create(c.Request.Context(), actor, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	data := gin.H{"reservation": reservation}
	if actor.UserID == nil {
		token, err := rc.Tokens.GenerateReservationToken(reservation.ID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(middlewares.ReservationTokenCookie, token, int(rc.Tokens.ReservationTTL().Seconds()), "/api/reservations", "", false, true)
		data["reservation_token"] = token
	}

	utils.RespondJSON(c, http.StatusCreated, "Reservation confirmed!", data)
}

func (rc *ReservationController) GetMyReservations(c *gin.Context) {
	reservations, err := rc.Service.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "My reservations", reservations)
}

func (rc *ReservationController) GetReservation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	reservation, err := rc.Service.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation detail", reservation)
}

func (rc *ReservationController) UpdateReservation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var input services.ReservationInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	reservation, err := rc.Service.Update(c.Request.Context(), actorFrom(c), id, input)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation updated", reservation)
}

func (rc *ReservationController) CancelReservation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	reservation, err := rc.Service.Cancel(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reservation cancelled", reservation)
}

// GetReservationQR renders a PNG the front desk can scan on arrival.
func (rc *ReservationController) GetReservationQR(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	reservation, err := rc.Service.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if reservation.Cancelled {
		respondServiceError(c, services.ErrAlreadyCancelled)
		return
	}

	png, err := qrcode.Encode(confirmationCode(reservation), qrcode.Medium, qrSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// GetAllReservations is the staff list. Query: date, time_slot_id,
// cancelled (true|false) and search.
func (rc *ReservationController) GetAllReservations(c *gin.Context) {
	filter := services.ReservationFilter{
		Date:   c.Query("date"),
		Search: c.Query("search"),
	}
	if raw := c.Query("time_slot_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid time_slot_id"))
			return
		}
		filter.TimeSlotID = uint(id)
	}
	if raw := c.Query("cancelled"); raw != "" {
		cancelled, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid cancelled filter"))
			return
		}
		filter.Cancelled = &cancelled
	}

	reservations, err := rc.Service.ListAll(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "All reservations", reservations)
}

func confirmationCode(r *models.Reservation) string {
	start := ""
	if r.TimeSlot != nil {
		start = r.TimeSlot.StartTime
	}
	return fmt.Sprintf("SAVOURYHEAVEN:%d:%s:%s:%d", r.ID, r.Date, start, r.Guests)
}
