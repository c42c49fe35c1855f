package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/services"
	"github.com/PaulD95-git/savouryheaven/utils"
)

// actorFrom builds the lifecycle actor from what the middlewares resolved.
func actorFrom(c *gin.Context) services.Actor {
	actor := services.Actor{RequestID: c.GetString(middlewares.ContextRequestID)}
	if v, ok := c.Get(middlewares.ContextUserID); ok {
		if id, ok := v.(uint); ok {
			actor.UserID = &id
		}
	}
	if v, ok := c.Get(middlewares.ContextReservationID); ok {
		if id, ok := v.(uint); ok {
			actor.ReservationID = &id
		}
	}
	return actor
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid "+param))
		return 0, false
	}
	return uint(id), true
}

// respondServiceError turns a service fault into the matching status.
func respondServiceError(c *gin.Context, err error) {
	var (
		verr     *services.ValidationError
		capErr   *services.CapacityExceededError
		storeErr *services.StorageError
	)

	switch {
	case errors.As(err, &verr):
		utils.RespondErrorData(c, http.StatusBadRequest, verr, gin.H{"errors": verr.Fields})
	case errors.As(err, &capErr):
		utils.RespondErrorData(c, http.StatusConflict, capErr, gin.H{"remaining": capErr.Remaining})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrSlotNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, services.ErrAlreadyCancelled), errors.Is(err, services.ErrSlotInUse):
		utils.RespondError(c, http.StatusConflict, err)
	case errors.Is(err, services.ErrSlotInactive):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.As(err, &storeErr):
		utils.Error(logrus.Fields{
			"request_id": c.GetString(middlewares.ContextRequestID),
			"op":         storeErr.Op,
		}).WithError(storeErr.Err).Error("Storage failure")
		if storeErr.Retryable {
			c.Header("Retry-After", "1")
		}
		utils.RespondError(c, http.StatusServiceUnavailable, errors.New("Service temporarily unavailable, please try again"))
	default:
		utils.Error(logrus.Fields{"request_id": c.GetString(middlewares.ContextRequestID)}).
			WithError(err).Error("Unhandled error")
		utils.RespondError(c, http.StatusInternalServerError, errors.New("Internal server error"))
	}
}
