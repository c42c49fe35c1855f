package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PaulD95-git/savouryheaven/utils"
)

// Context keys set by the middlewares in this package.
const (
	ContextUserID        = "userID"
	ContextRole          = "role"
	ContextReservationID = "reservationID"
	ContextRequestID     = "requestID"
)

const (
	ReservationTokenHeader = "X-Reservation-Token"
	ReservationTokenCookie = "reservation_token"
)

// Identity resolves who is calling without requiring anyone to be signed
// in. A bearer token that fails to parse is rejected; a reservation token
// that fails to parse is ignored, leaving the caller anonymous.
func Identity(tm *utils.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid authorization header"))
				c.Abort()
				return
			}

			claims, err := tm.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil || claims.UserID == 0 {
				utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
				c.Abort()
				return
			}

			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextRole, claims.Role)
		}

		if raw := reservationToken(c); raw != "" {
			claims, err := tm.ParseReservationToken(raw)
			if err != nil {
				utils.Info(logrus.Fields{"request_id": c.GetString(ContextRequestID)}).
					WithError(err).Debug("Ignoring reservation token")
			} else {
				c.Set(ContextReservationID, claims.ReservationID)
			}
		}

		c.Next()
	}
}

// AuthRequired rejects callers Identity did not recognise as a user.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserID); !ok {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authentication required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func reservationToken(c *gin.Context) string {
	if v := c.GetHeader(ReservationTokenHeader); v != "" {
		return v
	}
	if v, err := c.Cookie(ReservationTokenCookie); err == nil {
		return v
	}
	return ""
}
