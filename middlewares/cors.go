package middlewares

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS wraps the whole engine so preflight requests are answered before
// gin routing, including for the websocket endpoint.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Authorization", "Content-Type", "Accept", "Origin", "X-Requested-With",
			RequestIDHeader, ReservationTokenHeader,
		},
		ExposedHeaders: []string{RequestIDHeader, "Retry-After"},
		MaxAge:         600,
	})
	return c.Handler
}
