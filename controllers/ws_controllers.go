package controllers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/PaulD95-git/savouryheaven/hub"
	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/models"
)

type LiveController struct {
	Hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewLiveController accepts handshakes from allowedOrigins only; a "*"
// entry allows any origin.
func NewLiveController(h *hub.Hub, allowedOrigins []string) *LiveController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &LiveController{
		Hub: h,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || allowed["*"] || allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// LiveHandler -> GET /ws/availability
func (lc *LiveController) LiveHandler(c *gin.Context) {
	role := c.GetString(middlewares.ContextRole)
	if role == "" {
		role = models.RoleCustomer
	}

	ws, err := lc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	lc.Hub.Register(ws, role)

	// Clients only listen; reading detects the disconnect.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	lc.Hub.Unregister(ws)
}
