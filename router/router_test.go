package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PaulD95-git/savouryheaven/config"
	"github.com/PaulD95-git/savouryheaven/controllers"
	"github.com/PaulD95-git/savouryheaven/hub"
	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

func setupTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))

	cfg := &config.Config{
		Location:       time.UTC,
		AllowedOrigins: []string{"http://localhost:3000"},
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
	r := SetupRouter(Dependencies{
		DB:     db,
		Config: cfg,
		Hub:    hub.New(),
		Tokens: utils.NewTokenManager("test-secret", time.Hour, time.Hour),
	})
	return middlewares.CORS(cfg.AllowedOrigins)(r), db
}

func call(t *testing.T, h http.Handler, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var response map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &response)
	return w.Code, response
}

func login(t *testing.T, h http.Handler, email, password string) string {
	t.Helper()
	code, response := call(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, code)
	return response["data"].(map[string]interface{})["token"].(string)
}

// TestEndToEndReservationFlow walks the main paths:
// staff opens a slot, a diner registers and books, the slot fills,
// the diner cancels and the seats come back.
func TestEndToEndReservationFlow(t *testing.T) {
	h, db := setupTestRouter(t)

	_, err := controllers.CreateUser(db, "Staff", "staff@example.com", "staff-password", models.RoleStaff)
	require.NoError(t, err)
	staffToken := login(t, h, "staff@example.com", "staff-password")

	code, response := call(t, h, http.MethodPost, "/api/staff/time-slots", staffToken, map[string]interface{}{
		"start_time":   "18:00",
		"max_capacity": 6,
	})
	require.Equal(t, http.StatusCreated, code)
	slotID := response["data"].(map[string]interface{})["id"]

	code, _ = call(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     "Diner",
		"email":    "diner@example.com",
		"password": "diner-password",
	})
	require.Equal(t, http.StatusCreated, code)
	dinerToken := login(t, h, "diner@example.com", "diner-password")

	code, _ = call(t, h, http.MethodPost, "/api/staff/time-slots", dinerToken, map[string]interface{}{"start_time": "19:00"})
	assert.Equal(t, http.StatusForbidden, code)

	booking := map[string]interface{}{
		"name":         "Diner",
		"email":        "diner@example.com",
		"phone":        "0123456789",
		"date":         "2099-03-01",
		"time_slot_id": slotID,
		"guests":       6,
	}
	code, response = call(t, h, http.MethodPost, "/api/reservations", dinerToken, booking)
	require.Equal(t, http.StatusCreated, code)
	reservationID := response["data"].(map[string]interface{})["reservation"].(map[string]interface{})["id"]

	booking["guests"] = 1
	code, response = call(t, h, http.MethodPost, "/api/reservations", "", booking)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, float64(0), response["data"].(map[string]interface{})["remaining"])

	code, response = call(t, h, http.MethodGet, "/api/available-slots/?date=2099-03-01", "", nil)
	require.Equal(t, http.StatusOK, code)
	slot := response["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, false, slot["available"])

	code, _ = call(t, h, http.MethodPost, fmt.Sprintf("/api/reservations/%v/cancel", reservationID), dinerToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, response = call(t, h, http.MethodGet, "/api/available-slots/?date=2099-03-01", "", nil)
	require.Equal(t, http.StatusOK, code)
	slot = response["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(6), slot["remaining"])

	code, response = call(t, h, http.MethodGet, "/api/staff/reservations?cancelled=true", staffToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, response["data"], 1)
}

func TestRouterRejectsAnonymousStaffAccess(t *testing.T) {
	h, _ := setupTestRouter(t)

	code, _ := call(t, h, http.MethodGet, "/api/staff/reservations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(t, h, http.MethodGet, "/api/admin/users", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRouterCORSPreflight(t *testing.T) {
	h, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/reservations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(middlewares.RequestIDHeader))
}
