package controllers_test

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
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PaulD95-git/savouryheaven/controllers"
	"github.com/PaulD95-git/savouryheaven/hub"
	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/services"
	"github.com/PaulD95-git/savouryheaven/utils"
)

const futureDate = "2099-01-15"

type testEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	Tokens *utils.TokenManager
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := setupTestDB(t)
	tokens := utils.NewTokenManager("test-secret", time.Hour, time.Hour)
	liveHub := hub.New()

	ledger := services.NewLedger(db)
	reservationCtrl := controllers.NewReservationController(
		services.NewReservationService(db, ledger, liveHub, time.UTC), tokens)
	availabilityCtrl := controllers.NewAvailabilityController(services.NewAvailabilityService(db))
	timeSlotCtrl := controllers.NewTimeSlotController(services.NewTimeSlotService(db, liveHub))
	menuCtrl := controllers.NewMenuController(db)
	categoryCtrl := controllers.NewMenuCategoryController(db)
	userCtrl := controllers.NewUserController(db, tokens)

	r := gin.New()
	r.Use(middlewares.RequestID(), middlewares.Identity(tokens))

	r.GET("/api/available-slots/", availabilityCtrl.GetAvailableSlots)

	r.POST("/api/reservations", reservationCtrl.CreateReservation)
	r.GET("/api/reservations/mine", reservationCtrl.GetMyReservations)
	r.GET("/api/reservations/:id", reservationCtrl.GetReservation)
	r.PUT("/api/reservations/:id", reservationCtrl.UpdateReservation)
	r.POST("/api/reservations/:id/cancel", reservationCtrl.CancelReservation)
	r.GET("/api/reservations/:id/qr", reservationCtrl.GetReservationQR)
	r.GET("/api/staff/reservations", reservationCtrl.GetAllReservations)

	r.GET("/api/staff/time-slots", timeSlotCtrl.GetAllTimeSlots)
	r.POST("/api/staff/time-slots", timeSlotCtrl.CreateTimeSlot)
	r.PUT("/api/staff/time-slots/:slot_id", timeSlotCtrl.UpdateTimeSlot)
	r.DELETE("/api/staff/time-slots/:slot_id", timeSlotCtrl.DeleteTimeSlot)

	r.GET("/api/menu", menuCtrl.GetMenu)
	r.GET("/api/menu/featured", menuCtrl.GetFeaturedItems)
	r.POST("/api/staff/menu/items", menuCtrl.CreateItem)
	r.PUT("/api/staff/menu/items/:item_id", menuCtrl.UpdateItem)
	r.DELETE("/api/staff/menu/items/:item_id", menuCtrl.DeleteItem)
	r.POST("/api/staff/menu/categories", categoryCtrl.CreateCategory)
	r.DELETE("/api/staff/menu/categories/:cat_id", categoryCtrl.DeleteCategory)

	r.POST("/api/auth/register", userCtrl.Register)
	r.POST("/api/auth/login", userCtrl.Login)
	r.GET("/api/auth/profile", middlewares.AuthRequired(), userCtrl.GetProfile)
	r.PUT("/api/auth/profile", middlewares.AuthRequired(), userCtrl.UpdateProfile)
	r.DELETE("/api/admin/users/:user_id", middlewares.AuthRequired(), userCtrl.DeleteUser)

	return &testEnv{DB: db, Router: r, Tokens: tokens}
}

func (env *testEnv) do(t *testing.T, method, path string, body interface{}, header map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func (env *testEnv) seedSlot(t *testing.T, start string, capacity int) *models.TimeSlot {
	t.Helper()
	slot := &models.TimeSlot{StartTime: start, DisplayName: start[:5], IsActive: true, MaxCapacity: capacity}
	require.NoError(t, env.DB.Create(slot).Error)
	return slot
}

func (env *testEnv) userHeader(t *testing.T, email, role string) (map[string]string, *models.User) {
	t.Helper()
	user, err := controllers.CreateUser(env.DB, "Test User", email, "password123", role)
	require.NoError(t, err)
	token, err := env.Tokens.GenerateToken(user.ID, user.Role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}, user
}

func reservationBody(slotID uint, guests int) map[string]interface{} {
	return map[string]interface{}{
		"name":         "Ada Lovelace",
		"email":        "ada@example.com",
		"phone":        "07700900123",
		"date":         futureDate,
		"time_slot_id": slotID,
		"guests":       guests,
	}
}
