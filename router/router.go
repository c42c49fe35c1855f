package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/config"
	"github.com/PaulD95-git/savouryheaven/controllers"
	"github.com/PaulD95-git/savouryheaven/hub"
	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/services"
	"github.com/PaulD95-git/savouryheaven/utils"
)

type Dependencies struct {
	DB     *gorm.DB
	Config *config.Config
	Hub    *hub.Hub
	Tokens *utils.TokenManager
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())

	cfg := deps.Config
	ledger := services.NewLedger(deps.DB)
	reservationSvc := services.NewReservationService(deps.DB, ledger, deps.Hub, cfg.Location)
	availabilitySvc := services.NewAvailabilityService(deps.DB)
	timeSlotSvc := services.NewTimeSlotService(deps.DB, deps.Hub)

	reservationCtrl := controllers.NewReservationController(reservationSvc, deps.Tokens)
	availabilityCtrl := controllers.NewAvailabilityController(availabilitySvc)
	timeSlotCtrl := controllers.NewTimeSlotController(timeSlotSvc)
	menuCtrl := controllers.NewMenuController(deps.DB)
	categoryCtrl := controllers.NewMenuCategoryController(deps.DB)
	userCtrl := controllers.NewUserController(deps.DB, deps.Tokens)
	liveCtrl := controllers.NewLiveController(deps.Hub, cfg.AllowedOrigins)

	r.GET("/health", func(c *gin.Context) {
		utils.RespondJSON(c, http.StatusOK, "ok", gin.H{"time": time.Now().UTC()})
	})

	r.GET("/ws/availability", middlewares.WebSocketIdentity(deps.Tokens), liveCtrl.LiveHandler)

	limiter := middlewares.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	api := r.Group("/api")
	api.Use(limiter.RateLimit())
	api.Use(middlewares.Identity(deps.Tokens))
	{
		api.GET("/available-slots", availabilityCtrl.GetAvailableSlots)
		api.GET("/available-slots/", availabilityCtrl.GetAvailableSlots)
		api.GET("/time-slots", timeSlotCtrl.GetActiveTimeSlots)

		api.GET("/menu", menuCtrl.GetMenu)
		api.GET("/menu/featured", menuCtrl.GetFeaturedItems)

		strict := middlewares.NewStrictRateLimiter()
		auth := api.Group("/auth")
		{
			auth.POST("/register", strict.RateLimit(), userCtrl.Register)
			auth.POST("/login", strict.RateLimit(), userCtrl.Login)
			auth.GET("/profile", middlewares.AuthRequired(), userCtrl.GetProfile)
			auth.PUT("/profile", middlewares.AuthRequired(), userCtrl.UpdateProfile)
		}

		reservations := api.Group("/reservations")
		{
			reservations.POST("", reservationCtrl.CreateReservation)
			reservations.GET("/mine", reservationCtrl.GetMyReservations)
			reservations.GET("/:id", reservationCtrl.GetReservation)
			reservations.PUT("/:id", reservationCtrl.UpdateReservation)
			reservations.POST("/:id/cancel", reservationCtrl.CancelReservation)
			reservations.GET("/:id/qr", reservationCtrl.GetReservationQR)
		}

		staff := api.Group("/staff")
		staff.Use(middlewares.AuthRequired(), middlewares.RequireRole(models.RoleStaff))
		{
			staff.GET("/reservations", reservationCtrl.GetAllReservations)

			staff.GET("/time-slots", timeSlotCtrl.GetAllTimeSlots)
			staff.POST("/time-slots", timeSlotCtrl.CreateTimeSlot)
			staff.PUT("/time-slots/:slot_id", timeSlotCtrl.UpdateTimeSlot)
			staff.DELETE("/time-slots/:slot_id", timeSlotCtrl.DeleteTimeSlot)

			staff.GET("/menu/categories", categoryCtrl.GetAllCategories)
			staff.POST("/menu/categories", categoryCtrl.CreateCategory)
			staff.PUT("/menu/categories/:cat_id", categoryCtrl.UpdateCategory)
			staff.DELETE("/menu/categories/:cat_id", categoryCtrl.DeleteCategory)

			staff.GET("/menu/items", menuCtrl.GetAllItems)
			staff.POST("/menu/items", menuCtrl.CreateItem)
			staff.GET("/menu/items/:item_id", menuCtrl.GetItemByID)
			staff.PUT("/menu/items/:item_id", menuCtrl.UpdateItem)
			staff.DELETE("/menu/items/:item_id", menuCtrl.DeleteItem)
		}

		admin := api.Group("/admin")
		admin.Use(middlewares.AuthRequired(), middlewares.RequireRole(models.RoleAdmin))
		{
			admin.GET("/users", userCtrl.GetAllUsers)
			admin.POST("/users", userCtrl.CreateStaffUser)
			admin.DELETE("/users/:user_id", userCtrl.DeleteUser)
		}
	}

	return r
}
