package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/config"
	"github.com/PaulD95-git/savouryheaven/controllers"
	"github.com/PaulD95-git/savouryheaven/hub"
	"github.com/PaulD95-git/savouryheaven/middlewares"
	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/router"
	"github.com/PaulD95-git/savouryheaven/services"
	"github.com/PaulD95-git/savouryheaven/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}

	autoMigrate(db)
	bootstrap(db, cfg)

	liveHub := hub.New()

	audit := services.NewCapacityAudit(db, liveHub, cfg.Location, cfg.AuditDaysAhead)
	if err := audit.Start(cfg.AuditSchedule); err != nil {
		utils.ErrorLogger.Fatalf("Invalid AUDIT_SCHEDULE %q: %v", cfg.AuditSchedule, err)
	}
	defer audit.Stop()

	r := router.SetupRouter(router.Dependencies{
		DB:     db,
		Config: cfg,
		Hub:    liveHub,
		Tokens: utils.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, cfg.ReservationTokenTTL),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middlewares.CORS(cfg.AllowedOrigins)(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info(logrus.Fields{"port": cfg.Port, "db_driver": cfg.DBDriver}).Info("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.InfoLogger.Println("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.Errorf("Forced shutdown: %v", err)
	}
}

func autoMigrate(db *gorm.DB) {
	if err := db.AutoMigrate(models.All()...); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
}

// bootstrap seeds the default slots and the first admin account.
func bootstrap(db *gorm.DB, cfg *config.Config) {
	if cfg.SeedSlots {
		if err := services.SeedDefaultSlots(context.Background(), db); err != nil {
			utils.ErrorLogger.Errorf("Error seeding time slots: %v", err)
		}
	}

	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		utils.ErrorLogger.Errorf("Error checking admin accounts: %v", err)
		return
	}
	if count > 0 {
		return
	}
	if _, err := controllers.CreateUser(db, "Administrator", cfg.AdminEmail, cfg.AdminPassword, models.RoleAdmin); err != nil {
		utils.ErrorLogger.Errorf("Error creating admin account: %v", err)
		return
	}
	utils.Info(logrus.Fields{"email": cfg.AdminEmail}).Info("Created admin account")
}
