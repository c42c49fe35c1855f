package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/PaulD95-git/savouryheaven/models"
)

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

func seedSlot(t *testing.T, db *gorm.DB, start string, capacity int) *models.TimeSlot {
	t.Helper()
	slot := &models.TimeSlot{
		StartTime:   start,
		DisplayName: start[:5],
		IsActive:    true,
		MaxCapacity: capacity,
	}
	require.NoError(t, db.Create(slot).Error)
	return slot
}

// seedReservation writes straight to the table, skipping the ledger.
func seedReservation(t *testing.T, db *gorm.DB, slot *models.TimeSlot, date string, guests int) *models.Reservation {
	t.Helper()
	r := &models.Reservation{
		TimeSlotID: slot.ID,
		Date:       date,
		Name:       "Seed Guest",
		Email:      "seed@example.com",
		Phone:      "0123456789",
		Guests:     guests,
	}
	require.NoError(t, db.Create(r).Error)
	return r
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Name: "Diner", Email: email, Password: "hash", Role: models.RoleCustomer}
	require.NoError(t, db.Create(u).Error)
	return u
}

// recordingNotifier keeps every update it is handed.
type recordingNotifier struct {
	updates []string
	notices []interface{}
}

func (n *recordingNotifier) AvailabilityChanged(date string, timeSlotID uint, remaining int) {
	n.updates = append(n.updates, fmt.Sprintf("%s/%d=%d", date, timeSlotID, remaining))
}

func (n *recordingNotifier) StaffNotice(event string, data interface{}) {
	n.notices = append(n.notices, data)
}

func fixedClock(day string) func() time.Time {
	t, err := time.Parse(models.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t.Add(12 * time.Hour) }
}
