package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/models"
)

type SlotAvailability struct {
	SlotID      uint   `json:"slot_id"`
	DisplayName string `json:"display_name"`
	StartTime   string `json:"start_time"`
	Available   bool   `json:"available"`
	Remaining   int    `json:"remaining"`
}

// AvailabilityService answers the booking form's "what is free on this
// date" question. It never writes.
type AvailabilityService struct {
	db *gorm.DB
}

func NewAvailabilityService(db *gorm.DB) *AvailabilityService {
	return &AvailabilityService{db: db}
}

// ForDate lists every active slot by start time with the seats left on
// date. Past dates are answered too.
func (s *AvailabilityService) ForDate(ctx context.Context, date string) ([]SlotAvailability, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return nil, newValidationError("date", "is required")
	}
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return nil, newValidationError("date", "must be a date in YYYY-MM-DD form")
	}
	date = day.Format(models.DateLayout)

	db := s.db.WithContext(ctx)

	var slots []models.TimeSlot
	if err := db.Where("is_active = ?", true).Order("start_time ASC").Find(&slots).Error; err != nil {
		return nil, storageErr("list time slots", err)
	}

	booked, err := bookedGuestsByDate(db, date)
	if err != nil {
		return nil, err
	}

	result := make([]SlotAvailability, 0, len(slots))
	for _, slot := range slots {
		capacity := capacityOf(slot.MaxCapacity, booked[slot.ID])
		result = append(result, SlotAvailability{
			SlotID:      slot.ID,
			DisplayName: slot.DisplayName,
			StartTime:   slot.StartTime,
			Available:   capacity.IsAvailable,
			Remaining:   capacity.Remaining,
		})
	}
	return result, nil
}
