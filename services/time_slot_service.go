package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/PaulD95-git/savouryheaven/models"
	"github.com/PaulD95-git/savouryheaven/utils"
)

const EventSlotUpdate = "slot_update"

const slotTimeLayout = "15:04:05"

type TimeSlotInput struct {
	StartTime   string `json:"start_time" validate:"required"`
	DisplayName string `json:"display_name" validate:"max=10"`
	IsActive    *bool  `json:"is_active"`
	MaxCapacity int    `json:"max_capacity" validate:"omitempty,min=1,max=1000"`
}

// TimeSlotService is the staff side of slot management.
type TimeSlotService struct {
	db       *gorm.DB
	notifier Notifier
	validate *validator.Validate
}

func NewTimeSlotService(db *gorm.DB, notifier Notifier) *TimeSlotService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &TimeSlotService{db: db, notifier: notifier, validate: newValidator()}
}

func (s *TimeSlotService) List(ctx context.Context, includeInactive bool) ([]models.TimeSlot, error) {
	q := s.db.WithContext(ctx).Order("start_time ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}

	slots := []models.TimeSlot{}
	if err := q.Find(&slots).Error; err != nil {
		return nil, storageErr("list time slots", err)
	}
	return slots, nil
}

func (s *TimeSlotService) Get(ctx context.Context, id uint) (*models.TimeSlot, error) {
	return findSlot(s.db.WithContext(ctx), id)
}

func (s *TimeSlotService) Create(ctx context.Context, in TimeSlotInput) (*models.TimeSlot, error) {
	start, err := s.prepare(&in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueStart(ctx, start, 0); err != nil {
		return nil, err
	}

	slot := &models.TimeSlot{
		StartTime:   start,
		DisplayName: in.DisplayName,
		IsActive:    true,
		MaxCapacity: models.DefaultSlotCapacity,
	}
	if in.MaxCapacity != 0 {
		slot.MaxCapacity = in.MaxCapacity
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(slot).Error; err != nil {
			return err
		}
		// gorm swaps a false bool for the column default on insert.
		if in.IsActive != nil && !*in.IsActive {
			slot.IsActive = false
			return tx.Model(slot).Update("is_active", false).Error
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("create time slot", err)
	}

	utils.Info(logrus.Fields{"slot_id": slot.ID, "start_time": slot.StartTime}).Info("Time slot created")
	s.notifier.StaffNotice(EventSlotUpdate, slot)
	return slot, nil
}

// Update rewrites a slot. Lowering max_capacity below what is already
// booked is allowed; the capacity audit reports the overbooking.
func (s *TimeSlotService) Update(ctx context.Context, id uint, in TimeSlotInput) (*models.TimeSlot, error) {
	start, err := s.prepare(&in)
	if err != nil {
		return nil, err
	}

	slot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUniqueStart(ctx, start, id); err != nil {
		return nil, err
	}

	changes := map[string]interface{}{
		"start_time":   start,
		"display_name": in.DisplayName,
	}
	if in.IsActive != nil {
		changes["is_active"] = *in.IsActive
	}
	if in.MaxCapacity != 0 {
		changes["max_capacity"] = in.MaxCapacity
	}

	if err := s.db.WithContext(ctx).Model(slot).Updates(changes).Error; err != nil {
		return nil, storageErr("update time slot", err)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	utils.Info(logrus.Fields{"slot_id": id, "max_capacity": updated.MaxCapacity, "is_active": updated.IsActive}).
		Info("Time slot updated")
	s.notifier.StaffNotice(EventSlotUpdate, updated)
	return updated, nil
}

// Delete removes a slot nobody has ever booked. Slots with history,
// cancelled bookings included, can only be deactivated.
func (s *TimeSlotService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refs int64
		if err := tx.Model(&models.Reservation{}).Where("time_slot_id = ?", id).Count(&refs).Error; err != nil {
			return storageErr("count slot reservations", err)
		}
		if refs > 0 {
			return ErrSlotInUse
		}

		if err := tx.Where("time_slot_id = ?", id).Delete(&models.SlotLock{}).Error; err != nil {
			return storageErr("delete slot locks", err)
		}
		if err := tx.Delete(&models.TimeSlot{}, id).Error; err != nil {
			return storageErr("delete time slot", err)
		}

		utils.Info(logrus.Fields{"slot_id": id}).Info("Time slot deleted")
		return nil
	})
}

// prepare validates in, fills the display name and returns the start time
// normalised to HH:MM:SS.
func (s *TimeSlotService) prepare(in *TimeSlotInput) (string, error) {
	in.StartTime = strings.TrimSpace(in.StartTime)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if verr := validateStruct(s.validate, *in); verr != nil {
		return "", verr
	}

	start, err := parseSlotTime(in.StartTime)
	if err != nil {
		return "", newValidationError("start_time", "must be a time in HH:MM or HH:MM:SS form")
	}
	if in.DisplayName == "" {
		in.DisplayName = start.Format("3:04 PM")
	}
	return start.Format(slotTimeLayout), nil
}

func (s *TimeSlotService) ensureUniqueStart(ctx context.Context, start string, exceptID uint) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.TimeSlot{}).
		Where("start_time = ? AND id <> ?", start, exceptID).
		Count(&count).Error
	if err != nil {
		return storageErr("check time slot", err)
	}
	if count > 0 {
		return newValidationError("start_time", fmt.Sprintf("a slot starting at %s already exists", start))
	}
	return nil
}

func parseSlotTime(raw string) (time.Time, error) {
	if t, err := time.Parse(slotTimeLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse("15:04", raw)
}

// SeedDefaultSlots creates the evening service slots on an empty table.
func SeedDefaultSlots(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.TimeSlot{}).Count(&count).Error; err != nil {
		return storageErr("count time slots", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []string{"17:00:00", "17:30:00", "18:00:00", "18:30:00", "19:00:00", "19:30:00", "20:00:00", "20:30:00", "21:00:00"}
	slots := make([]models.TimeSlot, 0, len(defaults))
	for _, start := range defaults {
		t, _ := time.Parse(slotTimeLayout, start)
		slots = append(slots, models.TimeSlot{
			StartTime:   start,
			DisplayName: t.Format("3:04 PM"),
			IsActive:    true,
			MaxCapacity: models.DefaultSlotCapacity,
		})
	}
	if err := db.WithContext(ctx).Create(&slots).Error; err != nil {
		return storageErr("seed time slots", err)
	}

	utils.Info(logrus.Fields{"count": len(slots)}).Info("Seeded default time slots")
	return nil
}
