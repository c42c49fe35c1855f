package models

import "time"

const (
	MinGuests = 1
	MaxGuests = 20

	// DateLayout is how reservation dates are stored and exchanged.
	DateLayout = "2006-01-02"
)

type Reservation struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          *uint     `gorm:"index" json:"user_id,omitempty"`
	User            *User     `gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	TimeSlotID      uint      `gorm:"not null;index:idx_reservation_slot_date,priority:2" json:"time_slot_id"`
	TimeSlot        *TimeSlot `gorm:"foreignKey:TimeSlotID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"time_slot,omitempty"`
	Date            string    `gorm:"type:varchar(10);not null;index:idx_reservation_slot_date,priority:1" json:"date"`
	Name            string    `gorm:"type:varchar(100);not null" json:"name"`
	Email           string    `gorm:"type:varchar(254);not null" json:"email"`
	Phone           string    `gorm:"type:varchar(20);not null" json:"phone"`
	Guests          int       `gorm:"not null;check:guests >= 1 AND guests <= 20" json:"guests"`
	SpecialRequests *string   `gorm:"type:text" json:"special_requests,omitempty"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime;<-:create" json:"created_at"`
	Cancelled       bool      `gorm:"not null;default:false;index:idx_reservation_slot_date,priority:3" json:"cancelled"`
}

// SlotLock is the per (date, time slot) row every capacity check locks
// before summing guests. It holds no capacity data.
type SlotLock struct {
	ID         uint   `gorm:"primaryKey"`
	TimeSlotID uint   `gorm:"not null;uniqueIndex:idx_slot_lock_key"`
	Date       string `gorm:"type:varchar(10);not null;uniqueIndex:idx_slot_lock_key"`
	Version    int64  `gorm:"not null;default:0"`
}
