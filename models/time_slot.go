package models

import "time"

const DefaultSlotCapacity = 50

// TimeSlot is a staff-managed daily booking window. StartTime is a
// time of day in "15:04:05" form; zero padding keeps string order chronological.
type TimeSlot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	StartTime   string    `gorm:"type:varchar(8);not null;uniqueIndex" json:"start_time"`
	DisplayName string    `gorm:"type:varchar(10);not null" json:"display_name"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	MaxCapacity int       `gorm:"not null;default:50;check:max_capacity >= 1" json:"max_capacity"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}
