package models

import "time"

type MenuItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CategoryID  uint      `gorm:"not null;index" json:"category_id"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Price       float64   `gorm:"type:decimal(6,2);not null" json:"price"`
	IsAvailable bool      `gorm:"not null;default:true" json:"is_available"`
	IsFeatured  bool      `gorm:"not null;default:false" json:"is_featured"`
	Order       int       `gorm:"column:display_order;not null;default:0" json:"order"`
	ImageURL    *string   `gorm:"type:varchar(255)" json:"image_url,omitempty"`
	Ingredients string    `gorm:"type:text" json:"ingredients"`
	Calories    *int      `json:"calories,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}
