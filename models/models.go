package models

// All lists every migrated entity in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&TimeSlot{},
		&Reservation{},
		&SlotLock{},
		&MenuCategory{},
		&MenuItem{},
	}
}
