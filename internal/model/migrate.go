package model

import "gorm.io/gorm"

// AutoMigrate выполняет миграцию всех сущностей календаря.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&WorkingDay{},
		&Slot{},
		&ReminderJob{},
		&Event{},
	)
}
