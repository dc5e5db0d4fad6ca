package model

import "time"

// working_days — рабочий день администратора.
// Закрытый день не принимает ни новых слотов, ни новых записей.
type WorkingDay struct {
	Date   string `gorm:"type:varchar(10);primaryKey"`
	Closed bool   `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
