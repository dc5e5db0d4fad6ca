package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Статус задачи напоминания. fired и cancelled — терминальные.
type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusFired     ReminderStatus = "fired"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// reminder_jobs — отложенное напоминание по забронированному слоту.
// Слот владеет записью на приём, задача лишь ссылается на него.
type ReminderJob struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Не более одной pending-задачи на слот.
	SlotID   uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_reminder_jobs_pending_slot,where:status = 'pending'"`
	ClientID int64     `gorm:"not null"`

	FireAt time.Time      `gorm:"not null;index"`
	Status ReminderStatus `gorm:"type:varchar(16);not null;default:'pending';index"`

	Attempts  int    `gorm:"not null;default:0"`
	LastError string `gorm:"type:text"`
	AlertedAt *time.Time

	FiredAt     *time.Time
	CancelledAt *time.Time

	Version int64 `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Slot *Slot `gorm:"foreignKey:SlotID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (j *ReminderJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		j.ID = id
	}
	if j.Status == "" {
		j.Status = ReminderStatusPending
	}
	if j.Version == 0 {
		j.Version = 1
	}
	return nil
}

// Due сообщает, пора ли отправлять.
func (j *ReminderJob) Due(now time.Time) bool {
	return j.Status == ReminderStatusPending && !j.FireAt.After(now)
}

// ReminderTime: начало приёма минус lead.
// Значение не подрезается: если оно уже в прошлом, задача сразу к отправке.
func ReminderTime(startsAt time.Time, lead time.Duration) time.Time {
	return startsAt.Add(-lead).UTC()
}
