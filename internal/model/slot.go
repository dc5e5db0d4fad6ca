package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Состояние слота.
type SlotState string

const (
	SlotStateOpen      SlotState = "open"
	SlotStateHeld      SlotState = "held"
	SlotStateBooked    SlotState = "booked"
	SlotStateCompleted SlotState = "completed"
	SlotStateCancelled SlotState = "cancelled"
)

// Форматы локальных значений даты и времени слота.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// slotTransitions — единственная таблица допустимых переходов.
// Held → Open разрешён только при истечении или сбое удержания.
var slotTransitions = map[SlotState][]SlotState{
	SlotStateOpen:   {SlotStateHeld, SlotStateCancelled},
	SlotStateHeld:   {SlotStateBooked, SlotStateCancelled, SlotStateOpen},
	SlotStateBooked: {SlotStateCompleted, SlotStateCancelled},
}

// Valid сообщает, известно ли состояние.
func (s SlotState) Valid() bool {
	switch s {
	case SlotStateOpen, SlotStateHeld, SlotStateBooked, SlotStateCompleted, SlotStateCancelled:
		return true
	}
	return false
}

// Terminal: из состояния нет переходов.
func (s SlotState) Terminal() bool {
	return len(slotTransitions[s]) == 0
}

// slots
type Slot struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Локальные значения в настроенном часовом поясе.
	Date      string `gorm:"type:varchar(10);not null;index;uniqueIndex:idx_slots_active_start,where:state <> 'cancelled'"`
	StartTime string `gorm:"type:varchar(5);not null;uniqueIndex:idx_slots_active_start,where:state <> 'cancelled'"`
	EndTime   string `gorm:"type:varchar(5);not null"`

	// Те же моменты в UTC: сортировка, расчёт напоминаний, завершение.
	StartsAt time.Time `gorm:"not null;index"`
	EndsAt   time.Time `gorm:"not null"`

	State SlotState `gorm:"type:varchar(16);not null;default:'open';index"`

	// Заполнены только в состояниях booked/completed.
	ClientID    *int64 `gorm:"index"`
	ClientName  string `gorm:"type:varchar(255)"`
	ClientPhone string `gorm:"type:varchar(32)"`

	HeldAt       *time.Time
	CancelReason string `gorm:"type:text"`

	// Токен оптимистичной блокировки, растёт на каждой записи.
	Version int64 `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		s.ID = id
	}
	if s.State == "" {
		s.State = SlotStateOpen
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// CanTransition проверяет переход по таблице состояний.
func (s *Slot) CanTransition(to SlotState) bool {
	for _, next := range slotTransitions[s.State] {
		if next == to {
			return true
		}
	}
	return false
}

// HasClient: слот закреплён за клиентом.
func (s *Slot) HasClient() bool {
	return s.State == SlotStateBooked || s.State == SlotStateCompleted
}

// ClearClient сбрасывает клиентские поля при уходе из booked.
func (s *Slot) ClearClient() {
	s.ClientID = nil
	s.ClientName = ""
	s.ClientPhone = ""
}

// Window — "HH:MM–HH:MM".
func (s *Slot) Window() string {
	return s.StartTime + "–" + s.EndTime
}
