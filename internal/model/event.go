package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Тип события аудита.
type EventType string

const (
	EventTypeSlotCreated      EventType = "slot_created"
	EventTypeSlotCancelled    EventType = "slot_cancelled"
	EventTypeBookingCreated   EventType = "booking_created"
	EventTypeBookingCancelled EventType = "booking_cancelled"
	EventTypeBookingCompleted EventType = "booking_completed"
	EventTypeReminderFired    EventType = "reminder_fired"
	EventTypeReminderFailed   EventType = "reminder_failed"
	EventTypeDayClosed        EventType = "day_closed"
	EventTypeDayOpened        EventType = "day_opened"
)

// events — события аудита, пишутся в той же транзакции, что и изменение.
type Event struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	EventType EventType `gorm:"type:varchar(64);not null;index"`

	CreatedAt time.Time `gorm:"not null;index"`

	SlotID   *uuid.UUID `gorm:"type:uuid;index"`
	ClientID *int64     `gorm:"index"`

	Details datatypes.JSON
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.ID = id
	}
	return nil
}

// NewEvent собирает событие; details сериализуется в JSON.
func NewEvent(t EventType, slotID *uuid.UUID, clientID *int64, details map[string]any) Event {
	ev := Event{EventType: t, SlotID: slotID, ClientID: clientID}
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			ev.Details = datatypes.JSON(b)
		}
	}
	return ev
}
