package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/M5rkn/NailsBot/internal/model"
)

type SlotRepository interface {
	// Найти слот по ID.
	GetSlot(ctx context.Context, id uuid.UUID) (*model.Slot, error)
	// Слоты по фильтру, по возрастанию starts_at.
	ListSlots(ctx context.Context, f SlotFilter) ([]model.Slot, error)
	// Создать слоты; ID заполняются на месте.
	CreateSlots(ctx context.Context, slots []model.Slot) error
	// Compare-and-swap: запись проходит, только если версия не изменилась.
	SwapSlot(ctx context.Context, slot *model.Slot, expectedVersion int64) error
	// Будущие брони клиента.
	CountActiveBookings(ctx context.Context, clientID int64, now time.Time) (int64, error)
}

type ReminderRepository interface {
	CreateReminder(ctx context.Context, job *model.ReminderJob) error
	GetReminder(ctx context.Context, id uuid.UUID) (*model.ReminderJob, error)
	ListRemindersForSlot(ctx context.Context, slotID uuid.UUID) ([]model.ReminderJob, error)
	// Pending-задачи с fire_at <= now, самые ранние первыми.
	DueReminders(ctx context.Context, now time.Time, limit int) ([]model.ReminderJob, error)
	// pending → fired; ErrVersionConflict, если задача уже не pending.
	MarkReminderFired(ctx context.Context, id uuid.UUID, at time.Time) error
	// pending → cancelled для слота; false, если отменять нечего.
	CancelPendingReminder(ctx context.Context, slotID uuid.UUID, at time.Time) (bool, error)
	RecordReminderFailure(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*model.ReminderJob, error)
	MarkReminderAlerted(ctx context.Context, id uuid.UUID, at time.Time) error
}

type WorkingDayRepository interface {
	GetWorkingDay(ctx context.Context, date string) (*model.WorkingDay, error)
	EnsureWorkingDay(ctx context.Context, date string) (*model.WorkingDay, error)
	SetDayClosed(ctx context.Context, date string, closed bool) error
	DeleteWorkingDay(ctx context.Context, date string) error
	// Дни в диапазоне [from, to] включительно.
	ListWorkingDays(ctx context.Context, from, to string) ([]model.WorkingDay, error)
}

type EventRepository interface {
	AppendEvent(ctx context.Context, ev *model.Event) error
	ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error)
}

// Store — единственный источник истины для слотов и напоминаний.
type Store interface {
	SlotRepository
	ReminderRepository
	WorkingDayRepository
	EventRepository

	// InTx выполняет fn в одной транзакции; ошибка откатывает всё.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Ping(ctx context.Context) error
}

// Пустые поля фильтра не ограничивают выборку.
type SlotFilter struct {
	IDs      []uuid.UUID
	FromDate string // включительно, YYYY-MM-DD
	ToDate   string // включительно, YYYY-MM-DD
	States   []model.SlotState
	ClientID *int64

	StartsAfter time.Time
	EndsBefore  time.Time // ends_at <= EndsBefore
	HeldBefore  time.Time // held_at < HeldBefore

	Limit int
}

type EventFilter struct {
	SlotID    *uuid.UUID
	EventType model.EventType
	Limit     int
}

// Реализация на GORM.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
