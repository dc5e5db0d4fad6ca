package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/repository"
)

type ActorKind string

const (
	ActorClient ActorKind = "client"
	ActorAdmin  ActorKind = "admin"
)

// Actor — кто инициирует операцию; ID — Telegram user id клиента.
type Actor struct {
	Kind ActorKind
	ID   int64
}

type BookingConfig struct {
	LeadTime           time.Duration
	MaxActivePerClient int // 0 — без ограничения
	ReopenOnCancel     bool
	HoldTTL            time.Duration
}

type AttemptBookInput struct {
	SlotID      uuid.UUID
	ClientID    int64
	ClientName  string
	ClientPhone string
}

type CancelResult struct {
	Slot     *model.Slot
	Reopened *model.Slot // новый открытый слот на то же время, если создан
}

type CompletionResult struct {
	Completed int
	Released  int
}

// BookingService ведёт допуск к записи и жизненный цикл брони.
type BookingService struct {
	store   repository.Store
	cfg     BookingConfig
	waker   Waker
	alerter OperatorAlerter
	log     *slog.Logger
	now     func() time.Time
}

func NewBookingService(
	store repository.Store,
	cfg BookingConfig,
	waker Waker,
	alerter OperatorAlerter,
	log *slog.Logger,
) *BookingService {
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = 24 * time.Hour
	}
	return &BookingService{
		store:   store,
		cfg:     cfg,
		waker:   waker,
		alerter: alerter,
		log:     defaultLogger(log, "booking"),
		now:     systemNow,
	}
}

// SetClock подменяет источник времени.
func (s *BookingService) SetClock(now func() time.Time) {
	s.now = now
}

// AttemptBook переводит открытый слот в Booked и регистрирует напоминание.
// Подписку на канал проверяет вызывающая сторона.
func (s *BookingService) AttemptBook(ctx context.Context, in AttemptBookInput) (*model.Slot, error) {
	if in.ClientID <= 0 {
		return nil, invalid("client_id", "must be positive")
	}
	if in.SlotID == uuid.Nil {
		return nil, invalid("slot_id", "is required")
	}

	now := s.now()
	slot, err := s.store.GetSlot(ctx, in.SlotID)
	if err != nil {
		return nil, storeError(err, in.SlotID)
	}

	switch slot.State {
	case model.SlotStateBooked, model.SlotStateCompleted:
		return nil, stateError(ErrAlreadyBooked, slot)
	case model.SlotStateCancelled:
		return nil, stateError(ErrCancelled, slot)
	case model.SlotStateHeld:
		return nil, stateError(ErrConcurrentModification, slot)
	}
	if !slot.StartsAt.After(now) {
		return nil, fmt.Errorf("%w: slot %s already started", ErrInvalidState, slot.ID)
	}
	if err := s.ensureDayOpen(ctx, s.store, slot.Date); err != nil {
		return nil, err
	}

	var job model.ReminderJob
	booked := *slot
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if s.cfg.MaxActivePerClient > 0 {
			n, err := tx.CountActiveBookings(ctx, in.ClientID, now)
			if err != nil {
				return err
			}
			if n >= int64(s.cfg.MaxActivePerClient) {
				return fmt.Errorf("%w: client %d has %d active booking(s)", ErrBookingLimit, in.ClientID, n)
			}
		}

		// Open → Held по прочитанной версии: проигравший гонку получает конфликт версий.
		heldAt := now
		booked.State = model.SlotStateHeld
		booked.HeldAt = &heldAt
		if err := tx.SwapSlot(ctx, &booked, slot.Version); err != nil {
			return err
		}

		clientID := in.ClientID
		booked.State = model.SlotStateBooked
		booked.HeldAt = nil
		booked.ClientID = &clientID
		booked.ClientName = in.ClientName
		booked.ClientPhone = in.ClientPhone
		if err := tx.SwapSlot(ctx, &booked, booked.Version); err != nil {
			return err
		}

		job = model.ReminderJob{
			SlotID:   booked.ID,
			ClientID: clientID,
			FireAt:   model.ReminderTime(booked.StartsAt, s.cfg.LeadTime),
		}
		if err := tx.CreateReminder(ctx, &job); err != nil {
			return err
		}

		return appendEvent(ctx, tx, model.EventTypeBookingCreated, &booked.ID, &clientID, map[string]any{
			"date":    booked.Date,
			"window":  booked.Window(),
			"fire_at": job.FireAt,
		})
	})
	if err != nil {
		return nil, storeError(err, in.SlotID)
	}

	s.log.InfoContext(ctx, "slot booked",
		slog.String("slot_id", booked.ID.String()),
		slog.Int64("client_id", in.ClientID),
		slog.Time("fire_at", job.FireAt),
	)

	// Напоминание уже просрочено: не ждём следующего тика.
	if job.Due(now) && s.waker != nil {
		s.waker.Wake()
	}
	return &booked, nil
}

// CancelBooking отменяет бронь по просьбе её владельца. Повторная отмена
// возвращает слот без ошибки. Администратор отменяет чужие записи только
// через AvailabilityService.ForceCancel, где клиент получает уведомление.
func (s *BookingService) CancelBooking(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*CancelResult, error) {
	if actor.Kind != ActorClient {
		return nil, fmt.Errorf("%w: %s cancellations go through force cancel", ErrInvalidState, actor.Kind)
	}
	if actor.ID <= 0 {
		return nil, invalid("client_id", "must be positive")
	}

	now := s.now()
	res := &CancelResult{}
	var clientID *int64

	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		slot, err := tx.GetSlot(ctx, id)
		if err != nil {
			return err
		}
		res.Slot = slot

		switch slot.State {
		case model.SlotStateCancelled:
			return nil
		case model.SlotStateBooked:
		default:
			return stateError(ErrInvalidState, slot)
		}
		if slot.ClientID == nil || *slot.ClientID != actor.ID {
			return fmt.Errorf("%w: slot %s", ErrNotOwner, slot.ID)
		}

		clientID = slot.ClientID
		if reason == "" {
			reason = "cancelled by " + string(actor.Kind)
		}
		if err := cancelBooked(ctx, tx, slot, reason, now); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, model.EventTypeBookingCancelled, &slot.ID, clientID, map[string]any{
			"actor":  string(actor.Kind),
			"reason": reason,
		}); err != nil {
			return err
		}

		if !s.cfg.ReopenOnCancel || !slot.StartsAt.After(now) {
			return nil
		}
		if err := s.ensureDayOpen(ctx, tx, slot.Date); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return nil
			}
			return err
		}
		reopened, err := reopenSlot(ctx, tx, slot)
		if err != nil {
			return err
		}
		res.Reopened = reopened
		return nil
	})
	if err != nil {
		return nil, storeError(err, id)
	}

	if clientID != nil {
		s.log.InfoContext(ctx, "booking cancelled",
			slog.String("slot_id", id.String()),
			slog.Int64("client_id", *clientID),
			slog.String("actor", string(actor.Kind)),
		)
		s.alert(ctx, fmt.Sprintf("Клиент %d отменил запись %s %s", *clientID, res.Slot.Date, res.Slot.Window()))
	}
	return res, nil
}

// CompleteBooking закрывает прошедшую запись.
func (s *BookingService) CompleteBooking(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	now := s.now()
	var result *model.Slot
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		slot, err := tx.GetSlot(ctx, id)
		if err != nil {
			return err
		}
		result = slot
		if slot.State == model.SlotStateCompleted {
			return nil
		}
		return completeSlot(ctx, tx, slot, now)
	})
	if err != nil {
		return nil, storeError(err, id)
	}
	return result, nil
}

// CompleteDue — тело периодической задачи: завершает прошедшие записи
// и возвращает в Open зависшие удержания. Проигравшие CAS пропускаются.
func (s *BookingService) CompleteDue(ctx context.Context) (CompletionResult, error) {
	now := s.now()
	var res CompletionResult

	due, err := s.store.ListSlots(ctx, repository.SlotFilter{
		States:     []model.SlotState{model.SlotStateBooked},
		EndsBefore: now,
	})
	if err != nil {
		return res, err
	}
	for i := range due {
		slot := &due[i]
		err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
			return completeSlot(ctx, tx, slot, now)
		})
		switch {
		case err == nil:
			res.Completed++
		case errors.Is(err, repository.ErrVersionConflict):
			s.log.DebugContext(ctx, "completion skipped", slog.String("slot_id", slot.ID.String()))
		default:
			return res, err
		}
	}

	if s.cfg.HoldTTL <= 0 {
		return res, nil
	}
	stale, err := s.store.ListSlots(ctx, repository.SlotFilter{
		States:     []model.SlotState{model.SlotStateHeld},
		HeldBefore: now.Add(-s.cfg.HoldTTL),
	})
	if err != nil {
		return res, err
	}
	for i := range stale {
		slot := &stale[i]
		expected := slot.Version
		slot.State = model.SlotStateOpen
		slot.HeldAt = nil
		slot.ClearClient()
		err := s.store.SwapSlot(ctx, slot, expected)
		switch {
		case err == nil:
			res.Released++
			s.log.WarnContext(ctx, "stale hold released", slog.String("slot_id", slot.ID.String()))
		case errors.Is(err, repository.ErrVersionConflict):
		default:
			return res, err
		}
	}
	return res, nil
}

func (s *BookingService) ClientBookings(ctx context.Context, clientID int64) ([]model.Slot, error) {
	if clientID <= 0 {
		return nil, invalid("client_id", "must be positive")
	}
	return s.store.ListSlots(ctx, repository.SlotFilter{
		ClientID:    &clientID,
		States:      []model.SlotState{model.SlotStateBooked},
		StartsAfter: s.now(),
	})
}

func (s *BookingService) ensureDayOpen(ctx context.Context, store repository.Store, date string) error {
	day, err := store.GetWorkingDay(ctx, date)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if day.Closed {
		return invalidDay(date)
	}
	return nil
}

func (s *BookingService) alert(ctx context.Context, text string) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Alert(ctx, text); err != nil {
		s.log.WarnContext(ctx, "operator alert failed", slog.Any("err", err))
	}
}

// completeSlot: Booked → Completed после окончания приёма.
func completeSlot(ctx context.Context, tx repository.Store, slot *model.Slot, now time.Time) error {
	if !slot.CanTransition(model.SlotStateCompleted) {
		return stateError(ErrInvalidState, slot)
	}
	if slot.EndsAt.After(now) {
		return fmt.Errorf("%w: slot %s ends at %s", ErrInvalidState, slot.ID, slot.EndsAt.Format(time.RFC3339))
	}

	expected := slot.Version
	slot.State = model.SlotStateCompleted
	if err := tx.SwapSlot(ctx, slot, expected); err != nil {
		return err
	}
	if _, err := tx.CancelPendingReminder(ctx, slot.ID, now); err != nil {
		return err
	}
	return appendEvent(ctx, tx, model.EventTypeBookingCompleted, &slot.ID, slot.ClientID, nil)
}

// reopenSlot создаёт свободный слот на место отменённой брони.
func reopenSlot(ctx context.Context, tx repository.Store, cancelled *model.Slot) (*model.Slot, error) {
	fresh := model.Slot{
		Date:      cancelled.Date,
		StartTime: cancelled.StartTime,
		EndTime:   cancelled.EndTime,
		StartsAt:  cancelled.StartsAt,
		EndsAt:    cancelled.EndsAt,
		State:     model.SlotStateOpen,
	}
	slots := []model.Slot{fresh}
	if err := tx.CreateSlots(ctx, slots); err != nil {
		return nil, err
	}
	if err := appendEvent(ctx, tx, model.EventTypeSlotCreated, &slots[0].ID, nil, map[string]any{
		"reopened_from": cancelled.ID.String(),
	}); err != nil {
		return nil, err
	}
	return &slots[0], nil
}
