package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/repository"
)

// CancellationNotifier сообщает клиенту об отмене записи администратором.
type CancellationNotifier interface {
	NotifyCancelled(ctx context.Context, clientID int64, slot model.Slot, reason string) error
}

// OperatorAlerter пишет в служебный чат администратора.
type OperatorAlerter interface {
	Alert(ctx context.Context, text string) error
}

// Waker будит планировщик напоминаний вне расписания.
type Waker interface {
	Wake()
}

// activeStates — все состояния, кроме cancelled.
var activeStates = []model.SlotState{
	model.SlotStateOpen,
	model.SlotStateHeld,
	model.SlotStateBooked,
	model.SlotStateCompleted,
}

func appendEvent(
	ctx context.Context,
	tx repository.Store,
	t model.EventType,
	slotID *uuid.UUID,
	clientID *int64,
	details map[string]any,
) error {
	ev := model.NewEvent(t, slotID, clientID, details)
	return tx.AppendEvent(ctx, &ev)
}

func defaultLogger(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With(slog.String("component", component))
}

func systemNow() time.Time {
	return time.Now().UTC()
}
