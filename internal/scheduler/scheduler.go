package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/M5rkn/NailsBot/internal/lease"
	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/repository"
)

// Sink доставляет напоминание клиенту.
type Sink interface {
	SendReminder(ctx context.Context, clientID int64, slot model.Slot) error
}

type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type Config struct {
	SweepInterval time.Duration
	BatchSize     int
	SendTimeout   time.Duration
	AlertAfter    int // после стольких неудачных попыток пишем оператору
	LeaseTTL      time.Duration
}

type SweepResult struct {
	Due       int
	Fired     int
	Failed    int
	Skipped   int
	Cancelled int
}

// ReminderScheduler периодически отправляет просроченные напоминания.
// Состояние живёт только в хранилище, поэтому перезапуск ничего не теряет:
// первый проход после старта досылает всё пропущенное.
type ReminderScheduler struct {
	store   repository.Store
	sink    Sink
	locker  lease.Locker
	alerter Alerter
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	wake    chan struct{}
}

func NewReminderScheduler(
	store repository.Store,
	sink Sink,
	locker lease.Locker,
	alerter Alerter,
	cfg Config,
	log *slog.Logger,
) *ReminderScheduler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Minute
	}
	if locker == nil {
		locker = lease.NewLocal()
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReminderScheduler{
		store:   store,
		sink:    sink,
		locker:  locker,
		alerter: alerter,
		cfg:     cfg,
		log:     log.With(slog.String("component", "reminder_scheduler")),
		now:     func() time.Time { return time.Now().UTC() },
		wake:    make(chan struct{}, 1),
	}
}

// SetClock подменяет источник времени.
func (s *ReminderScheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run выполняет проход сразу, затем по тикеру и по Wake, пока жив ctx.
func (s *ReminderScheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()

	s.log.InfoContext(ctx, "reminder scheduler started", slog.Duration("interval", s.cfg.SweepInterval))
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(ctx, "reminder scheduler stopped")
			return nil
		case <-t.C:
			s.sweep(ctx)
		case <-s.wake:
			s.sweep(ctx)
		}
	}
}

// Wake просит внеочередной проход; не блокирует.
func (s *ReminderScheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *ReminderScheduler) sweep(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.ErrorContext(ctx, "reminder sweep failed", slog.Any("err", err))
		}
		return
	}
	if res.Due > 0 {
		s.log.InfoContext(ctx, "reminder sweep done",
			slog.Int("due", res.Due),
			slog.Int("fired", res.Fired),
			slog.Int("failed", res.Failed),
			slog.Int("skipped", res.Skipped),
			slog.Int("cancelled", res.Cancelled),
		)
	}
}

// SweepOnce обрабатывает одну пачку просроченных задач, самые ранние первыми.
// Ошибка одной задачи не мешает остальным.
func (s *ReminderScheduler) SweepOnce(ctx context.Context) (SweepResult, error) {
	now := s.now()
	jobs, err := s.store.DueReminders(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("due reminders: %w", err)
	}

	res := SweepResult{Due: len(jobs)}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		switch s.process(ctx, job, now) {
		case outcomeFired:
			res.Fired++
		case outcomeFailed:
			res.Failed++
		case outcomeCancelled:
			res.Cancelled++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// Cancel снимает ожидающее напоминание слота. Для fired/cancelled ничего не делает.
func (s *ReminderScheduler) Cancel(ctx context.Context, slotID uuid.UUID) (bool, error) {
	return s.store.CancelPendingReminder(ctx, slotID, s.now())
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeFired
	outcomeFailed
	outcomeCancelled
)

func (s *ReminderScheduler) process(ctx context.Context, job model.ReminderJob, now time.Time) outcome {
	log := s.log.With(slog.String("job_id", job.ID.String()), slog.String("slot_id", job.SlotID.String()))

	l, ok, err := s.locker.Acquire(ctx, "reminder:"+job.ID.String(), s.cfg.LeaseTTL)
	switch {
	case err != nil:
		// Без аренды возможен дубль между экземплярами, но не пропуск.
		log.WarnContext(ctx, "reminder lease unavailable", slog.Any("err", err))
	case !ok:
		return outcomeSkipped
	default:
		defer func() {
			if err := l.Release(context.WithoutCancel(ctx)); err != nil {
				log.WarnContext(ctx, "reminder lease release failed", slog.Any("err", err))
			}
		}()
	}

	// Перечитываем: задачу могли отменить или отправить, пока мы ждали.
	fresh, err := s.store.GetReminder(ctx, job.ID)
	if err != nil {
		log.ErrorContext(ctx, "reminder reload failed", slog.Any("err", err))
		return outcomeSkipped
	}
	if fresh.Status != model.ReminderStatusPending {
		return outcomeSkipped
	}

	slot, err := s.store.GetSlot(ctx, fresh.SlotID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.ErrorContext(ctx, "reminder slot load failed", slog.Any("err", err))
		return outcomeSkipped
	}
	if slot == nil || slot.State != model.SlotStateBooked || slot.ClientID == nil || *slot.ClientID != fresh.ClientID {
		if _, err := s.store.CancelPendingReminder(ctx, fresh.SlotID, now); err != nil {
			log.ErrorContext(ctx, "orphan reminder cancel failed", slog.Any("err", err))
			return outcomeSkipped
		}
		log.WarnContext(ctx, "reminder cancelled: slot no longer booked")
		return outcomeCancelled
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	err = s.sink.SendReminder(sendCtx, fresh.ClientID, *slot)
	cancel()
	if err != nil {
		s.recordFailure(ctx, log, fresh, err, now)
		return outcomeFailed
	}

	// Сбой этой записи оставляет задачу pending: следующий проход отправит
	// повторно. Дубль допустим, пропуск нет.
	if err := s.store.MarkReminderFired(ctx, fresh.ID, now); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			log.InfoContext(ctx, "reminder state changed during send")
			return outcomeFired
		}
		log.ErrorContext(ctx, "reminder mark fired failed", slog.Any("err", err))
		return outcomeFailed
	}

	clientID := fresh.ClientID
	ev := model.NewEvent(model.EventTypeReminderFired, &fresh.SlotID, &clientID, map[string]any{
		"job_id":  fresh.ID.String(),
		"fire_at": fresh.FireAt,
	})
	if err := s.store.AppendEvent(ctx, &ev); err != nil {
		log.WarnContext(ctx, "reminder event write failed", slog.Any("err", err))
	}
	log.InfoContext(ctx, "reminder sent", slog.Int64("client_id", clientID))
	return outcomeFired
}

func (s *ReminderScheduler) recordFailure(ctx context.Context, log *slog.Logger, job *model.ReminderJob, sendErr error, now time.Time) {
	log.WarnContext(ctx, "reminder send failed", slog.Int("attempt", job.Attempts+1), slog.Any("err", sendErr))

	updated, err := s.store.RecordReminderFailure(ctx, job.ID, sendErr.Error(), now)
	if err != nil {
		log.ErrorContext(ctx, "reminder failure bookkeeping failed", slog.Any("err", err))
		return
	}

	clientID := updated.ClientID
	ev := model.NewEvent(model.EventTypeReminderFailed, &updated.SlotID, &clientID, map[string]any{
		"job_id":   updated.ID.String(),
		"attempts": updated.Attempts,
		"error":    sendErr.Error(),
	})
	if err := s.store.AppendEvent(ctx, &ev); err != nil {
		log.WarnContext(ctx, "reminder event write failed", slog.Any("err", err))
	}

	if s.alerter == nil || s.cfg.AlertAfter <= 0 || updated.Attempts < s.cfg.AlertAfter || updated.AlertedAt != nil {
		return
	}
	text := fmt.Sprintf("Напоминание клиенту %d не доставлено после %d попыток: %v",
		updated.ClientID, updated.Attempts, sendErr)
	if err := s.alerter.Alert(ctx, text); err != nil {
		log.WarnContext(ctx, "operator alert failed", slog.Any("err", err))
		return
	}
	if err := s.store.MarkReminderAlerted(ctx, updated.ID, now); err != nil {
		log.WarnContext(ctx, "mark alerted failed", slog.Any("err", err))
	}
}
