package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/M5rkn/NailsBot/internal/calendar"
	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/repository"
)

// SlotSpec — одно окно рабочего дня, "HH:MM" в часовом поясе сервиса.
type SlotSpec struct {
	Start string
	End   string
}

type SlotQuery struct {
	From   string // YYYY-MM-DD, включительно
	To     string // YYYY-MM-DD, включительно
	States []model.SlotState
}

type RemoveDayResult struct {
	Cancelled int
	Kept      int  // booked/completed остались нетронутыми
	Deleted   bool // день удалён; иначе закрыт
}

type DaySchedule struct {
	Date   string
	Closed bool
	Slots  []model.Slot
}

// AvailabilityService — операции администратора над календарём.
type AvailabilityService struct {
	store    repository.Store
	loc      *time.Location
	notifier CancellationNotifier
	alerter  OperatorAlerter
	log      *slog.Logger
	now      func() time.Time
}

func NewAvailabilityService(
	store repository.Store,
	loc *time.Location,
	notifier CancellationNotifier,
	alerter OperatorAlerter,
	log *slog.Logger,
) *AvailabilityService {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityService{
		store:    store,
		loc:      loc,
		notifier: notifier,
		alerter:  alerter,
		log:      defaultLogger(log, "availability"),
		now:      systemNow,
	}
}

// SetClock подменяет источник времени.
func (s *AvailabilityService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AvailabilityService) Location() *time.Location {
	return s.loc
}

// SlotSpecsFromRange режет рабочий интервал на равные окна.
func SlotSpecsFromRange(from, to string, step time.Duration) ([]SlotSpec, error) {
	start, err := calendar.ParseClock(from)
	if err != nil {
		return nil, invalid("from", "%v", err)
	}
	end, err := calendar.ParseClock(to)
	if err != nil {
		return nil, invalid("to", "%v", err)
	}
	if end <= start {
		return nil, invalid("to", "must be after %s", from)
	}

	// Нулевой день в UTC: разбиение не зависит от перехода на летнее время.
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	ranges, err := calendar.SplitToTimeSlots(calendar.TimeRange{Start: base.Add(start), End: base.Add(end)}, step)
	if err != nil {
		return nil, invalid("step", "%v", err)
	}

	specs := make([]SlotSpec, 0, len(ranges))
	for _, r := range ranges {
		specs = append(specs, SlotSpec{
			Start: calendar.FormatClock(r.Start.Sub(base)),
			End:   calendar.FormatClock(r.End.Sub(base)),
		})
	}
	return specs, nil
}

// AddWorkingDay создаёт открытые слоты на дату. Все или ничего.
func (s *AvailabilityService) AddWorkingDay(ctx context.Context, date string, specs []SlotSpec) ([]model.Slot, error) {
	if _, err := calendar.ParseDate(date, s.loc); err != nil {
		return nil, invalid("date", "%v", err)
	}
	if len(specs) == 0 {
		return nil, invalid("slots", "at least one slot is required")
	}

	now := s.now()
	ranges := make([]calendar.TimeRange, len(specs))
	for i, spec := range specs {
		r, err := calendar.LocalRange(date, spec.Start, spec.End, s.loc)
		if err != nil {
			return nil, invalid("slots", "%s–%s: %v", spec.Start, spec.End, err)
		}
		if !r.Start.After(now) {
			return nil, invalid("slots", "%s–%s is in the past", spec.Start, spec.End)
		}
		// пересечения внутри самого запроса
		if has, _ := calendar.HasOverlap(r, ranges[:i]); has {
			return nil, &ConflictError{Date: date, Windows: []string{spec.Start + "–" + spec.End}}
		}
		ranges[i] = r
	}

	var created []model.Slot
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		day, err := tx.GetWorkingDay(ctx, date)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if day != nil && day.Closed {
			return invalidDay(date)
		}

		existing, err := tx.ListSlots(ctx, repository.SlotFilter{
			FromDate: date,
			ToDate:   date,
			States:   activeStates,
		})
		if err != nil {
			return err
		}
		taken := make([]calendar.TimeRange, len(existing))
		for i, slot := range existing {
			taken[i] = calendar.TimeRange{Start: slot.StartsAt, End: slot.EndsAt}
		}

		conflict := &ConflictError{Date: date}
		for _, r := range ranges {
			_, hits := calendar.HasOverlap(r, taken)
			for _, hit := range hits {
				conflict.Windows = append(conflict.Windows, formatWindow(hit, s.loc))
			}
		}
		if len(conflict.Windows) > 0 {
			return conflict
		}

		if _, err := tx.EnsureWorkingDay(ctx, date); err != nil {
			return err
		}

		slots := make([]model.Slot, len(ranges))
		for i, r := range ranges {
			slots[i] = model.Slot{
				Date:      date,
				StartTime: r.Start.Format(model.TimeLayout),
				EndTime:   r.End.Format(model.TimeLayout),
				StartsAt:  r.Start.UTC(),
				EndsAt:    r.End.UTC(),
				State:     model.SlotStateOpen,
			}
		}
		if err := tx.CreateSlots(ctx, slots); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// параллельный администратор успел первым
				return &ConflictError{Date: date}
			}
			return err
		}

		for i := range slots {
			if err := appendEvent(ctx, tx, model.EventTypeSlotCreated, &slots[i].ID, nil, map[string]any{
				"date":   date,
				"window": slots[i].Window(),
			}); err != nil {
				return err
			}
		}
		created = slots
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(created, func(i, j int) bool { return created[i].StartsAt.Before(created[j].StartsAt) })
	s.log.InfoContext(ctx, "working day slots added", slog.String("date", date), slog.Int("slots", len(created)))
	return created, nil
}

// RemoveSlot отменяет открытый или удерживаемый слот.
// Booked и Completed не трогаются; повторная отмена ничего не меняет.
func (s *AvailabilityService) RemoveSlot(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	var result *model.Slot
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		slot, err := tx.GetSlot(ctx, id)
		if err != nil {
			return err
		}
		switch slot.State {
		case model.SlotStateCancelled:
			result = slot
			return nil
		case model.SlotStateBooked, model.SlotStateCompleted:
			return stateError(ErrInvalidState, slot)
		}

		if err := cancelUnbooked(ctx, tx, slot, "removed by admin"); err != nil {
			return err
		}
		result = slot
		return nil
	})
	if err != nil {
		return nil, storeError(err, id)
	}
	return result, nil
}

// ForceCancel: явный путь администратора для отмены чужой записи.
// Клиент уведомляется после коммита; сбой уведомления не откатывает отмену.
func (s *AvailabilityService) ForceCancel(ctx context.Context, id uuid.UUID, reason string) (*model.Slot, error) {
	var (
		result   *model.Slot
		clientID *int64
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		slot, err := tx.GetSlot(ctx, id)
		if err != nil {
			return err
		}
		switch slot.State {
		case model.SlotStateCancelled:
			result = slot
			return nil
		case model.SlotStateCompleted:
			return stateError(ErrInvalidState, slot)
		case model.SlotStateOpen, model.SlotStateHeld:
			if err := cancelUnbooked(ctx, tx, slot, reason); err != nil {
				return err
			}
			result = slot
			return nil
		}

		clientID = slot.ClientID
		if err := cancelBooked(ctx, tx, slot, reason, s.now()); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, model.EventTypeBookingCancelled, &slot.ID, clientID, map[string]any{
			"actor":  string(ActorAdmin),
			"reason": reason,
			"forced": true,
		}); err != nil {
			return err
		}
		result = slot
		return nil
	})
	if err != nil {
		return nil, storeError(err, id)
	}

	if clientID != nil && s.notifier != nil {
		if err := s.notifier.NotifyCancelled(ctx, *clientID, *result, reason); err != nil {
			s.log.ErrorContext(ctx, "cancellation notice failed",
				slog.String("slot_id", id.String()),
				slog.Int64("client_id", *clientID),
				slog.Any("err", err),
			)
			s.alert(ctx, "Не удалось уведомить клиента об отмене записи "+result.Date+" "+result.Window())
		}
	}
	return result, nil
}

// ListSlots сортирует по возрастанию начала.
func (s *AvailabilityService) ListSlots(ctx context.Context, q SlotQuery) ([]model.Slot, error) {
	if q.From != "" {
		if _, err := calendar.ParseDate(q.From, s.loc); err != nil {
			return nil, invalid("from", "%v", err)
		}
	}
	if q.To != "" {
		if _, err := calendar.ParseDate(q.To, s.loc); err != nil {
			return nil, invalid("to", "%v", err)
		}
	}
	for _, st := range q.States {
		if !st.Valid() {
			return nil, invalid("states", "unknown state %q", st)
		}
	}

	return s.store.ListSlots(ctx, repository.SlotFilter{
		FromDate: q.From,
		ToDate:   q.To,
		States:   q.States,
	})
}

// RemoveWorkingDay отменяет свободные слоты дня. Записи клиентов остаются,
// а день в этом случае закрывается вместо удаления.
func (s *AvailabilityService) RemoveWorkingDay(ctx context.Context, date string) (RemoveDayResult, error) {
	if _, err := calendar.ParseDate(date, s.loc); err != nil {
		return RemoveDayResult{}, invalid("date", "%v", err)
	}

	var res RemoveDayResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		slots, err := tx.ListSlots(ctx, repository.SlotFilter{FromDate: date, ToDate: date, States: activeStates})
		if err != nil {
			return err
		}

		for i := range slots {
			slot := &slots[i]
			if slot.HasClient() {
				res.Kept++
				continue
			}
			if err := cancelUnbooked(ctx, tx, slot, "working day removed"); err != nil {
				return storeError(err, slot.ID)
			}
			res.Cancelled++
		}

		if res.Kept > 0 {
			return tx.SetDayClosed(ctx, date, true)
		}
		if err := tx.DeleteWorkingDay(ctx, date); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		res.Deleted = true
		return nil
	})
	if err != nil {
		return RemoveDayResult{}, err
	}

	s.log.InfoContext(ctx, "working day removed",
		slog.String("date", date),
		slog.Int("cancelled", res.Cancelled),
		slog.Int("kept", res.Kept),
	)
	return res, nil
}

func (s *AvailabilityService) CloseDay(ctx context.Context, date string) error {
	return s.setDayClosed(ctx, date, true)
}

func (s *AvailabilityService) OpenDay(ctx context.Context, date string) error {
	return s.setDayClosed(ctx, date, false)
}

func (s *AvailabilityService) setDayClosed(ctx context.Context, date string, closed bool) error {
	if _, err := calendar.ParseDate(date, s.loc); err != nil {
		return invalid("date", "%v", err)
	}

	evType := model.EventTypeDayOpened
	if closed {
		evType = model.EventTypeDayClosed
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.SetDayClosed(ctx, date, closed); err != nil {
			return err
		}
		return appendEvent(ctx, tx, evType, nil, nil, map[string]any{"date": date})
	})
}

// ListAvailableDates — открытые дни, где есть хотя бы один будущий свободный слот.
func (s *AvailabilityService) ListAvailableDates(ctx context.Context, from, to string) ([]string, error) {
	slots, err := s.ListSlots(ctx, SlotQuery{From: from, To: to, States: []model.SlotState{model.SlotStateOpen}})
	if err != nil {
		return nil, err
	}
	days, err := s.store.ListWorkingDays(ctx, from, to)
	if err != nil {
		return nil, err
	}
	closed := make(map[string]bool, len(days))
	for _, d := range days {
		closed[d.Date] = d.Closed
	}

	now := s.now()
	var dates []string
	seen := make(map[string]struct{})
	for _, slot := range slots {
		if closed[slot.Date] || !slot.StartsAt.After(now) {
			continue
		}
		if _, ok := seen[slot.Date]; ok {
			continue
		}
		seen[slot.Date] = struct{}{}
		dates = append(dates, slot.Date)
	}
	sort.Strings(dates)
	return dates, nil
}

// DaySchedule — день и его неотменённые слоты, для публикации.
func (s *AvailabilityService) DaySchedule(ctx context.Context, date string) (DaySchedule, error) {
	slots, err := s.ListSlots(ctx, SlotQuery{From: date, To: date, States: activeStates})
	if err != nil {
		return DaySchedule{}, err
	}
	out := DaySchedule{Date: date, Slots: slots}

	day, err := s.store.GetWorkingDay(ctx, date)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if len(slots) == 0 {
			return DaySchedule{}, invalid("date", "%s is not a working day", date)
		}
	case err != nil:
		return DaySchedule{}, err
	default:
		out.Closed = day.Closed
	}
	return out, nil
}

func (s *AvailabilityService) alert(ctx context.Context, text string) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Alert(ctx, text); err != nil {
		s.log.WarnContext(ctx, "operator alert failed", slog.Any("err", err))
	}
}

// cancelUnbooked: Open/Held → Cancelled.
func cancelUnbooked(ctx context.Context, tx repository.Store, slot *model.Slot, reason string) error {
	if !slot.CanTransition(model.SlotStateCancelled) || slot.HasClient() {
		return stateError(ErrInvalidState, slot)
	}
	expected := slot.Version
	slot.State = model.SlotStateCancelled
	slot.HeldAt = nil
	slot.CancelReason = reason
	slot.ClearClient()
	if err := tx.SwapSlot(ctx, slot, expected); err != nil {
		return err
	}
	return appendEvent(ctx, tx, model.EventTypeSlotCancelled, &slot.ID, nil, map[string]any{"reason": reason})
}

// cancelBooked: Booked → Cancelled вместе с отменой напоминания.
func cancelBooked(ctx context.Context, tx repository.Store, slot *model.Slot, reason string, now time.Time) error {
	if slot.State != model.SlotStateBooked {
		return stateError(ErrInvalidState, slot)
	}
	expected := slot.Version
	slot.State = model.SlotStateCancelled
	slot.CancelReason = reason
	slot.ClearClient()
	if err := tx.SwapSlot(ctx, slot, expected); err != nil {
		return err
	}
	_, err := tx.CancelPendingReminder(ctx, slot.ID, now)
	return err
}

func invalidDay(date string) error {
	return fmt.Errorf("%w: working day %s is closed", ErrInvalidState, date)
}

func formatWindow(tr calendar.TimeRange, loc *time.Location) string {
	return tr.Start.In(loc).Format(model.TimeLayout) + "–" + tr.End.In(loc).Format(model.TimeLayout)
}
