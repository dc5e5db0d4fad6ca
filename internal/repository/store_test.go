package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/M5rkn/NailsBot/internal/db"
	"github.com/M5rkn/NailsBot/internal/model"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	gdb, err := db.NewMemoryDB()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewGormStore(gdb)
}

func testSlot(date string, hour, min int) model.Slot {
	day, _ := time.Parse(model.DateLayout, date)
	start := day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
	end := start.Add(30 * time.Minute)
	return model.Slot{
		Date:      date,
		StartTime: start.Format(model.TimeLayout),
		EndTime:   end.Format(model.TimeLayout),
		StartsAt:  start,
		EndsAt:    end,
	}
}

func mustCreate(t *testing.T, s *GormStore, slots ...model.Slot) []model.Slot {
	t.Helper()
	if err := s.CreateSlots(context.Background(), slots); err != nil {
		t.Fatalf("create slots: %v", err)
	}
	return slots
}

func TestCreateSlots_Defaults(t *testing.T) {
	s := newTestStore(t)
	slots := mustCreate(t, s, testSlot("2024-06-01", 10, 0))

	got, err := s.GetSlot(context.Background(), slots[0].ID)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if got.State != model.SlotStateOpen || got.Version != 1 {
		t.Fatalf("expected open v1, got %s v%d", got.State, got.Version)
	}
	if got.ClientID != nil {
		t.Fatalf("expected no client, got %v", *got.ClientID)
	}
}

func TestGetSlot_NotFound(t *testing.T) {
	s := newTestStore(t)
	slot := testSlot("2024-06-01", 10, 0)
	slot.BeforeCreate(nil)

	if _, err := s.GetSlot(context.Background(), slot.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSwapSlot_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slot := mustCreate(t, s, testSlot("2024-06-01", 10, 0))[0]

	first := slot
	first.State = model.SlotStateHeld
	now := time.Now().UTC()
	first.HeldAt = &now
	if err := s.SwapSlot(ctx, &first, slot.Version); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}

	// второй писатель с устаревшей версией
	second := slot
	second.State = model.SlotStateCancelled
	if err := s.SwapSlot(ctx, &second, slot.Version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := s.GetSlot(ctx, slot.ID)
	if got.State != model.SlotStateHeld || got.HeldAt == nil {
		t.Fatalf("expected held slot, got %+v", got)
	}
}

func TestSwapSlot_ClearsClient(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slot := mustCreate(t, s, testSlot("2024-06-01", 10, 0))[0]

	client := int64(42)
	slot.State = model.SlotStateBooked
	slot.ClientID = &client
	slot.ClientName = "Анна"
	if err := s.SwapSlot(ctx, &slot, slot.Version); err != nil {
		t.Fatalf("book: %v", err)
	}

	slot.State = model.SlotStateCancelled
	slot.ClearClient()
	if err := s.SwapSlot(ctx, &slot, slot.Version); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _ := s.GetSlot(ctx, slot.ID)
	if got.ClientID != nil || got.ClientName != "" {
		t.Fatalf("expected client fields cleared, got %+v", got)
	}
}

func TestCreateSlots_ActiveStartUnique(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slot := mustCreate(t, s, testSlot("2024-06-01", 10, 0))[0]

	err := s.CreateSlots(ctx, []model.Slot{testSlot("2024-06-01", 10, 0)})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// после отмены время снова свободно
	slot.State = model.SlotStateCancelled
	if err := s.SwapSlot(ctx, &slot, slot.Version); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := s.CreateSlots(ctx, []model.Slot{testSlot("2024-06-01", 10, 0)}); err != nil {
		t.Fatalf("expected recreate to succeed, got %v", err)
	}
}

func TestListSlots_FilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s,
		testSlot("2024-06-02", 9, 0),
		testSlot("2024-06-01", 11, 0),
		testSlot("2024-06-01", 10, 0),
		testSlot("2024-06-03", 10, 0),
	)

	slots, err := s.ListSlots(ctx, SlotFilter{FromDate: "2024-06-01", ToDate: "2024-06-02"})
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].StartsAt.Before(slots[i-1].StartsAt) {
			t.Fatalf("slots not ordered by starts_at: %v", slots)
		}
	}

	booked, err := s.ListSlots(ctx, SlotFilter{States: []model.SlotState{model.SlotStateBooked}})
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(booked) != 0 {
		t.Fatalf("expected no booked slots, got %d", len(booked))
	}
}

func TestReminder_PendingUniquePerSlot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slot := mustCreate(t, s, testSlot("2024-06-01", 10, 0))[0]

	job := &model.ReminderJob{SlotID: slot.ID, ClientID: 42, FireAt: slot.StartsAt.Add(-24 * time.Hour)}
	if err := s.CreateReminder(ctx, job); err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	dup := &model.ReminderJob{SlotID: slot.ID, ClientID: 42, FireAt: job.FireAt}
	if err := s.CreateReminder(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	cancelled, err := s.CancelPendingReminder(ctx, slot.ID, time.Now())
	if err != nil || !cancelled {
		t.Fatalf("expected cancel, got %v %v", cancelled, err)
	}
	again, err := s.CancelPendingReminder(ctx, slot.ID, time.Now())
	if err != nil || again {
		t.Fatalf("expected no-op second cancel, got %v %v", again, err)
	}

	fresh := &model.ReminderJob{SlotID: slot.ID, ClientID: 42, FireAt: job.FireAt}
	if err := s.CreateReminder(ctx, fresh); err != nil {
		t.Fatalf("expected new pending after cancel, got %v", err)
	}
}

func TestReminder_FireOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slot := mustCreate(t, s, testSlot("2024-06-01", 10, 0))[0]

	job := &model.ReminderJob{SlotID: slot.ID, ClientID: 42, FireAt: slot.StartsAt.Add(-time.Hour)}
	if err := s.CreateReminder(ctx, job); err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	if err := s.MarkReminderFired(ctx, job.ID, time.Now()); err != nil {
		t.Fatalf("first fire: %v", err)
	}
	if err := s.MarkReminderFired(ctx, job.ID, time.Now()); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if cancelled, _ := s.CancelPendingReminder(ctx, slot.ID, time.Now()); cancelled {
		t.Fatalf("fired job must not be cancelled")
	}

	got, _ := s.GetReminder(ctx, job.ID)
	if got.Status != model.ReminderStatusFired || got.FiredAt == nil {
		t.Fatalf("expected fired job, got %+v", got)
	}
}

func TestDueReminders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slots := mustCreate(t, s,
		testSlot("2024-06-01", 10, 0),
		testSlot("2024-06-01", 11, 0),
		testSlot("2024-06-01", 12, 0),
	)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	fireAts := []time.Time{now.Add(-time.Minute), now.Add(-time.Hour), now.Add(time.Hour)}
	for i, slot := range slots {
		job := &model.ReminderJob{SlotID: slot.ID, ClientID: int64(i + 1), FireAt: fireAts[i]}
		if err := s.CreateReminder(ctx, job); err != nil {
			t.Fatalf("create reminder: %v", err)
		}
	}

	due, err := s.DueReminders(ctx, now, 10)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(due))
	}
	if due[0].ClientID != 2 || due[1].ClientID != 1 {
		t.Fatalf("expected earliest first, got %d then %d", due[0].ClientID, due[1].ClientID)
	}
}

func TestRecordReminderFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slot := mustCreate(t, s, testSlot("2024-06-01", 10, 0))[0]
	job := &model.ReminderJob{SlotID: slot.ID, ClientID: 1, FireAt: slot.StartsAt}
	if err := s.CreateReminder(ctx, job); err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	for i := 1; i <= 2; i++ {
		got, err := s.RecordReminderFailure(ctx, job.ID, "timeout", time.Now())
		if err != nil {
			t.Fatalf("RecordReminderFailure: %v", err)
		}
		if got.Attempts != i || got.Status != model.ReminderStatusPending {
			t.Fatalf("attempt %d: unexpected job %+v", i, got)
		}
	}
}

func TestInTx_Rollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateSlots(ctx, []model.Slot{testSlot("2024-06-01", 10, 0)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	slots, _ := s.ListSlots(ctx, SlotFilter{})
	if len(slots) != 0 {
		t.Fatalf("expected rollback, got %d slots", len(slots))
	}
}

func TestWorkingDays(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.EnsureWorkingDay(ctx, "2024-06-01"); err != nil {
		t.Fatalf("EnsureWorkingDay: %v", err)
	}
	if _, err := s.EnsureWorkingDay(ctx, "2024-06-01"); err != nil {
		t.Fatalf("EnsureWorkingDay twice: %v", err)
	}
	if err := s.SetDayClosed(ctx, "2024-06-02", true); err != nil {
		t.Fatalf("SetDayClosed: %v", err)
	}

	days, err := s.ListWorkingDays(ctx, "", "")
	if err != nil {
		t.Fatalf("ListWorkingDays: %v", err)
	}
	if len(days) != 2 || days[0].Closed || !days[1].Closed {
		t.Fatalf("unexpected days: %+v", days)
	}

	if err := s.DeleteWorkingDay(ctx, "2024-06-01"); err != nil {
		t.Fatalf("DeleteWorkingDay: %v", err)
	}
	if err := s.DeleteWorkingDay(ctx, "2024-06-01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	slot := mustCreate(t, s, testSlot("2024-06-01", 10, 0))[0]

	ev := model.NewEvent(model.EventTypeSlotCreated, &slot.ID, nil, map[string]any{"window": slot.Window()})
	if err := s.AppendEvent(ctx, &ev); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := s.ListEvents(ctx, EventFilter{SlotID: &slot.ID})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventType != model.EventTypeSlotCreated {
		t.Fatalf("unexpected events: %+v", events)
	}
}
