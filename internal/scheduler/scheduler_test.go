package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/M5rkn/NailsBot/internal/db"
	"github.com/M5rkn/NailsBot/internal/lease"
	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/repository"
	"github.com/M5rkn/NailsBot/internal/service"
)

var msk = time.FixedZone("MSK", 3*60*60)

var testNow = time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

type fakeSink struct {
	mu     sync.Mutex
	sent   []int64
	err    error
	onSend func()
	ch     chan int64
}

func (f *fakeSink) SendReminder(ctx context.Context, clientID int64, slot model.Slot) error {
	f.mu.Lock()
	err, hook := f.err, f.onSend
	if err == nil {
		f.sent = append(f.sent, clientID)
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err == nil && f.ch != nil {
		f.ch <- clientID
	}
	return err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSink) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeAlerter struct {
	mu    sync.Mutex
	texts []string
}

func (a *fakeAlerter) Alert(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

type env struct {
	store   *repository.GormStore
	avail   *service.AvailabilityService
	booking *service.BookingService
	sink    *fakeSink
	alerter *fakeAlerter
	now     time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()

	gdb, err := db.NewMemoryDB()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	e := &env{
		store:   repository.NewGormStore(gdb),
		sink:    &fakeSink{},
		alerter: &fakeAlerter{},
		now:     testNow,
	}
	e.avail = service.NewAvailabilityService(e.store, msk, nil, nil, nil)
	e.avail.SetClock(e.clock)
	e.booking = service.NewBookingService(e.store, service.BookingConfig{LeadTime: 24 * time.Hour}, nil, nil, nil)
	e.booking.SetClock(e.clock)
	return e
}

func (e *env) clock() time.Time { return e.now }

func (e *env) scheduler(store repository.Store, locker lease.Locker) *ReminderScheduler {
	s := NewReminderScheduler(store, e.sink, locker, e.alerter, Config{
		SweepInterval: time.Hour,
		SendTimeout:   time.Second,
		AlertAfter:    2,
	}, nil)
	s.SetClock(e.clock)
	return s
}

// bookAt создаёт и бронирует слот; start — локальное время MSK.
func (e *env) bookAt(t *testing.T, date, start, end string, clientID int64) model.Slot {
	t.Helper()
	slots, err := e.avail.AddWorkingDay(context.Background(), date, []service.SlotSpec{{Start: start, End: end}})
	if err != nil {
		t.Fatalf("AddWorkingDay: %v", err)
	}
	booked, err := e.booking.AttemptBook(context.Background(), service.AttemptBookInput{SlotID: slots[0].ID, ClientID: clientID})
	if err != nil {
		t.Fatalf("AttemptBook: %v", err)
	}
	return *booked
}

func (e *env) job(t *testing.T, slotID uuid.UUID) model.ReminderJob {
	t.Helper()
	jobs, err := e.store.ListRemindersForSlot(context.Background(), slotID)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected one reminder for slot, got %d (%v)", len(jobs), err)
	}
	return jobs[0]
}

func TestSweepOnce_FiresOverdueExactlyOnce(t *testing.T) {
	e := newEnv(t)
	// через 23 часа: напоминание уже просрочено
	slot := e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)
	s := e.scheduler(e.store, nil)

	res, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.Fired != 1 || e.sink.count() != 1 {
		t.Fatalf("expected one send, got %+v sends=%d", res, e.sink.count())
	}

	res, err = s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("second SweepOnce: %v", err)
	}
	if res.Due != 0 || e.sink.count() != 1 {
		t.Fatalf("expected no resend, got %+v sends=%d", res, e.sink.count())
	}

	job := e.job(t, slot.ID)
	if job.Status != model.ReminderStatusFired || job.FiredAt == nil {
		t.Fatalf("expected fired job, got %+v", job)
	}
}

func TestSweepOnce_NotDueUntilLeadTime(t *testing.T) {
	e := newEnv(t)
	e.bookAt(t, "2024-06-02", "10:00", "10:30", 7)
	s := e.scheduler(e.store, nil)

	if res, _ := s.SweepOnce(context.Background()); res.Due != 0 {
		t.Fatalf("expected nothing due, got %+v", res)
	}

	// 2024-06-01 07:00 UTC = ровно за 24 часа
	e.now = time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)
	if res, _ := s.SweepOnce(context.Background()); res.Fired != 1 {
		t.Fatalf("expected reminder fired at lead time, got %+v", res)
	}
}

func TestSweep_SurvivesRestart(t *testing.T) {
	e := newEnv(t)
	e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)

	first := e.scheduler(e.store, nil)
	if _, err := first.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	// новый процесс на той же базе
	restarted := e.scheduler(e.store, nil)
	res, err := restarted.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce after restart: %v", err)
	}
	if res.Due != 0 || e.sink.count() != 1 {
		t.Fatalf("expected no resend after restart, got %+v sends=%d", res, e.sink.count())
	}
}

func TestRun_CatchUpOnStart(t *testing.T) {
	e := newEnv(t)
	e.bookAt(t, "2024-06-02", "10:00", "10:30", 7)
	// процесс "лежал", пока напоминание стало просроченным
	e.now = time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)

	e.sink.ch = make(chan int64, 1)
	s := e.scheduler(e.store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case client := <-e.sink.ch:
		if client != 7 {
			t.Fatalf("unexpected client %d", client)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("catch-up reminder was not sent")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if e.sink.count() != 1 {
		t.Fatalf("expected one send, got %d", e.sink.count())
	}
}

// flakyStore теряет первую запись fired, как при падении после отправки.
type flakyStore struct {
	repository.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) MarkReminderFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("connection reset")
	}
	f.mu.Unlock()
	return f.Store.MarkReminderFired(ctx, id, at)
}

func TestSweep_LostStateWriteGivesAtMostOneDuplicate(t *testing.T) {
	e := newEnv(t)
	slot := e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)
	s := e.scheduler(&flakyStore{Store: e.store, failures: 1}, nil)

	for i := 0; i < 3; i++ {
		if _, err := s.SweepOnce(context.Background()); err != nil {
			t.Fatalf("sweep %d: %v", i+1, err)
		}
	}

	if e.sink.count() != 2 {
		t.Fatalf("expected exactly one duplicate (2 sends), got %d", e.sink.count())
	}
	if job := e.job(t, slot.ID); job.Status != model.ReminderStatusFired {
		t.Fatalf("expected fired job, got %s", job.Status)
	}
}

func TestSweep_CancelledBookingNotSent(t *testing.T) {
	e := newEnv(t)
	slot := e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)
	if _, err := e.booking.CancelBooking(context.Background(), slot.ID, service.Actor{Kind: service.ActorClient, ID: 7}, ""); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}

	s := e.scheduler(e.store, nil)
	res, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.Due != 0 || e.sink.count() != 0 {
		t.Fatalf("expected nothing sent, got %+v", res)
	}
}

func TestSweep_CancelDuringSend(t *testing.T) {
	e := newEnv(t)
	slot := e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)
	s := e.scheduler(e.store, nil)

	// отмена приходит, пока идёт отправка: из fire и cancel побеждает ровно один
	e.sink.onSend = func() {
		if ok, err := s.Cancel(context.Background(), slot.ID); err != nil || !ok {
			t.Errorf("Cancel during send: %v %v", ok, err)
		}
	}
	if _, err := s.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	job := e.job(t, slot.ID)
	if job.Status != model.ReminderStatusCancelled || job.FiredAt != nil {
		t.Fatalf("expected cancel to win, got %+v", job)
	}

	e.sink.onSend = nil
	if res, _ := s.SweepOnce(context.Background()); res.Due != 0 {
		t.Fatalf("expected no further work, got %+v", res)
	}
}

func TestCancel_AfterFireIsNoop(t *testing.T) {
	e := newEnv(t)
	slot := e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)
	s := e.scheduler(e.store, nil)

	if _, err := s.SweepOnce(context.Background()); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	ok, err := s.Cancel(context.Background(), slot.ID)
	if err != nil || ok {
		t.Fatalf("expected no-op cancel, got %v %v", ok, err)
	}
	if job := e.job(t, slot.ID); job.Status != model.ReminderStatusFired {
		t.Fatalf("expected job to stay fired, got %s", job.Status)
	}
}

func TestSweep_SendFailureRetriedAndAlertedOnce(t *testing.T) {
	e := newEnv(t)
	slot := e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)
	e.sink.setErr(errors.New("bot was blocked by the user"))
	s := e.scheduler(e.store, nil)

	for i := 0; i < 3; i++ {
		res, err := s.SweepOnce(context.Background())
		if err != nil {
			t.Fatalf("sweep %d: %v", i+1, err)
		}
		if res.Failed != 1 {
			t.Fatalf("sweep %d: expected failure, got %+v", i+1, res)
		}
	}

	job := e.job(t, slot.ID)
	if job.Status != model.ReminderStatusPending || job.Attempts != 3 || job.AlertedAt == nil {
		t.Fatalf("unexpected job after failures: %+v", job)
	}
	if len(e.alerter.texts) != 1 {
		t.Fatalf("expected exactly one operator alert, got %d", len(e.alerter.texts))
	}

	e.sink.setErr(nil)
	if res, _ := s.SweepOnce(context.Background()); res.Fired != 1 {
		t.Fatalf("expected recovery send, got %+v", res)
	}
}

func TestSweep_LeaseHeldElsewhere(t *testing.T) {
	e := newEnv(t)
	slot := e.bookAt(t, "2024-05-31", "14:00", "14:30", 7)
	job := e.job(t, slot.ID)

	locker := lease.NewLocal()
	held, ok, _ := locker.Acquire(context.Background(), "reminder:"+job.ID.String(), time.Minute)
	if !ok {
		t.Fatalf("expected to pre-acquire lease")
	}

	s := e.scheduler(e.store, locker)
	res, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if res.Skipped != 1 || e.sink.count() != 0 {
		t.Fatalf("expected skip while leased, got %+v", res)
	}

	_ = held.Release(context.Background())
	if res, _ := s.SweepOnce(context.Background()); res.Fired != 1 {
		t.Fatalf("expected fire after release, got %+v", res)
	}
}

func TestPeriodic_RunsImmediately(t *testing.T) {
	calls := make(chan struct{}, 1)
	p := &Periodic{
		Name:     "test",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			select {
			case calls <- struct{}{}:
			default:
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatalf("periodic task did not run on start")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
