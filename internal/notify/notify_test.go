package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/M5rkn/NailsBot/internal/model"
)

var msk = time.FixedZone("MSK", 3*60*60)

type fakeBot struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	sendErr error
	block   chan struct{}

	member    tgbotapi.ChatMember
	memberErr error
	asked     tgbotapi.GetChatMemberConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{}, b.sendErr
}

func (b *fakeBot) GetChatMember(cfg tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	b.asked = cfg
	return b.member, b.memberErr
}

func testSlot() model.Slot {
	clientID := int64(42)
	return model.Slot{
		Date:       "2024-06-01",
		StartTime:  "10:00",
		EndTime:    "10:30",
		StartsAt:   time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC),
		EndsAt:     time.Date(2024, 6, 1, 7, 30, 0, 0, time.UTC),
		State:      model.SlotStateBooked,
		ClientID:   &clientID,
		ClientName: "Анна <script>",
	}
}

func TestTelegram_SendReminder(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, TelegramConfig{}, msk, nil)

	if err := tg.SendReminder(context.Background(), 42, testSlot()); err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 {
		t.Errorf("chat id = %d, want 42", msg.ChatID)
	}
	if msg.ParseMode != tgbotapi.ModeHTML {
		t.Errorf("parse mode = %q", msg.ParseMode)
	}
	if !strings.Contains(msg.Text, "Суббота, 01.06.2024, 10:00–10:30") {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestTelegram_SendError(t *testing.T) {
	bot := &fakeBot{sendErr: &tgbotapi.Error{
		Code:               429,
		Message:            "Too Many Requests",
		ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3},
	}}
	tg := NewTelegram(bot, TelegramConfig{}, msk, nil)

	err := tg.NotifyCancelled(context.Background(), 42, testSlot(), "")
	if err == nil || !strings.Contains(err.Error(), "retry after 3s") {
		t.Fatalf("err = %v", err)
	}
}

func TestTelegram_ContextCancelled(t *testing.T) {
	bot := &fakeBot{block: make(chan struct{})}
	defer close(bot.block)
	tg := NewTelegram(bot, TelegramConfig{}, msk, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tg.SendReminder(ctx, 42, testSlot())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTelegram_LateDeliveryLogged(t *testing.T) {
	bot := &fakeBot{block: make(chan struct{})}
	out := &syncBuffer{}
	tg := NewTelegram(bot, TelegramConfig{}, msk, slog.New(slog.NewTextHandler(out, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tg.SendReminder(ctx, 42, testSlot()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	close(bot.block)
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "delivered after send timeout") {
		if time.Now().After(deadline) {
			t.Fatalf("late delivery not logged; log: %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTelegram_Alert(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, TelegramConfig{OperatorChatID: 7}, msk, nil)

	if err := tg.Alert(context.Background(), "reminder failed"); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 7 {
		t.Fatalf("sent = %+v", bot.sent)
	}

	silent := NewTelegram(&fakeBot{}, TelegramConfig{}, msk, nil)
	if err := silent.Alert(context.Background(), "x"); err != nil {
		t.Fatalf("Alert without operator chat: %v", err)
	}
}

func TestTelegram_PublishSchedule(t *testing.T) {
	bot := &fakeBot{}
	tg := NewTelegram(bot, TelegramConfig{ScheduleChannelID: -100}, msk, nil)

	if err := tg.PublishSchedule(context.Background(), "2024-06-01", []model.Slot{testSlot()}); err != nil {
		t.Fatalf("PublishSchedule: %v", err)
	}
	text := bot.sent[0].Text
	if strings.Contains(text, "Анна") {
		t.Errorf("public schedule leaks client name: %q", text)
	}
	if !strings.Contains(text, "занято") {
		t.Errorf("text = %q", text)
	}

	unset := NewTelegram(&fakeBot{}, TelegramConfig{}, msk, nil)
	if err := unset.PublishSchedule(context.Background(), "2024-06-01", nil); err == nil {
		t.Fatal("expected error without schedule channel")
	}
}

func TestScheduleText(t *testing.T) {
	open := testSlot()
	open.StartTime, open.EndTime = "11:00", "11:30"
	open.State = model.SlotStateOpen
	open.ClearClient()

	cancelled := testSlot()
	cancelled.State = model.SlotStateCancelled

	text := ScheduleText("2024-06-01", []model.Slot{testSlot(), open, cancelled}, false)

	want := []string{
		"📅 <b>Расписание на Суббота, 01.06.2024</b>",
		"✅ <b>10:00–10:30</b> — Анна &lt;script&gt;",
		"🟢 <b>11:00–11:30</b> — свободно",
	}
	if got := strings.Split(text, "\n"); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", got, want)
	}

	if empty := ScheduleText("2024-06-01", []model.Slot{cancelled}, true); !strings.Contains(empty, "Нет слотов") {
		t.Errorf("empty schedule = %q", empty)
	}
}

func TestCancelledText(t *testing.T) {
	text := CancelledText(testSlot(), "болезнь & карантин")
	for _, part := range []string{"Дата: <b>Суббота, 01.06.2024</b>", "Время: <b>10:00–10:30</b>", "болезнь &amp; карантин"} {
		if !strings.Contains(text, part) {
			t.Errorf("text %q does not contain %q", text, part)
		}
	}
}

func TestSubscriptionChecker(t *testing.T) {
	tests := []struct {
		status   string
		isMember bool
		want     bool
	}{
		{"creator", false, true},
		{"administrator", false, true},
		{"member", false, true},
		{"restricted", true, true},
		{"restricted", false, false},
		{"left", false, false},
		{"kicked", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			bot := &fakeBot{member: tgbotapi.ChatMember{Status: tt.status, IsMember: tt.isMember}}
			checker := NewSubscriptionChecker(bot, -100500, "https://t.me/nails")

			got, err := checker.IsSubscribed(context.Background(), 42)
			if err != nil {
				t.Fatalf("IsSubscribed: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsSubscribed = %v, want %v", got, tt.want)
			}
			if bot.asked.ChatID != -100500 || bot.asked.UserID != 42 {
				t.Errorf("asked = %+v", bot.asked)
			}
		})
	}
}

func TestSubscriptionChecker_Errors(t *testing.T) {
	bot := &fakeBot{memberErr: errors.New("chat not found")}
	checker := NewSubscriptionChecker(bot, -100500, "")
	if ok, err := checker.IsSubscribed(context.Background(), 42); err == nil || ok {
		t.Fatalf("IsSubscribed = %v, %v; want error", ok, err)
	}

	disabled := NewSubscriptionChecker(bot, 0, "")
	if ok, err := disabled.IsSubscribed(context.Background(), 42); err != nil || !ok {
		t.Fatalf("disabled check = %v, %v", ok, err)
	}
}
