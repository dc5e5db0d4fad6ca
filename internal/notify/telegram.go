package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/M5rkn/NailsBot/internal/model"
)

// Bot: часть Bot API, которой пользуется сервис. *tgbotapi.BotAPI подходит.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

type TelegramConfig struct {
	OperatorChatID    int64
	ScheduleChannelID int64
	RatePerSecond     float64
}

// Telegram отправляет напоминания, уведомления и служебные сообщения.
// Все вызовы проходят через общий лимитер: у Bot API жёсткие лимиты на флуд.
type Telegram struct {
	bot     Bot
	cfg     TelegramConfig
	loc     *time.Location
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewBotAPI(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	client := &http.Client{Timeout: timeout}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

func NewTelegram(bot Bot, cfg TelegramConfig, loc *time.Location, log *slog.Logger) *Telegram {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 25
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Telegram{
		bot:     bot,
		cfg:     cfg,
		loc:     loc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		log:     log.With(slog.String("component", "telegram")),
	}
}

func (t *Telegram) SendReminder(ctx context.Context, clientID int64, slot model.Slot) error {
	return t.sendHTML(ctx, clientID, ReminderText(slot, t.loc))
}

func (t *Telegram) NotifyCancelled(ctx context.Context, clientID int64, slot model.Slot, reason string) error {
	return t.sendHTML(ctx, clientID, CancelledText(slot, reason))
}

// Alert пишет в чат оператора; без настроенного чата только логирует.
func (t *Telegram) Alert(ctx context.Context, text string) error {
	if t.cfg.OperatorChatID == 0 {
		t.log.WarnContext(ctx, "operator alert", slog.String("text", text))
		return nil
	}
	return t.send(ctx, tgbotapi.NewMessage(t.cfg.OperatorChatID, "⚠️ "+text))
}

// PublishSchedule публикует расписание дня в канал, без имён клиентов.
func (t *Telegram) PublishSchedule(ctx context.Context, date string, slots []model.Slot) error {
	if t.cfg.ScheduleChannelID == 0 {
		return errors.New("schedule channel is not configured")
	}
	return t.sendHTML(ctx, t.cfg.ScheduleChannelID, ScheduleText(date, slots, true))
}

func (t *Telegram) sendHTML(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return t.send(ctx, msg)
}

func (t *Telegram) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	// Bot API не принимает context: ждём ответа, пока жив ctx.
	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(c)
		done <- err
	}()

	select {
	case <-ctx.Done():
		go t.watchLate(done)
		return ctx.Err()
	case err := <-done:
		return apiError(err)
	}
}

// watchLate дожидается запроса, брошенного по таймауту. Если сообщение всё же
// ушло, следующий проход напоминаний отправит его повторно: это видно в логе.
func (t *Telegram) watchLate(done <-chan error) {
	err := <-done
	if err != nil {
		t.log.Debug("abandoned telegram send failed", slog.Any("err", err))
		return
	}
	t.log.Warn("telegram message delivered after send timeout; a retry may duplicate it")
}

func apiError(err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		return fmt.Errorf("telegram flood limit, retry after %ds: %w", tgErr.RetryAfter, err)
	}
	return fmt.Errorf("telegram send: %w", err)
}
