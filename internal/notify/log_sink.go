package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/M5rkn/NailsBot/internal/model"
)

// LogSink пишет уведомления в лог. Используется, когда токен бота не задан.
type LogSink struct {
	log *slog.Logger
	loc *time.Location
}

func NewLogSink(log *slog.Logger, loc *time.Location) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With(slog.String("component", "log_sink")), loc: loc}
}

func (s *LogSink) SendReminder(ctx context.Context, clientID int64, slot model.Slot) error {
	s.log.InfoContext(ctx, "reminder", slog.Int64("client_id", clientID), slog.String("text", ReminderText(slot, s.loc)))
	return nil
}

func (s *LogSink) NotifyCancelled(ctx context.Context, clientID int64, slot model.Slot, reason string) error {
	s.log.InfoContext(ctx, "cancellation notice", slog.Int64("client_id", clientID), slog.String("text", CancelledText(slot, reason)))
	return nil
}

func (s *LogSink) Alert(ctx context.Context, text string) error {
	s.log.WarnContext(ctx, "operator alert", slog.String("text", text))
	return nil
}

func (s *LogSink) PublishSchedule(ctx context.Context, date string, slots []model.Slot) error {
	s.log.InfoContext(ctx, "schedule", slog.String("date", date), slog.String("text", ScheduleText(date, slots, true)))
	return nil
}
