package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/M5rkn/NailsBot/internal/config"
	"github.com/M5rkn/NailsBot/internal/db"
	"github.com/M5rkn/NailsBot/internal/lease"
	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/notify"
	"github.com/M5rkn/NailsBot/internal/repository"
	"github.com/M5rkn/NailsBot/internal/scheduler"
	"github.com/M5rkn/NailsBot/internal/service"
)

// Всё, что приложение отправляет наружу.
type notifier interface {
	scheduler.Sink
	service.CancellationNotifier
	service.OperatorAlerter
	PublishSchedule(ctx context.Context, date string, slots []model.Slot) error
}

// app собирает зависимости, общие для serve и sweep.
type app struct {
	cfg *config.Config
	log *slog.Logger
	db  *gorm.DB

	store     *repository.GormStore
	notifier  notifier
	subs      *notify.SubscriptionChecker
	scheduler *scheduler.ReminderScheduler
	avail     *service.AvailabilityService
	booking   *service.BookingService

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	log.Info("connecting to database", slog.String("driver", cfg.DB.Driver))
	gormDB, err := db.NewGormDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}
	a.db = gormDB
	a.closers = append(a.closers, func() error { return db.Close(gormDB) })

	if migrate {
		if err := model.AutoMigrate(gormDB); err != nil {
			a.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	a.store = repository.NewGormStore(gormDB)

	if err := a.initTelegram(); err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.initLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.scheduler = scheduler.NewReminderScheduler(a.store, a.notifier, locker, a.notifier, scheduler.Config{
		SweepInterval: cfg.Reminder.SweepInterval,
		BatchSize:     cfg.Reminder.BatchSize,
		SendTimeout:   cfg.Reminder.SendTimeout,
		AlertAfter:    cfg.Reminder.AlertAfter,
		LeaseTTL:      cfg.Reminder.LeaseTTL,
	}, log)

	a.avail = service.NewAvailabilityService(a.store, cfg.Location, a.notifier, a.notifier, log)
	a.booking = service.NewBookingService(a.store, service.BookingConfig{
		LeadTime:           cfg.Reminder.LeadTime,
		MaxActivePerClient: cfg.Booking.MaxActivePerClient,
		ReopenOnCancel:     cfg.Booking.ReopenOnCancel,
		HoldTTL:            cfg.Booking.HoldTTL,
	}, a.scheduler, a.notifier, log)

	return a, nil
}

// initTelegram: без токена уведомления только пишутся в лог, подписка не проверяется.
func (a *app) initTelegram() error {
	tg := a.cfg.Telegram
	if tg.Token == "" {
		a.log.Warn("telegram token is not set; notifications go to the log only")
		a.notifier = notify.NewLogSink(a.log, a.cfg.Location)
		a.subs = notify.NewSubscriptionChecker(nil, 0, tg.ChannelLink)
		return nil
	}

	bot, err := notify.NewBotAPI(tg.Token, tg.Timeout)
	if err != nil {
		return err
	}
	a.log.Info("telegram bot authorized", slog.String("username", bot.Self.UserName))

	a.notifier = notify.NewTelegram(bot, notify.TelegramConfig{
		OperatorChatID:    tg.OperatorChatID,
		ScheduleChannelID: tg.ScheduleChannelID,
		RatePerSecond:     tg.RatePerSecond,
	}, a.cfg.Location, a.log)
	a.subs = notify.NewSubscriptionChecker(bot, tg.ChannelID, tg.ChannelLink)
	return nil
}

// initLocker: Redis, если задан redis.url, иначе блокировки в памяти процесса.
func (a *app) initLocker(ctx context.Context) (lease.Locker, error) {
	if a.cfg.RedisURL == "" {
		return lease.NewLocal(), nil
	}
	client, err := lease.Dial(ctx, a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	a.log.Info("using redis sweep lease")
	return lease.NewRedis(client), nil
}

func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("shutdown cleanup failed", slog.Any("err", err))
	}
}
