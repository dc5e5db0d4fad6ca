package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

const envPrefix = "NAILSBOT"

type DBConfig struct {
	Driver          string // sqlite | postgres
	SQLitePath      string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	TimeZone        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type ReminderConfig struct {
	LeadTime      time.Duration
	SweepInterval time.Duration
	BatchSize     int
	SendTimeout   time.Duration
	AlertAfter    int
	LeaseTTL      time.Duration
}

type BookingConfig struct {
	MaxActivePerClient int // 0 — без ограничения
	ReopenOnCancel     bool
	HoldTTL            time.Duration
	CompletionInterval time.Duration
}

type TelegramConfig struct {
	Token             string
	ChannelID         int64
	ChannelLink       string
	ScheduleChannelID int64
	OperatorChatID    int64
	RatePerSecond     float64
	Timeout           time.Duration
}

type Config struct {
	DB       DBConfig
	Reminder ReminderConfig
	Booking  BookingConfig
	Telegram TelegramConfig

	TimeZone string
	Location *time.Location

	GRPCAddr           string
	GRPCRequestTimeout time.Duration
	ShutdownTimeout    time.Duration

	LogLevel  string
	LogFormat string

	RedisURL string
}

// Load читает конфиг из env (NAILSBOT_*) и, если задан, из файла.
func Load(file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Короткие имена, привычные для docker-compose.
	_ = v.BindEnv("telegram.token", "NAILSBOT_TELEGRAM_TOKEN", "BOT_TOKEN")
	_ = v.BindEnv("db.password", "NAILSBOT_DB_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("redis.url", "NAILSBOT_REDIS_URL", "REDIS_URL")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.sqlite_path", "nailsbot.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "nailsbot")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "nailsbot")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")

	v.SetDefault("app.timezone", "Europe/Moscow")

	v.SetDefault("reminder.lead_time", "24h")
	v.SetDefault("reminder.sweep_interval", "1m")
	v.SetDefault("reminder.batch_size", 100)
	v.SetDefault("reminder.send_timeout", "10s")
	v.SetDefault("reminder.alert_after", 3)
	v.SetDefault("reminder.lease_ttl", "1m")

	v.SetDefault("booking.max_active_per_client", 1)
	v.SetDefault("booking.reopen_on_cancel", true)
	v.SetDefault("booking.hold_ttl", "5m")
	v.SetDefault("booking.completion_interval", "5m")

	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("grpc.request_timeout", "10s")
	v.SetDefault("shutdown.timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.channel_id", 0)
	v.SetDefault("telegram.channel_link", "")
	v.SetDefault("telegram.schedule_channel_id", 0)
	v.SetDefault("telegram.operator_chat_id", 0)
	v.SetDefault("telegram.rate_per_second", 25.0)
	v.SetDefault("telegram.timeout", "30s")

	v.SetDefault("redis.url", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	var errs []error
	dur := func(key string) time.Duration {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		DB: DBConfig{
			Driver:          strings.ToLower(strings.TrimSpace(v.GetString("db.driver"))),
			SQLitePath:      v.GetString("db.sqlite_path"),
			Host:            v.GetString("db.host"),
			Port:            v.GetInt("db.port"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			Name:            v.GetString("db.name"),
			SSLMode:         v.GetString("db.sslmode"),
			TimeZone:        v.GetString("db.timezone"),
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: dur("db.conn_max_lifetime"),
		},
		Reminder: ReminderConfig{
			LeadTime:      dur("reminder.lead_time"),
			SweepInterval: dur("reminder.sweep_interval"),
			BatchSize:     v.GetInt("reminder.batch_size"),
			SendTimeout:   dur("reminder.send_timeout"),
			AlertAfter:    v.GetInt("reminder.alert_after"),
			LeaseTTL:      dur("reminder.lease_ttl"),
		},
		Booking: BookingConfig{
			MaxActivePerClient: v.GetInt("booking.max_active_per_client"),
			ReopenOnCancel:     v.GetBool("booking.reopen_on_cancel"),
			HoldTTL:            dur("booking.hold_ttl"),
			CompletionInterval: dur("booking.completion_interval"),
		},
		Telegram: TelegramConfig{
			Token:             v.GetString("telegram.token"),
			ChannelID:         v.GetInt64("telegram.channel_id"),
			ChannelLink:       v.GetString("telegram.channel_link"),
			ScheduleChannelID: v.GetInt64("telegram.schedule_channel_id"),
			OperatorChatID:    v.GetInt64("telegram.operator_chat_id"),
			RatePerSecond:     v.GetFloat64("telegram.rate_per_second"),
			Timeout:           dur("telegram.timeout"),
		},
		TimeZone:           v.GetString("app.timezone"),
		GRPCAddr:           strings.TrimSpace(v.GetString("grpc.addr")),
		GRPCRequestTimeout: dur("grpc.request_timeout"),
		ShutdownTimeout:    dur("shutdown.timeout"),
		LogLevel:           v.GetString("log.level"),
		LogFormat:          strings.ToLower(v.GetString("log.format")),
		RedisURL:           strings.TrimSpace(v.GetString("redis.url")),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения и загружает часовой пояс.
func (c *Config) Validate() error {
	var errs []error

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		errs = append(errs, fmt.Errorf("app.timezone %q: %w", c.TimeZone, err))
	}
	c.Location = loc

	switch c.DB.Driver {
	case "sqlite":
		if c.DB.SQLitePath == "" {
			errs = append(errs, errors.New("db.sqlite_path must not be empty"))
		}
	case "postgres":
		if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
			errs = append(errs, errors.New("db: host/user/name must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("db.driver %q: expected sqlite or postgres", c.DB.Driver))
	}

	if c.Reminder.LeadTime <= 0 {
		errs = append(errs, errors.New("reminder.lead_time must be positive"))
	}
	if c.Reminder.SweepInterval <= 0 {
		errs = append(errs, errors.New("reminder.sweep_interval must be positive"))
	}
	if c.Reminder.SendTimeout <= 0 {
		errs = append(errs, errors.New("reminder.send_timeout must be positive"))
	}
	if c.Booking.CompletionInterval <= 0 {
		errs = append(errs, errors.New("booking.completion_interval must be positive"))
	}
	if c.Booking.MaxActivePerClient < 0 {
		errs = append(errs, errors.New("booking.max_active_per_client must not be negative"))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc.addr must not be empty"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: expected json or text", c.LogFormat))
	}

	return errors.Join(errs...)
}
