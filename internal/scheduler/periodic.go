package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Periodic вызывает Fn сразу и затем каждые Interval.
type Periodic struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error
	Log      *slog.Logger
}

func (p *Periodic) Run(ctx context.Context) error {
	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", p.Name))

	t := time.NewTicker(p.Interval)
	defer t.Stop()

	p.tick(ctx, log)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			p.tick(ctx, log)
		}
	}
}

func (p *Periodic) tick(ctx context.Context, log *slog.Logger) {
	if err := p.Fn(ctx); err != nil && ctx.Err() == nil {
		log.ErrorContext(ctx, "periodic task failed", slog.Any("err", err))
	}
}
