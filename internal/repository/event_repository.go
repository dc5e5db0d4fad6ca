package repository

import (
	"context"

	"github.com/M5rkn/NailsBot/internal/model"
)

func (s *GormStore) AppendEvent(ctx context.Context, ev *model.Event) error {
	return s.conn(ctx).Create(ev).Error
}

func (s *GormStore) ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	q := s.conn(ctx).Model(&model.Event{})
	if f.SlotID != nil {
		q = q.Where("slot_id = ?", *f.SlotID)
	}
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var events []model.Event
	if err := q.Order("created_at ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
