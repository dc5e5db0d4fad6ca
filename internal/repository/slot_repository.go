package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/M5rkn/NailsBot/internal/model"
)

func (s *GormStore) GetSlot(ctx context.Context, id uuid.UUID) (*model.Slot, error) {
	var slot model.Slot
	if err := s.conn(ctx).First(&slot, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &slot, nil
}

func (s *GormStore) ListSlots(ctx context.Context, f SlotFilter) ([]model.Slot, error) {
	q := s.conn(ctx).Model(&model.Slot{})

	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if f.FromDate != "" {
		q = q.Where("date >= ?", f.FromDate)
	}
	if f.ToDate != "" {
		q = q.Where("date <= ?", f.ToDate)
	}
	if len(f.States) > 0 {
		q = q.Where("state IN ?", f.States)
	}
	if f.ClientID != nil {
		q = q.Where("client_id = ?", *f.ClientID)
	}
	if !f.StartsAfter.IsZero() {
		q = q.Where("starts_at > ?", f.StartsAfter.UTC())
	}
	if !f.EndsBefore.IsZero() {
		q = q.Where("ends_at <= ?", f.EndsBefore.UTC())
	}
	if !f.HeldBefore.IsZero() {
		q = q.Where("held_at IS NOT NULL AND held_at < ?", f.HeldBefore.UTC())
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var slots []model.Slot
	if err := q.Order("starts_at ASC").Order("id ASC").Find(&slots).Error; err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *GormStore) CreateSlots(ctx context.Context, slots []model.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	return translate(s.conn(ctx).Create(&slots).Error)
}

func (s *GormStore) SwapSlot(ctx context.Context, slot *model.Slot, expectedVersion int64) error {
	now := time.Now().UTC()
	res := s.conn(ctx).
		Model(&model.Slot{}).
		Where("id = ? AND version = ?", slot.ID, expectedVersion).
		Updates(map[string]any{
			"state":         slot.State,
			"client_id":     slot.ClientID,
			"client_name":   slot.ClientName,
			"client_phone":  slot.ClientPhone,
			"held_at":       slot.HeldAt,
			"cancel_reason": slot.CancelReason,
			"version":       expectedVersion + 1,
			"updated_at":    now,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	slot.Version = expectedVersion + 1
	slot.UpdatedAt = now
	return nil
}

func (s *GormStore) CountActiveBookings(ctx context.Context, clientID int64, now time.Time) (int64, error) {
	var n int64
	err := s.conn(ctx).
		Model(&model.Slot{}).
		Where("client_id = ?", clientID).
		Where("state = ?", model.SlotStateBooked).
		Where("starts_at > ?", now.UTC()).
		Count(&n).Error
	return n, err
}
