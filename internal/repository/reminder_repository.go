package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/M5rkn/NailsBot/internal/model"
)

func (s *GormStore) CreateReminder(ctx context.Context, job *model.ReminderJob) error {
	job.FireAt = job.FireAt.UTC()
	return translate(s.conn(ctx).Create(job).Error)
}

func (s *GormStore) GetReminder(ctx context.Context, id uuid.UUID) (*model.ReminderJob, error) {
	var job model.ReminderJob
	if err := s.conn(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

func (s *GormStore) ListRemindersForSlot(ctx context.Context, slotID uuid.UUID) ([]model.ReminderJob, error) {
	var jobs []model.ReminderJob
	err := s.conn(ctx).
		Where("slot_id = ?", slotID).
		Order("created_at ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *GormStore) DueReminders(ctx context.Context, now time.Time, limit int) ([]model.ReminderJob, error) {
	q := s.conn(ctx).
		Where("status = ?", model.ReminderStatusPending).
		Where("fire_at <= ?", now.UTC()).
		Order("fire_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var jobs []model.ReminderJob
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *GormStore) MarkReminderFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	res := s.conn(ctx).
		Model(&model.ReminderJob{}).
		Where("id = ? AND status = ?", id, model.ReminderStatusPending).
		Updates(map[string]any{
			"status":     model.ReminderStatusFired,
			"fired_at":   at,
			"last_error": "",
			"version":    gorm.Expr("version + 1"),
			"updated_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *GormStore) CancelPendingReminder(ctx context.Context, slotID uuid.UUID, at time.Time) (bool, error) {
	at = at.UTC()
	res := s.conn(ctx).
		Model(&model.ReminderJob{}).
		Where("slot_id = ? AND status = ?", slotID, model.ReminderStatusPending).
		Updates(map[string]any{
			"status":       model.ReminderStatusCancelled,
			"cancelled_at": at,
			"version":      gorm.Expr("version + 1"),
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) RecordReminderFailure(ctx context.Context, id uuid.UUID, reason string, at time.Time) (*model.ReminderJob, error) {
	at = at.UTC()
	res := s.conn(ctx).
		Model(&model.ReminderJob{}).
		Where("id = ? AND status = ?", id, model.ReminderStatusPending).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"version":    gorm.Expr("version + 1"),
			"updated_at": at,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrVersionConflict
	}
	return s.GetReminder(ctx, id)
}

func (s *GormStore) MarkReminderAlerted(ctx context.Context, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	return s.conn(ctx).
		Model(&model.ReminderJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"alerted_at": at,
			"updated_at": at,
		}).Error
}
