package repository

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/M5rkn/NailsBot/internal/model"
)

func (s *GormStore) GetWorkingDay(ctx context.Context, date string) (*model.WorkingDay, error) {
	var day model.WorkingDay
	if err := s.conn(ctx).First(&day, "date = ?", date).Error; err != nil {
		return nil, translate(err)
	}
	return &day, nil
}

func (s *GormStore) EnsureWorkingDay(ctx context.Context, date string) (*model.WorkingDay, error) {
	day := model.WorkingDay{Date: date}
	err := s.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "date"}}, DoNothing: true}).
		Create(&day).Error
	if err != nil {
		return nil, translate(err)
	}
	return s.GetWorkingDay(ctx, date)
}

func (s *GormStore) SetDayClosed(ctx context.Context, date string, closed bool) error {
	if _, err := s.EnsureWorkingDay(ctx, date); err != nil {
		return err
	}
	return s.conn(ctx).
		Model(&model.WorkingDay{}).
		Where("date = ?", date).
		Update("closed", closed).
		Error
}

func (s *GormStore) DeleteWorkingDay(ctx context.Context, date string) error {
	res := s.conn(ctx).Delete(&model.WorkingDay{}, "date = ?", date)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListWorkingDays(ctx context.Context, from, to string) ([]model.WorkingDay, error) {
	q := s.conn(ctx).Model(&model.WorkingDay{})
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}

	var days []model.WorkingDay
	if err := q.Order("date ASC").Find(&days).Error; err != nil {
		return nil, err
	}
	return days, nil
}
