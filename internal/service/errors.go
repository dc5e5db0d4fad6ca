package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/M5rkn/NailsBot/internal/model"
	"github.com/M5rkn/NailsBot/internal/repository"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrInvalidState           = errors.New("invalid state")
	ErrAlreadyBooked          = errors.New("slot already booked")
	ErrCancelled              = errors.New("slot cancelled")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotOwner               = errors.New("booking belongs to another client")
	ErrBookingLimit           = errors.New("active booking limit reached")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError перечисляет окна, с которыми пересеклись новые слоты.
type ConflictError struct {
	Date    string
	Windows []string
}

func (e *ConflictError) Error() string {
	if len(e.Windows) == 0 {
		return fmt.Sprintf("slot conflict on %s", e.Date)
	}
	return fmt.Sprintf("slot conflict on %s: %s", e.Date, strings.Join(e.Windows, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func stateError(base error, slot *model.Slot) error {
	return fmt.Errorf("%w: slot %s is %s", base, slot.ID, slot.State)
}

// storeError переводит ошибки хранилища в ошибки сервиса.
// Ошибки сервиса проходят без изменений.
func storeError(err error, slotID uuid.UUID) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: slot %s", ErrNotFound, slotID)
	case errors.Is(err, repository.ErrVersionConflict):
		return fmt.Errorf("%w: slot %s", ErrConcurrentModification, slotID)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
