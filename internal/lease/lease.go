// Package lease выдаёт короткие эксклюзивные аренды на ключ.
// Планировщик берёт аренду на задачу напоминания, чтобы два экземпляра
// сервиса не отправили одно напоминание одновременно.
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire возвращает false без ошибки, если ключ уже занят.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error)
}

func newToken() string {
	return uuid.NewString()
}
