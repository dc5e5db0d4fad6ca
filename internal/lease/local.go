package lease

import (
	"context"
	"sync"
	"time"
)

// Local держит аренды внутри одного процесса. Используется без Redis.
type Local struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.entries[key]; ok && now.Before(e.expires) {
		return nil, false, nil
	}

	token := newToken()
	l.entries[key] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{owner: l, key: key, token: token}, true, nil
}

type localLease struct {
	owner *Local
	key   string
	token string
}

func (l *localLease) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	// истёкшую и перехваченную аренду не трогаем
	if e, ok := l.owner.entries[l.key]; ok && e.token == l.token {
		delete(l.owner.entries, l.key)
	}
	return nil
}
