package guard

import (
	"context"
	"errors"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

var ErrBusy = errors.New("another submission is in progress")

// Guard serializes submissions per key. Release must be given the token
// returned by Acquire so an expired holder cannot free a newer lock.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) error
}

type memoryLock struct {
	token   string
	expires time.Time
}

// Memory is the single-instance guard
type Memory struct {
	locks cmap.ConcurrentMap[string, memoryLock]
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{locks: cmap.New[memoryLock](), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	token := newToken()
	now := m.now()
	acquired := false
	m.locks.Upsert(key, memoryLock{}, func(exist bool, old, _ memoryLock) memoryLock {
		if exist && now.Before(old.expires) {
			return old
		}
		acquired = true
		return memoryLock{token: token, expires: now.Add(ttl)}
	})
	if !acquired {
		return "", ErrBusy
	}
	return token, nil
}

func (m *Memory) Release(_ context.Context, key, token string) error {
	m.locks.RemoveCb(key, func(_ string, l memoryLock, exists bool) bool {
		return exists && l.token == token
	})
	return nil
}
