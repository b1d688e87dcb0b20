package counter

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count     int64
	expiresAt time.Time
}

// Memory is an in-process Store honouring the same atomic increment contract as Redis.
// Tests use it in place of the external service.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time

	// Err, when set, is returned by every call to simulate an unreachable store.
	Err error
	// ExpireCalls counts how many times a TTL was (re)set per key.
	ExpireCalls map[string]int
}

// NewMemory returns an empty Memory store using now as its clock. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries:     map[string]*entry{},
		now:         now,
		ExpireCalls: map[string]int{},
	}
}

func (m *Memory) live(key string) *entry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *Memory) ttl(e *entry) time.Duration {
	if e == nil || e.expiresAt.IsZero() {
		return 0
	}
	// whole seconds, rounded up, like Redis TTL
	d := e.expiresAt.Sub(m.now())
	return ((d + time.Second - 1) / time.Second) * time.Second
}

func (m *Memory) IncrWithExpire(ctx context.Context, key string, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Result{}, m.Err
	}

	e := m.live(key)
	if e == nil {
		e = &entry{}
		m.entries[key] = e
	}
	e.count++
	if e.count == 1 {
		e.expiresAt = m.now().Add(window)
		m.ExpireCalls[key]++
	}
	return Result{Count: e.count, TTL: m.ttl(e)}, nil
}

func (m *Memory) Get(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	if e := m.live(key); e != nil {
		return e.count, nil
	}
	return 0, nil
}

func (m *Memory) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.ttl(m.live(key)), nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if e := m.live(key); e != nil {
		e.expiresAt = m.now().Add(ttl)
		m.ExpireCalls[key]++
	}
	return nil
}
