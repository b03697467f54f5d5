package kv

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

// Memory is an in-process Store for tests and dry runs. It keeps a history
// of every value written to each string key and can be told to fail
// operations on chosen keys.
type Memory struct {
	mu      sync.Mutex
	strings map[string]entry
	lists   map[string][]string
	history map[string][]string
	failing map[string]error
	now     func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		strings: make(map[string]entry),
		lists:   make(map[string][]string),
		history: make(map[string][]string),
		failing: make(map[string]error),
		now:     time.Now,
	}
}

// FailKey makes every later operation on key return err wrapped in
// ErrUnavailable. A nil err clears the failure.
func (m *Memory) FailKey(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, key)
		return
	}
	m.failing[key] = err
}

// History returns every value set on key, oldest first.
func (m *Memory) History(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.history[key]))
	copy(out, m.history[key])
	return out
}

// check must be called with mu held.
func (m *Memory) check(ctx context.Context, op, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := m.failing[key]; ok {
		return unavailable(op, key, err)
	}
	return nil
}

// live must be called with mu held.
func (m *Memory) live(key string) (entry, bool) {
	e, ok := m.strings[key]
	if !ok {
		return entry{}, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.strings, key)
		return entry{}, false
	}
	return e, true
}

func (m *Memory) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "get", key); err != nil {
		return "", err
	}
	e, ok := m.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "set", key); err != nil {
		return err
	}
	delete(m.lists, key)
	m.strings[key] = entry{value: value, expires: m.deadline(ttl)}
	m.history[key] = append(m.history[key], value)
	return nil
}

func (m *Memory) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "setnx", key); err != nil {
		return false, err
	}
	if _, ok := m.live(key); ok {
		return false, nil
	}
	if _, ok := m.lists[key]; ok {
		return false, nil
	}
	m.strings[key] = entry{value: value, expires: m.deadline(ttl)}
	m.history[key] = append(m.history[key], value)
	return true, nil
}

func (m *Memory) Del(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "del", key); err != nil {
		return err
	}
	delete(m.strings, key)
	delete(m.lists, key)
	return nil
}

func (m *Memory) RPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "rpush", key); err != nil {
		return err
	}
	if _, ok := m.live(key); ok {
		return unavailable("rpush", key, fmt.Errorf("key holds a string"))
	}
	if len(values) > 0 {
		m.lists[key] = append(m.lists[key], values...)
	}
	return nil
}

func (m *Memory) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "lrange", key); err != nil {
		return nil, err
	}
	list := m.lists[key]
	lo, hi, ok := rangeBounds(int64(len(list)), start, stop)
	if !ok {
		return []string{}, nil
	}
	out := make([]string, hi-lo)
	copy(out, list[lo:hi])
	return out, nil
}

func (m *Memory) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "compare-and-delete", key); err != nil {
		return false, err
	}
	e, ok := m.live(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(m.strings, key)
	return true, nil
}

func (m *Memory) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(ctx, "compare-and-expire", key); err != nil {
		return false, err
	}
	e, ok := m.live(key)
	if !ok || e.value != value {
		return false, nil
	}
	e.expires = m.deadline(ttl)
	m.strings[key] = e
	return true, nil
}

func (m *Memory) Close() error {
	return nil
}
