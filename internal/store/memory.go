// Package store provides the capture persistence backends: an in-memory
// store for tests and ephemeral runs, and a sqlite store for durable ones.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

// Memory is a mutex-guarded map store keyed by channel address.
type Memory struct {
	mu       sync.RWMutex
	captures map[string]*domain.CaptureRecord
}

func NewMemory() *Memory {
	return &Memory{captures: make(map[string]*domain.CaptureRecord)}
}

func (m *Memory) Get(_ context.Context, address string) (*domain.CaptureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.captures[address]
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func (m *Memory) Put(_ context.Context, rec *domain.CaptureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures[rec.ChannelAddress] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.captures, address)
	return nil
}

func (m *Memory) List(_ context.Context) ([]*domain.CaptureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.CaptureRecord, 0, len(m.captures))
	for _, rec := range m.captures {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for addr, rec := range m.captures {
		if rec.Expired(now) {
			delete(m.captures, addr)
			n++
		}
	}
	return n, nil
}
