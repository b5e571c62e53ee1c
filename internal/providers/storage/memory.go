package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
)

// Memory keeps profiles in a map. Values are copied in and out.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string]*account.Profile
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{profiles: make(map[string]*account.Profile)}
}

func (m *Memory) Load(ctx context.Context, accountID string) (*account.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[account.NormalizeID(accountID)]
	if !ok {
		return nil, account.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, profile *account.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[account.NormalizeID(profile.AccountID)] = profile.Clone()
	return nil
}

func (m *Memory) Delete(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := account.NormalizeID(accountID)
	if _, ok := m.profiles[id]; !ok {
		return account.ErrNotFound
	}
	delete(m.profiles, id)
	return nil
}

func (m *Memory) List(ctx context.Context) ([]*account.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*account.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// Close is a no-op
func (m *Memory) Close() error {
	return nil
}
