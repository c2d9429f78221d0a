package store

import (
	"context"
	"sync"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/google/uuid"
)

// Memory keeps transactions in process memory. Insertion order is the
// natural order returned by List.
type Memory struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.Transaction
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]models.Transaction)}
}

func (m *Memory) List(ctx context.Context, filter Filter) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Transaction, 0, len(m.order))
	for _, id := range m.order {
		t := m.byID[id]
		if filter.Match(&t) {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *Memory) Get(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (m *Memory) Create(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := *t
	created.ID = uuid.NewString()
	m.byID[created.ID] = created
	m.order = append(m.order, created.ID)
	return &created, nil
}

func (m *Memory) Update(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[t.ID]; !ok {
		return nil, models.ErrNotFound
	}
	updated := *t
	m.byID[t.ID] = updated
	return &updated, nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.byID, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error  { return nil }
func (m *Memory) Close(ctx context.Context) error { return nil }

var _ Store = (*Memory)(nil)
