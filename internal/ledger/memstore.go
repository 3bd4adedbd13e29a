package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/Spok95/tutoring-platform/internal/models"
)

// MemStore — Store в памяти с теми же гарантиями уникальности, что и индексы Postgres.
// Используется в тестах сервисов, которым нужен настоящий журнал без Postgres.
type MemStore struct {
	mu     sync.Mutex
	events []models.TokenEvent
}

func NewMemStore() *MemStore { return &MemStore{} }

func (m *MemStore) Append(_ context.Context, ev models.TokenEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.events {
		if conflicts(e, ev) {
			return false, nil
		}
	}
	m.events = append(m.events, ev)
	return true, nil
}

func conflicts(a, b models.TokenEvent) bool {
	if a.ExternalRef != nil && b.ExternalRef != nil && *a.ExternalRef == *b.ExternalRef {
		return true
	}
	if a.Type != b.Type || a.ReservationID == nil || b.ReservationID == nil {
		return false
	}
	unique := a.Type == models.TokenConsume || a.Type == models.TokenRefund
	return unique && *a.ReservationID == *b.ReservationID
}

func (m *MemStore) Balance(_ context.Context, studentID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := 0
	for _, e := range m.events {
		if e.StudentID == studentID {
			sum += e.Delta
		}
	}
	return sum, nil
}

func (m *MemStore) History(_ context.Context, studentID int64) ([]models.TokenEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.TokenEvent
	for _, e := range m.events {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemStore) HasEvent(_ context.Context, reservationID int64, t models.TokenEventType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.events {
		if e.Type == t && e.ReservationID != nil && *e.ReservationID == reservationID {
			return true, nil
		}
	}
	return false, nil
}

// Count — число событий типа t по брони (для проверок идемпотентности).
func (m *MemStore) Count(reservationID int64, t models.TokenEventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.events {
		if e.Type == t && e.ReservationID != nil && *e.ReservationID == reservationID {
			n++
		}
	}
	return n
}
