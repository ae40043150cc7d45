// internal/repository/memory.go
package repository

import (
	"context"
	"sync"

	"mpesa-gateway/internal/domain"
)

// MemoryOrderStore is an in-memory OrderGateway for tests and local
// development. All methods are safe for concurrent use.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[int64]*domain.Order
	notes  map[int64][]string
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[int64]*domain.Order),
		notes:  make(map[int64][]string),
	}
}

// Put inserts or replaces an order.
func (s *MemoryOrderStore) Put(order *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := *order
	s.orders[o.ID] = &o
}

func (s *MemoryOrderStore) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	o := *order
	return &o, nil
}

func (s *MemoryOrderStore) FindByTrackingID(ctx context.Context, trackingID string) (*domain.Order, error) {
	if trackingID == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.TrackingID == trackingID {
			o := *order
			return &o, nil
		}
	}
	return nil, nil
}

func (s *MemoryOrderStore) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	if note != "" {
		s.notes[id] = append(s.notes[id], note)
	}
	return nil
}

func (s *MemoryOrderStore) SetTransactionID(ctx context.Context, id int64, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.TransactionID = transactionID
	return nil
}

func (s *MemoryOrderStore) SetTrackingID(ctx context.Context, id int64, trackingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.TrackingID = trackingID
	return nil
}

func (s *MemoryOrderStore) SetBillingPhone(ctx context.Context, id int64, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.BillingPhone = phone
	return nil
}

func (s *MemoryOrderStore) AddNote(ctx context.Context, id int64, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	s.notes[id] = append(s.notes[id], note)
	return nil
}

func (s *MemoryOrderStore) LatestNote(ctx context.Context, id int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes := s.notes[id]
	if len(notes) == 0 {
		return "", nil
	}
	return notes[len(notes)-1], nil
}

// Notes returns all notes recorded for an order, oldest first.
func (s *MemoryOrderStore) Notes(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes[id]))
	copy(out, s.notes[id])
	return out
}
