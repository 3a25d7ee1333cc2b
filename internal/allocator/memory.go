package allocator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mmeshcher/branchqueue/internal/model"
)

// MemoryStore хранит занятые слоты в памяти процесса, по мьютексу на отделение.
type MemoryStore struct {
	mu       sync.Mutex
	branches map[string]*branchSlots
}

type branchSlots struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{branches: make(map[string]*branchSlots)}
}

func (s *MemoryStore) branch(id string) *branchSlots {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.branches[id]
	if !ok {
		b = &branchSlots{busy: make(map[string]struct{})}
		s.branches[id] = b
	}
	return b
}

// BusySlots реализует Store.
func (s *MemoryStore) BusySlots(_ context.Context, branchID, dayPrefix string) ([]string, error) {
	b := s.branch(branchID)
	b.mu.Lock()
	defer b.mu.Unlock()

	var res []string
	for slot := range b.busy {
		if strings.HasPrefix(slot, dayPrefix) {
			res = append(res, slot)
		}
	}
	sort.Strings(res)
	return res, nil
}

// ReserveSlot реализует Store.
func (s *MemoryStore) ReserveSlot(_ context.Context, branchID, slot string) error {
	b := s.branch(branchID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.busy[slot]; ok {
		return model.ErrSlotAlreadyBooked
	}
	b.busy[slot] = struct{}{}
	return nil
}

// ReleaseSlot реализует Store.
func (s *MemoryStore) ReleaseSlot(_ context.Context, branchID, slot string) error {
	b := s.branch(branchID)
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.busy, slot)
	return nil
}

// MoveSlot реализует Store.
func (s *MemoryStore) MoveSlot(_ context.Context, branchID, oldSlot, newSlot string) error {
	b := s.branch(branchID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.busy[newSlot]; ok {
		return model.ErrSlotAlreadyBooked
	}
	b.busy[newSlot] = struct{}{}
	delete(b.busy, oldSlot)
	return nil
}
