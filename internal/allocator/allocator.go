// Package allocator резервирует временные слоты в множестве занятых слотов отделения.
package allocator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/branchqueue/internal/slot"
)

// Store хранит занятые слоты. Reserve и Move атомарны в пределах отделения:
// две одновременные брони одного слота никогда не проходят обе.
type Store interface {
	BusySlots(ctx context.Context, branchID, dayPrefix string) ([]string, error)
	ReserveSlot(ctx context.Context, branchID, slot string) error
	ReleaseSlot(ctx context.Context, branchID, slot string) error
	MoveSlot(ctx context.Context, branchID, oldSlot, newSlot string) error
}

// Allocator проверяет и резервирует слоты отделений.
type Allocator struct {
	store Store
}

// New создаёт аллокатор поверх хранилища занятых слотов.
func New(store Store) *Allocator {
	return &Allocator{store: store}
}

// AvailableSlots возвращает сетку дня за вычетом занятых слотов.
func (a *Allocator) AvailableSlots(ctx context.Context, branchID string, day slot.Moment) ([]slot.Moment, error) {
	busy, err := a.BusySlots(ctx, branchID, day)
	if err != nil {
		return nil, err
	}

	taken := make(map[string]struct{}, len(busy))
	for _, s := range busy {
		taken[s] = struct{}{}
	}

	grid := slot.BookableDay(day)
	res := make([]slot.Moment, 0, len(grid))
	for _, m := range grid {
		if _, ok := taken[slot.Format(m)]; !ok {
			res = append(res, m)
		}
	}
	return res, nil
}

// BusySlots возвращает занятые слоты дня.
func (a *Allocator) BusySlots(ctx context.Context, branchID string, day slot.Moment) ([]string, error) {
	prefix := slot.DayPrefix(day)
	busy, err := a.store.BusySlots(ctx, branchID, prefix)
	if err != nil {
		return nil, fmt.Errorf("busy slots: %w", err)
	}

	res := busy[:0]
	for _, s := range busy {
		if strings.HasPrefix(s, prefix+"/") {
			res = append(res, s)
		}
	}
	return res, nil
}

// Reserve занимает слот или возвращает model.ErrSlotAlreadyBooked.
func (a *Allocator) Reserve(ctx context.Context, branchID string, m slot.Moment) error {
	return a.store.ReserveSlot(ctx, branchID, slot.Format(m))
}

// Release освобождает слот. Освобождение свободного слота ничего не делает.
func (a *Allocator) Release(ctx context.Context, branchID string, m slot.Moment) error {
	return a.store.ReleaseSlot(ctx, branchID, slot.Format(m))
}

// Move занимает newSlot, затем освобождает oldSlot. При ошибке занятые слоты не меняются.
func (a *Allocator) Move(ctx context.Context, branchID string, oldSlot, newSlot slot.Moment) error {
	oldText, newText := slot.Format(oldSlot), slot.Format(newSlot)
	if oldText == newText {
		return nil
	}
	return a.store.MoveSlot(ctx, branchID, oldText, newText)
}
