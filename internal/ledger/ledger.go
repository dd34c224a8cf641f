// Package ledger keeps sibling positions dense: for every (world, parent)
// the positions are exactly 0..n-1. All changes are range shifts, never a
// rewrite of the whole sibling list.
package ledger

import (
	"context"
	"fmt"

	"github.com/GreenHouse007/world-builder-sub000/internal/store"
)

// Store is the subset of a store transaction the ledger needs.
type Store interface {
	MaxPosition(ctx context.Context, worldID string, parentID *string, excludeID string) (int, bool, error)
	CountSiblings(ctx context.Context, worldID string, parentID *string, excludeID string) (int, error)
	ShiftPositions(ctx context.Context, worldID string, parentID *string, span store.Span, delta int) error
	PlacePage(ctx context.Context, pageID string, parentID *string, position int) error
}

type Ledger struct {
	store   Store
	worldID string
}

func New(s Store, worldID string) *Ledger {
	return &Ledger{store: s, worldID: worldID}
}

// Append returns the slot after the last sibling, or 0 for an empty parent.
// excludeID ignores a page that is already under parentID.
func (l *Ledger) Append(ctx context.Context, parentID *string, excludeID string) (int, error) {
	max, ok, err := l.store.MaxPosition(ctx, l.worldID, parentID, excludeID)
	if err != nil {
		return 0, fmt.Errorf("append position: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return max + 1, nil
}

func (l *Ledger) Count(ctx context.Context, parentID *string, excludeID string) (int, error) {
	count, err := l.store.CountSiblings(ctx, l.worldID, parentID, excludeID)
	if err != nil {
		return 0, fmt.Errorf("count siblings: %w", err)
	}
	return count, nil
}

// RemoveAndCompact closes the gap left at removed.
func (l *Ledger) RemoveAndCompact(ctx context.Context, parentID *string, removed int) error {
	if err := l.store.ShiftPositions(ctx, l.worldID, parentID, store.Span{From: removed + 1, To: -1}, -1); err != nil {
		return fmt.Errorf("compact siblings: %w", err)
	}
	return nil
}

// InsertAndShift opens a slot at position at.
func (l *Ledger) InsertAndShift(ctx context.Context, parentID *string, at int) error {
	if err := l.store.ShiftPositions(ctx, l.worldID, parentID, store.Span{From: at, To: -1}, 1); err != nil {
		return fmt.Errorf("open sibling slot: %w", err)
	}
	return nil
}

// MoveWithinParent reorders pageID from one slot to another under the same
// parent with a single range shift.
func (l *Ledger) MoveWithinParent(ctx context.Context, pageID string, parentID *string, from, to int) error {
	if from == to {
		return nil
	}
	var (
		span  store.Span
		delta int
	)
	if from < to {
		span, delta = store.Span{From: from + 1, To: to}, -1
	} else {
		span, delta = store.Span{From: to, To: from - 1}, 1
	}
	if err := l.store.ShiftPositions(ctx, l.worldID, parentID, span, delta); err != nil {
		return fmt.Errorf("reorder siblings: %w", err)
	}
	if err := l.store.PlacePage(ctx, pageID, parentID, to); err != nil {
		return fmt.Errorf("reorder page: %w", err)
	}
	return nil
}

// Clamp bounds a requested index to [0, max].
func Clamp(position, max int) int {
	if max < 0 {
		max = 0
	}
	if position < 0 {
		return 0
	}
	if position > max {
		return max
	}
	return position
}
