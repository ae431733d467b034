package staging

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// UndoLedger pairs a Ledger with the Store its entries mutate.
type UndoLedger struct {
	store  Store
	ledger Ledger
}

// NewUndoLedger constructs an UndoLedger.
func NewUndoLedger(store Store, ledger Ledger) *UndoLedger {
	return &UndoLedger{store: store, ledger: ledger}
}

// Push records a successful staging mutation.
func (u *UndoLedger) Push(ctx context.Context, key models.SessionKey, entry Entry) error {
	return u.ledger.Push(ctx, key, entry)
}

// Forget drops history for students whose placements became durable.
func (u *UndoLedger) Forget(ctx context.Context, key models.SessionKey, studentIDs ...string) error {
	return u.ledger.Forget(ctx, key, studentIDs...)
}

// Clear drops the whole history for key.
func (u *UndoLedger) Clear(ctx context.Context, key models.SessionKey) error {
	return u.ledger.Clear(ctx, key)
}

// Len reports how many steps can be undone.
func (u *UndoLedger) Len(ctx context.Context, key models.SessionKey) (int, error) {
	return u.ledger.Len(ctx, key)
}

// PopAndInvert consumes the latest entry and writes its inverse straight into
// the store. Capacity and conflict checks are not repeated: the restored state
// was admitted when it was first created. Returns ErrEmptyLedger when there is
// nothing to undo.
func (u *UndoLedger) PopAndInvert(ctx context.Context, key models.SessionKey) (string, error) {
	entry, err := u.ledger.Pop(ctx, key)
	if err != nil {
		return "", err
	}
	switch e := entry.(type) {
	case StageEntry:
		if e.PriorClassID != "" {
			if _, _, err := u.store.Stage(ctx, key, e.StudentID, e.PriorClassID); err != nil {
				return "", fmt.Errorf("undo stage of %s: %w", e.StudentID, err)
			}
			return fmt.Sprintf("student %s moved back from class %s to class %s", e.StudentID, e.ClassID, e.PriorClassID), nil
		}
		if _, _, err := u.store.Unstage(ctx, key, e.StudentID); err != nil {
			return "", fmt.Errorf("undo stage of %s: %w", e.StudentID, err)
		}
		return fmt.Sprintf("student %s removed from class %s", e.StudentID, e.ClassID), nil
	case UnstageEntry:
		if _, _, err := u.store.Stage(ctx, key, e.StudentID, e.ClassID); err != nil {
			return "", fmt.Errorf("undo removal of %s: %w", e.StudentID, err)
		}
		return fmt.Sprintf("student %s restored to class %s", e.StudentID, e.ClassID), nil
	default:
		return "", fmt.Errorf("unknown ledger entry %T", entry)
	}
}
