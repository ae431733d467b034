// Package staging holds tentative student placements and the undo history for
// one promotion workspace, keyed by source/target school year. Nothing here is
// durable: losing it only loses uncommitted decisions.
package staging

import (
	"context"
	"errors"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// ErrEmptyLedger is returned when there is nothing to undo for a session key.
var ErrEmptyLedger = errors.New("nothing to undo")

// Store maps studentID to targetClassID per session key. At most one mapping
// exists per student per key.
type Store interface {
	// Stage inserts or overwrites the mapping and reports the prior class if any.
	Stage(ctx context.Context, key models.SessionKey, studentID, classID string) (prior string, hadPrior bool, err error)
	// Unstage removes the mapping and reports the removed class.
	Unstage(ctx context.Context, key models.SessionKey, studentID string) (removed string, found bool, err error)
	Get(ctx context.Context, key models.SessionKey, studentID string) (classID string, found bool, err error)
	// All returns the staged placements ordered by student ID.
	All(ctx context.Context, key models.SessionKey) ([]models.StagedPlacement, error)
	CountForClass(ctx context.Context, key models.SessionKey, classID string) (int, error)
	// CountForTarget sums staged placements across every workspace promoting into targetYearID.
	CountForTarget(ctx context.Context, targetYearID string) (int, error)
	// Discard drops the whole workspace for key.
	Discard(ctx context.Context, key models.SessionKey) error
}

// Ledger is a LIFO stack of reversible staging mutations per session key.
type Ledger interface {
	Push(ctx context.Context, key models.SessionKey, entry Entry) error
	// Pop removes and returns the most recent entry or ErrEmptyLedger.
	Pop(ctx context.Context, key models.SessionKey) (Entry, error)
	// Forget drops every entry that references one of studentIDs.
	Forget(ctx context.Context, key models.SessionKey, studentIDs ...string) error
	Clear(ctx context.Context, key models.SessionKey) error
	Len(ctx context.Context, key models.SessionKey) (int, error)
}
