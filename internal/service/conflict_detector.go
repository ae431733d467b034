package service

import (
	"context"

	"github.com/noah-isme/sma-promotion-api/internal/models"
	"github.com/noah-isme/sma-promotion-api/internal/staging"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
)

type rosterIndexer interface {
	RosterIndex(ctx context.Context, yearID string) (map[string]models.RosterEntry, error)
}

type commitmentChecker interface {
	IsCommitted(ctx context.Context, studentID, yearID string) (bool, error)
}

type committedCounter interface {
	CommittedCount(ctx context.Context, classID string) (int, error)
}

// ConflictDetector classifies requested placements against eligibility, durable
// enrollments, the staging workspace and class capacity.
type ConflictDetector struct {
	eligibility rosterIndexer
	enrollments commitmentChecker
	classes     committedCounter
	store       staging.Store
	guard       models.CapacityGuard
}

// NewConflictDetector constructs the detector. A nil guard defaults to StrictCapacity.
func NewConflictDetector(eligibility rosterIndexer, enrollments commitmentChecker, classes committedCounter, store staging.Store, guard models.CapacityGuard) *ConflictDetector {
	if guard == nil {
		guard = models.StrictCapacity
	}
	return &ConflictDetector{eligibility: eligibility, enrollments: enrollments, classes: classes, store: store, guard: guard}
}

// Guard returns the capacity rule in use.
func (d *ConflictDetector) Guard() models.CapacityGuard {
	return d.guard
}

// ConflictSession classifies a batch of requests for one workspace against a
// roster loaded once.
type ConflictSession struct {
	detector *ConflictDetector
	key      models.SessionKey
	roster   map[string]models.RosterEntry
}

// Begin loads the source roster for key.
func (d *ConflictDetector) Begin(ctx context.Context, key models.SessionKey) (*ConflictSession, error) {
	roster, err := d.eligibility.RosterIndex(ctx, key.SourceYearID)
	if err != nil {
		return nil, err
	}
	return &ConflictSession{detector: d, key: key, roster: roster}, nil
}

// Roster exposes the roster the session was built on.
func (s *ConflictSession) Roster() map[string]models.RosterEntry {
	return s.roster
}

// Classify evaluates staging studentID into class. Checks run in order:
// eligibility, durable commitment, existing staged placement, capacity.
// Re-staging the same class is admissible without a capacity check. A student
// staged to another class is reported as staged elsewhere unless allowMove is
// set, in which case the move is subject to the capacity check of the new class.
// Counts are read fresh on every call.
func (s *ConflictSession) Classify(ctx context.Context, studentID string, class models.TargetClass, allowMove bool) (models.PlacementStatus, error) {
	d := s.detector
	if _, ok := s.roster[studentID]; !ok {
		return models.PlacementNotEligible, nil
	}

	committed, err := d.enrollments.IsCommitted(ctx, studentID, s.key.TargetYearID)
	if err != nil {
		return "", appErrors.WrapWith(appErrors.ErrInternal, err, "failed to check committed placement")
	}
	if committed {
		return models.PlacementAlreadyCommitted, nil
	}

	current, staged, err := d.store.Get(ctx, s.key, studentID)
	if err != nil {
		return "", appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read staging workspace")
	}
	if staged && current == class.ID {
		return models.PlacementAdmissible, nil
	}
	if staged && !allowMove {
		return models.PlacementAlreadyStagedElsewhere, nil
	}

	committedCount, err := d.classes.CommittedCount(ctx, class.ID)
	if err != nil {
		return "", appErrors.WrapWith(appErrors.ErrInternal, err, "failed to count committed placements")
	}
	stagedCount, err := d.store.CountForClass(ctx, s.key, class.ID)
	if err != nil {
		return "", appErrors.WrapWith(appErrors.ErrInternal, err, "failed to count staged placements")
	}
	if !d.guard(class, stagedCount, committedCount) {
		return models.PlacementClassFull, nil
	}
	return models.PlacementAdmissible, nil
}
