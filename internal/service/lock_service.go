package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-promotion-api/internal/dto"
	"github.com/noah-isme/sma-promotion-api/internal/models"
	"github.com/noah-isme/sma-promotion-api/internal/repository"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
)

type schoolYearLocker interface {
	FindByID(ctx context.Context, id string) (*models.SchoolYear, error)
	Lock(ctx context.Context, id, actorID string, at time.Time) error
}

type targetStagedCounter interface {
	CountForTarget(ctx context.Context, targetYearID string) (int, error)
}

// LockService freezes a target school year once nothing is left staged for it.
type LockService struct {
	years   schoolYearLocker
	staged  targetStagedCounter
	audit   auditWriter
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewLockService constructs the service.
func NewLockService(years schoolYearLocker, staged targetStagedCounter, audit auditWriter, metrics *MetricsService, logger *zap.Logger) *LockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockService{years: years, staged: staged, audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

// Lock sets the lock flag of targetYearID. Refusals (already locked, placements
// still staged) are reported with Success false rather than as errors.
func (s *LockService) Lock(ctx context.Context, targetYearID, actorID string) (*dto.OutcomeResult, error) {
	if targetYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school year is required")
	}
	year, err := s.years.FindByID(ctx, targetYearID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to load school year")
	}
	if year == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
	}
	if year.IsLocked {
		return &dto.OutcomeResult{Success: false, Message: "school year is already locked"}, nil
	}

	staged, err := s.staged.CountForTarget(ctx, targetYearID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to count staged placements")
	}
	if staged > 0 {
		s.logger.Info("school year lock refused", zap.String("school_year_id", targetYearID), zap.Int("staged", staged))
		return &dto.OutcomeResult{
			Success: false,
			Message: fmt.Sprintf("%d staged placement(s) must be committed or removed before locking %s", staged, year.Name),
		}, nil
	}

	now := s.now().UTC()
	if err := s.years.Lock(ctx, targetYearID, actorID, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrYearAlreadyLocked):
			return &dto.OutcomeResult{Success: false, Message: "school year is already locked"}, nil
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "school year not found")
		default:
			return nil, appErrors.WrapWith(appErrors.ErrPersistence, err, "failed to lock school year")
		}
	}

	s.metrics.RecordYearLock()
	s.recordAudit(ctx, targetYearID, actorID, now)
	s.logger.Info("school year locked", zap.String("school_year_id", targetYearID), zap.String("actor_id", actorID))
	return &dto.OutcomeResult{Success: true, Message: fmt.Sprintf("%s is now locked", year.Name)}, nil
}

func (s *LockService) recordAudit(ctx context.Context, yearID, actorID string, at time.Time) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(map[string]bool{"is_locked": false})
	newValues, _ := json.Marshal(map[string]interface{}{"is_locked": true, "locked_at": at})
	entry := &models.AuditLog{
		Action:     models.AuditActionSchoolYearLock,
		Resource:   "school_year",
		ResourceID: &yearID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write lock audit log", zap.String("school_year_id", yearID), zap.Error(err))
	}
}
