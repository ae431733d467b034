package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-promotion-api/internal/dto"
	"github.com/noah-isme/sma-promotion-api/internal/models"
	"github.com/noah-isme/sma-promotion-api/internal/repository"
	"github.com/noah-isme/sma-promotion-api/internal/staging"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
)

const nothingToUndo = "nothing to undo"

type eligibilityIndex interface {
	RosterIndex(ctx context.Context, yearID string) (map[string]models.RosterEntry, error)
	CommittedIndex(ctx context.Context, yearID string) (map[string]models.CommittedPlacement, error)
}

type classCatalog interface {
	ListByYear(ctx context.Context, yearID string) ([]models.TargetClass, error)
	FindByID(ctx context.Context, id string) (*models.TargetClass, error)
}

type placementCommitter interface {
	CommitPlacement(ctx context.Context, params repository.CommitParams, guard models.CapacityGuard) (*models.CommittedPlacement, error)
}

type yearLockReader interface {
	IsLocked(ctx context.Context, id string) (bool, error)
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// PlacementService orchestrates staging, undo, commit and progress reporting of
// a promotion from a source year into a target year.
type PlacementService struct {
	eligibility eligibilityIndex
	detector    *ConflictDetector
	classes     classCatalog
	enrollments placementCommitter
	years       yearLockReader
	store       staging.Store
	undo        *staging.UndoLedger
	audit       auditWriter
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger

	mu    sync.Mutex
	locks map[models.SessionKey]*sessionMutex
}

// PlacementDeps groups the collaborators of PlacementService.
type PlacementDeps struct {
	Eligibility eligibilityIndex
	Detector    *ConflictDetector
	Classes     classCatalog
	Enrollments placementCommitter
	Years       yearLockReader
	Store       staging.Store
	Undo        *staging.UndoLedger
	Audit       auditWriter
	Metrics     *MetricsService
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewPlacementService constructs the service.
func NewPlacementService(deps PlacementDeps) *PlacementService {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &PlacementService{
		eligibility: deps.Eligibility,
		detector:    deps.Detector,
		classes:     deps.Classes,
		enrollments: deps.Enrollments,
		years:       deps.Years,
		store:       deps.Store,
		undo:        deps.Undo,
		audit:       deps.Audit,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
		locks:       make(map[models.SessionKey]*sessionMutex),
	}
}

// sessionMutex is dropped from the map once no caller holds or waits on it.
type sessionMutex struct {
	sync.Mutex
	refs int
}

// sessionLock serializes mutations of one workspace within this process.
func (s *PlacementService) sessionLock(key models.SessionKey) func() {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sessionMutex{}
		s.locks[key] = m
	}
	m.refs++
	s.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		s.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *PlacementService) validateKey(key models.SessionKey) error {
	if err := s.validator.Struct(key); err != nil {
		return appErrors.WrapWith(appErrors.ErrValidation, err, "source and target school years are required")
	}
	if key.SourceYearID == key.TargetYearID {
		return appErrors.Clone(appErrors.ErrValidation, "source and target school years must differ")
	}
	return nil
}

func (s *PlacementService) ensureUnlocked(ctx context.Context, targetYearID string) error {
	locked, err := s.years.IsLocked(ctx, targetYearID)
	if err != nil {
		return appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read school year lock")
	}
	if locked {
		return appErrors.Clone(appErrors.ErrLocked, "target school year is locked")
	}
	return nil
}

// BulkAssign stages studentIDs into one target class, in input order. Each
// student is classified independently; rejected students are reported in
// Skipped and never block the rest of the batch, storage failures included.
// Repeated ids are processed once.
func (s *PlacementService) BulkAssign(ctx context.Context, key models.SessionKey, req dto.BulkAssignRequest, actorID string) (*dto.BulkAssignResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrValidation, err, "invalid assignment payload")
	}
	unlock := s.sessionLock(key)
	defer unlock()

	if err := s.ensureUnlocked(ctx, key.TargetYearID); err != nil {
		return nil, err
	}
	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to load class")
	}
	if class == nil || class.SchoolYearID != key.TargetYearID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class does not belong to the target school year")
	}
	session, err := s.detector.Begin(ctx, key)
	if err != nil {
		return nil, err
	}

	result := &dto.BulkAssignResult{Skipped: []dto.SkippedStudent{}}
	seen := make(map[string]struct{}, len(req.StudentIDs))
	for _, studentID := range req.StudentIDs {
		if _, dup := seen[studentID]; dup {
			continue
		}
		seen[studentID] = struct{}{}

		status, err := session.Classify(ctx, studentID, *class, !req.KeepExisting)
		if err == nil && status == models.PlacementAdmissible {
			err = s.stage(ctx, key, studentID, class.ID)
		}
		if err != nil {
			s.logger.Warn("stage placement failed",
				zap.String("session", key.String()),
				zap.String("student_id", studentID),
				zap.String("class_id", class.ID),
				zap.Error(err),
			)
			status = models.PlacementPersistenceFailure
		}
		s.metrics.RecordPlacement("assign", status)
		if status != models.PlacementAdmissible {
			result.Skipped = append(result.Skipped, dto.SkippedStudent{StudentID: studentID, Reason: status})
			continue
		}
		result.AssignedCount++
	}

	s.logger.Info("bulk assign finished",
		zap.String("session", key.String()),
		zap.String("class_id", class.ID),
		zap.String("actor_id", actorID),
		zap.Int("assigned", result.AssignedCount),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// stage writes one mapping and records it for undo. Re-staging the class a
// student already sits in changes nothing and records nothing.
func (s *PlacementService) stage(ctx context.Context, key models.SessionKey, studentID, classID string) error {
	prior, hadPrior, err := s.store.Stage(ctx, key, studentID, classID)
	if err != nil {
		return appErrors.WrapWith(appErrors.ErrInternal, err, "failed to stage placement")
	}
	if hadPrior && prior == classID {
		return nil
	}
	entry := staging.StageEntry{StudentID: studentID, ClassID: classID}
	if hadPrior {
		entry.PriorClassID = prior
	}
	if err := s.undo.Push(ctx, key, entry); err != nil {
		s.restore(ctx, key, studentID, prior, hadPrior)
		return appErrors.WrapWith(appErrors.ErrInternal, err, "failed to record undo entry")
	}
	return nil
}

// restore puts a workspace mapping back after its undo entry could not be recorded.
func (s *PlacementService) restore(ctx context.Context, key models.SessionKey, studentID, classID string, present bool) {
	var err error
	if present {
		_, _, err = s.store.Stage(ctx, key, studentID, classID)
	} else {
		_, _, err = s.store.Unstage(ctx, key, studentID)
	}
	if err != nil {
		s.logger.Error("failed to restore staged placement", zap.String("session", key.String()), zap.String("student_id", studentID), zap.Error(err))
	}
}

// RemoveStaged unstages studentID when it is staged to classID. Anything else is a no-op.
func (s *PlacementService) RemoveStaged(ctx context.Context, key models.SessionKey, studentID, classID string) (*dto.RemoveStagedResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	if studentID == "" || classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student and class are required")
	}
	unlock := s.sessionLock(key)
	defer unlock()

	if err := s.ensureUnlocked(ctx, key.TargetYearID); err != nil {
		return nil, err
	}
	current, found, err := s.store.Get(ctx, key, studentID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read staging workspace")
	}
	if !found || current != classID {
		return &dto.RemoveStagedResult{Removed: false}, nil
	}
	removed, found, err := s.store.Unstage(ctx, key, studentID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to unstage placement")
	}
	if !found {
		return &dto.RemoveStagedResult{Removed: false}, nil
	}
	if err := s.undo.Push(ctx, key, staging.UnstageEntry{StudentID: studentID, ClassID: removed}); err != nil {
		s.restore(ctx, key, studentID, removed, true)
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to record undo entry")
	}
	return &dto.RemoveStagedResult{Removed: true}, nil
}

// UndoLast reverts the most recent staging mutation of key. An empty history
// is a normal outcome, reported with Success false.
func (s *PlacementService) UndoLast(ctx context.Context, key models.SessionKey) (*dto.OutcomeResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	unlock := s.sessionLock(key)
	defer unlock()

	if err := s.ensureUnlocked(ctx, key.TargetYearID); err != nil {
		return nil, err
	}
	message, err := s.undo.PopAndInvert(ctx, key)
	if err != nil {
		if errors.Is(err, staging.ErrEmptyLedger) {
			s.metrics.RecordUndo(false)
			return &dto.OutcomeResult{Success: false, Message: nothingToUndo}, nil
		}
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to undo last change")
	}
	s.metrics.RecordUndo(true)
	return &dto.OutcomeResult{Success: true, Message: message}, nil
}

// Commit makes every staged placement of key durable. Each row is re-validated
// and written in its own transaction; rows that fail stay staged and are
// reported in Failures.
func (s *PlacementService) Commit(ctx context.Context, key models.SessionKey, actorID string) (*dto.CommitResult, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	unlock := s.sessionLock(key)
	defer unlock()

	if err := s.ensureUnlocked(ctx, key.TargetYearID); err != nil {
		return nil, err
	}
	staged, err := s.store.All(ctx, key)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read staging workspace")
	}
	result := &dto.CommitResult{Failures: []dto.SkippedStudent{}}
	if len(staged) == 0 {
		return result, nil
	}

	start := time.Now()
	committed := make([]string, 0, len(staged))
	for _, placement := range staged {
		_, err := s.enrollments.CommitPlacement(ctx, repository.CommitParams{
			StudentID:    placement.StudentID,
			ClassID:      placement.ClassID,
			SchoolYearID: key.TargetYearID,
			EnrolledBy:   actorID,
		}, s.detector.Guard())
		if err != nil {
			status := commitFailureStatus(err)
			if status == models.PlacementPersistenceFailure {
				s.logger.Warn("commit placement failed",
					zap.String("session", key.String()),
					zap.String("student_id", placement.StudentID),
					zap.String("class_id", placement.ClassID),
					zap.Error(err),
				)
			}
			result.Failures = append(result.Failures, dto.SkippedStudent{StudentID: placement.StudentID, Reason: status})
			s.metrics.RecordPlacement("commit", status)
			continue
		}
		result.CreatedCount++
		committed = append(committed, placement.StudentID)
		s.metrics.RecordPlacement("commit", models.PlacementAdmissible)
		if _, _, err := s.store.Unstage(ctx, key, placement.StudentID); err != nil {
			s.logger.Error("failed to clear committed placement from workspace", zap.String("student_id", placement.StudentID), zap.Error(err))
		}
	}

	if err := s.undo.Forget(ctx, key, committed...); err != nil {
		s.logger.Error("failed to drop undo history of committed students", zap.String("session", key.String()), zap.Error(err))
	}
	if len(result.Failures) == 0 {
		if err := s.undo.Clear(ctx, key); err != nil {
			s.logger.Error("failed to clear undo history", zap.String("session", key.String()), zap.Error(err))
		}
	}
	s.metrics.ObserveCommit(time.Since(start))
	s.recordCommitAudit(ctx, key, actorID, result)

	s.logger.Info("commit finished",
		zap.String("session", key.String()),
		zap.String("actor_id", actorID),
		zap.Int("created", result.CreatedCount),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func commitFailureStatus(err error) models.PlacementStatus {
	switch {
	case errors.Is(err, repository.ErrClassFull):
		return models.PlacementClassFull
	case errors.Is(err, repository.ErrAlreadyCommitted):
		return models.PlacementAlreadyCommitted
	case errors.Is(err, repository.ErrYearLocked):
		return models.PlacementLocked
	default:
		return models.PlacementPersistenceFailure
	}
}

func (s *PlacementService) recordCommitAudit(ctx context.Context, key models.SessionKey, actorID string, result *dto.CommitResult) {
	if s.audit == nil || result.CreatedCount == 0 {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"source_year_id": key.SourceYearID,
		"created_count":  result.CreatedCount,
		"failures":       result.Failures,
	})
	if err != nil {
		s.logger.Warn("failed to encode commit audit payload", zap.Error(err))
		return
	}
	entry := &models.AuditLog{
		Action:     models.AuditActionPromotionCommit,
		Resource:   "school_year",
		ResourceID: &key.TargetYearID,
		NewValues:  payload,
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write commit audit log", zap.String("session", key.String()), zap.Error(err))
	}
}

// DiscardStaging drops every staged placement and the undo history of key.
func (s *PlacementService) DiscardStaging(ctx context.Context, key models.SessionKey) error {
	if err := s.validateKey(key); err != nil {
		return err
	}
	unlock := s.sessionLock(key)
	defer unlock()

	if err := s.ensureUnlocked(ctx, key.TargetYearID); err != nil {
		return err
	}
	if err := s.store.Discard(ctx, key); err != nil {
		return appErrors.WrapWith(appErrors.ErrInternal, err, "failed to discard staging workspace")
	}
	if err := s.undo.Clear(ctx, key); err != nil {
		return appErrors.WrapWith(appErrors.ErrInternal, err, "failed to clear undo history")
	}
	s.logger.Info("staging discarded", zap.String("session", key.String()))
	return nil
}

// Stats reports promotion progress for the source roster of key.
func (s *PlacementService) Stats(ctx context.Context, key models.SessionKey) (*dto.PromotionStats, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	roster, err := s.eligibility.RosterIndex(ctx, key.SourceYearID)
	if err != nil {
		return nil, err
	}
	committed, err := s.eligibility.CommittedIndex(ctx, key.TargetYearID)
	if err != nil {
		return nil, err
	}
	staged, err := s.store.All(ctx, key)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read staging workspace")
	}

	stats := &dto.PromotionStats{TotalEligible: len(roster)}
	for studentID := range roster {
		if _, ok := committed[studentID]; ok {
			stats.Committed++
		}
	}
	for _, placement := range staged {
		if _, ok := roster[placement.StudentID]; !ok {
			continue
		}
		if _, ok := committed[placement.StudentID]; ok {
			continue
		}
		stats.Staged++
	}
	stats.Unassigned = stats.TotalEligible - stats.Committed - stats.Staged
	if stats.Unassigned < 0 {
		stats.Unassigned = 0
	}
	stats.ProgressPercentage = progress(stats.Committed, stats.TotalEligible)
	return stats, nil
}

func progress(committed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(committed) / float64(total)))
}

// ListStaged returns the staged placements of key with student and class details.
func (s *PlacementService) ListStaged(ctx context.Context, key models.SessionKey) ([]dto.StagedItem, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	staged, err := s.store.All(ctx, key)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read staging workspace")
	}
	if len(staged) == 0 {
		return []dto.StagedItem{}, nil
	}
	roster, err := s.eligibility.RosterIndex(ctx, key.SourceYearID)
	if err != nil {
		return nil, err
	}
	classes, err := s.classIndex(ctx, key.TargetYearID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.StagedItem, 0, len(staged))
	for _, placement := range staged {
		student := roster[placement.StudentID]
		items = append(items, dto.StagedItem{
			StudentID:            placement.StudentID,
			StudentName:          student.StudentName,
			LRN:                  student.LRN,
			SourceClassification: student.Classification,
			ClassID:              placement.ClassID,
			TargetClassification: classes[placement.ClassID].Classification,
		})
	}
	return items, nil
}

// ClassLoads reports, per target class, how many seats are committed, staged in key and left.
func (s *PlacementService) ClassLoads(ctx context.Context, key models.SessionKey) ([]dto.ClassLoad, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}
	classes, err := s.classes.ListByYear(ctx, key.TargetYearID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to list target classes")
	}
	loads := make([]dto.ClassLoad, 0, len(classes))
	for _, class := range classes {
		staged, err := s.store.CountForClass(ctx, key, class.ID)
		if err != nil {
			return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to count staged placements")
		}
		remaining := class.MaxCapacity - class.CommittedCount - staged
		if remaining < 0 {
			remaining = 0
		}
		loads = append(loads, dto.ClassLoad{
			ClassID:        class.ID,
			Classification: class.Classification,
			MaxCapacity:    class.MaxCapacity,
			Committed:      class.CommittedCount,
			Staged:         staged,
			Remaining:      remaining,
		})
	}
	return loads, nil
}

func (s *PlacementService) classIndex(ctx context.Context, yearID string) (map[string]models.TargetClass, error) {
	classes, err := s.classes.ListByYear(ctx, yearID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to list target classes")
	}
	index := make(map[string]models.TargetClass, len(classes))
	for _, class := range classes {
		index[class.ID] = class
	}
	return index, nil
}
