package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// Outcomes of CommitPlacement that concern a single student rather than the store.
var (
	ErrClassFull        = errors.New("class is full")
	ErrAlreadyCommitted = errors.New("student already committed in school year")
	ErrYearLocked       = errors.New("school year is locked")
	ErrClassNotFound    = errors.New("class not found in school year")
)

const uniqueViolation = "23505"

// EnrollmentRepository is the durable store of committed class placements.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// IsCommitted reports whether the student already has a placement in yearID.
func (r *EnrollmentRepository) IsCommitted(ctx context.Context, studentID, yearID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM class_enrollments WHERE student_id = $1 AND school_year_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, studentID, yearID); err != nil {
		return false, fmt.Errorf("check committed placement: %w", err)
	}
	return exists, nil
}

// ListCommitted returns every placement of yearID.
func (r *EnrollmentRepository) ListCommitted(ctx context.Context, yearID string) ([]models.CommittedPlacement, error) {
	const query = `SELECT id, student_id, class_id, school_year_id, enrolled_by, enrolled_at
FROM class_enrollments
WHERE school_year_id = $1
ORDER BY student_id ASC`
	var placements []models.CommittedPlacement
	if err := r.db.SelectContext(ctx, &placements, query, yearID); err != nil {
		return nil, fmt.Errorf("list committed placements: %w", err)
	}
	return placements, nil
}

// CommitParams identifies the placement being made durable.
type CommitParams struct {
	StudentID    string
	ClassID      string
	SchoolYearID string
	EnrolledBy   string
}

// CommitPlacement writes one placement inside its own transaction. The school
// year row is share-locked and the class row is locked for update, so the lock
// flag, the duplicate check and the capacity count are evaluated against the
// same state the insert lands in.
func (r *EnrollmentRepository) CommitPlacement(ctx context.Context, params CommitParams, guard models.CapacityGuard) (placement *models.CommittedPlacement, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked bool
	if err = tx.GetContext(ctx, &locked, `SELECT is_locked FROM school_years WHERE id = $1 FOR SHARE`, params.SchoolYearID); err != nil {
		return nil, fmt.Errorf("read school year lock: %w", err)
	}
	if locked {
		err = ErrYearLocked
		return nil, err
	}

	var class models.TargetClass
	const classQuery = `SELECT id, school_year_id, grade_level, section, max_capacity FROM classes WHERE id = $1 AND school_year_id = $2 FOR UPDATE`
	if err = tx.GetContext(ctx, &class, classQuery, params.ClassID, params.SchoolYearID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrClassNotFound
			return nil, err
		}
		return nil, fmt.Errorf("lock class row: %w", err)
	}

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM class_enrollments WHERE student_id = $1 AND school_year_id = $2)`, params.StudentID, params.SchoolYearID); err != nil {
		return nil, fmt.Errorf("check committed placement: %w", err)
	}
	if exists {
		err = ErrAlreadyCommitted
		return nil, err
	}

	if err = tx.GetContext(ctx, &class.CommittedCount, `SELECT COUNT(*) FROM class_enrollments WHERE class_id = $1`, params.ClassID); err != nil {
		return nil, fmt.Errorf("count class enrollments: %w", err)
	}
	if !guard(class, 0, class.CommittedCount) {
		err = ErrClassFull
		return nil, err
	}

	placement = &models.CommittedPlacement{
		ID:           uuid.NewString(),
		StudentID:    params.StudentID,
		ClassID:      params.ClassID,
		SchoolYearID: params.SchoolYearID,
		EnrolledBy:   params.EnrolledBy,
		EnrolledAt:   time.Now().UTC(),
	}
	const insertQuery = `INSERT INTO class_enrollments (id, student_id, class_id, school_year_id, enrolled_by, enrolled_at)
VALUES (:id, :student_id, :class_id, :school_year_id, :enrolled_by, :enrolled_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, placement); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			err = ErrAlreadyCommitted
			return nil, err
		}
		return nil, fmt.Errorf("insert class enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit placement transaction: %w", err)
	}
	return placement, nil
}
