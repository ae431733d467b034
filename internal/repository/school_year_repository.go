package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// ErrYearAlreadyLocked is returned by Lock when the year was already frozen.
var ErrYearAlreadyLocked = errors.New("school year already locked")

// SchoolYearRepository persists the lock flag of school years.
type SchoolYearRepository struct {
	db *sqlx.DB
}

// NewSchoolYearRepository constructs the repository.
func NewSchoolYearRepository(db *sqlx.DB) *SchoolYearRepository {
	return &SchoolYearRepository{db: db}
}

// FindByID returns the school year or nil when it does not exist.
func (r *SchoolYearRepository) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	const query = `SELECT id, name, is_locked, locked_at, locked_by FROM school_years WHERE id = $1`
	var year models.SchoolYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get school year %s: %w", id, err)
	}
	return &year, nil
}

// IsLocked reports the lock flag of a school year. A missing year reads as unlocked.
func (r *SchoolYearRepository) IsLocked(ctx context.Context, id string) (bool, error) {
	var locked bool
	if err := r.db.GetContext(ctx, &locked, `SELECT is_locked FROM school_years WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read lock flag for %s: %w", id, err)
	}
	return locked, nil
}

// Lock freezes the school year. The row is locked first so concurrent lock
// requests serialize and exactly one of them wins.
func (r *SchoolYearRepository) Lock(ctx context.Context, id, actorID string, at time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lock transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked bool
	if err = tx.GetContext(ctx, &locked, `SELECT is_locked FROM school_years WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock school year row: %w", err)
	}
	if locked {
		err = ErrYearAlreadyLocked
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE school_years SET is_locked = TRUE, locked_at = $2, locked_by = $3 WHERE id = $1`, id, at, actorID); err != nil {
		return fmt.Errorf("update school year lock: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit lock transaction: %w", err)
	}
	return nil
}
