package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

const classColumns = `
	c.id,
	c.school_year_id,
	c.grade_level,
	c.section,
	c.max_capacity,
	(SELECT COUNT(*) FROM class_enrollments ce WHERE ce.class_id = c.id) AS committed_count`

// ClassRepository reads the class catalog of a school year.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// ListByYear returns every class of yearID together with its committed enrollment count.
func (r *ClassRepository) ListByYear(ctx context.Context, yearID string) ([]models.TargetClass, error) {
	query := `SELECT` + classColumns + `
FROM classes c
WHERE c.school_year_id = $1
ORDER BY c.grade_level ASC, c.section ASC`

	var classes []models.TargetClass
	if err := r.db.SelectContext(ctx, &classes, query, yearID); err != nil {
		return nil, fmt.Errorf("list classes for year %s: %w", yearID, err)
	}
	return classes, nil
}

// FindByID loads a class with its committed count. Returns nil when missing.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.TargetClass, error) {
	query := `SELECT` + classColumns + `
FROM classes c
WHERE c.id = $1`

	var class models.TargetClass
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get class %s: %w", id, err)
	}
	return &class, nil
}

// CommittedCount returns how many durable enrollments reference classID.
func (r *ClassRepository) CommittedCount(ctx context.Context, classID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM class_enrollments WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("count enrollments for class %s: %w", classID, err)
	}
	return count, nil
}
