package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// RosterRepository reads who was enrolled, and where, in a school year.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ListByYear returns the active students enrolled in yearID with the class they sat in.
func (r *RosterRepository) ListByYear(ctx context.Context, yearID string) ([]models.RosterEntry, error) {
	const query = `
SELECT
	s.id AS student_id,
	s.full_name AS student_name,
	s.lrn,
	c.grade_level,
	c.section
FROM class_enrollments ce
JOIN students s ON s.id = ce.student_id
JOIN classes c ON c.id = ce.class_id
WHERE ce.school_year_id = $1 AND s.active = TRUE
ORDER BY s.full_name ASC, s.id ASC`

	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, yearID); err != nil {
		return nil, fmt.Errorf("list roster for year %s: %w", yearID, err)
	}
	return entries, nil
}
