package models

import "time"

// SchoolYear is an academic period. IsLocked only ever moves from false to true.
type SchoolYear struct {
	ID       string     `db:"id" json:"id"`
	Name     string     `db:"name" json:"name"`
	IsLocked bool       `db:"is_locked" json:"is_locked"`
	LockedAt *time.Time `db:"locked_at" json:"locked_at,omitempty"`
	LockedBy *string    `db:"locked_by" json:"locked_by,omitempty"`
}

// SessionKey scopes one staging workspace to a source/target year pair.
type SessionKey struct {
	SourceYearID string `json:"source_year_id" validate:"required"`
	TargetYearID string `json:"target_year_id" validate:"required"`
}

// String renders the key as "source:target".
func (k SessionKey) String() string {
	return k.SourceYearID + ":" + k.TargetYearID
}
