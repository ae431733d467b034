package models

import (
	"fmt"
	"strings"
	"time"
)

// Classification locates a student inside a school year.
type Classification struct {
	GradeLevel string `db:"grade_level" json:"grade_level"`
	Section    string `db:"section" json:"section"`
}

// String renders "Grade X - A", or just the grade when no section is chosen.
func (c Classification) String() string {
	if c.GradeLevel == "" && c.Section == "" {
		return ""
	}
	if c.Section == "" {
		return fmt.Sprintf("Grade %s", c.GradeLevel)
	}
	return fmt.Sprintf("Grade %s - %s", c.GradeLevel, c.Section)
}

// Matches reports whether c satisfies the non-empty parts of filter.
func (c Classification) Matches(gradeLevel, section string) bool {
	if gradeLevel != "" && !strings.EqualFold(c.GradeLevel, gradeLevel) {
		return false
	}
	if section != "" && !strings.EqualFold(c.Section, section) {
		return false
	}
	return true
}

// RosterEntry is an active student enrolled in a source year.
type RosterEntry struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	LRN         string `db:"lrn" json:"lrn"`
	Classification
}

// CandidateStudent is a source-year student not yet committed into the target year.
type CandidateStudent struct {
	StudentID               string         `json:"student_id"`
	DisplayName             string         `json:"display_name"`
	LRN                     string         `json:"lrn"`
	SourceClassification    Classification `json:"source_classification"`
	SuggestedClassification Classification `json:"suggested_classification"`
}

// TargetClass is a class of the target year as read from the catalog.
type TargetClass struct {
	ID             string `db:"id" json:"class_id"`
	SchoolYearID   string `db:"school_year_id" json:"school_year_id"`
	MaxCapacity    int    `db:"max_capacity" json:"max_capacity"`
	CommittedCount int    `db:"committed_count" json:"committed_count"`
	Classification
}

// StagedPlacement is a tentative student to class decision.
type StagedPlacement struct {
	StudentID string `json:"student_id"`
	ClassID   string `json:"class_id"`
}

// CommittedPlacement is a durable enrollment row created by commit.
type CommittedPlacement struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	SchoolYearID string    `db:"school_year_id" json:"school_year_id"`
	EnrolledBy   string    `db:"enrolled_by" json:"enrolled_by"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// PlacementStatus classifies a requested or revalidated placement.
type PlacementStatus string

// Placement classifications and per-student skip reasons.
const (
	PlacementAdmissible             PlacementStatus = "ADMISSIBLE"
	PlacementAlreadyStagedElsewhere PlacementStatus = "ALREADY_STAGED_ELSEWHERE"
	PlacementAlreadyCommitted       PlacementStatus = "ALREADY_COMMITTED"
	PlacementClassFull              PlacementStatus = "CLASS_FULL"
	PlacementNotEligible            PlacementStatus = "NOT_ELIGIBLE"
	PlacementLocked                 PlacementStatus = "LOCKED"
	PlacementPersistenceFailure     PlacementStatus = "PERSISTENCE_FAILURE"
)

// CapacityGuard decides whether class can take one more student given current loads.
type CapacityGuard func(class TargetClass, stagedCount, committedCount int) bool

// StrictCapacity admits while committed plus staged stays strictly below the maximum.
func StrictCapacity(class TargetClass, stagedCount, committedCount int) bool {
	return committedCount+stagedCount < class.MaxCapacity
}
