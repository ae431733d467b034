package dto

import (
	"time"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// CandidateFilter narrows a candidate list by source classification.
type CandidateFilter struct {
	GradeLevel string `form:"gradeLevel" json:"grade_level"`
	Section    string `form:"section" json:"section"`
}

// BulkAssignRequest stages several students into one target class.
// Students already staged to another class are moved unless KeepExisting is set.
type BulkAssignRequest struct {
	StudentIDs   []string `json:"student_ids" validate:"required,min=1,dive,required"`
	ClassID      string   `json:"class_id" validate:"required"`
	KeepExisting bool     `json:"keep_existing"`
}

// SkippedStudent names a student left out of a batch and why.
type SkippedStudent struct {
	StudentID string                 `json:"student_id"`
	Reason    models.PlacementStatus `json:"reason"`
}

// BulkAssignResult summarises a bulk assignment.
type BulkAssignResult struct {
	AssignedCount int              `json:"assigned_count"`
	Skipped       []SkippedStudent `json:"skipped"`
}

// RemoveStagedResult reports whether a staged placement was removed.
type RemoveStagedResult struct {
	Removed bool `json:"removed"`
}

// OutcomeResult is the {success, message} shape shared by undo and lock.
type OutcomeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CommitResult summarises a commit of the staging workspace.
type CommitResult struct {
	CreatedCount int              `json:"created_count"`
	Failures     []SkippedStudent `json:"failures"`
}

// PromotionStats aggregates the progress of a promotion.
type PromotionStats struct {
	TotalEligible      int `json:"total_eligible"`
	Committed          int `json:"committed"`
	Staged             int `json:"staged"`
	Unassigned         int `json:"unassigned"`
	ProgressPercentage int `json:"progress_percentage"`
}

// StagedItem is a staged placement enriched for display.
type StagedItem struct {
	StudentID            string                `json:"student_id"`
	StudentName          string                `json:"student_name"`
	LRN                  string                `json:"lrn"`
	SourceClassification models.Classification `json:"source_classification"`
	ClassID              string                `json:"class_id"`
	TargetClassification models.Classification `json:"target_classification"`
}

// ClassLoad describes how full a target class is.
type ClassLoad struct {
	ClassID        string                `json:"class_id"`
	Classification models.Classification `json:"classification"`
	MaxCapacity    int                   `json:"max_capacity"`
	Committed      int                   `json:"committed"`
	Staged         int                   `json:"staged"`
	Remaining      int                   `json:"remaining"`
}

// PreviewResult describes a written preview file.
type PreviewResult struct {
	FileName    string    `json:"file_name"`
	Rows        int       `json:"rows"`
	Token       string    `json:"token"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
