package staging

import (
	"encoding/json"
	"fmt"
)

// Op names the staging mutation recorded by an Entry.
type Op string

// Recorded operations.
const (
	OpStage   Op = "STAGE"
	OpUnstage Op = "UNSTAGE"
)

// Entry is one reversible staging mutation. Implementations are StageEntry and UnstageEntry.
type Entry interface {
	Op() Op
	Student() string
	isEntry()
}

// StageEntry records that StudentID was staged to ClassID. PriorClassID is empty
// when the student had no staged placement before.
type StageEntry struct {
	StudentID    string
	ClassID      string
	PriorClassID string
}

func (StageEntry) Op() Op            { return OpStage }
func (e StageEntry) Student() string { return e.StudentID }
func (StageEntry) isEntry()          {}

// UnstageEntry records that StudentID was removed from ClassID.
type UnstageEntry struct {
	StudentID string
	ClassID   string
}

func (UnstageEntry) Op() Op            { return OpUnstage }
func (e UnstageEntry) Student() string { return e.StudentID }
func (UnstageEntry) isEntry()          {}

type entryRecord struct {
	Op           Op     `json:"op"`
	StudentID    string `json:"student_id"`
	ClassID      string `json:"class_id"`
	PriorClassID string `json:"prior_class_id,omitempty"`
}

func encodeEntry(entry Entry) ([]byte, error) {
	var rec entryRecord
	switch e := entry.(type) {
	case StageEntry:
		rec = entryRecord{Op: OpStage, StudentID: e.StudentID, ClassID: e.ClassID, PriorClassID: e.PriorClassID}
	case UnstageEntry:
		rec = entryRecord{Op: OpUnstage, StudentID: e.StudentID, ClassID: e.ClassID}
	default:
		return nil, fmt.Errorf("unknown ledger entry %T", entry)
	}
	return json.Marshal(rec)
}

func decodeEntry(raw []byte) (Entry, error) {
	var rec entryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode ledger entry: %w", err)
	}
	switch rec.Op {
	case OpStage:
		return StageEntry{StudentID: rec.StudentID, ClassID: rec.ClassID, PriorClassID: rec.PriorClassID}, nil
	case OpUnstage:
		return UnstageEntry{StudentID: rec.StudentID, ClassID: rec.ClassID}, nil
	default:
		return nil, fmt.Errorf("unknown ledger op %q", rec.Op)
	}
}
