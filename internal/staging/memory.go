package staging

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/sma-promotion-api/internal/models"
)

// MemoryStore keeps workspaces in process memory. A workspace is created on
// first stage and dropped once it becomes empty.
type MemoryStore struct {
	mu         sync.RWMutex
	workspaces map[models.SessionKey]map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workspaces: make(map[models.SessionKey]map[string]string)}
}

// Stage implements Store.
func (s *MemoryStore) Stage(_ context.Context, key models.SessionKey, studentID, classID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[key]
	if !ok {
		ws = make(map[string]string)
		s.workspaces[key] = ws
	}
	prior, had := ws[studentID]
	ws[studentID] = classID
	return prior, had, nil
}

// Unstage implements Store.
func (s *MemoryStore) Unstage(_ context.Context, key models.SessionKey, studentID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.workspaces[key]
	if !ok {
		return "", false, nil
	}
	removed, found := ws[studentID]
	if !found {
		return "", false, nil
	}
	delete(ws, studentID)
	if len(ws) == 0 {
		delete(s.workspaces, key)
	}
	return removed, true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key models.SessionKey, studentID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	classID, ok := s.workspaces[key][studentID]
	return classID, ok, nil
}

// All implements Store.
func (s *MemoryStore) All(_ context.Context, key models.SessionKey) ([]models.StagedPlacement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws := s.workspaces[key]
	placements := make([]models.StagedPlacement, 0, len(ws))
	for studentID, classID := range ws {
		placements = append(placements, models.StagedPlacement{StudentID: studentID, ClassID: classID})
	}
	sortPlacements(placements)
	return placements, nil
}

// CountForClass implements Store.
func (s *MemoryStore) CountForClass(_ context.Context, key models.SessionKey, classID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, staged := range s.workspaces[key] {
		if staged == classID {
			count++
		}
	}
	return count, nil
}

// CountForTarget implements Store.
func (s *MemoryStore) CountForTarget(_ context.Context, targetYearID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key, ws := range s.workspaces {
		if key.TargetYearID == targetYearID {
			count += len(ws)
		}
	}
	return count, nil
}

// Discard implements Store.
func (s *MemoryStore) Discard(_ context.Context, key models.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.workspaces, key)
	return nil
}

// MemoryLedger keeps undo stacks in process memory.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[models.SessionKey][]Entry
}

// NewMemoryLedger constructs an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[models.SessionKey][]Entry)}
}

// Push implements Ledger.
func (l *MemoryLedger) Push(_ context.Context, key models.SessionKey, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = append(l.entries[key], entry)
	return nil
}

// Pop implements Ledger.
func (l *MemoryLedger) Pop(_ context.Context, key models.SessionKey) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stack := l.entries[key]
	if len(stack) == 0 {
		return nil, ErrEmptyLedger
	}
	entry := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(l.entries, key)
	} else {
		l.entries[key] = stack[:len(stack)-1]
	}
	return entry, nil
}

// Forget implements Ledger.
func (l *MemoryLedger) Forget(_ context.Context, key models.SessionKey, studentIDs ...string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		drop[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stack := l.entries[key]
	kept := stack[:0]
	for _, entry := range stack {
		if _, ok := drop[entry.Student()]; !ok {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(l.entries, key)
		return nil
	}
	l.entries[key] = kept
	return nil
}

// Clear implements Ledger.
func (l *MemoryLedger) Clear(_ context.Context, key models.SessionKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context, key models.SessionKey) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[key]), nil
}

func sortPlacements(placements []models.StagedPlacement) {
	sort.Slice(placements, func(i, j int) bool {
		return placements[i].StudentID < placements[j].StudentID
	})
}
