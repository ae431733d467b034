package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/sma-promotion-api/internal/models"
	"github.com/noah-isme/sma-promotion-api/internal/repository"
	"github.com/noah-isme/sma-promotion-api/internal/staging"
)

const (
	sourceYear = "2024"
	targetYear = "2025"
)

var promotionKey = models.SessionKey{SourceYearID: sourceYear, TargetYearID: targetYear}

// schoolFake is an in-memory stand-in for the class catalog, the durable
// enrollment store and the audit log of a single target year.
type schoolFake struct {
	mu          sync.Mutex
	roster      []models.RosterEntry
	classes     map[string]models.TargetClass
	committed   map[string]models.CommittedPlacement
	locked      map[string]bool
	commitErr   map[string]error
	lookupErr   map[string]error
	audits      []models.AuditLog
	rosterCalls int
}

func newSchoolFake() *schoolFake {
	return &schoolFake{
		classes:   make(map[string]models.TargetClass),
		committed: make(map[string]models.CommittedPlacement),
		locked:    make(map[string]bool),
		commitErr: make(map[string]error),
		lookupErr: make(map[string]error),
	}
}

func (f *schoolFake) addStudents(n int, grade, section string) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("stu-%s%s-%02d", grade, section, len(f.roster)+1)
		f.roster = append(f.roster, models.RosterEntry{
			StudentID:      id,
			StudentName:    fmt.Sprintf("Student %02d", len(f.roster)+1),
			LRN:            fmt.Sprintf("LRN%04d", len(f.roster)+1),
			Classification: models.Classification{GradeLevel: grade, Section: section},
		})
		ids = append(ids, id)
	}
	return ids
}

func (f *schoolFake) addClass(id, grade, section string, capacity int) {
	f.classes[id] = models.TargetClass{
		ID:             id,
		SchoolYearID:   targetYear,
		MaxCapacity:    capacity,
		Classification: models.Classification{GradeLevel: grade, Section: section},
	}
}

func (f *schoolFake) commitDirect(studentID, classID string) {
	f.committed[studentID] = models.CommittedPlacement{ID: "cp-" + studentID, StudentID: studentID, ClassID: classID, SchoolYearID: targetYear}
}

func (f *schoolFake) countIn(classID string) int {
	n := 0
	for _, p := range f.committed {
		if p.ClassID == classID {
			n++
		}
	}
	return n
}

func (f *schoolFake) ListByYear(ctx context.Context, yearID string) ([]models.TargetClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	classes := make([]models.TargetClass, 0, len(f.classes))
	for _, c := range f.classes {
		if c.SchoolYearID != yearID {
			continue
		}
		c.CommittedCount = f.countIn(c.ID)
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].ID < classes[j].ID })
	return classes, nil
}

func (f *schoolFake) FindByID(ctx context.Context, id string) (*models.TargetClass, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.classes[id]
	if !ok {
		return nil, nil
	}
	c.CommittedCount = f.countIn(id)
	return &c, nil
}

func (f *schoolFake) CommittedCount(ctx context.Context, classID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countIn(classID), nil
}

func (f *schoolFake) IsCommitted(ctx context.Context, studentID, yearID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookupErr[studentID]; err != nil {
		return false, err
	}
	_, ok := f.committed[studentID]
	return ok && yearID == targetYear, nil
}

func (f *schoolFake) ListCommitted(ctx context.Context, yearID string) ([]models.CommittedPlacement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if yearID != targetYear {
		return nil, nil
	}
	out := make([]models.CommittedPlacement, 0, len(f.committed))
	for _, p := range f.committed {
		out = append(out, p)
	}
	return out, nil
}

func (f *schoolFake) CommitPlacement(ctx context.Context, params repository.CommitParams, guard models.CapacityGuard) (*models.CommittedPlacement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.commitErr[params.StudentID]; err != nil {
		return nil, err
	}
	if f.locked[params.SchoolYearID] {
		return nil, repository.ErrYearLocked
	}
	class, ok := f.classes[params.ClassID]
	if !ok {
		return nil, repository.ErrClassNotFound
	}
	if _, done := f.committed[params.StudentID]; done {
		return nil, repository.ErrAlreadyCommitted
	}
	if !guard(class, 0, f.countIn(class.ID)) {
		return nil, repository.ErrClassFull
	}
	p := models.CommittedPlacement{
		ID:           "cp-" + params.StudentID,
		StudentID:    params.StudentID,
		ClassID:      params.ClassID,
		SchoolYearID: params.SchoolYearID,
		EnrolledBy:   params.EnrolledBy,
		EnrolledAt:   time.Now().UTC(),
	}
	f.committed[params.StudentID] = p
	return &p, nil
}

func (f *schoolFake) IsLocked(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked[id], nil
}

func (f *schoolFake) Create(ctx context.Context, log *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, *log)
	return nil
}

type rosterFake struct{ school *schoolFake }

func (r rosterFake) ListByYear(ctx context.Context, yearID string) ([]models.RosterEntry, error) {
	r.school.mu.Lock()
	defer r.school.mu.Unlock()
	r.school.rosterCalls++
	if yearID != sourceYear {
		return nil, nil
	}
	return append([]models.RosterEntry(nil), r.school.roster...), nil
}

type yearsFake struct{ school *schoolFake }

func (y yearsFake) FindByID(ctx context.Context, id string) (*models.SchoolYear, error) {
	y.school.mu.Lock()
	defer y.school.mu.Unlock()
	if id != sourceYear && id != targetYear {
		return nil, nil
	}
	return &models.SchoolYear{ID: id, Name: "SY " + id, IsLocked: y.school.locked[id]}, nil
}

func (y yearsFake) Lock(ctx context.Context, id, actorID string, at time.Time) error {
	y.school.mu.Lock()
	defer y.school.mu.Unlock()
	if y.school.locked[id] {
		return repository.ErrYearAlreadyLocked
	}
	y.school.locked[id] = true
	return nil
}

type promotionFixture struct {
	school      *schoolFake
	store       *staging.MemoryStore
	eligibility *EligibilityService
	placements  *PlacementService
	locks       *LockService
}

func newPromotionFixture() *promotionFixture {
	school := newSchoolFake()
	store := staging.NewMemoryStore()
	undo := staging.NewUndoLedger(store, staging.NewMemoryLedger())
	eligibility := NewEligibilityService(rosterFake{school}, school, nil, 0, nil, nil)
	detector := NewConflictDetector(eligibility, school, school, store, nil)
	placements := NewPlacementService(PlacementDeps{
		Eligibility: eligibility,
		Detector:    detector,
		Classes:     school,
		Enrollments: school,
		Years:       school,
		Store:       store,
		Undo:        undo,
		Audit:       school,
	})
	locks := NewLockService(yearsFake{school}, store, school, nil, nil)
	return &promotionFixture{school: school, store: store, eligibility: eligibility, placements: placements, locks: locks}
}
