package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-promotion-api/internal/dto"
	"github.com/noah-isme/sma-promotion-api/internal/models"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
)

type rosterProvider interface {
	ListByYear(ctx context.Context, yearID string) ([]models.RosterEntry, error)
}

type committedLister interface {
	ListCommitted(ctx context.Context, yearID string) ([]models.CommittedPlacement, error)
}

// SuggestionRule derives the suggested target classification from the source one.
type SuggestionRule func(source models.Classification) models.Classification

var romanNumerals = []struct {
	value  int
	symbol string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"}, {100, "C"}, {90, "XC"},
	{50, "L"}, {40, "XL"}, {10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// NextGradeRule moves a student up one grade level ("10" -> "11", "X" -> "XI")
// and leaves the section for the operator to pick. Unrecognised grade labels
// are carried over unchanged.
func NextGradeRule(source models.Classification) models.Classification {
	grade := strings.TrimSpace(source.GradeLevel)
	if n, err := strconv.Atoi(grade); err == nil {
		return models.Classification{GradeLevel: strconv.Itoa(n + 1)}
	}
	if n, ok := parseRoman(grade); ok {
		return models.Classification{GradeLevel: formatRoman(n + 1)}
	}
	return models.Classification{GradeLevel: grade}
}

func parseRoman(s string) (int, bool) {
	upper := strings.ToUpper(s)
	if upper == "" {
		return 0, false
	}
	rest, total := upper, 0
	for _, numeral := range romanNumerals {
		for strings.HasPrefix(rest, numeral.symbol) {
			total += numeral.value
			rest = rest[len(numeral.symbol):]
		}
	}
	if rest != "" || formatRoman(total) != upper {
		return 0, false
	}
	return total, true
}

func formatRoman(n int) string {
	var b strings.Builder
	for _, numeral := range romanNumerals {
		for n >= numeral.value {
			b.WriteString(numeral.symbol)
			n -= numeral.value
		}
	}
	return b.String()
}

// EligibilityService resolves which source-year students still need a place in the target year.
type EligibilityService struct {
	roster    rosterProvider
	committed committedLister
	cache     *CacheService
	cacheTTL  time.Duration
	rule      SuggestionRule
	logger    *zap.Logger
}

// NewEligibilityService constructs the service. A nil rule defaults to NextGradeRule.
func NewEligibilityService(roster rosterProvider, committed committedLister, cache *CacheService, cacheTTL time.Duration, rule SuggestionRule, logger *zap.Logger) *EligibilityService {
	if rule == nil {
		rule = NextGradeRule
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EligibilityService{roster: roster, committed: committed, cache: cache, cacheTTL: cacheTTL, rule: rule, logger: logger}
}

// Roster returns the source-year roster, consulting the cache first when enabled.
func (s *EligibilityService) Roster(ctx context.Context, yearID string) ([]models.RosterEntry, error) {
	return Remember(ctx, s.cache, CacheKey("roster", yearID), s.cacheTTL, func(ctx context.Context) ([]models.RosterEntry, error) {
		entries, err := s.roster.ListByYear(ctx, yearID)
		if err != nil {
			return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to load roster")
		}
		return entries, nil
	})
}

// RosterIndex returns the source roster keyed by student id.
func (s *EligibilityService) RosterIndex(ctx context.Context, yearID string) (map[string]models.RosterEntry, error) {
	entries, err := s.Roster(ctx, yearID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]models.RosterEntry, len(entries))
	for _, entry := range entries {
		index[entry.StudentID] = entry
	}
	return index, nil
}

// CommittedIndex returns the placements of yearID keyed by student id. Never cached.
func (s *EligibilityService) CommittedIndex(ctx context.Context, yearID string) (map[string]models.CommittedPlacement, error) {
	placements, err := s.committed.ListCommitted(ctx, yearID)
	if err != nil {
		return nil, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to load committed placements")
	}
	index := make(map[string]models.CommittedPlacement, len(placements))
	for _, placement := range placements {
		index[placement.StudentID] = placement
	}
	return index, nil
}

// ListCandidates returns every roster student with no committed placement in the
// target year, each with a suggested classification, ordered by name.
func (s *EligibilityService) ListCandidates(ctx context.Context, key models.SessionKey, filter dto.CandidateFilter) ([]models.CandidateStudent, error) {
	roster, err := s.Roster(ctx, key.SourceYearID)
	if err != nil {
		return nil, err
	}
	committed, err := s.CommittedIndex(ctx, key.TargetYearID)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.CandidateStudent, 0, len(roster))
	for _, entry := range roster {
		if _, done := committed[entry.StudentID]; done {
			continue
		}
		candidates = append(candidates, models.CandidateStudent{
			StudentID:               entry.StudentID,
			DisplayName:             entry.StudentName,
			LRN:                     entry.LRN,
			SourceClassification:    entry.Classification,
			SuggestedClassification: s.rule(entry.Classification),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DisplayName == candidates[j].DisplayName {
			return candidates[i].StudentID < candidates[j].StudentID
		}
		return candidates[i].DisplayName < candidates[j].DisplayName
	})
	return FilterCandidates(candidates, filter), nil
}

// FilterCandidates keeps candidates whose source classification matches filter.
func FilterCandidates(candidates []models.CandidateStudent, filter dto.CandidateFilter) []models.CandidateStudent {
	if filter.GradeLevel == "" && filter.Section == "" {
		return candidates
	}
	filtered := make([]models.CandidateStudent, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.SourceClassification.Matches(filter.GradeLevel, filter.Section) {
			filtered = append(filtered, candidate)
		}
	}
	return filtered
}
