package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-promotion-api/internal/dto"
	"github.com/noah-isme/sma-promotion-api/internal/middleware"
	"github.com/noah-isme/sma-promotion-api/internal/models"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
)

type placementServiceMock struct {
	assignResp *dto.BulkAssignResult
	assignErr  error
	commitResp *dto.CommitResult
	lastKey    models.SessionKey
	lastReq    dto.BulkAssignRequest
	lastActor  string
	lastRemove [2]string
	discarded  bool
}

func (m *placementServiceMock) BulkAssign(ctx context.Context, key models.SessionKey, req dto.BulkAssignRequest, actorID string) (*dto.BulkAssignResult, error) {
	m.lastKey, m.lastReq, m.lastActor = key, req, actorID
	return m.assignResp, m.assignErr
}

func (m *placementServiceMock) RemoveStaged(ctx context.Context, key models.SessionKey, studentID, classID string) (*dto.RemoveStagedResult, error) {
	m.lastKey = key
	m.lastRemove = [2]string{studentID, classID}
	return &dto.RemoveStagedResult{Removed: true}, nil
}

func (m *placementServiceMock) UndoLast(ctx context.Context, key models.SessionKey) (*dto.OutcomeResult, error) {
	return &dto.OutcomeResult{Success: false, Message: "nothing to undo"}, nil
}

func (m *placementServiceMock) Commit(ctx context.Context, key models.SessionKey, actorID string) (*dto.CommitResult, error) {
	m.lastKey, m.lastActor = key, actorID
	return m.commitResp, nil
}

func (m *placementServiceMock) DiscardStaging(ctx context.Context, key models.SessionKey) error {
	m.discarded = true
	return nil
}

func (m *placementServiceMock) Stats(ctx context.Context, key models.SessionKey) (*dto.PromotionStats, error) {
	return &dto.PromotionStats{TotalEligible: 3, Committed: 1, Staged: 1, Unassigned: 1, ProgressPercentage: 33}, nil
}

func (m *placementServiceMock) ListStaged(ctx context.Context, key models.SessionKey) ([]dto.StagedItem, error) {
	return []dto.StagedItem{{StudentID: "stu-1", ClassID: "class-a"}}, nil
}

func (m *placementServiceMock) ClassLoads(ctx context.Context, key models.SessionKey) ([]dto.ClassLoad, error) {
	return nil, nil
}

type candidateListerMock struct {
	lastFilter dto.CandidateFilter
}

func (m *candidateListerMock) ListCandidates(ctx context.Context, key models.SessionKey, filter dto.CandidateFilter) ([]models.CandidateStudent, error) {
	m.lastFilter = filter
	return []models.CandidateStudent{{StudentID: "stu-1", DisplayName: "Ana"}}, nil
}

type previewServiceMock struct {
	path string
	err  error
}

func (m *previewServiceMock) Export(ctx context.Context, key models.SessionKey) (*dto.PreviewResult, error) {
	return &dto.PreviewResult{FileName: "promotion-preview.csv", Rows: 2, Token: "tok"}, nil
}

func (m *previewServiceMock) OpenPreview(token string) (*os.File, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	file, err := os.Open(m.path)
	return file, filepath.Base(m.path), err
}

func newPromotionRouter(placements *placementServiceMock, previews *previewServiceMock) (*gin.Engine, *candidateListerMock) {
	gin.SetMode(gin.TestMode)
	candidates := &candidateListerMock{}
	h := NewPromotionHandler(placements, candidates, previews)
	r := gin.New()
	r.GET("/promotions/previews/:token", h.DownloadPreview)
	group := r.Group("/promotions/:sourceYearId/:targetYearId", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	})
	group.GET("/candidates", h.Candidates)
	group.GET("/staged", h.Staged)
	group.GET("/stats", h.Stats)
	group.POST("/assignments", h.Assign)
	group.DELETE("/assignments/:studentId", h.Remove)
	group.POST("/undo", h.Undo)
	group.POST("/commit", h.Commit)
	group.DELETE("/staging", h.Discard)
	group.POST("/preview", h.Preview)
	return r, candidates
}

func TestPromotionHandlerAssign(t *testing.T) {
	svc := &placementServiceMock{assignResp: &dto.BulkAssignResult{
		AssignedCount: 1,
		Skipped:       []dto.SkippedStudent{{StudentID: "stu-2", Reason: models.PlacementClassFull}},
	}}
	r, _ := newPromotionRouter(svc, &previewServiceMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/promotions/2024/2025/assignments", bytes.NewBufferString(`{"student_ids":["stu-1","stu-2"],"class_id":"class-a"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SessionKey{SourceYearID: "2024", TargetYearID: "2025"}, svc.lastKey)
	assert.Equal(t, []string{"stu-1", "stu-2"}, svc.lastReq.StudentIDs)
	assert.Equal(t, "admin-1", svc.lastActor)

	var body struct {
		Data dto.BulkAssignResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Data.AssignedCount)
	assert.Equal(t, models.PlacementClassFull, body.Data.Skipped[0].Reason)
}

func TestPromotionHandlerAssignInvalidBody(t *testing.T) {
	svc := &placementServiceMock{}
	r, _ := newPromotionRouter(svc, &previewServiceMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/promotions/2024/2025/assignments", bytes.NewBufferString(`{"student_ids":`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.lastActor)
}

func TestPromotionHandlerLockedYear(t *testing.T) {
	svc := &placementServiceMock{assignErr: appErrors.Clone(appErrors.ErrLocked, "target school year is locked")}
	r, _ := newPromotionRouter(svc, &previewServiceMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/promotions/2024/2025/assignments", bytes.NewBufferString(`{"student_ids":["stu-1"],"class_id":"class-a"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusLocked, w.Code)
	assert.Contains(t, w.Body.String(), appErrors.ErrLocked.Code)
}

func TestPromotionHandlerCandidatesFilter(t *testing.T) {
	r, candidates := newPromotionRouter(&placementServiceMock{}, &previewServiceMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/promotions/2024/2025/candidates?gradeLevel=10&section=A", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.CandidateFilter{GradeLevel: "10", Section: "A"}, candidates.lastFilter)
	assert.Contains(t, w.Body.String(), `"total":1`)
}

func TestPromotionHandlerRemoveAndDiscard(t *testing.T) {
	svc := &placementServiceMock{}
	r, _ := newPromotionRouter(svc, &previewServiceMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/promotions/2024/2025/assignments/stu-1?classId=class-a", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]string{"stu-1", "class-a"}, svc.lastRemove)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/promotions/2024/2025/staging", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, svc.discarded)
}

func TestPromotionHandlerCommitUsesActor(t *testing.T) {
	svc := &placementServiceMock{commitResp: &dto.CommitResult{CreatedCount: 2, Failures: []dto.SkippedStudent{}}}
	r, _ := newPromotionRouter(svc, &previewServiceMock{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/promotions/2024/2025/commit", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", svc.lastActor)
	assert.Contains(t, w.Body.String(), `"created_count":2`)
}

func TestPromotionHandlerPreviewAndDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "promotion-preview.csv")
	require.NoError(t, os.WriteFile(path, []byte("student_id\nstu-1\n"), 0o644))
	r, _ := newPromotionRouter(&placementServiceMock{}, &previewServiceMock{path: path})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/promotions/2024/2025/preview", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/promotions/previews/tok", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "promotion-preview.csv")
	assert.Equal(t, "student_id\nstu-1\n", w.Body.String())
}

func TestPromotionHandlerDownloadForbidden(t *testing.T) {
	previews := &previewServiceMock{err: appErrors.Wrap(errors.New("bad signature"), appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired preview link")}
	r, _ := newPromotionRouter(&placementServiceMock{}, previews)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/promotions/previews/forged", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

type lockerMock struct {
	result *dto.OutcomeResult
	err    error
	lastID string
}

func (m *lockerMock) Lock(ctx context.Context, targetYearID, actorID string) (*dto.OutcomeResult, error) {
	m.lastID = targetYearID
	return m.result, m.err
}

func TestSchoolYearHandlerLock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	locker := &lockerMock{result: &dto.OutcomeResult{Success: false, Message: "1 staged placement(s) must be committed or removed before locking SY 2025"}}
	h := NewSchoolYearHandler(locker)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/school-years/2025/lock", nil)
	c.Params = gin.Params{{Key: "id", Value: "2025"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	h.Lock(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025", locker.lastID)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/ready", nil)
	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
