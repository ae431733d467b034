package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-promotion-api/internal/dto"
	"github.com/noah-isme/sma-promotion-api/internal/models"
	appErrors "github.com/noah-isme/sma-promotion-api/pkg/errors"
	"github.com/noah-isme/sma-promotion-api/pkg/response"
)

type placementService interface {
	BulkAssign(ctx context.Context, key models.SessionKey, req dto.BulkAssignRequest, actorID string) (*dto.BulkAssignResult, error)
	RemoveStaged(ctx context.Context, key models.SessionKey, studentID, classID string) (*dto.RemoveStagedResult, error)
	UndoLast(ctx context.Context, key models.SessionKey) (*dto.OutcomeResult, error)
	Commit(ctx context.Context, key models.SessionKey, actorID string) (*dto.CommitResult, error)
	DiscardStaging(ctx context.Context, key models.SessionKey) error
	Stats(ctx context.Context, key models.SessionKey) (*dto.PromotionStats, error)
	ListStaged(ctx context.Context, key models.SessionKey) ([]dto.StagedItem, error)
	ClassLoads(ctx context.Context, key models.SessionKey) ([]dto.ClassLoad, error)
}

type candidateLister interface {
	ListCandidates(ctx context.Context, key models.SessionKey, filter dto.CandidateFilter) ([]models.CandidateStudent, error)
}

type previewService interface {
	Export(ctx context.Context, key models.SessionKey) (*dto.PreviewResult, error)
	OpenPreview(token string) (*os.File, string, error)
}

// PromotionHandler exposes the promotion workspace of a source/target school year pair.
type PromotionHandler struct {
	placements placementService
	candidates candidateLister
	previews   previewService
}

// NewPromotionHandler builds the handler.
func NewPromotionHandler(placements placementService, candidates candidateLister, previews previewService) *PromotionHandler {
	return &PromotionHandler{placements: placements, candidates: candidates, previews: previews}
}

func sessionKey(c *gin.Context) models.SessionKey {
	return models.SessionKey{
		SourceYearID: strings.TrimSpace(c.Param("sourceYearId")),
		TargetYearID: strings.TrimSpace(c.Param("targetYearId")),
	}
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

// Candidates godoc
// @Summary List students eligible for promotion
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Param gradeLevel query string false "Source grade level filter"
// @Param section query string false "Source section filter"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/candidates [get]
func (h *PromotionHandler) Candidates(c *gin.Context) {
	var filter dto.CandidateFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.WrapWith(appErrors.ErrValidation, err, "invalid candidate filter"))
		return
	}
	items, err := h.candidates.ListCandidates(c.Request.Context(), sessionKey(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}

// Staged godoc
// @Summary List staged placements
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/staged [get]
func (h *PromotionHandler) Staged(c *gin.Context) {
	items, err := h.placements.ListStaged(c.Request.Context(), sessionKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"total": len(items)})
}

// Classes godoc
// @Summary List target classes with committed and staged load
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/classes [get]
func (h *PromotionHandler) Classes(c *gin.Context) {
	items, err := h.placements.ClassLoads(c.Request.Context(), sessionKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Stats godoc
// @Summary Promotion progress
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/stats [get]
func (h *PromotionHandler) Stats(c *gin.Context) {
	stats, err := h.placements.Stats(c.Request.Context(), sessionKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, stats)
}

// Assign godoc
// @Summary Stage students into a target class
// @Tags Promotions
// @Accept json
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Param payload body dto.BulkAssignRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/assignments [post]
func (h *PromotionHandler) Assign(c *gin.Context) {
	var req dto.BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapWith(appErrors.ErrValidation, err, "invalid assignment payload"))
		return
	}
	result, err := h.placements.BulkAssign(c.Request.Context(), sessionKey(c), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Remove godoc
// @Summary Remove a staged placement
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Param studentId path string true "Student ID"
// @Param classId query string true "Class the student is staged to; other mappings are left alone"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/assignments/{studentId} [delete]
func (h *PromotionHandler) Remove(c *gin.Context) {
	result, err := h.placements.RemoveStaged(c.Request.Context(), sessionKey(c), c.Param("studentId"), c.Query("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Undo godoc
// @Summary Revert the latest staging change
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/undo [post]
func (h *PromotionHandler) Undo(c *gin.Context) {
	result, err := h.placements.UndoLast(c.Request.Context(), sessionKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Commit godoc
// @Summary Persist staged placements as enrollments
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Success 200 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/commit [post]
func (h *PromotionHandler) Commit(c *gin.Context) {
	result, err := h.placements.Commit(c.Request.Context(), sessionKey(c), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Discard godoc
// @Summary Abandon the staging workspace
// @Tags Promotions
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Success 204
// @Router /promotions/{sourceYearId}/{targetYearId}/staging [delete]
func (h *PromotionHandler) Discard(c *gin.Context) {
	if err := h.placements.DiscardStaging(c.Request.Context(), sessionKey(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Preview godoc
// @Summary Write a CSV preview of committed and staged placements
// @Tags Promotions
// @Produce json
// @Param sourceYearId path string true "Source school year ID"
// @Param targetYearId path string true "Target school year ID"
// @Success 201 {object} response.Envelope
// @Router /promotions/{sourceYearId}/{targetYearId}/preview [post]
func (h *PromotionHandler) Preview(c *gin.Context) {
	result, err := h.previews.Export(c.Request.Context(), sessionKey(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// DownloadPreview godoc
// @Summary Download a preview file by signed token
// @Tags Promotions
// @Produce text/csv
// @Param token path string true "Signed preview token"
// @Success 200 {file} file
// @Router /promotions/previews/{token} [get]
func (h *PromotionHandler) DownloadPreview(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, name, err := h.previews.OpenPreview(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.WrapWith(appErrors.ErrInternal, err, "failed to read preview"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), "text/csv", file, nil)
}
