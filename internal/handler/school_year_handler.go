package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-promotion-api/internal/dto"
	"github.com/noah-isme/sma-promotion-api/pkg/response"
)

type yearLocker interface {
	Lock(ctx context.Context, targetYearID, actorID string) (*dto.OutcomeResult, error)
}

// SchoolYearHandler exposes school year administration.
type SchoolYearHandler struct {
	locks yearLocker
}

// NewSchoolYearHandler builds the handler.
func NewSchoolYearHandler(locks yearLocker) *SchoolYearHandler {
	return &SchoolYearHandler{locks: locks}
}

// Lock godoc
// @Summary Lock a school year against further placements
// @Tags SchoolYears
// @Produce json
// @Param id path string true "School year ID"
// @Success 200 {object} response.Envelope
// @Router /school-years/{id}/lock [post]
func (h *SchoolYearHandler) Lock(c *gin.Context) {
	result, err := h.locks.Lock(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
