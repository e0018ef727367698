package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/rinkdesk/ice-booking-api/internal/dto"
	"github.com/rinkdesk/ice-booking-api/pkg/response"
)

type conflictChecker interface {
	CheckConflicts(ctx context.Context, in dto.ConflictCheckRequest) (*dto.ConflictCheckResponse, error)
}

// ConflictHandler answers advisory availability checks.
type ConflictHandler struct {
	checker conflictChecker
}

// NewConflictHandler builds a new handler.
func NewConflictHandler(checker conflictChecker) *ConflictHandler {
	return &ConflictHandler{checker: checker}
}

// Check godoc
// @Summary Check a schedule against current occupancy
// @Description Advisory only. Submission re-checks under the day locks.
// @Tags Conflicts
// @Accept json
// @Produce json
// @Param payload body dto.ConflictCheckRequest true "Candidate schedule"
// @Success 200 {object} response.Envelope
// @Router /check_conflicts [post]
func (h *ConflictHandler) Check(c *gin.Context) {
	var req dto.ConflictCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "conflict check"))
		return
	}
	result, err := h.checker.CheckConflicts(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
