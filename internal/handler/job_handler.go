package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/response"
)

type jobRunner interface {
	Run(ctx context.Context, job string, req dto.RunJobRequest) (*dto.JobRunResponse, error)
}

// JobHandler triggers the time-driven jobs on demand.
type JobHandler struct {
	runner jobRunner
}

// NewJobHandler builds a job handler.
func NewJobHandler(runner jobRunner) *JobHandler {
	return &JobHandler{runner: runner}
}

// Run godoc
// @Summary Run generation, start sweep or finalize now
// @Description Runs across all tenants under the same lock the scheduler uses.
// @Tags Jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param job path string true "generation | start_sweep | finalize"
// @Param payload body dto.RunJobRequest false "Optional date or instant"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/jobs/{job}/run [post]
func (h *JobHandler) Run(c *gin.Context) {
	var req dto.RunJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid job payload"))
			return
		}
	}
	result, err := h.runner.Run(c.Request.Context(), c.Param("job"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
