package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/response"
)

// ScopeTokenHeader may carry the kiosk scope token instead of the body.
const ScopeTokenHeader = "X-Scope-Token"

type checkService interface {
	ApplyPinCheck(ctx context.Context, req dto.PinCheckRequest) (*dto.PinCheckResponse, error)
}

// CheckHandler serves the kiosk PIN endpoint.
type CheckHandler struct {
	service checkService
}

// NewCheckHandler builds a check handler.
func NewCheckHandler(service checkService) *CheckHandler {
	return &CheckHandler{service: service}
}

// PinCheck godoc
// @Summary Check a student in or out with a PIN
// @Description Resolves the kiosk scope, authenticates the PIN and moves the applicable session forward.
// @Tags Checks
// @Accept json
// @Produce json
// @Param X-Scope-Token header string false "Kiosk scope token"
// @Param payload body dto.PinCheckRequest true "PIN check payload"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /checks/pin [post]
func (h *CheckHandler) PinCheck(c *gin.Context) {
	var req dto.PinCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check payload"))
		return
	}
	if req.ScopeToken == "" {
		req.ScopeToken = c.GetHeader(ScopeTokenHeader)
	}
	if req.ScopeToken == "" {
		response.Error(c, appErrors.ErrInvalidScopeToken)
		return
	}

	result, err := h.service.ApplyPinCheck(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
