package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/response"
)

type scopeTokenIssuer interface {
	IssueScopeToken(ctx context.Context, tenantID string, req dto.IssueScopeTokenRequest) (*dto.ScopeTokenResponse, error)
}

type pinManager interface {
	Issue(ctx context.Context, tenantID, studentID string, req dto.IssuePinRequest) (*dto.PinResponse, error)
	Unlock(ctx context.Context, tenantID, studentID string) error
}

// CredentialHandler manages kiosk scope tokens and student PINs.
type CredentialHandler struct {
	tokens scopeTokenIssuer
	pins   pinManager
}

// NewCredentialHandler builds a credential handler.
func NewCredentialHandler(tokens scopeTokenIssuer, pins pinManager) *CredentialHandler {
	return &CredentialHandler{tokens: tokens, pins: pins}
}

// IssueScopeToken godoc
// @Summary Issue a kiosk scope token for a seat layout
// @Tags Credentials
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.IssueScopeTokenRequest true "Layout"
// @Success 201 {object} response.Envelope
// @Router /admin/scope-tokens [post]
func (h *CredentialHandler) IssueScopeToken(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.IssueScopeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scope token payload"))
		return
	}
	token, err := h.tokens.IssueScopeToken(c.Request.Context(), tenantID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, token)
}

// IssuePin godoc
// @Summary Issue or rotate a student's PIN
// @Description Returns the plaintext PIN once. An empty body draws a random PIN.
// @Tags Credentials
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param payload body dto.IssuePinRequest false "Optional PIN"
// @Success 201 {object} response.Envelope
// @Router /admin/students/{studentId}/pin [post]
func (h *CredentialHandler) IssuePin(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var req dto.IssuePinRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pin payload"))
			return
		}
	}
	pin, err := h.pins.Issue(c.Request.Context(), tenantID, c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, pin)
}

// UnlockPin godoc
// @Summary Clear a student's PIN lockout
// @Tags Credentials
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 204
// @Router /admin/students/{studentId}/pin/unlock [post]
func (h *CredentialHandler) UnlockPin(c *gin.Context) {
	tenantID, ok := tenantFromContext(c)
	if !ok {
		return
	}
	if err := h.pins.Unlock(c.Request.Context(), tenantID, c.Param("studentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
