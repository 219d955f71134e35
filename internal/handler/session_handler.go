package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/middleware"
	"github.com/noah-isme/lti-assignments-api/pkg/response"
)

type sessionIssuer interface {
	Issue(ctx context.Context, launch dto.LaunchContext) (*dto.SessionToken, error)
}

// SessionHandler turns verified launches into session tokens.
type SessionHandler struct {
	sessions sessionIssuer
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(sessions sessionIssuer) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Launch godoc
// @Summary Issue a session token for a verified launch
// @Tags Sessions
// @Accept json
// @Produce json
// @Param X-Launch-Key header string true "Launch gateway key"
// @Param payload body dto.LaunchContext true "Launch context"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Launch(c *gin.Context) {
	var launch dto.LaunchContext
	if !bindJSON(c, &launch, "invalid launch payload") {
		return
	}
	token, err := h.sessions.Issue(c.Request.Context(), launch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, token)
}

// Current godoc
// @Summary Describe the caller's session
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sessions/me [get]
func (h *SessionHandler) Current(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	response.OK(c, session, middleware.ExtractMeta(c))
}
