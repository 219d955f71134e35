package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

func TestSessionHandlerLaunch(t *testing.T) {
	issuer := &sessionIssuerMock{token: &dto.SessionToken{Token: "signed", ExpiresAt: time.Now().Add(time.Hour), Role: models.RoleLearner}}
	handler := NewSessionHandler(issuer)

	payload := []byte(`{"consumerId":"consumer-1","courseId":"course-1","userId":"u1","roles":"Learner","extensionMinutes":15,"returnId":"ret-u1"}`)
	c, w := newGinContext(http.MethodPost, "/sessions", payload)
	handler.Launch(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"token":"signed"`)
	assert.Equal(t, dto.LaunchContext{
		ConsumerID:       "consumer-1",
		CourseID:         "course-1",
		UserID:           "u1",
		Roles:            "Learner",
		ExtensionMinutes: 15,
		ReturnID:         "ret-u1",
	}, issuer.got)
}

func TestSessionHandlerLaunchForbiddenRole(t *testing.T) {
	handler := NewSessionHandler(&sessionIssuerMock{err: appErrors.Clone(appErrors.ErrForbidden, "Launch role is not supported")})

	c, w := newGinContext(http.MethodPost, "/sessions", []byte(`{"consumerId":"consumer-1","roles":"Observer"}`))
	handler.Launch(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestSessionHandlerCurrent(t *testing.T) {
	handler := NewSessionHandler(&sessionIssuerMock{})

	c, w := newGinContext(http.MethodGet, "/sessions/me", nil)
	withSession(c, learner)
	handler.Current(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u1"`)
	assert.Contains(t, w.Body.String(), `"role":"learner"`)
}
