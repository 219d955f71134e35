package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
	"github.com/noah-isme/lti-assignments-api/pkg/config"
)

var testRoles = config.RolesConfig{Instructor: "Instructor", Learner: "Learner", TeachingAssistant: "TeachingAssistant"}

func newSessionServiceForTest(f *lifecycleFixture, secret string) *SessionService {
	svc := NewSessionService(f.store.Consumers(), NewRoleResolver(testRoles), nil, nil, SessionConfig{Secret: secret, TTL: time.Hour})
	svc.now = func() time.Time { return f.now }
	return svc
}

func launch(roles string) dto.LaunchContext {
	return dto.LaunchContext{ConsumerID: testConsumer, CourseID: testCourse, UserID: "u1", Roles: roles, ExtensionMinutes: 10, ReturnID: "sourcedid-1"}
}

func TestSessionServiceRoundTrip(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := newSessionServiceForTest(f, "s3cret")

	token, err := svc.Issue(context.Background(), launch("Learner"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleLearner, token.Role)
	assert.Equal(t, f.now.Add(time.Hour), token.ExpiresAt)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, models.Session{
		ConsumerID:       testConsumer,
		CourseID:         testCourse,
		UserID:           "u1",
		Role:             models.RoleLearner,
		ExtensionMinutes: 10,
		ReturnID:         "sourcedid-1",
	}, claims.Session)
}

func TestSessionServiceTeachingAssistantActsAsInstructor(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := newSessionServiceForTest(f, "s3cret")

	token, err := svc.Issue(context.Background(), launch("urn:lti:role:ims/lis/Learner,urn:lti:role:ims/lis/TeachingAssistant"))
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, token.Role)
}

func TestSessionServiceRejectsUnknownLaunches(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := newSessionServiceForTest(f, "s3cret")

	_, err := svc.Issue(context.Background(), launch("Observer"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.Kind(err))

	unknown := launch("Learner")
	unknown.ConsumerID = "ghost"
	_, err = svc.Issue(context.Background(), unknown)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.Kind(err))

	f.store.consumers[testConsumer].Status = models.ConsumerStatusInactive
	_, err = svc.Issue(context.Background(), launch("Learner"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.Kind(err))

	_, err = svc.Issue(context.Background(), dto.LaunchContext{ConsumerID: testConsumer})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.Kind(err))
}

func TestSessionServiceRejectsForgedAndExpiredTokens(t *testing.T) {
	f := newLifecycleFixture(t)
	svc := newSessionServiceForTest(f, "s3cret")
	token, err := svc.Issue(context.Background(), launch("Instructor"))
	require.NoError(t, err)

	forger := newSessionServiceForTest(f, "other")
	_, err = forger.ValidateToken(token.Token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.Kind(err))

	f.advance(2 * time.Hour)
	_, err = svc.ValidateToken(token.Token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.Kind(err))
}
