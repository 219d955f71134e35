package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/lti"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

// flakySink fails the first failures[returnID] pushes for a return id.
type flakySink struct {
	mu       sync.Mutex
	failures map[string]int
	received []lti.Outcome
}

func (s *flakySink) Publish(ctx context.Context, outcome lti.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[outcome.ReturnID] > 0 {
		s.failures[outcome.ReturnID]--
		return errors.New("platform unavailable")
	}
	s.received = append(s.received, outcome)
	return nil
}

func (s *flakySink) outcomes() []lti.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lti.Outcome(nil), s.received...)
}

type publishFixture struct {
	*lifecycleFixture
	sink        *flakySink
	service     *PublishService
	assignment  *models.Assignment
	submissions []*models.Submission
}

func newPublishFixture(t *testing.T, failures map[string]int) *publishFixture {
	t.Helper()
	f := newLifecycleFixture(t)
	outcomeURL := "https://lms.example.com/outcomes"
	assignment := f.addAssignment(models.Assignment{
		Kind:       models.AssignmentKindTaskSubmission,
		Size:       models.CountSize(1),
		Status:     models.AssignmentStatusFinished,
		Points:     floatPtr(10),
		OutcomeURL: &outcomeURL,
	})
	p := &publishFixture{lifecycleFixture: f, sink: &flakySink{failures: failures}, assignment: assignment}
	for i, user := range []string{"u1", "u2"} {
		score := float64(4 + i)
		p.submissions = append(p.submissions, f.addSubmission(models.Submission{
			AssignmentID: assignment.ID,
			UserID:       user,
			Status:       models.SubmissionStatusEvaluated,
			ReturnID:     "ret-" + user,
			Score:        &score,
			LMSScore:     &score,
		}))
	}
	p.service = NewPublishService(f.store.Consumers(), f.store.Assignments(), f.store.Submissions(), p.sink,
		PublishSettings{Timeout: time.Second, Retries: 3, RetryDelay: 10 * time.Millisecond}, nil, nil, f.options()...)
	return p
}

func (p *publishFixture) request() dto.PublishSubmissionsRequest {
	ids := make([]string, 0, len(p.submissions))
	for _, s := range p.submissions {
		ids = append(ids, s.ID)
	}
	return dto.PublishSubmissionsRequest{AssignmentID: p.assignment.ID, Submissions: ids}
}

func TestPublishServicePublishesAllScores(t *testing.T) {
	p := newPublishFixture(t, nil)

	result, err := p.service.Publish(context.Background(), instructorSession(), p.request())
	require.NoError(t, err)
	assert.Len(t, result.Published, 2)
	assert.Empty(t, result.Failed)

	for _, s := range p.submissions {
		stored := p.store.submission(s.ID)
		assert.Equal(t, models.SubmissionStatusEvaluatedPublished, stored.Status)
		require.NotNil(t, stored.PublishedBy)
		assert.Equal(t, "instructor-1", *stored.PublishedBy)
	}
	assert.Equal(t, models.AssignmentStatusPublishedNoSolution, p.store.assignment(p.assignment.ID).Status)

	outcomes := p.sink.outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, "ret-u1", outcomes[0].ReturnID)
	assert.InDelta(t, 4, outcomes[0].Score, 0.0001)
	assert.InDelta(t, 10, outcomes[0].Maximum, 0.0001)
	assert.Equal(t, "https://lms.example.com/outcomes", outcomes[0].OutcomeURL)
	assert.Equal(t, testConsumer, outcomes[0].Consumer.ID)
	assert.Contains(t, p.notifier.types(), events.TypeSubmissionPublished)
}

func TestPublishServiceReportsPartialFailure(t *testing.T) {
	p := newPublishFixture(t, map[string]int{"ret-u2": 100})

	result, err := p.service.Publish(context.Background(), instructorSession(), p.request())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErrors.Kind(err))
	assert.True(t, appErrors.Retryable(err))
	require.NotNil(t, result)
	assert.Equal(t, []string{p.submissions[0].ID}, result.Published)
	assert.Equal(t, []string{p.submissions[1].ID}, result.Failed)

	assert.Equal(t, models.SubmissionStatusEvaluatedPublished, p.store.submission(p.submissions[0].ID).Status)
	assert.Equal(t, models.SubmissionStatusEvaluated, p.store.submission(p.submissions[1].ID).Status)
	assert.Equal(t, models.AssignmentStatusFinished, p.store.assignment(p.assignment.ID).Status)
}

func TestPublishServiceRetriesFailedPushes(t *testing.T) {
	p := newPublishFixture(t, map[string]int{"ret-u2": 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.service.Start(ctx)
	defer p.service.Stop()

	result, err := p.service.Publish(ctx, instructorSession(), p.request())
	require.Error(t, err)
	assert.Len(t, result.Failed, 1)

	require.Eventually(t, func() bool {
		return p.store.submission(p.submissions[1].ID).Status == models.SubmissionStatusEvaluatedPublished
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return p.store.assignment(p.assignment.ID).Status == models.AssignmentStatusPublishedNoSolution
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, p.sink.outcomes(), 2)
}

func TestPublishServiceRequiresEvaluatedSubmissions(t *testing.T) {
	p := newPublishFixture(t, nil)
	p.store.mu.Lock()
	p.store.submissions[p.submissions[1].ID].Status = models.SubmissionStatusPending
	p.store.mu.Unlock()

	_, err := p.service.Publish(context.Background(), instructorSession(), p.request())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.Kind(err))
	assert.Empty(t, p.sink.outcomes())
	assert.Equal(t, models.SubmissionStatusEvaluated, p.store.submission(p.submissions[0].ID).Status)
}

func TestPublishServiceGuards(t *testing.T) {
	p := newPublishFixture(t, nil)

	_, err := p.service.Publish(context.Background(), learnerSession("u1"), p.request())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.Kind(err))

	_, err = p.service.Publish(context.Background(), instructorSession(), dto.PublishSubmissionsRequest{AssignmentID: p.assignment.ID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.Kind(err))

	p.store.mu.Lock()
	p.store.assignments[p.assignment.ID].OutcomeURL = nil
	p.store.mu.Unlock()
	_, err = p.service.Publish(context.Background(), instructorSession(), p.request())
	require.Error(t, err)
	assert.Equal(t, "Assignment has no outcome service", appErrors.FromError(err).Message)

	p.store.mu.Lock()
	p.store.consumers[testConsumer].Status = models.ConsumerStatusInactive
	p.store.mu.Unlock()
	_, err = p.service.Publish(context.Background(), instructorSession(), p.request())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.Kind(err))
	assert.Empty(t, p.sink.outcomes())
}
