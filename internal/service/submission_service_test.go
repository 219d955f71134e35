package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

func TestSubmissionServiceAvoidsSelfAuthoredTasks(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{Kind: models.AssignmentKindQuizRandom, Size: models.TierSize(1, 0, 0), Status: models.AssignmentStatusStarted, Points: floatPtr(10)})
	ownedByU1 := f.authoredPoolTask(source, quiz, "u1", 1, 100)
	ownedByU2 := f.authoredPoolTask(source, quiz, "u2", 1, 100)

	view, err := f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), quiz.ID, true)
	require.NoError(t, err)
	require.Len(t, view.Tasks, 1)
	assert.Equal(t, ownedByU2.ID, view.Tasks[0].Task.ID)
	assert.Equal(t, models.SubmissionStatusStarted, view.Status)
	assert.Equal(t, "ret-u1", view.ReturnID)

	view, err = f.submissions.OpenForLearner(context.Background(), learnerSession("u2"), quiz.ID, true)
	require.NoError(t, err)
	require.Len(t, view.Tasks, 1)
	assert.Equal(t, ownedByU1.ID, view.Tasks[0].Task.ID)
}

func TestSubmissionServiceFallsBackToOwnTasks(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{Kind: models.AssignmentKindQuizRandom, Size: models.TierSize(2, 0, 0), Status: models.AssignmentStatusStarted})
	f.authoredPoolTask(source, quiz, "u1", 1, 50)
	f.authoredPoolTask(source, quiz, "u2", 1, 50)

	view, err := f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), quiz.ID, true)
	require.NoError(t, err)
	assert.Len(t, view.Tasks, 2)
}

func TestSubmissionServiceOpenIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{Kind: models.AssignmentKindQuizDefinite, Size: models.CountSize(1), Status: models.AssignmentStatusStarted})
	f.authoredPoolTask(source, quiz, "author", 1, 100)

	first, err := f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), quiz.ID, true)
	require.NoError(t, err)
	second, err := f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), quiz.ID, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Tasks, second.Tasks)
}

func TestSubmissionServiceOpenGuards(t *testing.T) {
	f := newLifecycleFixture(t)
	created := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2)})

	_, err := f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), created.ID, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.Kind(err))

	_, err = f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), created.ID, true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.Kind(err))

	_, err = f.submissions.OpenForLearner(context.Background(), models.Session{ConsumerID: testConsumer, CourseID: "other", UserID: "u1", Role: models.RoleLearner}, created.ID, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.Kind(err))
}

func TestSubmissionServiceInstructorPreview(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2)})

	attempt, err := f.submissions.Open(context.Background(), instructorSession(), assignment.ID, OpenOptions{Create: true})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusEvaluatedPublished, attempt.Submission.Status)
	assert.Equal(t, "0", attempt.Submission.ReturnID)
}

func TestSubmissionServiceTimerExpires(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{
		Kind:     models.AssignmentKindQuizDefinite,
		Size:     models.CountSize(1),
		Status:   models.AssignmentStatusStarted,
		Timer:    &models.Timer{Minutes: 30},
		Deadline: f.now.Add(2 * time.Hour),
	})
	f.authoredPoolTask(source, quiz, "author", 1, 100)

	view, err := f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), quiz.ID, true)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(30*time.Minute), view.Deadline)

	f.advance(31 * time.Minute)
	_, err = f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), quiz.ID, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExpired.Code, appErrors.Kind(err))
	assert.Equal(t, "Timer is expired", appErrors.FromError(err).Message)

	_, err = f.submissions.Submit(context.Background(), learnerSession("u1"), view.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrExpired.Code, appErrors.Kind(err))
}

func TestSubmissionServiceExtensionLengthensTimer(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{
		Kind:     models.AssignmentKindQuizDefinite,
		Size:     models.CountSize(1),
		Status:   models.AssignmentStatusStarted,
		Timer:    &models.Timer{Minutes: 30},
		Deadline: f.now.Add(2 * time.Hour),
	})
	f.authoredPoolTask(source, quiz, "author", 1, 100)
	session := learnerSession("u1")
	session.ExtensionMinutes = 15

	_, err := f.submissions.OpenForLearner(context.Background(), session, quiz.ID, true)
	require.NoError(t, err)
	f.advance(40 * time.Minute)
	view, err := f.submissions.OpenForLearner(context.Background(), session, quiz.ID, false)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(5*time.Minute), view.Deadline)
}

func TestSubmissionServiceSaveAndSubmitGradesQuiz(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{Kind: models.AssignmentKindQuizDefinite, Size: models.CountSize(2), Status: models.AssignmentStatusStarted, Points: floatPtr(20)})
	easy := f.authoredPoolTask(source, quiz, "author", 1, 60)
	hard := f.authoredPoolTask(source, quiz, "author", 2, 40)
	session := learnerSession("u1")

	view, err := f.submissions.OpenForLearner(context.Background(), session, quiz.ID, true)
	require.NoError(t, err)
	require.Len(t, view.Tasks, 2)

	saved, err := f.submissions.SaveAnswers(context.Background(), session, view.ID, dto.SaveAnswersRequest{Answers: []models.QuizAnswer{
		{TaskID: easy.ID, Answer: models.ChoiceAnswer(2)},
		{TaskID: hard.ID, Answer: models.ChoiceAnswer(1)},
	}})
	require.NoError(t, err)
	assert.True(t, saved.Tasks[0].Answer.IsSet())

	f.advance(5 * time.Minute)
	submitted, err := f.submissions.Submit(context.Background(), session, view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusEvaluated, submitted.Status)
	require.NotNil(t, submitted.Score)
	assert.InDelta(t, 60, *submitted.Score, 0.0001)
	require.NotNil(t, submitted.LMSScore)
	assert.InDelta(t, 12, *submitted.LMSScore, 0.0001)
	require.NotNil(t, submitted.SubmittedAt)
	assert.Equal(t, f.now, *submitted.SubmittedAt)

	stored := f.store.submission(view.ID)
	assert.Equal(t, models.SubmissionStatusEvaluated, stored.Status)
	require.NotNil(t, stored.Tasks[0].Score)
	assert.InDelta(t, 60, *stored.Tasks[0].Score, 0.0001)
	require.NotNil(t, stored.Tasks[1].Score)
	assert.Zero(t, *stored.Tasks[1].Score)
	assert.Contains(t, f.notifier.types(), events.TypeSubmissionEvaluated)

	_, err = f.submissions.Submit(context.Background(), session, view.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.Kind(err))
}

func TestSubmissionServiceRejectsForeignAnswers(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{Kind: models.AssignmentKindQuizDefinite, Size: models.CountSize(1), Status: models.AssignmentStatusStarted})
	f.authoredPoolTask(source, quiz, "author", 1, 100)
	session := learnerSession("u1")

	view, err := f.submissions.OpenForLearner(context.Background(), session, quiz.ID, true)
	require.NoError(t, err)

	_, err = f.submissions.SaveAnswers(context.Background(), session, view.ID, dto.SaveAnswersRequest{Answers: []models.QuizAnswer{
		{TaskID: 9999, Answer: models.ChoiceAnswer(1)},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIntegrity.Code, appErrors.Kind(err))

	_, err = f.submissions.SaveAnswers(context.Background(), learnerSession("u2"), view.ID, dto.SaveAnswersRequest{Answers: []models.QuizAnswer{
		{TaskID: view.Tasks[0].Task.ID, Answer: models.ChoiceAnswer(1)},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.Kind(err))
}

func TestSubmissionServiceQuizReviewShowsSolutions(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{Kind: models.AssignmentKindQuizDefinite, Size: models.CountSize(1), Status: models.AssignmentStatusStarted})
	f.authoredPoolTask(source, quiz, "author", 1, 100)

	view, err := f.submissions.OpenForLearner(context.Background(), learnerSession("u1"), quiz.ID, true)
	require.NoError(t, err)

	reviews, err := f.submissions.GetQuizTasks(context.Background(), instructorSession(), view.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, models.ChoiceAnswer(2), reviews[0].Solution)
}

func TestSubmissionServiceListPendingClosesStartedTaskSubmissions(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusFinished})
	started := f.addSubmission(models.Submission{AssignmentID: assignment.ID, UserID: "u1", Status: models.SubmissionStatusStarted})
	f.addSubmission(models.Submission{AssignmentID: assignment.ID, UserID: "u2", Status: models.SubmissionStatusEvaluatedPublished})

	pending, err := f.submissions.ListPending(context.Background(), instructorSession(), assignment.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, started.ID, pending[0].ID)
	assert.Equal(t, models.SubmissionStatusPending, pending[0].Status)

	published, err := f.submissions.ListPublished(context.Background(), instructorSession(), assignment.ID)
	require.NoError(t, err)
	assert.Len(t, published, 1)
}
