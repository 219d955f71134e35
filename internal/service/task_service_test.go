package service

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

func choicePayload(assignmentID int64, options ...string) dto.TaskPayload {
	return dto.TaskPayload{
		AssignmentID:  assignmentID,
		Type:          models.TaskTypeMultipleChoice,
		Title:         "Capital of France",
		Options:       options,
		IndexSolution: 1,
	}
}

// submitTasks has learner u1 fill every slot of the assignment.
func submitTasks(t *testing.T, f *lifecycleFixture, assignment *models.Assignment, n int) []*models.Task {
	t.Helper()
	tasks := make([]*models.Task, 0, n)
	for i := 0; i < n; i++ {
		task, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), choicePayload(assignment.ID, "Berlin", "Paris", "Rome"))
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	return tasks
}

func TestTaskServiceEvaluationAggregatesSubmissionScore(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(3), Status: models.AssignmentStatusStarted, Points: floatPtr(20)})

	tasks := submitTasks(t, f, assignment, 3)
	submissionID := tasks[0].SubmissionID
	assert.Equal(t, models.SubmissionStatusPending, f.store.submission(submissionID).Status)

	_, err := f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(8)})
	require.Error(t, err)
	assert.Equal(t, "Assignment is not finished", appErrors.FromError(err).Message)

	f.store.setAssignmentStatus(assignment.ID, models.AssignmentStatusFinished)
	for i, score := range []float64{8, 9, 10} {
		evaluated, err := f.tasks.Evaluate(context.Background(), instructorSession(), tasks[i].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(score)})
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusEvaluated, evaluated.Status)
		if i < 2 {
			assert.Equal(t, models.SubmissionStatusPending, f.store.submission(submissionID).Status)
		}
	}

	submission := f.store.submission(submissionID)
	assert.Equal(t, models.SubmissionStatusEvaluated, submission.Status)
	require.NotNil(t, submission.Score)
	assert.InDelta(t, 27, *submission.Score, 0.0001)
	require.NotNil(t, submission.LMSScore)
	assert.InDelta(t, 18, *submission.LMSScore, 0.0001)
	assert.Contains(t, f.notifier.types(), events.TypeSubmissionEvaluated)

	// Re-evaluating an EVALUATED submission recomputes the score.
	_, err = f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(10)})
	require.NoError(t, err)
	assert.InDelta(t, 29, *f.store.submission(submissionID).Score, 0.0001)
}

func TestTaskServiceRejectsTasksBeyondSize(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusStarted})
	submitTasks(t, f, assignment, 1)

	_, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), choicePayload(assignment.ID, "a", "b"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.Kind(err))
}

func TestTaskServiceInstructorTasksAreIncluded(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1)})

	for i := 0; i < 2; i++ {
		task, err := f.tasks.CreateOrReplace(context.Background(), instructorSession(), choicePayload(assignment.ID, "a", "b"))
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusEvaluatedInclude, task.Status)
		require.NotNil(t, task.EvaluatedBy)
		assert.Equal(t, "instructor-1", *task.EvaluatedBy)
	}
}

func TestTaskServiceRejectsDuplicateOptions(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusStarted})

	_, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), choicePayload(assignment.ID, "Paris", " Paris "))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIntegrity.Code, appErrors.Kind(err))
	assert.Equal(t, "Each task option must be unique", appErrors.FromError(err).Message)
}

func TestTaskServiceShufflesOptionIDs(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusStarted})

	task, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), choicePayload(assignment.ID, "Berlin", "Paris", "Rome"))
	require.NoError(t, err)
	require.Len(t, task.Options.Choices, 3)
	ids := make([]int, 0, 3)
	for _, choice := range task.Options.Choices {
		ids = append(ids, choice.ID)
	}
	sort.Ints(ids)
	assert.Equal(t, []int{1, 2, 3}, ids)
	require.NotNil(t, task.Solution.Choice)
	assert.Equal(t, task.Options.Choices[1].ID, *task.Solution.Choice)
	assert.Equal(t, "Paris", task.Options.Choices[1].Option)
}

func TestTaskServiceNameImageRequiresGlossaryTerm(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{
		Kind:     models.AssignmentKindTaskSubmission,
		Size:     models.CountSize(2),
		Status:   models.AssignmentStatusStarted,
		Glossary: []string{"cat", "owl"},
	})
	payload := dto.TaskPayload{AssignmentID: assignment.ID, Type: models.TaskTypeNameImage, Title: "Name it", MediaIDs: []string{"media-1"}, Solution: "dog"}

	_, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), payload)
	require.Error(t, err)
	assert.Equal(t, "The solution must be a glossary term", appErrors.FromError(err).Message)

	payload.Solution = "owl"
	task, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"media-1"}, task.Options.Images)
	assert.Equal(t, models.NameAnswer("owl"), task.Solution)
	assert.Nil(t, task.MediaID)
}

func TestTaskServiceReplacesPendingTask(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusStarted})
	tasks := submitTasks(t, f, assignment, 1)

	payload := choicePayload(assignment.ID, "Lyon", "Paris")
	payload.TaskID = &tasks[0].ID
	payload.Replace = true
	replaced, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), payload)
	require.NoError(t, err)
	assert.Equal(t, tasks[0].ID, replaced.ID)

	stored, err := f.store.Tasks().GetByID(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	assert.Len(t, stored.Options.Choices, 2)
	assert.Equal(t, models.SubmissionStatusStarted, f.store.submission(tasks[0].SubmissionID).Status)

	payload.TaskID = int64Ptr(9999)
	_, err = f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.Kind(err))
}

func TestTaskServicePublishedScoreIsFrozen(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusStarted, Points: floatPtr(10)})
	tasks := submitTasks(t, f, assignment, 1)
	submissionID := tasks[0].SubmissionID
	f.store.setAssignmentStatus(assignment.ID, models.AssignmentStatusFinished)

	_, err := f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(7)})
	require.NoError(t, err)
	require.NoError(t, f.store.Submissions().MarkPublished(context.Background(), submissionID, "instructor-1", f.now))

	same, err := f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(7)})
	require.NoError(t, err)
	assert.InDelta(t, 7, *same.Score, 0.0001)

	_, err = f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(9)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.Kind(err))
	assert.Equal(t, models.SubmissionStatusEvaluatedPublished, f.store.submission(submissionID).Status)
}

func TestTaskServiceUnscoredTaskStaysUnscoredAfterPublish(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusStarted, Points: floatPtr(10)})
	tasks := submitTasks(t, f, assignment, 1)
	submissionID := tasks[0].SubmissionID
	f.store.setAssignmentStatus(assignment.ID, models.AssignmentStatusFinished)

	evaluated, err := f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID})
	require.NoError(t, err)
	assert.Nil(t, evaluated.Score)
	stored, err := f.store.Tasks().GetByID(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Score)
	assert.Equal(t, models.SubmissionStatusEvaluated, f.store.submission(submissionID).Status)
	require.NoError(t, f.store.Submissions().MarkPublished(context.Background(), submissionID, "instructor-1", f.now))

	again, err := f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID})
	require.NoError(t, err)
	assert.Nil(t, again.Score)

	_, err = f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(0)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.Kind(err))
}

func TestTaskServiceEvaluateGuards(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusStarted})
	tasks := submitTasks(t, f, assignment, 1)
	submissionID := tasks[0].SubmissionID
	f.store.setAssignmentStatus(assignment.ID, models.AssignmentStatusFinished)

	_, err := f.tasks.Evaluate(context.Background(), learnerSession("u1"), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(5)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.Kind(err))

	_, err = f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(11)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.Kind(err))

	_, err = f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: "other", Score: floatPtr(5)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.Kind(err))
}

func TestTaskServiceEvaluateLinksGroupOfSameAssignment(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusStarted})
	other := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	tasks := submitTasks(t, f, assignment, 2)
	f.store.setAssignmentStatus(assignment.ID, models.AssignmentStatusFinished)

	group, err := f.tasks.CreateGroup(context.Background(), instructorSession(), dto.CreateTaskGroupRequest{AssignmentID: assignment.ID, Name: "Verbs<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.Equal(t, "Verbs", group.Name)
	foreign, err := f.tasks.CreateGroup(context.Background(), instructorSession(), dto.CreateTaskGroupRequest{AssignmentID: other.ID, Name: "Nouns"})
	require.NoError(t, err)

	evaluated, err := f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{
		SubmissionID: tasks[0].SubmissionID, Score: floatPtr(5), Include: true, GroupID: &group.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusEvaluatedInclude, evaluated.Status)
	require.NotNil(t, evaluated.GroupID)
	assert.Equal(t, group.ID, *evaluated.GroupID)

	evaluated, err = f.tasks.Evaluate(context.Background(), instructorSession(), tasks[1].ID, dto.EvaluateTaskRequest{
		SubmissionID: tasks[1].SubmissionID, Score: floatPtr(5), GroupID: &foreign.ID,
	})
	require.NoError(t, err)
	assert.Nil(t, evaluated.GroupID)

	groups, err := f.tasks.ListGroups(context.Background(), instructorSession(), assignment.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	info, err := f.tasks.GroupInfo(context.Background(), instructorSession(), dto.TaskGroupInfoRequest{Groups: []int64{group.ID, foreign.ID, 404}})
	require.NoError(t, err)
	assert.Len(t, info, 2)

	included, err := f.tasks.GetIncluded(context.Background(), instructorSession(), dto.IncludedTasksRequest{Assignments: []int64{assignment.ID}})
	require.NoError(t, err)
	require.Len(t, included, 1)
	assert.Equal(t, tasks[0].ID, included[0].ID)
}

func TestTaskServiceEditOverlay(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusStarted})
	tasks := submitTasks(t, f, assignment, 1)

	payload := choicePayload(assignment.ID, "Madrid", "Paris")
	payload.TaskID = &tasks[0].ID
	_, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.Kind(err))

	edited, err := f.tasks.CreateOrReplace(context.Background(), instructorSession(), payload)
	require.NoError(t, err)
	require.NotNil(t, edited.Edit)
	assert.Equal(t, "instructor-1", edited.Edit.EditedBy)
	assert.Equal(t, 1, f.pool.invalidated)

	stored, err := f.store.Tasks().GetByID(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	assert.Len(t, stored.Options.Choices, 3)
	assert.Len(t, stored.Effective().Options.Choices, 2)

	payload.Type = models.TaskTypeNameImage
	payload.MediaIDs = []string{"m"}
	payload.Solution = "x"
	_, err = f.tasks.Edit(context.Background(), instructorSession(), tasks[0].ID, payload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.Kind(err))

	require.NoError(t, f.tasks.DeleteEdit(context.Background(), instructorSession(), tasks[0].ID))
	stored, err = f.store.Tasks().GetByID(context.Background(), tasks[0].ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Edit)
	assert.Equal(t, 2, f.pool.invalidated)
}

func TestTaskServiceLearnerViewHidesEvaluation(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusStarted})
	tasks := submitTasks(t, f, assignment, 1)
	combine := dto.TaskPayload{
		AssignmentID: assignment.ID,
		Type:         models.TaskTypeCombineTerms,
		Title:        "Match",
		Pairs: []dto.TermPairInput{
			{Term: dto.TermInput{Type: models.TermTypeText, Term: "dog"}, RelatedTerm: dto.TermInput{Type: models.TermTypeText, Term: "Hund"}},
			{Term: dto.TermInput{Type: models.TermTypeText, Term: "cat"}, RelatedTerm: dto.TermInput{Type: models.TermTypeText, Term: "Katze"}},
		},
	}
	_, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), combine)
	require.NoError(t, err)
	submissionID := tasks[0].SubmissionID

	f.store.setAssignmentStatus(assignment.ID, models.AssignmentStatusFinished)
	_, err = f.tasks.Evaluate(context.Background(), instructorSession(), tasks[0].ID, dto.EvaluateTaskRequest{SubmissionID: submissionID, Score: floatPtr(6)})
	require.NoError(t, err)

	own, err := f.tasks.GetSubmitted(context.Background(), learnerSession("u1"), submissionID)
	require.NoError(t, err)
	require.Len(t, own, 2)
	assert.Nil(t, own[0].Score)
	assert.Nil(t, own[0].EvaluatedBy)
	require.Len(t, own[1].Options.Columns, 2)
	assert.Equal(t, "dog", own[1].Options.Columns[0][0].Term)
	assert.Equal(t, "Hund", own[1].Options.Columns[1][0].Term)
	assert.Nil(t, own[1].Options.Terms)

	full, err := f.tasks.GetSubmitted(context.Background(), instructorSession(), submissionID)
	require.NoError(t, err)
	require.NotNil(t, full[0].Score)
	assert.InDelta(t, 6, *full[0].Score, 0.0001)

	_, err = f.tasks.GetSubmitted(context.Background(), learnerSession("u2"), submissionID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.Kind(err))
}

func TestTaskServiceSolutionsFollowPublication(t *testing.T) {
	f := newLifecycleFixture(t)
	assignment := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(2), Status: models.AssignmentStatusStarted})
	tasks := submitTasks(t, f, assignment, 1)
	submissionID := tasks[0].SubmissionID

	_, err := f.tasks.GetTaskSolutions(context.Background(), learnerSession("u1"), submissionID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.Kind(err))

	f.store.setAssignmentStatus(assignment.ID, models.AssignmentStatusPublishedWithSolution)
	solutions, err := f.tasks.GetTaskSolutions(context.Background(), learnerSession("u1"), submissionID)
	require.NoError(t, err)
	require.Len(t, solutions, 1)
	assert.Equal(t, tasks[0].ID, solutions[0].TaskID)
	assert.Equal(t, tasks[0].Solution, solutions[0].Solution)
}

func TestTaskServiceRejectsQuizAssignments(t *testing.T) {
	f := newLifecycleFixture(t)
	source := f.addAssignment(models.Assignment{Kind: models.AssignmentKindTaskSubmission, Size: models.CountSize(1), Status: models.AssignmentStatusFinished})
	quiz := f.addAssignment(models.Assignment{Kind: models.AssignmentKindQuizDefinite, Size: models.CountSize(1), Status: models.AssignmentStatusStarted})
	f.authoredPoolTask(source, quiz, "author", 1, 100)

	_, err := f.tasks.CreateOrReplace(context.Background(), learnerSession("u1"), choicePayload(quiz.ID, "a", "b"))
	require.Error(t, err)
	assert.Equal(t, "Assignment does not accept tasks", appErrors.FromError(err).Message)
}
