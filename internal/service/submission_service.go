package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/repository"
	"github.com/noah-isme/lti-assignments-api/internal/sampler"
	"github.com/noah-isme/lti-assignments-api/internal/scoring"
	"github.com/noah-isme/lti-assignments-api/internal/timer"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

type scopedAssignmentReader interface {
	GetScoped(ctx context.Context, id int64, consumerID, courseID string) (*models.Assignment, error)
}

type submissionStore interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	GetByAssignmentAndUser(ctx context.Context, assignmentID int64, userID string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	Finish(ctx context.Context, id string, to models.SubmissionStatus, submittedAt time.Time) error
	SaveAnswers(ctx context.Context, id string, tasks models.QuizTasks) error
	SaveQuizEvaluation(ctx context.Context, id string, eval repository.QuizEvaluation) error
	MovePending(ctx context.Context, assignmentID int64) (int64, error)
}

type poolSource interface {
	Tasks(ctx context.Context, assignmentID int64) ([]models.PoolTask, error)
}

// OpenOptions controls how an attempt is looked up.
type OpenOptions struct {
	// Create materialises a submission when the caller has none.
	Create bool
	// RequireStatus rejects the call unless the assignment is open and in this status.
	RequireStatus models.AssignmentStatus
}

// Attempt is a submission together with its scoped assignment and effective deadline.
type Attempt struct {
	Assignment *models.Assignment
	Submission *models.Submission
	Deadline   time.Time
}

// View returns the submission as served to clients.
func (a *Attempt) View() *models.SubmissionView {
	return &models.SubmissionView{Submission: *a.Submission, Deadline: a.Deadline, Size: a.Assignment.Size}
}

// SubmissionService drives the submission state machine.
type SubmissionService struct {
	lifecycle
	assignments scopedAssignmentReader
	submissions submissionStore
	pool        poolSource
	sampler     *sampler.Sampler
	validator   *validator.Validate
}

// NewSubmissionService constructs the service. A nil sampler draws from a time-seeded source.
func NewSubmissionService(assignments scopedAssignmentReader, submissions submissionStore, pool poolSource, smp *sampler.Sampler, validate *validator.Validate, logger *zap.Logger, opts ...LifecycleOption) *SubmissionService {
	if smp == nil {
		smp = sampler.New(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SubmissionService{
		lifecycle:   newLifecycle(logger, opts),
		assignments: assignments,
		submissions: submissions,
		pool:        pool,
		sampler:     smp,
		validator:   validate,
	}
}

// OpenForLearner serves GET /submissions/assignment/:id. Starting requires a STARTED, open assignment.
func (s *SubmissionService) OpenForLearner(ctx context.Context, session models.Session, assignmentID int64, start bool) (*models.SubmissionView, error) {
	opts := OpenOptions{Create: start}
	if start {
		opts.RequireStatus = models.AssignmentStatusStarted
	}
	attempt, err := s.Open(ctx, session, assignmentID, opts)
	if err != nil {
		return nil, err
	}
	return attempt.View(), nil
}

// Open loads the caller's submission to a scoped assignment, creating it when requested and allowed.
// The effective deadline is checked on every access.
func (s *SubmissionService) Open(ctx context.Context, session models.Session, assignmentID int64, opts OpenOptions) (*Attempt, error) {
	now := s.clock()
	assignment, err := s.assignments.GetScoped(ctx, assignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	if opts.RequireStatus != "" && (assignment.Status != opts.RequireStatus || timer.IsAssignmentClosed(assignment, now)) {
		return nil, invalidState("Invalid assignment status")
	}
	guard := s.policy.Guard(OpOpenSubmission, session.Role)

	submission, err := s.submissions.GetByAssignmentAndUser(ctx, assignment.ID, session.UserID)
	switch {
	case err == nil:
	case repository.IsNoRows(err):
		if !opts.Create {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		if assignment.Status != models.AssignmentStatusStarted && !guard.CreateSubmissionOutsideStarted {
			return nil, invalidState("Invalid assignment status")
		}
		if guard.RequireStartedAssignment && timer.IsExpired(assignment.Deadline, now) {
			return nil, appErrors.Clone(appErrors.ErrExpired, "Assignment deadline has passed")
		}
		submission, err = s.create(ctx, session, assignment, guard, now)
		if err != nil {
			return nil, err
		}
	default:
		return nil, internalError(err, "failed to load submission")
	}

	deadline := timer.ResolveDeadline(submission.CreatedAt, assignment.Deadline, assignment.Timer, session.ExtensionMinutes)
	if submission.Status == models.SubmissionStatusStarted && assignment.Status == models.AssignmentStatusStarted && timer.IsExpired(deadline, now) {
		if assignment.Timer != nil {
			return nil, appErrors.Clone(appErrors.ErrExpired, "Timer is expired")
		}
		return nil, appErrors.Clone(appErrors.ErrExpired, "Assignment deadline has passed")
	}
	return &Attempt{Assignment: assignment, Submission: submission, Deadline: deadline}, nil
}

func (s *SubmissionService) create(ctx context.Context, session models.Session, assignment *models.Assignment, guard Guard, now time.Time) (*models.Submission, error) {
	submission := &models.Submission{
		AssignmentID: assignment.ID,
		UserID:       session.UserID,
		Status:       models.SubmissionStatusStarted,
		ReturnID:     session.ReturnID,
		CreatedAt:    now,
	}
	if assignment.Kind.IsQuiz() {
		tasks, err := s.materialize(ctx, assignment, session.UserID)
		if err != nil {
			return nil, err
		}
		submission.Tasks = tasks
	} else {
		submission.Status = guard.InitialSubmissionStatus
		if guard.ReturnIDOverride != nil {
			submission.ReturnID = *guard.ReturnIDOverride
		}
	}

	if err := s.submissions.Create(ctx, submission); err != nil {
		if repository.IsUniqueViolation(err) {
			existing, getErr := s.submissions.GetByAssignmentAndUser(ctx, assignment.ID, session.UserID)
			if getErr != nil {
				return nil, internalError(getErr, "failed to load submission")
			}
			return existing, nil
		}
		return nil, internalError(err, "failed to create submission")
	}
	s.logger.Sugar().Infow("submission created", "assignment_id", assignment.ID, "submission_id", submission.ID, "status", submission.Status)
	return submission, nil
}

func (s *SubmissionService) materialize(ctx context.Context, assignment *models.Assignment, userID string) (models.QuizTasks, error) {
	ctx, span := s.tracer.Start(ctx, "quiz.materialize", trace.WithAttributes(
		attribute.Int64("assignment_id", assignment.ID),
		attribute.String("kind", string(assignment.Kind)),
	))
	defer span.End()

	pool, err := s.pool.Tasks(ctx, assignment.ID)
	if err != nil {
		span.RecordError(err)
		return nil, internalError(err, "failed to load quiz pool")
	}
	result, err := s.sampler.Materialize(assignment.Kind, assignment.Size, userID, pool)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sampling failed")
		return nil, err
	}
	if result.Fallbacks > 0 {
		s.metrics.RecordSamplerFallbacks(result.Fallbacks)
		s.logger.Sugar().Warnw("quiz served self-authored tasks", "assignment_id", assignment.ID, "fallbacks", result.Fallbacks)
	}
	span.SetAttributes(attribute.Int("tasks", len(result.Tasks)))
	return result.Tasks, nil
}

// GetStarted returns the caller's own STARTED submission while its assignment still accepts work.
func (s *SubmissionService) GetStarted(ctx context.Context, session models.Session, submissionID string) (*Attempt, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, lookupError(err, "submission not found", "failed to load submission")
	}
	if submission.UserID != session.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	assignment, err := s.assignments.GetScoped(ctx, submission.AssignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "submission not found", "failed to load assignment")
	}
	if submission.Status != models.SubmissionStatusStarted {
		return nil, invalidState("Invalid submission status")
	}
	if assignment.Status.IsClosed() {
		return nil, invalidState("Assignment is closed")
	}
	now := s.clock()
	deadline := timer.ResolveDeadline(submission.CreatedAt, assignment.Deadline, assignment.Timer, session.ExtensionMinutes)
	if timer.IsExpired(deadline, now) {
		return nil, appErrors.Clone(appErrors.ErrExpired, "Timer is expired")
	}
	return &Attempt{Assignment: assignment, Submission: submission, Deadline: deadline}, nil
}

// SaveAnswers merges answers into the snapshot of a STARTED quiz submission.
func (s *SubmissionService) SaveAnswers(ctx context.Context, session models.Session, submissionID string, req dto.SaveAnswersRequest) (*models.SubmissionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid answers")
	}
	attempt, err := s.GetStarted(ctx, session, submissionID)
	if err != nil {
		return nil, err
	}
	if !attempt.Assignment.Kind.IsQuiz() {
		return nil, invalidState("Submission has no quiz tasks")
	}

	tasks := make(models.QuizTasks, len(attempt.Submission.Tasks))
	copy(tasks, attempt.Submission.Tasks)
	index := make(map[int64]int, len(tasks))
	for i, task := range tasks {
		index[task.Task.ID] = i
	}
	for _, answer := range req.Answers {
		i, ok := index[answer.TaskID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("task %d is not part of the submission", answer.TaskID))
		}
		tasks[i].Answer = answer.Answer
	}

	if err := s.submissions.SaveAnswers(ctx, submissionID, tasks); err != nil {
		return nil, transitionError(err, "Invalid submission status", "failed to save answers")
	}
	attempt.Submission.Tasks = tasks
	return attempt.View(), nil
}

// Submit grades the caller's STARTED quiz submission.
func (s *SubmissionService) Submit(ctx context.Context, session models.Session, submissionID string) (*models.Submission, error) {
	attempt, err := s.GetStarted(ctx, session, submissionID)
	if err != nil {
		return nil, err
	}
	if !attempt.Assignment.Kind.IsQuiz() {
		return nil, invalidState("Submission has no quiz tasks")
	}
	return s.EvaluateQuiz(ctx, attempt.Submission, attempt.Assignment, false)
}

// EvaluateQuiz grades a STARTED quiz submission and moves it to EVALUATED. A forced evaluation leaves
// submittedAt unset.
func (s *SubmissionService) EvaluateQuiz(ctx context.Context, submission *models.Submission, assignment *models.Assignment, forced bool) (*models.Submission, error) {
	ctx, span := s.tracer.Start(ctx, "quiz.evaluate", trace.WithAttributes(
		attribute.String("submission_id", submission.ID),
		attribute.Bool("forced", forced),
	))
	defer span.End()

	pool, err := s.pool.Tasks(ctx, assignment.ID)
	if err != nil {
		span.RecordError(err)
		return nil, internalError(err, "failed to load quiz pool")
	}
	solutions := make(scoring.SolutionLookup, len(pool))
	for _, task := range pool {
		solutions[task.TaskID] = task.Content.Solution
	}
	result, err := scoring.GradeQuiz(submission.Tasks, solutions, assignment.PointsOrZero())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading failed")
		return nil, err
	}

	var submittedAt *time.Time
	if !forced {
		now := s.clock()
		submittedAt = &now
	}
	eval := repository.QuizEvaluation{Tasks: result.Tasks, Score: result.RawScore, LMSScore: result.LMSScore, SubmittedAt: submittedAt}
	if err := s.submissions.SaveQuizEvaluation(ctx, submission.ID, eval); err != nil {
		span.RecordError(err)
		return nil, transitionError(err, "Invalid submission status", "failed to save quiz evaluation")
	}

	evaluated := *submission
	evaluated.Status = models.SubmissionStatusEvaluated
	evaluated.Tasks = result.Tasks
	evaluated.Score = &result.RawScore
	evaluated.LMSScore = &result.LMSScore
	if submittedAt != nil {
		evaluated.SubmittedAt = submittedAt
	}
	s.notify(ctx, events.Event{
		Type:         events.TypeSubmissionEvaluated,
		AssignmentID: assignment.ID,
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		Status:       string(evaluated.Status),
		Score:        evaluated.LMSScore,
		Forced:       forced,
	})
	return &evaluated, nil
}

// Finish closes a STARTED task submission with the status the caller's role finishes into.
func (s *SubmissionService) Finish(ctx context.Context, submission *models.Submission, role models.Role) error {
	guard := s.policy.Guard(OpFinishSubmission, role)
	now := s.clock()
	if err := s.submissions.Finish(ctx, submission.ID, guard.FinishedSubmissionStatus, now); err != nil {
		return transitionError(err, "Invalid submission status", "failed to finish submission")
	}
	submission.Status = guard.FinishedSubmissionStatus
	submission.SubmittedAt = &now
	s.logger.Sugar().Infow("submission finished", "assignment_id", submission.AssignmentID, "submission_id", submission.ID, "status", submission.Status)
	return nil
}

// GetQuizTasks returns a quiz snapshot with answers, scores and the current effective solutions.
func (s *SubmissionService) GetQuizTasks(ctx context.Context, session models.Session, submissionID string) ([]models.QuizTaskReview, error) {
	submission, assignment, err := s.scopedSubmission(ctx, session, submissionID)
	if err != nil {
		return nil, err
	}
	if !assignment.Kind.IsQuiz() {
		return nil, invalidState("Submission has no quiz tasks")
	}
	pool, err := s.pool.Tasks(ctx, assignment.ID)
	if err != nil {
		return nil, internalError(err, "failed to load quiz pool")
	}
	solutions := make(map[int64]models.AnswerValue, len(pool))
	for _, task := range pool {
		solutions[task.TaskID] = task.Content.Solution
	}
	reviews := make([]models.QuizTaskReview, 0, len(submission.Tasks))
	for _, task := range submission.Tasks {
		reviews = append(reviews, models.QuizTaskReview{QuizTask: task, Solution: solutions[task.Task.ID]})
	}
	return reviews, nil
}

// ListPending returns PENDING and EVALUATED submissions. On a FINISHED task assignment, submissions
// still STARTED are first moved to PENDING.
func (s *SubmissionService) ListPending(ctx context.Context, session models.Session, assignmentID int64) ([]models.Submission, error) {
	assignment, err := s.assignments.GetScoped(ctx, assignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	if assignment.Status == models.AssignmentStatusFinished && !assignment.Kind.IsQuiz() {
		if _, err := s.submissions.MovePending(ctx, assignment.ID); err != nil {
			return nil, internalError(err, "failed to close started submissions")
		}
	}
	return s.list(ctx, assignment.ID, models.SubmissionStatusPending, models.SubmissionStatusEvaluated)
}

// ListPublished returns EVALUATED_PUBLISHED submissions.
func (s *SubmissionService) ListPublished(ctx context.Context, session models.Session, assignmentID int64) ([]models.Submission, error) {
	assignment, err := s.assignments.GetScoped(ctx, assignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	return s.list(ctx, assignment.ID, models.SubmissionStatusEvaluatedPublished)
}

func (s *SubmissionService) list(ctx context.Context, assignmentID int64, statuses ...models.SubmissionStatus) ([]models.Submission, error) {
	submissions, err := s.submissions.List(ctx, models.SubmissionFilter{AssignmentID: assignmentID, Statuses: statuses})
	if err != nil {
		return nil, internalError(err, "failed to list submissions")
	}
	return submissions, nil
}

func (s *SubmissionService) scopedSubmission(ctx context.Context, session models.Session, submissionID string) (*models.Submission, *models.Assignment, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, nil, lookupError(err, "submission not found", "failed to load submission")
	}
	assignment, err := s.assignments.GetScoped(ctx, submission.AssignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, nil, lookupError(err, "submission not found", "failed to load assignment")
	}
	return submission, assignment, nil
}
