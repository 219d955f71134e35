package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/lti"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/repository"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
	"github.com/noah-isme/lti-assignments-api/pkg/jobs"
)

const (
	publishResultSuccess   = "success"
	publishResultFailure   = "failure"
	publishResultRetried   = "retried"
	publishResultExhausted = "exhausted"

	publishJobType = "score_publish"
)

type consumerReader interface {
	GetByID(ctx context.Context, id string) (*models.Consumer, error)
}

type publishAssignmentStore interface {
	GetByID(ctx context.Context, id int64) (*models.Assignment, error)
	GetScoped(ctx context.Context, id int64, consumerID, courseID string) (*models.Assignment, error)
	UpdateStatus(ctx context.Context, id int64, from []models.AssignmentStatus, to models.AssignmentStatus) error
}

type publishSubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	MarkPublished(ctx context.Context, id, publishedBy string, publishedAt time.Time) error
	CountUnpublished(ctx context.Context, assignmentID int64) (int, error)
}

// PublishSettings tunes score pushes and the retry queue.
type PublishSettings struct {
	Timeout    time.Duration
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// PublishJob is a failed score push waiting for another attempt.
type PublishJob struct {
	SubmissionID string
	AssignmentID int64
	ConsumerID   string
	PublishedBy  string
}

// PublishResult lists the submissions whose score reached the platform and those that did not.
type PublishResult struct {
	Published []string `json:"published"`
	Failed    []string `json:"failed"`
}

// PublishService pushes evaluated scores to the platform and publishes the submissions.
type PublishService struct {
	lifecycle
	consumers   consumerReader
	assignments publishAssignmentStore
	submissions publishSubmissionStore
	sink        lti.Publisher
	validator   *validator.Validate
	timeout     time.Duration
	queue       *jobs.Queue[PublishJob]
}

// NewPublishService constructs the service and its retry queue. The queue runs once Start is called.
func NewPublishService(consumers consumerReader, assignments publishAssignmentStore, submissions publishSubmissionStore, sink lti.Publisher, settings PublishSettings, validate *validator.Validate, logger *zap.Logger, opts ...LifecycleOption) *PublishService {
	if validate == nil {
		validate = validator.New()
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	s := &PublishService{
		lifecycle:   newLifecycle(logger, opts),
		consumers:   consumers,
		assignments: assignments,
		submissions: submissions,
		sink:        sink,
		validator:   validate,
		timeout:     settings.Timeout,
	}
	s.queue = jobs.NewQueue[PublishJob]("score-publish", s.retry, jobs.QueueConfig[PublishJob]{
		Workers:    settings.Workers,
		MaxRetries: settings.Retries,
		RetryDelay: settings.RetryDelay,
		Logger:     s.logger,
		OnExhausted: func(job jobs.Job[PublishJob], err error) {
			s.metrics.RecordScorePublish(publishResultExhausted)
			s.logger.Sugar().Errorw("score publish abandoned", "submission_id", job.Payload.SubmissionID,
				"assignment_id", job.Payload.AssignmentID, "attempts", job.Attempt, "error", err)
		},
	})
	return s
}

// Start runs the retry workers until ctx is cancelled or Stop is called.
func (s *PublishService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the retry workers.
func (s *PublishService) Stop() {
	s.queue.Stop()
}

// Publish pushes the scores of EVALUATED submissions and marks them EVALUATED_PUBLISHED. Failed pushes
// are reported and retried in the background; successful ones are never rolled back.
func (s *PublishService) Publish(ctx context.Context, session models.Session, req dto.PublishSubmissionsRequest) (*PublishResult, error) {
	if !s.policy.Guard(OpPublish, session.Role).Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only instructors can publish results")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid publish request")
	}

	consumer, err := s.consumers.GetByID(ctx, session.ConsumerID)
	if err != nil && !repository.IsNoRows(err) {
		return nil, internalError(err, "failed to load consumer")
	}
	if consumer == nil || consumer.Status != models.ConsumerStatusActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "Consumer is not registered")
	}
	assignment, err := s.assignments.GetScoped(ctx, req.AssignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	if assignment.OutcomeURL == nil || *assignment.OutcomeURL == "" {
		return nil, invalidState("Assignment has no outcome service")
	}

	submissions := make([]*models.Submission, 0, len(req.Submissions))
	for _, id := range req.Submissions {
		submission, err := s.submissions.GetByID(ctx, id)
		if err != nil && !repository.IsNoRows(err) {
			return nil, internalError(err, "failed to load submission")
		}
		if submission == nil || submission.AssignmentID != assignment.ID || submission.Status != models.SubmissionStatusEvaluated {
			return nil, invalidState("Submissions must be evaluated before the result can be published")
		}
		submissions = append(submissions, submission)
	}

	ctx, span := s.tracer.Start(ctx, "scores.publish", trace.WithAttributes(
		attribute.Int64("assignment_id", assignment.ID),
		attribute.Int("submissions", len(submissions)),
	))
	defer span.End()

	result := &PublishResult{Published: []string{}, Failed: []string{}}
	for _, submission := range submissions {
		if err := s.push(ctx, consumer, assignment, submission, session.UserID); err != nil {
			span.RecordError(err)
			result.Failed = append(result.Failed, submission.ID)
			s.enqueue(PublishJob{
				SubmissionID: submission.ID,
				AssignmentID: assignment.ID,
				ConsumerID:   consumer.ID,
				PublishedBy:  session.UserID,
			})
			continue
		}
		result.Published = append(result.Published, submission.ID)
	}
	s.completeAssignment(ctx, assignment.ID)

	if len(result.Failed) > 0 {
		span.SetAttributes(attribute.Int("failed", len(result.Failed)))
		return result, appErrors.Clone(appErrors.ErrUpstream, fmt.Sprintf("%d of %d scores could not be published", len(result.Failed), len(submissions)))
	}
	return result, nil
}

func (s *PublishService) push(ctx context.Context, consumer *models.Consumer, assignment *models.Assignment, submission *models.Submission, publishedBy string) error {
	score := 0.0
	if submission.LMSScore != nil {
		score = *submission.LMSScore
	}
	outcome := lti.Outcome{
		Consumer:   *consumer,
		Score:      score,
		Maximum:    assignment.PointsOrZero(),
		ReturnID:   submission.ReturnID,
		OutcomeURL: *assignment.OutcomeURL,
	}

	pushCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.sink.Publish(pushCtx, outcome)
	cancel()
	if err != nil {
		s.metrics.RecordScorePublish(publishResultFailure)
		s.logger.Sugar().Warnw("score push failed", "assignment_id", assignment.ID, "submission_id", submission.ID, "error", err)
		return err
	}
	s.metrics.RecordScorePublish(publishResultSuccess)

	now := s.clock()
	if err := s.submissions.MarkPublished(ctx, submission.ID, publishedBy, now); err != nil {
		// Already published by a concurrent push.
		if repository.IsNoRows(err) {
			return nil
		}
		return internalError(err, "failed to publish submission")
	}
	s.notify(ctx, events.Event{
		Type:         events.TypeSubmissionPublished,
		AssignmentID: assignment.ID,
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		Status:       string(models.SubmissionStatusEvaluatedPublished),
		Score:        submission.LMSScore,
		OccurredAt:   now,
	})
	return nil
}

func (s *PublishService) enqueue(payload PublishJob) {
	job := jobs.Job[PublishJob]{ID: uuid.NewString(), Key: payload.SubmissionID, Type: publishJobType, Payload: payload}
	err := s.queue.Enqueue(job)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrDuplicate):
		s.logger.Sugar().Debugw("score push already queued", "submission_id", payload.SubmissionID)
	default:
		s.logger.Sugar().Errorw("score push not queued for retry", "submission_id", payload.SubmissionID, "error", err)
	}
}

// retry is the queue handler. Submissions that moved on since the failure are skipped.
func (s *PublishService) retry(ctx context.Context, job jobs.Job[PublishJob]) error {
	s.metrics.RecordScorePublish(publishResultRetried)
	p := job.Payload
	submission, err := s.submissions.GetByID(ctx, p.SubmissionID)
	if repository.IsNoRows(err) {
		return jobs.Permanent(fmt.Errorf("submission %s vanished: %w", p.SubmissionID, err))
	}
	if err != nil {
		return fmt.Errorf("load submission %s: %w", p.SubmissionID, err)
	}
	if submission.Status != models.SubmissionStatusEvaluated {
		return nil
	}
	consumer, err := s.consumers.GetByID(ctx, p.ConsumerID)
	if repository.IsNoRows(err) {
		return jobs.Permanent(fmt.Errorf("consumer %s vanished: %w", p.ConsumerID, err))
	}
	if err != nil {
		return fmt.Errorf("load consumer %s: %w", p.ConsumerID, err)
	}
	if consumer.Status != models.ConsumerStatusActive {
		s.logger.Sugar().Warnw("consumer deactivated, dropping score push", "consumer_id", consumer.ID, "submission_id", submission.ID)
		return nil
	}
	assignment, err := s.assignments.GetByID(ctx, p.AssignmentID)
	if err != nil {
		return fmt.Errorf("load assignment %d: %w", p.AssignmentID, err)
	}
	if err := s.push(ctx, consumer, assignment, submission, p.PublishedBy); err != nil {
		return err
	}
	s.completeAssignment(ctx, assignment.ID)
	return nil
}

// completeAssignment moves a FINISHED assignment to PUBLISHED_NO_SOLUTION once nothing is left unpublished.
func (s *PublishService) completeAssignment(ctx context.Context, assignmentID int64) {
	remaining, err := s.submissions.CountUnpublished(ctx, assignmentID)
	if err != nil {
		s.logger.Sugar().Warnw("failed to count unpublished submissions", "assignment_id", assignmentID, "error", err)
		return
	}
	if remaining > 0 {
		return
	}
	err = s.assignments.UpdateStatus(ctx, assignmentID, []models.AssignmentStatus{models.AssignmentStatusFinished}, models.AssignmentStatusPublishedNoSolution)
	switch {
	case err == nil:
		s.logger.Sugar().Infow("assignment results published", "assignment_id", assignmentID)
	case repository.IsNoRows(err):
	default:
		s.logger.Sugar().Warnw("failed to publish assignment", "assignment_id", assignmentID, "error", err)
	}
}
