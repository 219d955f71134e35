package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

const (
	defaultSweepInterval = time.Minute
	defaultSweepLookback = 24 * time.Hour
)

type expiringAssignmentStore interface {
	FinishExpired(ctx context.Context, now time.Time) ([]models.Assignment, error)
	ListFinishedSince(ctx context.Context, since time.Time) ([]models.Assignment, error)
}

type sweepSubmissionStore interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error)
	MovePending(ctx context.Context, assignmentID int64) (int64, error)
}

type quizEvaluator interface {
	EvaluateQuiz(ctx context.Context, submission *models.Submission, assignment *models.Assignment, forced bool) (*models.Submission, error)
}

// SweepReport summarises one tick.
type SweepReport struct {
	Finished          []int64
	MovedToPending    int64
	ForcedEvaluations int
	Failures          int
}

// ExpirySweeper closes assignments whose deadline passed and closes their in-progress submissions.
type ExpirySweeper struct {
	lifecycle
	assignments expiringAssignmentStore
	submissions sweepSubmissionStore
	evaluator   quizEvaluator
	interval    time.Duration
	lookback    time.Duration
}

// NewExpirySweeper constructs a sweeper. lookback bounds how far back a tick re-processes FINISHED
// assignments whose submissions a previous tick may have left open.
func NewExpirySweeper(assignments expiringAssignmentStore, submissions sweepSubmissionStore, evaluator quizEvaluator, interval, lookback time.Duration, logger *zap.Logger, opts ...LifecycleOption) *ExpirySweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if lookback <= 0 {
		lookback = defaultSweepLookback
	}
	return &ExpirySweeper{
		lifecycle:   newLifecycle(logger, opts),
		assignments: assignments,
		submissions: submissions,
		evaluator:   evaluator,
		interval:    interval,
		lookback:    lookback,
	}
}

// Start runs a tick every interval until ctx is cancelled. Ticks never overlap.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Sugar().Infow("expiry sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Sugar().Errorw("sweep failed", "error", err)
			}
		}
	}
}

// Tick finishes every expired CREATED or STARTED assignment in one conditional batch, then closes the
// submissions of every recently finished assignment. Repeating a tick changes nothing.
func (s *ExpirySweeper) Tick(ctx context.Context) (SweepReport, error) {
	started := time.Now()
	now := s.clock()
	ctx, span := s.tracer.Start(ctx, "sweeper.tick")
	defer span.End()

	var report SweepReport
	finished, err := s.assignments.FinishExpired(ctx, now)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveSweep(0, 1, time.Since(started))
		return report, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finish expired assignments")
	}
	for _, a := range finished {
		report.Finished = append(report.Finished, a.ID)
		s.notify(ctx, events.Event{
			Type:         events.TypeAssignmentFinished,
			AssignmentID: a.ID,
			Status:       string(models.AssignmentStatusFinished),
			OccurredAt:   now,
		})
	}

	recent, err := s.assignments.ListFinishedSince(ctx, now.Add(-s.lookback))
	if err != nil {
		span.RecordError(err)
		s.logger.Sugar().Warnw("failed to list finished assignments", "error", err)
		report.Failures++
	}

	// Assignments closed by this tick end every open attempt. The lookback pass only resumes learner
	// attempts, so instructor previews opened after the deadline stay open.
	seen := make(map[int64]bool, len(finished)+len(recent))
	for i, batch := range [][]models.Assignment{finished, recent} {
		skipPreviews := i > 0
		for j := range batch {
			assignment := &batch[j]
			if seen[assignment.ID] {
				continue
			}
			seen[assignment.ID] = true
			if err := s.closeSubmissions(ctx, assignment, skipPreviews, &report); err != nil {
				report.Failures++
				s.logger.Sugar().Errorw("failed to close submissions", "assignment_id", assignment.ID, "error", err)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("finished", len(report.Finished)),
		attribute.Int64("moved_to_pending", report.MovedToPending),
		attribute.Int("forced_evaluations", report.ForcedEvaluations),
		attribute.Int("failures", report.Failures),
	)
	s.metrics.ObserveSweep(len(report.Finished), report.Failures, time.Since(started))
	if len(report.Finished) > 0 || report.MovedToPending > 0 || report.ForcedEvaluations > 0 {
		s.logger.Sugar().Infow("sweep closed expired work", "finished", report.Finished,
			"moved_to_pending", report.MovedToPending, "forced_evaluations", report.ForcedEvaluations, "failures", report.Failures)
	}
	return report, nil
}

func (s *ExpirySweeper) closeSubmissions(ctx context.Context, assignment *models.Assignment, skipPreviews bool, report *SweepReport) error {
	if !assignment.Kind.IsQuiz() {
		moved, err := s.submissions.MovePending(ctx, assignment.ID)
		if err != nil {
			return err
		}
		report.MovedToPending += moved
		return nil
	}

	started, err := s.submissions.List(ctx, models.SubmissionFilter{
		AssignmentID: assignment.ID,
		Statuses:     []models.SubmissionStatus{models.SubmissionStatusStarted},
	})
	if err != nil {
		return err
	}
	var firstErr error
	for i := range started {
		submission := &started[i]
		if skipPreviews && submission.ReturnID == previewReturnID {
			continue
		}
		_, err := s.evaluator.EvaluateQuiz(ctx, submission, assignment, true)
		switch {
		case err == nil:
			report.ForcedEvaluations++
		case appErrors.Kind(err) == appErrors.ErrInvalidState.Code:
			// The learner submitted between the listing and the write.
		default:
			s.logger.Sugar().Warnw("forced evaluation failed", "assignment_id", assignment.ID, "submission_id", submission.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
