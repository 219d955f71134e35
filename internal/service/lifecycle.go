package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/repository"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

const tracerName = "github.com/noah-isme/lti-assignments-api/internal/service"

// lifecycle holds the collaborators shared by the assignment, submission, task, publish and sweeper services.
type lifecycle struct {
	now      func() time.Time
	notifier events.Notifier
	metrics  *MetricsService
	policy   *Policy
	tracer   trace.Tracer
	logger   *zap.Logger
}

// LifecycleOption configures a lifecycle service.
type LifecycleOption func(*lifecycle)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) LifecycleOption {
	return func(l *lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// WithNotifier publishes lifecycle events through n.
func WithNotifier(n events.Notifier) LifecycleOption {
	return func(l *lifecycle) {
		if n != nil {
			l.notifier = n
		}
	}
}

// WithMetrics records domain counters.
func WithMetrics(m *MetricsService) LifecycleOption {
	return func(l *lifecycle) { l.metrics = m }
}

// WithPolicy overrides the role policy table.
func WithPolicy(p *Policy) LifecycleOption {
	return func(l *lifecycle) {
		if p != nil {
			l.policy = p
		}
	}
}

func newLifecycle(logger *zap.Logger, opts []LifecycleOption) lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := lifecycle{
		now:      time.Now,
		notifier: events.Noop{},
		policy:   DefaultPolicy(),
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&l)
		}
	}
	return l
}

func (l lifecycle) clock() time.Time {
	return l.now().UTC()
}

// notify never fails the calling operation; the transition already happened.
func (l lifecycle) notify(ctx context.Context, event events.Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = l.clock()
	}
	if err := l.notifier.Notify(ctx, event); err != nil {
		l.logger.Sugar().Warnw("lifecycle event not delivered", "type", event.Type, "assignment_id", event.AssignmentID,
			"submission_id", event.SubmissionID, "error", err)
	}
}

func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// lookupError maps a missing or out-of-scope row to NotFound.
func lookupError(err error, notFound, message string) error {
	if repository.IsNoRows(err) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return internalError(err, message)
}

// transitionError maps a conditional write that matched no row to InvalidState.
func transitionError(err error, invalid, message string) error {
	if repository.IsNoRows(err) {
		return appErrors.Clone(appErrors.ErrInvalidState, invalid)
	}
	return internalError(err, message)
}

func invalidState(message string) error {
	return appErrors.Clone(appErrors.ErrInvalidState, message)
}

func validationError(message string) error {
	return appErrors.Clone(appErrors.ErrValidation, message)
}
