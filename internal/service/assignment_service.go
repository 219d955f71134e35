package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/repository"
	"github.com/noah-isme/lti-assignments-api/internal/scoring"
	"github.com/noah-isme/lti-assignments-api/internal/timer"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

type assignmentStore interface {
	Create(ctx context.Context, assignment *models.Assignment, links []models.AssignmentTaskLink) error
	GetScoped(ctx context.Context, id int64, consumerID, courseID string) (*models.Assignment, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error)
	Start(ctx context.Context, id int64, outcomeURL string, points float64) error
	UpdateStatus(ctx context.Context, id int64, from []models.AssignmentStatus, to models.AssignmentStatus) error
}

type includedTaskLister interface {
	ListIncluded(ctx context.Context, assignmentIDs []int64) ([]models.Task, error)
}

// AssignmentService manages assignment creation and the assignment-level transitions.
type AssignmentService struct {
	lifecycle
	assignments assignmentStore
	tasks       includedTaskLister
	validator   *validator.Validate
}

// NewAssignmentService constructs the service.
func NewAssignmentService(assignments assignmentStore, tasks includedTaskLister, validate *validator.Validate, logger *zap.Logger, opts ...LifecycleOption) *AssignmentService {
	if validate == nil {
		validate = validator.New()
	}
	return &AssignmentService{
		lifecycle:   newLifecycle(logger, opts),
		assignments: assignments,
		tasks:       tasks,
		validator:   validate,
	}
}

// CreateTaskAssignment creates a TASK_SUBMISSION assignment in CREATED.
func (s *AssignmentService) CreateTaskAssignment(ctx context.Context, session models.Session, req dto.CreateTaskAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task assignment")
	}
	glossary := uniqueStrings(req.Glossary)
	for _, t := range req.Types {
		if t == models.TaskTypeNameImage && len(glossary) == 0 {
			return nil, validationError("A glossary is required for name image tasks")
		}
	}

	assignment := &models.Assignment{
		ConsumerID: session.ConsumerID,
		CourseID:   session.CourseID,
		Title:      req.Title,
		Kind:       models.AssignmentKindTaskSubmission,
		Size:       models.CountSize(req.Size),
		Glossary:   glossary,
		Deadline:   req.Deadline.UTC(),
		CreatedBy:  session.UserID,
		TaskTypes:  req.Types,
	}
	if err := s.assignments.Create(ctx, assignment, nil); err != nil {
		return nil, internalError(err, "failed to create assignment")
	}
	s.logger.Sugar().Infow("task assignment created", "assignment_id", assignment.ID, "course_id", session.CourseID)
	return assignment, nil
}

// CreateQuizAssignment creates a quiz whose pool is built from included tasks of finished task assignments.
func (s *AssignmentService) CreateQuizAssignment(ctx context.Context, session models.Session, req dto.CreateQuizAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quiz assignment")
	}

	kind := models.AssignmentKindQuizDefinite
	size := models.CountSize(len(req.Tasks))
	if req.Type == dto.QuizModeRandom {
		kind = models.AssignmentKindQuizRandom
		if req.Size == nil || req.Size.Count > 0 {
			return nil, validationError("random quizzes need a tier or group size")
		}
		size = *req.Size
	}
	if err := size.Validate(); err != nil {
		return nil, validationError(err.Error())
	}
	weighted := len(req.Weights) > 0
	if weighted && !size.IsGrouped() {
		return nil, validationError("weights require a group-keyed random size")
	}
	if weighted {
		for _, key := range size.GroupKeys() {
			if _, ok := req.Weights[key]; !ok {
				return nil, validationError(fmt.Sprintf("missing weight for group %s", key))
			}
		}
	}

	ctx, span := s.tracer.Start(ctx, "assignments.create_quiz", trace.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.Int("pool_size", len(req.Tasks)),
	))
	defer span.End()

	sources, err := s.assignments.List(ctx, models.AssignmentFilter{
		ConsumerID: session.ConsumerID,
		CourseID:   session.CourseID,
		IDs:        req.Assignments,
	})
	if err != nil {
		span.RecordError(err)
		return nil, internalError(err, "failed to load source assignments")
	}
	if len(sources) != len(req.Assignments) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "source assignment not found")
	}
	var glossary []string
	for _, source := range sources {
		glossary = append(glossary, source.Glossary...)
	}

	included, err := s.tasks.ListIncluded(ctx, req.Assignments)
	if err != nil {
		span.RecordError(err)
		return nil, internalError(err, "failed to load pool tasks")
	}
	byID := make(map[int64]models.Task, len(included))
	for _, task := range included {
		byID[task.ID] = task
	}

	difficulties := make([]int, len(req.Tasks))
	for i := range req.Tasks {
		difficulties[i] = 1
		if i < len(req.Difficulties) {
			difficulties[i] = req.Difficulties[i]
		}
	}
	total := scoring.DifficultyTotal(kind, size, difficulties, weighted)

	links := make([]models.AssignmentTaskLink, 0, len(req.Tasks))
	for i, taskID := range req.Tasks {
		task, ok := byID[taskID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrIntegrity, fmt.Sprintf("task %d is not an included task of the source assignments", taskID))
		}
		weight := scoring.DefaultWeight
		key := models.GroupKeyOf(task.GroupID)
		if weighted {
			weight = req.Weights[key]
		}
		links = append(links, models.AssignmentTaskLink{
			TaskID:     taskID,
			Difficulty: difficulties[i],
			Fraction:   scoring.Fraction(weight, total.For(key), difficulties[i]),
		})
	}

	assignment := &models.Assignment{
		ConsumerID: session.ConsumerID,
		CourseID:   session.CourseID,
		Title:      req.Title,
		Kind:       kind,
		Size:       size,
		Glossary:   uniqueStrings(glossary),
		Timer:      req.Timer,
		Deadline:   req.Deadline.UTC(),
		CreatedBy:  session.UserID,
	}
	if err := s.assignments.Create(ctx, assignment, links); err != nil {
		span.RecordError(err)
		return nil, internalError(err, "failed to create quiz")
	}
	s.logger.Sugar().Infow("quiz assignment created", "assignment_id", assignment.ID, "kind", kind, "pool", len(links))
	return assignment, nil
}

// Get returns the learner view of an assignment. CREATED assignments are hidden and an expired STARTED
// assignment is reported as FINISHED.
func (s *AssignmentService) Get(ctx context.Context, session models.Session, id int64) (*models.Assignment, error) {
	assignment, err := s.assignments.GetScoped(ctx, id, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	if assignment.Status == models.AssignmentStatusCreated {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	if assignment.Timer != nil && session.ExtensionMinutes != 0 {
		extended := timer.ExtendTimer(*assignment.Timer, session.ExtensionMinutes)
		assignment.Timer = &extended
	}
	if assignment.Status == models.AssignmentStatusStarted && timer.IsExpired(assignment.Deadline, s.clock()) {
		assignment.Status = models.AssignmentStatusFinished
	}
	return assignment, nil
}

// ListTaskAssignments returns the closed task assignments of the course, the pool sources for quizzes.
func (s *AssignmentService) ListTaskAssignments(ctx context.Context, session models.Session) ([]models.Assignment, error) {
	assignments, err := s.assignments.List(ctx, models.AssignmentFilter{
		ConsumerID: session.ConsumerID,
		CourseID:   session.CourseID,
		Kind:       models.AssignmentKindTaskSubmission,
		Statuses:   models.ClosedAssignmentStatuses,
	})
	if err != nil {
		return nil, internalError(err, "failed to list task assignments")
	}
	return assignments, nil
}

// Start confirms the launch of a CREATED assignment. Already started assignments are returned unchanged.
func (s *AssignmentService) Start(ctx context.Context, session models.Session, id int64, req dto.StartAssignmentRequest) (*models.Assignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid launch parameters")
	}
	assignment, err := s.assignments.GetScoped(ctx, id, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	if assignment.Status != models.AssignmentStatusCreated {
		return assignment, nil
	}
	if err := s.assignments.Start(ctx, id, req.OutcomeURL, req.Points); err != nil {
		if !repository.IsNoRows(err) {
			return nil, internalError(err, "failed to start assignment")
		}
	} else {
		assignment.Status = models.AssignmentStatusStarted
		assignment.OutcomeURL = &req.OutcomeURL
		points := req.Points
		assignment.Points = &points
	}
	return assignment, nil
}

// TogglePublishSolution flips a published assignment between hiding and showing solutions.
func (s *AssignmentService) TogglePublishSolution(ctx context.Context, session models.Session, id int64) (*models.Assignment, error) {
	assignment, err := s.assignments.GetScoped(ctx, id, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	var next models.AssignmentStatus
	switch assignment.Status {
	case models.AssignmentStatusPublishedNoSolution:
		next = models.AssignmentStatusPublishedWithSolution
	case models.AssignmentStatusPublishedWithSolution:
		next = models.AssignmentStatusPublishedNoSolution
	default:
		return nil, invalidState("Assignment results are not published")
	}
	if err := s.assignments.UpdateStatus(ctx, id, []models.AssignmentStatus{assignment.Status}, next); err != nil {
		return nil, transitionError(err, "Assignment results are not published", "failed to toggle solution")
	}
	assignment.Status = next
	return assignment, nil
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
