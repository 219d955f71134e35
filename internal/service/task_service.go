package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
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

// DefaultMaxTaskScore is the highest score an evaluator can give one task.
const DefaultMaxTaskScore = 10.0

type taskAssignmentReader interface {
	GetScoped(ctx context.Context, id int64, consumerID, courseID string) (*models.Assignment, error)
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error)
}

type taskSubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	SaveEvaluation(ctx context.Context, id string, score, lmsScore float64) error
}

type attemptOpener interface {
	Open(ctx context.Context, session models.Session, assignmentID int64, opts OpenOptions) (*Attempt, error)
	Finish(ctx context.Context, submission *models.Submission, role models.Role) error
}

type taskStore interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]models.Task, error)
	CountBySubmission(ctx context.Context, submissionID string) (int, error)
	ListIncluded(ctx context.Context, assignmentIDs []int64) ([]models.Task, error)
	Replace(ctx context.Context, task *models.Task) error
	SetEdit(ctx context.Context, id int64, edit *models.TaskEdit) error
	Evaluate(ctx context.Context, id int64, eval repository.TaskEvaluation) error
	SetGroup(ctx context.Context, taskID int64, groupID *int64) error
}

type taskGroupStore interface {
	Create(ctx context.Context, group *models.TaskGroup) error
	GetByID(ctx context.Context, id int64) (*models.TaskGroup, error)
	ListByAssignment(ctx context.Context, assignmentID int64) ([]models.TaskGroup, error)
	ListByIDs(ctx context.Context, ids []int64) ([]models.TaskGroup, error)
}

type quizPool interface {
	Tasks(ctx context.Context, assignmentID int64) ([]models.PoolTask, error)
	InvalidateAll(ctx context.Context)
}

// TaskStores groups the persistence collaborators of TaskService.
type TaskStores struct {
	Assignments taskAssignmentReader
	Submissions taskSubmissionStore
	Tasks       taskStore
	Groups      taskGroupStore
	Pool        quizPool
}

// TaskService handles learner uploads, instructor edits, evaluation and task groups.
type TaskService struct {
	lifecycle
	assignments  taskAssignmentReader
	submissions  taskSubmissionStore
	attempts     attemptOpener
	tasks        taskStore
	groups       taskGroupStore
	pool         quizPool
	sampler      *sampler.Sampler
	sanitizer    *bluemonday.Policy
	validator    *validator.Validate
	maxTaskScore float64
}

// NewTaskService constructs the service. A non-positive maxTaskScore falls back to DefaultMaxTaskScore.
func NewTaskService(stores TaskStores, attempts attemptOpener, smp *sampler.Sampler, validate *validator.Validate, maxTaskScore float64, logger *zap.Logger, opts ...LifecycleOption) *TaskService {
	if smp == nil {
		smp = sampler.New(nil)
	}
	if validate == nil {
		validate = validator.New()
	}
	if maxTaskScore <= 0 {
		maxTaskScore = DefaultMaxTaskScore
	}
	return &TaskService{
		lifecycle:    newLifecycle(logger, opts),
		assignments:  stores.Assignments,
		submissions:  stores.Submissions,
		attempts:     attempts,
		tasks:        stores.Tasks,
		groups:       stores.Groups,
		pool:         stores.Pool,
		sampler:      smp,
		sanitizer:    bluemonday.UGCPolicy(),
		validator:    validate,
		maxTaskScore: maxTaskScore,
	}
}

// CreateOrReplace handles POST /tasks: a new task, a replacement of a pending task or an instructor edit.
func (s *TaskService) CreateOrReplace(ctx context.Context, session models.Session, payload dto.TaskPayload) (*models.Task, error) {
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}
	if payload.IsEdit() {
		return s.Edit(ctx, session, *payload.TaskID, payload)
	}

	guard := s.policy.Guard(OpCreateTask, session.Role)
	attempt, err := s.attempts.Open(ctx, session, payload.AssignmentID, OpenOptions{Create: true})
	if err != nil {
		return nil, err
	}
	assignment, submission := attempt.Assignment, attempt.Submission
	if assignment.Kind != models.AssignmentKindTaskSubmission {
		return nil, invalidState("Assignment does not accept tasks")
	}
	if guard.RequireStartedAssignment && (assignment.Status != models.AssignmentStatusStarted || timer.IsAssignmentClosed(assignment, s.clock())) {
		return nil, invalidState("Invalid assignment status")
	}
	if !acceptsType(assignment, payload.Type) {
		return nil, validationError(fmt.Sprintf("Assignment does not accept %s tasks", payload.Type))
	}
	content, err := s.buildContent(payload, assignment)
	if err != nil {
		return nil, err
	}

	if payload.Replace {
		return s.replace(ctx, session, attempt, *payload.TaskID, payload.Type, content)
	}

	if guard.RequireStartedSubmission && submission.Status != models.SubmissionStatusStarted {
		return nil, invalidState("Invalid submission status")
	}
	count, err := s.tasks.CountBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, internalError(err, "failed to count tasks")
	}
	size := assignment.Size.Total()
	if !guard.UnboundedTasks && count >= size {
		return nil, invalidState("Assignment is already completed")
	}

	task := &models.Task{
		SubmissionID: submission.ID,
		Type:         payload.Type,
		Status:       guard.InitialTaskStatus,
		CreatedAt:    s.clock(),
	}
	applyContent(task, content)
	if task.Status.IsEvaluated() {
		task.EvaluatedBy = &session.UserID
		task.EvaluatedAt = &task.CreatedAt
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, internalError(err, "failed to create task")
	}
	s.logger.Sugar().Infow("task created", "submission_id", submission.ID, "task_id", task.ID, "count", count+1, "size", size)

	if submission.Status == models.SubmissionStatusStarted && count+1 >= size {
		if err := s.attempts.Finish(ctx, submission, session.Role); err != nil {
			return nil, err
		}
	}
	return task, nil
}

func (s *TaskService) replace(ctx context.Context, session models.Session, attempt *Attempt, taskID int64, taskType models.TaskType, content models.TaskContent) (*models.Task, error) {
	submission := attempt.Submission
	if submission.Status != models.SubmissionStatusStarted && submission.Status != models.SubmissionStatusPending {
		return nil, invalidState("Invalid submission status")
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, lookupError(err, "task not found", "failed to load task")
	}
	if task.SubmissionID != submission.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}
	if task.Status != models.TaskStatusPending {
		return nil, invalidState("Task is already evaluated")
	}
	task.Type = taskType
	applyContent(task, content)
	if err := s.tasks.Replace(ctx, task); err != nil {
		return nil, transitionError(err, "Task is already evaluated", "failed to replace task")
	}

	if submission.Status == models.SubmissionStatusStarted {
		count, err := s.tasks.CountBySubmission(ctx, submission.ID)
		if err != nil {
			return nil, internalError(err, "failed to count tasks")
		}
		if count >= attempt.Assignment.Size.Total() {
			if err := s.attempts.Finish(ctx, submission, session.Role); err != nil {
				return nil, err
			}
		}
	}
	return task, nil
}

// Edit writes an instructor overlay over a task. The base fields stay untouched.
func (s *TaskService) Edit(ctx context.Context, session models.Session, taskID int64, payload dto.TaskPayload) (*models.Task, error) {
	if !s.policy.Guard(OpEditTask, session.Role).Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only instructors can edit tasks")
	}
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}
	task, _, assignment, err := s.scopedTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	if payload.Type != task.Type {
		return nil, validationError("The task type cannot be changed")
	}
	content, err := s.buildContent(payload, assignment)
	if err != nil {
		return nil, err
	}
	edit := &models.TaskEdit{TaskContent: content, EditedBy: session.UserID, EditedAt: s.clock()}
	if err := s.tasks.SetEdit(ctx, task.ID, edit); err != nil {
		return nil, lookupError(err, "task not found", "failed to edit task")
	}
	s.pool.InvalidateAll(ctx)
	task.Edit = edit
	return task, nil
}

// DeleteEdit clears the overlay of a task without touching its status.
func (s *TaskService) DeleteEdit(ctx context.Context, session models.Session, taskID int64) error {
	if !s.policy.Guard(OpEditTask, session.Role).Allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "Only instructors can edit tasks")
	}
	task, _, _, err := s.scopedTask(ctx, session, taskID)
	if err != nil {
		return err
	}
	if err := s.tasks.SetEdit(ctx, task.ID, nil); err != nil {
		return lookupError(err, "task not found", "failed to clear task edit")
	}
	s.pool.InvalidateAll(ctx)
	return nil
}

// Evaluate scores one task of a closed assignment. Once every task of the submission is evaluated the
// submission score is aggregated and the submission moves to EVALUATED.
func (s *TaskService) Evaluate(ctx context.Context, session models.Session, taskID int64, req dto.EvaluateTaskRequest) (*models.Task, error) {
	if !s.policy.Guard(OpEvaluateTask, session.Role).Allowed {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only instructors can evaluate tasks")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation")
	}
	task, submission, assignment, err := s.scopedTask(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	if task.SubmissionID != req.SubmissionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}
	now := s.clock()
	if !timer.IsAssignmentClosed(assignment, now) {
		return nil, invalidState("Assignment is not finished")
	}
	score := req.Score
	if score != nil && *score > s.maxTaskScore {
		return nil, validationError(fmt.Sprintf("Score cannot exceed %g", s.maxTaskScore))
	}

	switch submission.Status {
	case models.SubmissionStatusEvaluatedPublished:
		if sameScore(task.Score, score) {
			return task, nil
		}
		return nil, invalidState("The score of a published submission cannot be changed")
	case models.SubmissionStatusPending, models.SubmissionStatusEvaluated:
	default:
		return nil, invalidState("Invalid submission status")
	}

	status := models.TaskStatusEvaluated
	if req.Include {
		status = models.TaskStatusEvaluatedInclude
	}
	eval := repository.TaskEvaluation{Status: status, Score: score, EvaluatedBy: session.UserID, EvaluatedAt: now}
	if err := s.tasks.Evaluate(ctx, task.ID, eval); err != nil {
		return nil, lookupError(err, "task not found", "failed to evaluate task")
	}
	task.Status, task.Score, task.EvaluatedBy, task.EvaluatedAt = status, score, &session.UserID, &now

	groupID, err := s.setTaskGroup(ctx, assignment.ID, task.ID, req.GroupID)
	if err != nil {
		return nil, err
	}
	task.GroupID = groupID

	if err := s.aggregate(ctx, submission, assignment); err != nil {
		return nil, err
	}
	return task, nil
}

// sameScore treats two unset scores as equal.
func sameScore(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *TaskService) aggregate(ctx context.Context, submission *models.Submission, assignment *models.Assignment) error {
	tasks, err := s.tasks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return internalError(err, "failed to load submission tasks")
	}
	total := 0.0
	for _, t := range tasks {
		if !t.Status.IsEvaluated() {
			return nil
		}
		if t.Score != nil {
			total += *t.Score
		}
	}
	lms := scoring.TaskSubmissionLMSScore(total, s.maxTaskScore, assignment.PointsOrZero(), assignment.Size.Total())
	if err := s.submissions.SaveEvaluation(ctx, submission.ID, total, lms); err != nil {
		return transitionError(err, "Invalid submission status", "failed to save submission score")
	}
	s.notify(ctx, events.Event{
		Type:         events.TypeSubmissionEvaluated,
		AssignmentID: assignment.ID,
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		Status:       string(models.SubmissionStatusEvaluated),
		Score:        &lms,
	})
	return nil
}

// setTaskGroup links the task to a group of the same assignment, or unlinks it.
func (s *TaskService) setTaskGroup(ctx context.Context, assignmentID, taskID int64, groupID *int64) (*int64, error) {
	if groupID != nil {
		group, err := s.groups.GetByID(ctx, *groupID)
		switch {
		case err == nil && group.AssignmentID == assignmentID:
		case err == nil || repository.IsNoRows(err):
			groupID = nil
		default:
			return nil, internalError(err, "failed to load task group")
		}
	}
	if err := s.tasks.SetGroup(ctx, taskID, groupID); err != nil {
		return nil, internalError(err, "failed to set task group")
	}
	return groupID, nil
}

// CreateGroup adds a task group to a scoped assignment.
func (s *TaskService) CreateGroup(ctx context.Context, session models.Session, req dto.CreateTaskGroupRequest) (*models.TaskGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task group")
	}
	assignment, err := s.assignments.GetScoped(ctx, req.AssignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	group := &models.TaskGroup{AssignmentID: assignment.ID, Name: s.sanitizer.Sanitize(req.Name), Description: req.Description}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, internalError(err, "failed to create task group")
	}
	return group, nil
}

// ListGroups returns the task groups of a scoped assignment.
func (s *TaskService) ListGroups(ctx context.Context, session models.Session, assignmentID int64) ([]models.TaskGroup, error) {
	assignment, err := s.assignments.GetScoped(ctx, assignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, lookupError(err, "assignment not found", "failed to load assignment")
	}
	groups, err := s.groups.ListByAssignment(ctx, assignment.ID)
	if err != nil {
		return nil, internalError(err, "failed to list task groups")
	}
	return groups, nil
}

// GroupInfo returns the requested groups that belong to assignments of the caller's course.
func (s *TaskService) GroupInfo(ctx context.Context, session models.Session, req dto.TaskGroupInfoRequest) ([]models.TaskGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group request")
	}
	groups, err := s.groups.ListByIDs(ctx, req.Groups)
	if err != nil {
		return nil, internalError(err, "failed to load task groups")
	}
	if len(groups) == 0 {
		return []models.TaskGroup{}, nil
	}
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.AssignmentID)
	}
	scoped, err := s.scopedAssignmentIDs(ctx, session, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.TaskGroup, 0, len(groups))
	for _, g := range groups {
		if scoped[g.AssignmentID] {
			out = append(out, g)
		}
	}
	return out, nil
}

// GetIncluded returns the included tasks of the caller's source assignments, the candidate quiz pool.
func (s *TaskService) GetIncluded(ctx context.Context, session models.Session, req dto.IncludedTasksRequest) ([]models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid include request")
	}
	scoped, err := s.scopedAssignmentIDs(ctx, session, req.Assignments)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(scoped))
	for _, id := range req.Assignments {
		if scoped[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []models.Task{}, nil
	}
	tasks, err := s.tasks.ListIncluded(ctx, ids)
	if err != nil {
		return nil, internalError(err, "failed to list included tasks")
	}
	return tasks, nil
}

// GetSubmitted lists the tasks of a submission. Learners only see their own work, without evaluator data.
func (s *TaskService) GetSubmitted(ctx context.Context, session models.Session, submissionID string) ([]models.Task, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, lookupError(err, "submission not found", "failed to load submission")
	}
	if !session.IsInstructor() && submission.UserID != session.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	if _, err := s.assignments.GetScoped(ctx, submission.AssignmentID, session.ConsumerID, session.CourseID); err != nil {
		return nil, lookupError(err, "submission not found", "failed to load assignment")
	}
	tasks, err := s.tasks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, internalError(err, "failed to list tasks")
	}
	if session.IsInstructor() {
		return tasks, nil
	}
	for i := range tasks {
		t := &tasks[i]
		t.Score, t.GroupID, t.EvaluatedBy, t.EvaluatedAt, t.Edit = nil, nil, nil, nil, nil
		if t.Type == models.TaskTypeCombineTerms && t.Options.Terms != nil {
			t.Options = models.Options{Columns: sampler.OrganizeTerms(t.Options.Terms, t.Solution.Pairs)}
		}
	}
	return tasks, nil
}

// GetTaskSolutions returns the effective solutions of the caller's submission once the assignment
// publishes them.
func (s *TaskService) GetTaskSolutions(ctx context.Context, session models.Session, submissionID string) ([]models.TaskSolution, error) {
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
	if assignment.Status != models.AssignmentStatusPublishedWithSolution {
		return nil, invalidState("Solutions are not published")
	}

	if assignment.Kind.IsQuiz() {
		pool, err := s.pool.Tasks(ctx, assignment.ID)
		if err != nil {
			return nil, internalError(err, "failed to load quiz pool")
		}
		byID := make(map[int64]models.AnswerValue, len(pool))
		for _, p := range pool {
			byID[p.TaskID] = p.Content.Solution
		}
		solutions := make([]models.TaskSolution, 0, len(submission.Tasks))
		for _, t := range submission.Tasks {
			solutions = append(solutions, models.TaskSolution{TaskID: t.Task.ID, Solution: byID[t.Task.ID]})
		}
		return solutions, nil
	}

	tasks, err := s.tasks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, internalError(err, "failed to list tasks")
	}
	solutions := make([]models.TaskSolution, 0, len(tasks))
	for _, t := range tasks {
		solutions = append(solutions, models.TaskSolution{TaskID: t.ID, Solution: t.Effective().Solution})
	}
	return solutions, nil
}

func (s *TaskService) scopedTask(ctx context.Context, session models.Session, taskID int64) (*models.Task, *models.Submission, *models.Assignment, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, nil, lookupError(err, "task not found", "failed to load task")
	}
	submission, err := s.submissions.GetByID(ctx, task.SubmissionID)
	if err != nil {
		return nil, nil, nil, lookupError(err, "task not found", "failed to load submission")
	}
	assignment, err := s.assignments.GetScoped(ctx, submission.AssignmentID, session.ConsumerID, session.CourseID)
	if err != nil {
		return nil, nil, nil, lookupError(err, "task not found", "failed to load assignment")
	}
	return task, submission, assignment, nil
}

func (s *TaskService) scopedAssignmentIDs(ctx context.Context, session models.Session, ids []int64) (map[int64]bool, error) {
	assignments, err := s.assignments.List(ctx, models.AssignmentFilter{
		ConsumerID: session.ConsumerID,
		CourseID:   session.CourseID,
		IDs:        ids,
	})
	if err != nil {
		return nil, internalError(err, "failed to load assignments")
	}
	scoped := make(map[int64]bool, len(assignments))
	for _, a := range assignments {
		scoped[a.ID] = true
	}
	return scoped, nil
}

func (s *TaskService) validatePayload(payload dto.TaskPayload) error {
	if err := s.validator.Struct(payload); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task")
	}
	if err := payload.Validate(); err != nil {
		return validationError(err.Error())
	}
	if payload.Replace && payload.TaskID == nil {
		return validationError("taskId is required to replace a task")
	}
	return nil
}

// buildContent turns a typed payload into stored options and solution. Option ids are shuffled so
// their order does not leak the solution.
func (s *TaskService) buildContent(payload dto.TaskPayload, assignment *models.Assignment) (models.TaskContent, error) {
	content := models.TaskContent{
		Title:       s.sanitizer.Sanitize(payload.Title),
		Description: s.sanitizer.Sanitize(payload.Description),
	}
	switch payload.Type {
	case models.TaskTypeMultipleChoice:
		seen := make(map[string]bool, len(payload.Options))
		for _, option := range payload.Options {
			key := strings.TrimSpace(option)
			if seen[key] {
				return models.TaskContent{}, appErrors.Clone(appErrors.ErrIntegrity, "Each task option must be unique")
			}
			seen[key] = true
		}
		ids := s.shuffledIDs(len(payload.Options))
		choices := make([]models.ChoiceOption, len(payload.Options))
		for i, option := range payload.Options {
			choices[i] = models.ChoiceOption{ID: ids[i], Option: s.sanitizer.Sanitize(option)}
		}
		content.Options = models.Options{Choices: choices}
		content.Solution = models.ChoiceAnswer(ids[payload.IndexSolution])
	case models.TaskTypeCombineTerms:
		ids := s.shuffledIDs(2 * len(payload.Pairs))
		terms := make([]models.Term, 0, len(ids))
		pairs := make([]models.TermPair, 0, len(payload.Pairs))
		for i, pair := range payload.Pairs {
			left := models.Term{ID: ids[2*i], Type: pair.Term.Type, Term: s.sanitizer.Sanitize(pair.Term.Term)}
			right := models.Term{ID: ids[2*i+1], Type: pair.RelatedTerm.Type, Term: s.sanitizer.Sanitize(pair.RelatedTerm.Term)}
			terms = append(terms, left, right)
			pairs = append(pairs, models.TermPair{left.ID, right.ID})
		}
		content.Options = models.Options{Terms: terms}
		content.Solution = models.PairsAnswer(pairs...)
	case models.TaskTypeNameImage:
		if !containsString(assignment.Glossary, payload.Solution) {
			return models.TaskContent{}, validationError("The solution must be a glossary term")
		}
		content.Options = models.Options{Images: append([]string(nil), payload.MediaIDs...)}
		content.Solution = models.NameAnswer(payload.Solution)
	}
	if payload.Type != models.TaskTypeNameImage && len(payload.MediaIDs) > 0 {
		media := payload.MediaIDs[0]
		content.MediaID = &media
	}
	return content, nil
}

func (s *TaskService) shuffledIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i + 1
	}
	s.sampler.Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

func applyContent(task *models.Task, content models.TaskContent) {
	task.Title = content.Title
	task.Description = content.Description
	task.MediaID = content.MediaID
	task.Options = content.Options
	task.Solution = content.Solution
}

func acceptsType(assignment *models.Assignment, taskType models.TaskType) bool {
	if len(assignment.TaskTypes) == 0 {
		return true
	}
	for _, t := range assignment.TaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
