package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/lti-assignments-api/internal/events"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/repository"
)

// memStore keeps every entity in memory and applies the same status-gated writes as the SQL stores.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	assignments map[int64]*models.Assignment
	links       map[int64][]models.AssignmentTaskLink
	submissions map[string]*models.Submission
	tasks       map[int64]*models.Task
	groups      map[int64]*models.TaskGroup
	consumers   map[string]*models.Consumer
}

func newMemStore() *memStore {
	return &memStore{
		assignments: map[int64]*models.Assignment{},
		links:       map[int64][]models.AssignmentTaskLink{},
		submissions: map[string]*models.Submission{},
		tasks:       map[int64]*models.Task{},
		groups:      map[int64]*models.TaskGroup{},
		consumers:   map[string]*models.Consumer{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Assignments() memAssignments { return memAssignments{m} }
func (m *memStore) Submissions() memSubmissions { return memSubmissions{m} }
func (m *memStore) Tasks() memTasks             { return memTasks{m} }
func (m *memStore) Groups() memGroups           { return memGroups{m} }
func (m *memStore) Consumers() memConsumers     { return memConsumers{m} }

func (m *memStore) assignment(id int64) models.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.assignments[id]
}

func (m *memStore) submission(id string) models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.submissions[id]
}

func (m *memStore) setAssignmentStatus(id int64, status models.AssignmentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[id].Status = status
}

type memAssignments struct{ *memStore }

func (r memAssignments) Create(ctx context.Context, assignment *models.Assignment, links []models.AssignmentTaskLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	assignment.ID = r.id()
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusCreated
	}
	stored := *assignment
	r.assignments[assignment.ID] = &stored
	for _, link := range links {
		link.AssignmentID = assignment.ID
		r.links[assignment.ID] = append(r.links[assignment.ID], link)
	}
	return nil
}

func (r memAssignments) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *a
	return &out, nil
}

func (r memAssignments) GetScoped(ctx context.Context, id int64, consumerID, courseID string) (*models.Assignment, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.ConsumerID != consumerID || a.CourseID != courseID {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (r memAssignments) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Assignment
	for _, a := range r.assignments {
		if filter.ConsumerID != "" && a.ConsumerID != filter.ConsumerID {
			continue
		}
		if filter.CourseID != "" && a.CourseID != filter.CourseID {
			continue
		}
		if filter.Kind != "" && a.Kind != filter.Kind {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, a.Status) {
			continue
		}
		if len(filter.IDs) > 0 && !hasID(filter.IDs, a.ID) {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAssignments) Start(ctx context.Context, id int64, outcomeURL string, points float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok || a.Status != models.AssignmentStatusCreated {
		return sql.ErrNoRows
	}
	a.Status = models.AssignmentStatusStarted
	a.OutcomeURL = &outcomeURL
	a.Points = &points
	return nil
}

func (r memAssignments) UpdateStatus(ctx context.Context, id int64, from []models.AssignmentStatus, to models.AssignmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assignments[id]
	if !ok || !hasStatus(from, a.Status) {
		return sql.ErrNoRows
	}
	a.Status = to
	return nil
}

func (r memAssignments) FinishExpired(ctx context.Context, now time.Time) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed []models.Assignment
	for _, a := range r.assignments {
		if (a.Status == models.AssignmentStatusCreated || a.Status == models.AssignmentStatusStarted) && a.Deadline.Before(now) {
			a.Status = models.AssignmentStatusFinished
			closed = append(closed, *a)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].ID < closed[j].ID })
	return closed, nil
}

func (r memAssignments) ListFinishedSince(ctx context.Context, since time.Time) ([]models.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Assignment
	for _, a := range r.assignments {
		if a.Status == models.AssignmentStatusFinished && !a.Deadline.Before(since) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memAssignments) PoolTasks(ctx context.Context, assignmentID int64) ([]models.PoolTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool := make([]models.PoolTask, 0, len(r.links[assignmentID]))
	for _, link := range r.links[assignmentID] {
		task := r.tasks[link.TaskID]
		sub := r.submissions[task.SubmissionID]
		pool = append(pool, models.PoolTask{
			AssignmentTaskLink: link,
			Type:               task.Type,
			Content:            task.Effective(),
			CreatedBy:          sub.UserID,
			GroupID:            task.GroupID,
		})
	}
	return pool, nil
}

type memSubmissions struct{ *memStore }

func (r memSubmissions) Create(ctx context.Context, submission *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.AssignmentID == submission.AssignmentID && s.UserID == submission.UserID {
			return &pq.Error{Code: "23505"}
		}
	}
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	stored := *submission
	r.submissions[submission.ID] = &stored
	return nil
}

func (r memSubmissions) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *s
	return &out, nil
}

func (r memSubmissions) GetByAssignmentAndUser(ctx context.Context, assignmentID int64, userID string) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.submissions {
		if s.AssignmentID == assignmentID && s.UserID == userID {
			out := *s
			return &out, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memSubmissions) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Submission
	for _, s := range r.submissions {
		if s.AssignmentID != filter.AssignmentID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasSubmissionStatus(filter.Statuses, s.Status) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r memSubmissions) transition(id string, from []models.SubmissionStatus, apply func(*models.Submission)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok || !hasSubmissionStatus(from, s.Status) {
		return sql.ErrNoRows
	}
	apply(s)
	return nil
}

var onlyStarted = []models.SubmissionStatus{models.SubmissionStatusStarted}

func (r memSubmissions) Finish(ctx context.Context, id string, to models.SubmissionStatus, submittedAt time.Time) error {
	return r.transition(id, onlyStarted, func(s *models.Submission) {
		s.Status = to
		s.SubmittedAt = &submittedAt
	})
}

func (r memSubmissions) SaveAnswers(ctx context.Context, id string, tasks models.QuizTasks) error {
	return r.transition(id, onlyStarted, func(s *models.Submission) { s.Tasks = tasks })
}

func (r memSubmissions) SaveQuizEvaluation(ctx context.Context, id string, eval repository.QuizEvaluation) error {
	return r.transition(id, onlyStarted, func(s *models.Submission) {
		s.Status = models.SubmissionStatusEvaluated
		s.Tasks = eval.Tasks
		s.Score = &eval.Score
		s.LMSScore = &eval.LMSScore
		if eval.SubmittedAt != nil {
			s.SubmittedAt = eval.SubmittedAt
		}
	})
}

func (r memSubmissions) SaveEvaluation(ctx context.Context, id string, score, lmsScore float64) error {
	from := []models.SubmissionStatus{models.SubmissionStatusPending, models.SubmissionStatusEvaluated}
	return r.transition(id, from, func(s *models.Submission) {
		s.Status = models.SubmissionStatusEvaluated
		s.Score = &score
		s.LMSScore = &lmsScore
	})
}

func (r memSubmissions) MarkPublished(ctx context.Context, id, publishedBy string, publishedAt time.Time) error {
	from := []models.SubmissionStatus{models.SubmissionStatusEvaluated}
	return r.transition(id, from, func(s *models.Submission) {
		s.Status = models.SubmissionStatusEvaluatedPublished
		s.PublishedBy = &publishedBy
		s.PublishedAt = &publishedAt
	})
}

func (r memSubmissions) MovePending(ctx context.Context, assignmentID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var moved int64
	for _, s := range r.submissions {
		if s.AssignmentID == assignmentID && s.Status == models.SubmissionStatusStarted {
			s.Status = models.SubmissionStatusPending
			moved++
		}
	}
	return moved, nil
}

func (r memSubmissions) CountUnpublished(ctx context.Context, assignmentID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, s := range r.submissions {
		if s.AssignmentID == assignmentID && s.Status != models.SubmissionStatusEvaluatedPublished {
			count++
		}
	}
	return count, nil
}

type memTasks struct{ *memStore }

func (r memTasks) Create(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	task.ID = r.id()
	stored := *task
	r.tasks[task.ID] = &stored
	return nil
}

func (r memTasks) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *t
	return &out, nil
}

func (r memTasks) ListBySubmission(ctx context.Context, submissionID string) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if t.SubmissionID == submissionID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTasks) CountBySubmission(ctx context.Context, submissionID string) (int, error) {
	tasks, err := r.ListBySubmission(ctx, submissionID)
	return len(tasks), err
}

func (r memTasks) ListIncluded(ctx context.Context, assignmentIDs []int64) ([]models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		sub := r.submissions[t.SubmissionID]
		if sub != nil && hasID(assignmentIDs, sub.AssignmentID) && t.Status == models.TaskStatusEvaluatedInclude {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTasks) Replace(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[task.ID]
	if !ok || t.Status != models.TaskStatusPending {
		return sql.ErrNoRows
	}
	t.Type, t.Title, t.Description, t.MediaID = task.Type, task.Title, task.Description, task.MediaID
	t.Options, t.Solution = task.Options, task.Solution
	return nil
}

func (r memTasks) SetEdit(ctx context.Context, id int64, edit *models.TaskEdit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Edit = edit
	return nil
}

func (r memTasks) Evaluate(ctx context.Context, id int64, eval repository.TaskEvaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return sql.ErrNoRows
	}
	by, at := eval.EvaluatedBy, eval.EvaluatedAt
	t.Status, t.Score, t.EvaluatedBy, t.EvaluatedAt = eval.Status, copyScore(eval.Score), &by, &at
	return nil
}

func (r memTasks) SetGroup(ctx context.Context, taskID int64, groupID *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[taskID]
	if !ok {
		return sql.ErrNoRows
	}
	t.GroupID = groupID
	return nil
}

type memGroups struct{ *memStore }

func (r memGroups) Create(ctx context.Context, group *models.TaskGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	group.ID = r.id()
	stored := *group
	r.groups[group.ID] = &stored
	return nil
}

func (r memGroups) GetByID(ctx context.Context, id int64) (*models.TaskGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *g
	return &out, nil
}

func (r memGroups) ListByAssignment(ctx context.Context, assignmentID int64) ([]models.TaskGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TaskGroup
	for _, g := range r.groups {
		if g.AssignmentID == assignmentID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memGroups) ListByIDs(ctx context.Context, ids []int64) ([]models.TaskGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TaskGroup
	for _, id := range ids {
		if g, ok := r.groups[id]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

type memConsumers struct{ *memStore }

func (r memConsumers) GetByID(ctx context.Context, id string) (*models.Consumer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.consumers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *c
	return &out, nil
}

// memPool serves pools straight from the store and counts invalidations.
type memPool struct {
	store       *memStore
	invalidated int
}

func (p *memPool) Tasks(ctx context.Context, assignmentID int64) ([]models.PoolTask, error) {
	return p.store.Assignments().PoolTasks(ctx, assignmentID)
}

func (p *memPool) InvalidateAll(ctx context.Context) {
	p.invalidated++
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event events.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func hasStatus(statuses []models.AssignmentStatus, status models.AssignmentStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func hasSubmissionStatus(statuses []models.SubmissionStatus, status models.SubmissionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func hasID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func floatPtr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

func copyScore(score *float64) *float64 {
	if score == nil {
		return nil
	}
	v := *score
	return &v
}
