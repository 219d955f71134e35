package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/sampler"
)

const (
	testConsumer = "consumer-1"
	testCourse   = "course-1"
)

type lifecycleFixture struct {
	t           *testing.T
	store       *memStore
	pool        *memPool
	notifier    *recordingNotifier
	now         time.Time
	submissions *SubmissionService
	tasks       *TaskService
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	store := newMemStore()
	store.consumers[testConsumer] = &models.Consumer{ID: testConsumer, Key: "key", Secret: "secret", Status: models.ConsumerStatusActive}
	f := &lifecycleFixture{
		t:        t,
		store:    store,
		pool:     &memPool{store: store},
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	smp := sampler.New(rand.NewSource(7))
	f.submissions = NewSubmissionService(store.Assignments(), store.Submissions(), f.pool, smp, nil, nil, f.options()...)
	f.tasks = NewTaskService(TaskStores{
		Assignments: store.Assignments(),
		Submissions: store.Submissions(),
		Tasks:       store.Tasks(),
		Groups:      store.Groups(),
		Pool:        f.pool,
	}, f.submissions, smp, nil, 10, nil, f.options()...)
	return f
}

func (f *lifecycleFixture) options() []LifecycleOption {
	return []LifecycleOption{
		WithClock(func() time.Time { return f.now }),
		WithNotifier(f.notifier),
	}
}

func (f *lifecycleFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func instructorSession() models.Session {
	return models.Session{ConsumerID: testConsumer, CourseID: testCourse, UserID: "instructor-1", Role: models.RoleInstructor, ReturnID: "ret-instructor"}
}

func learnerSession(userID string) models.Session {
	return models.Session{ConsumerID: testConsumer, CourseID: testCourse, UserID: userID, Role: models.RoleLearner, ReturnID: "ret-" + userID}
}

// addAssignment stores an assignment of the test course. Zero deadlines default to one hour ahead.
func (f *lifecycleFixture) addAssignment(a models.Assignment) *models.Assignment {
	f.t.Helper()
	a.ConsumerID, a.CourseID = testConsumer, testCourse
	if a.Deadline.IsZero() {
		a.Deadline = f.now.Add(time.Hour)
	}
	if a.Title == "" {
		a.Title = "Assignment"
	}
	require.NoError(f.t, f.store.Assignments().Create(context.Background(), &a, nil))
	return &a
}

// addSubmission stores a submission as-is, bypassing the state machine.
func (f *lifecycleFixture) addSubmission(sub models.Submission) *models.Submission {
	f.t.Helper()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = f.now
	}
	require.NoError(f.t, f.store.Submissions().Create(context.Background(), &sub))
	return &sub
}

func (f *lifecycleFixture) addTask(task models.Task) *models.Task {
	f.t.Helper()
	require.NoError(f.t, f.store.Tasks().Create(context.Background(), &task))
	return &task
}

// choiceTask is a two-option multiple choice task whose correct option id is 2.
func choiceTask(submissionID string) models.Task {
	return models.Task{
		SubmissionID: submissionID,
		Type:         models.TaskTypeMultipleChoice,
		Title:        "Pick one",
		Options:      models.Options{Choices: []models.ChoiceOption{{ID: 1, Option: "wrong"}, {ID: 2, Option: "right"}}},
		Solution:     models.ChoiceAnswer(2),
		Status:       models.TaskStatusEvaluatedInclude,
	}
}

// authoredPoolTask stores a task written by author on a source assignment and links it into the quiz.
func (f *lifecycleFixture) authoredPoolTask(source, quiz *models.Assignment, author string, difficulty int, fraction float64) *models.Task {
	f.t.Helper()
	sub, err := f.store.Submissions().GetByAssignmentAndUser(context.Background(), source.ID, author)
	if err != nil {
		sub = f.addSubmission(models.Submission{AssignmentID: source.ID, UserID: author, Status: models.SubmissionStatusEvaluated})
	}
	task := f.addTask(choiceTask(sub.ID))
	f.store.mu.Lock()
	f.store.links[quiz.ID] = append(f.store.links[quiz.ID], models.AssignmentTaskLink{
		AssignmentID: quiz.ID,
		TaskID:       task.ID,
		Difficulty:   difficulty,
		Fraction:     fraction,
	})
	f.store.mu.Unlock()
	return task
}
