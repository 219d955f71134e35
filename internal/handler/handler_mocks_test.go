package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/middleware"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/service"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
)

var (
	instructor = models.Session{ConsumerID: "consumer-1", CourseID: "course-1", UserID: "instructor-1", Role: models.RoleInstructor}
	learner    = models.Session{ConsumerID: "consumer-1", CourseID: "course-1", UserID: "u1", Role: models.RoleLearner, ReturnID: "ret-u1"}
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func withSession(c *gin.Context, session models.Session) {
	c.Set(middleware.ContextSessionKey, &models.SessionClaims{Session: session})
}

type assignmentServiceMock struct {
	assignment *models.Assignment
	list       []models.Assignment
	err        error

	gotID      int64
	gotSession models.Session
	gotTask    dto.CreateTaskAssignmentRequest
	gotStart   dto.StartAssignmentRequest
}

func (m *assignmentServiceMock) CreateTaskAssignment(ctx context.Context, session models.Session, req dto.CreateTaskAssignmentRequest) (*models.Assignment, error) {
	m.gotSession, m.gotTask = session, req
	return m.assignment, m.err
}

func (m *assignmentServiceMock) CreateQuizAssignment(ctx context.Context, session models.Session, req dto.CreateQuizAssignmentRequest) (*models.Assignment, error) {
	m.gotSession = session
	return m.assignment, m.err
}

func (m *assignmentServiceMock) Get(ctx context.Context, session models.Session, id int64) (*models.Assignment, error) {
	m.gotSession, m.gotID = session, id
	return m.assignment, m.err
}

func (m *assignmentServiceMock) ListTaskAssignments(ctx context.Context, session models.Session) ([]models.Assignment, error) {
	return m.list, m.err
}

func (m *assignmentServiceMock) Start(ctx context.Context, session models.Session, id int64, req dto.StartAssignmentRequest) (*models.Assignment, error) {
	m.gotID, m.gotStart = id, req
	return m.assignment, m.err
}

func (m *assignmentServiceMock) TogglePublishSolution(ctx context.Context, session models.Session, id int64) (*models.Assignment, error) {
	m.gotID = id
	return m.assignment, m.err
}

type submissionServiceMock struct {
	view        *models.SubmissionView
	attempt     *service.Attempt
	submission  *models.Submission
	reviews     []models.QuizTaskReview
	submissions []models.Submission
	err         error

	gotStart        bool
	gotSubmissionID string
	gotAnswers      dto.SaveAnswersRequest
}

func (m *submissionServiceMock) OpenForLearner(ctx context.Context, session models.Session, assignmentID int64, start bool) (*models.SubmissionView, error) {
	m.gotStart = start
	return m.view, m.err
}

func (m *submissionServiceMock) GetStarted(ctx context.Context, session models.Session, submissionID string) (*service.Attempt, error) {
	m.gotSubmissionID = submissionID
	return m.attempt, m.err
}

func (m *submissionServiceMock) SaveAnswers(ctx context.Context, session models.Session, submissionID string, req dto.SaveAnswersRequest) (*models.SubmissionView, error) {
	m.gotSubmissionID, m.gotAnswers = submissionID, req
	return m.view, m.err
}

func (m *submissionServiceMock) Submit(ctx context.Context, session models.Session, submissionID string) (*models.Submission, error) {
	m.gotSubmissionID = submissionID
	return m.submission, m.err
}

func (m *submissionServiceMock) GetQuizTasks(ctx context.Context, session models.Session, submissionID string) ([]models.QuizTaskReview, error) {
	m.gotSubmissionID = submissionID
	return m.reviews, m.err
}

func (m *submissionServiceMock) ListPending(ctx context.Context, session models.Session, assignmentID int64) ([]models.Submission, error) {
	return m.submissions, m.err
}

func (m *submissionServiceMock) ListPublished(ctx context.Context, session models.Session, assignmentID int64) ([]models.Submission, error) {
	return m.submissions, m.err
}

type publisherMock struct {
	result *service.PublishResult
	err    error
	got    dto.PublishSubmissionsRequest
}

func (m *publisherMock) Publish(ctx context.Context, session models.Session, req dto.PublishSubmissionsRequest) (*service.PublishResult, error) {
	m.got = req
	return m.result, m.err
}

type taskServiceMock struct {
	task      *models.Task
	tasks     []models.Task
	groups    []models.TaskGroup
	group     *models.TaskGroup
	solutions []models.TaskSolution
	err       error

	gotPayload  dto.TaskPayload
	gotTaskID   int64
	gotEvaluate dto.EvaluateTaskRequest
}

func (m *taskServiceMock) CreateOrReplace(ctx context.Context, session models.Session, payload dto.TaskPayload) (*models.Task, error) {
	m.gotPayload = payload
	return m.task, m.err
}

func (m *taskServiceMock) DeleteEdit(ctx context.Context, session models.Session, taskID int64) error {
	m.gotTaskID = taskID
	return m.err
}

func (m *taskServiceMock) Evaluate(ctx context.Context, session models.Session, taskID int64, req dto.EvaluateTaskRequest) (*models.Task, error) {
	m.gotTaskID, m.gotEvaluate = taskID, req
	return m.task, m.err
}

func (m *taskServiceMock) CreateGroup(ctx context.Context, session models.Session, req dto.CreateTaskGroupRequest) (*models.TaskGroup, error) {
	return m.group, m.err
}

func (m *taskServiceMock) ListGroups(ctx context.Context, session models.Session, assignmentID int64) ([]models.TaskGroup, error) {
	return m.groups, m.err
}

func (m *taskServiceMock) GroupInfo(ctx context.Context, session models.Session, req dto.TaskGroupInfoRequest) ([]models.TaskGroup, error) {
	return m.groups, m.err
}

func (m *taskServiceMock) GetIncluded(ctx context.Context, session models.Session, req dto.IncludedTasksRequest) ([]models.Task, error) {
	return m.tasks, m.err
}

func (m *taskServiceMock) GetSubmitted(ctx context.Context, session models.Session, submissionID string) ([]models.Task, error) {
	return m.tasks, m.err
}

func (m *taskServiceMock) GetTaskSolutions(ctx context.Context, session models.Session, submissionID string) ([]models.TaskSolution, error) {
	return m.solutions, m.err
}

type exporterMock struct {
	result *service.ExportResult
	file   string
	err    error

	gotFormat string
}

func (m *exporterMock) Export(ctx context.Context, session models.Session, assignmentID int64, format string) (*service.ExportResult, error) {
	m.gotFormat = format
	return m.result, m.err
}

func (m *exporterMock) Open(token string) (*os.File, error) {
	if m.err != nil {
		return nil, m.err
	}
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
	}
	return os.Open(m.file)
}

type sessionIssuerMock struct {
	token *dto.SessionToken
	err   error
	got   dto.LaunchContext
}

func (m *sessionIssuerMock) Issue(ctx context.Context, launch dto.LaunchContext) (*dto.SessionToken, error) {
	m.got = launch
	return m.token, m.err
}
