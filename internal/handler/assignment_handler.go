package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/middleware"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/pkg/response"
)

type assignmentService interface {
	CreateTaskAssignment(ctx context.Context, session models.Session, req dto.CreateTaskAssignmentRequest) (*models.Assignment, error)
	CreateQuizAssignment(ctx context.Context, session models.Session, req dto.CreateQuizAssignmentRequest) (*models.Assignment, error)
	Get(ctx context.Context, session models.Session, id int64) (*models.Assignment, error)
	ListTaskAssignments(ctx context.Context, session models.Session) ([]models.Assignment, error)
	Start(ctx context.Context, session models.Session, id int64, req dto.StartAssignmentRequest) (*models.Assignment, error)
	TogglePublishSolution(ctx context.Context, session models.Session, id int64) (*models.Assignment, error)
}

// AssignmentHandler exposes assignment authoring and launch endpoints.
type AssignmentHandler struct {
	service assignmentService
}

// NewAssignmentHandler builds the handler.
func NewAssignmentHandler(service assignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: service}
}

// Get godoc
// @Summary Get an assignment of the current course
// @Tags Assignments
// @Produce json
// @Param id path int true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id} [get]
func (h *AssignmentHandler) Get(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	assignment, err := h.service.Get(c.Request.Context(), session, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, assignment, middleware.ExtractMeta(c))
}

// ListTaskAssignments godoc
// @Summary List finished task assignments usable as quiz sources
// @Tags Assignments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /assignments/type/task [get]
func (h *AssignmentHandler) ListTaskAssignments(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.ListTaskAssignments(c.Request.Context(), session)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// CreateTask godoc
// @Summary Create a task submission assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateTaskAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/task [post]
func (h *AssignmentHandler) CreateTask(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateTaskAssignmentRequest
	if !bindJSON(c, &req, "invalid assignment payload") {
		return
	}
	assignment, err := h.service.CreateTaskAssignment(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// CreateQuiz godoc
// @Summary Create a quiz from finished task assignments
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body dto.CreateQuizAssignmentRequest true "Quiz payload"
// @Success 201 {object} response.Envelope
// @Router /assignments/quiz [post]
func (h *AssignmentHandler) CreateQuiz(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateQuizAssignmentRequest
	if !bindJSON(c, &req, "invalid quiz payload") {
		return
	}
	assignment, err := h.service.CreateQuizAssignment(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Start godoc
// @Summary Confirm the launch of an assignment
// @Tags Assignments
// @Accept json
// @Produce json
// @Param id path int true "Assignment ID"
// @Param payload body dto.StartAssignmentRequest true "Outcome service"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/start [post]
func (h *AssignmentHandler) Start(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req dto.StartAssignmentRequest
	if !bindJSON(c, &req, "invalid start payload") {
		return
	}
	assignment, err := h.service.Start(c.Request.Context(), session, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, assignment)
}

// ToggleSolution godoc
// @Summary Show or hide solutions of a published assignment
// @Tags Assignments
// @Produce json
// @Param id path int true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/solution/toggle [post]
func (h *AssignmentHandler) ToggleSolution(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	assignment, err := h.service.TogglePublishSolution(c.Request.Context(), session, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, assignment)
}
