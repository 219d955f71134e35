package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/pkg/response"
)

type taskService interface {
	CreateOrReplace(ctx context.Context, session models.Session, payload dto.TaskPayload) (*models.Task, error)
	DeleteEdit(ctx context.Context, session models.Session, taskID int64) error
	Evaluate(ctx context.Context, session models.Session, taskID int64, req dto.EvaluateTaskRequest) (*models.Task, error)
	CreateGroup(ctx context.Context, session models.Session, req dto.CreateTaskGroupRequest) (*models.TaskGroup, error)
	ListGroups(ctx context.Context, session models.Session, assignmentID int64) ([]models.TaskGroup, error)
	GroupInfo(ctx context.Context, session models.Session, req dto.TaskGroupInfoRequest) ([]models.TaskGroup, error)
	GetIncluded(ctx context.Context, session models.Session, req dto.IncludedTasksRequest) ([]models.Task, error)
	GetSubmitted(ctx context.Context, session models.Session, submissionID string) ([]models.Task, error)
	GetTaskSolutions(ctx context.Context, session models.Session, submissionID string) ([]models.TaskSolution, error)
}

// TaskHandler exposes task authoring, evaluation and grouping endpoints.
type TaskHandler struct {
	service taskService
}

// NewTaskHandler builds the handler.
func NewTaskHandler(service taskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// Save godoc
// @Summary Create, replace or edit a task
// @Description Without taskId a task is created. With taskId and replace=true a pending task is overwritten; with taskId alone an instructor edit is stored.
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.TaskPayload true "Task payload"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) Save(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var payload dto.TaskPayload
	if !bindJSON(c, &payload, "invalid task payload") {
		return
	}
	task, err := h.service.CreateOrReplace(c.Request.Context(), session, payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	if payload.TaskID != nil {
		response.OK(c, task)
		return
	}
	response.Created(c, task)
}

// DeleteEdit godoc
// @Summary Drop the instructor edit of a task
// @Tags Tasks
// @Param id path int true "Task ID"
// @Success 204
// @Router /tasks/{id}/edit [delete]
func (h *TaskHandler) DeleteEdit(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteEdit(c.Request.Context(), session, id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Evaluate godoc
// @Summary Score a submitted task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path int true "Task ID"
// @Param payload body dto.EvaluateTaskRequest true "Evaluation"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id}/evaluate [post]
func (h *TaskHandler) Evaluate(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	var req dto.EvaluateTaskRequest
	if !bindJSON(c, &req, "invalid evaluation payload") {
		return
	}
	task, err := h.service.Evaluate(c.Request.Context(), session, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, task)
}

// CreateGroup godoc
// @Summary Create a task group
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.CreateTaskGroupRequest true "Group"
// @Success 201 {object} response.Envelope
// @Router /tasks/groups [post]
func (h *TaskHandler) CreateGroup(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateTaskGroupRequest
	if !bindJSON(c, &req, "invalid group payload") {
		return
	}
	group, err := h.service.CreateGroup(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// ListGroups godoc
// @Summary List the task groups of an assignment
// @Tags Tasks
// @Produce json
// @Param assignmentId path int true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/groups/{assignmentId} [get]
func (h *TaskHandler) ListGroups(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	assignmentID, ok := int64Param(c, "assignmentId")
	if !ok {
		return
	}
	groups, err := h.service.ListGroups(c.Request.Context(), session, assignmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, groups)
}

// GroupInfo godoc
// @Summary Describe task groups by id
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.TaskGroupInfoRequest true "Group ids"
// @Success 200 {object} response.Envelope
// @Router /tasks/groups/info [post]
func (h *TaskHandler) GroupInfo(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var req dto.TaskGroupInfoRequest
	if !bindJSON(c, &req, "invalid group info payload") {
		return
	}
	groups, err := h.service.GroupInfo(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, groups)
}

// Included godoc
// @Summary List tasks included in the quiz pool of source assignments
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body dto.IncludedTasksRequest true "Source assignments"
// @Success 200 {object} response.Envelope
// @Router /tasks/include [post]
func (h *TaskHandler) Included(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var req dto.IncludedTasksRequest
	if !bindJSON(c, &req, "invalid include payload") {
		return
	}
	tasks, err := h.service.GetIncluded(c.Request.Context(), session, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tasks)
}

// Submitted godoc
// @Summary List the tasks of a submission
// @Tags Tasks
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/submission/{submissionId} [get]
func (h *TaskHandler) Submitted(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	tasks, err := h.service.GetSubmitted(c.Request.Context(), session, c.Param("submissionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tasks)
}

// Solutions godoc
// @Summary Show task solutions once the instructor releases them
// @Tags Tasks
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/solution/{submissionId} [get]
func (h *TaskHandler) Solutions(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	solutions, err := h.service.GetTaskSolutions(c.Request.Context(), session, c.Param("submissionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, solutions)
}
