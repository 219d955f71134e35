package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/dto"
	"github.com/noah-isme/lti-assignments-api/internal/middleware"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/internal/service"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
	"github.com/noah-isme/lti-assignments-api/pkg/response"
)

type submissionService interface {
	OpenForLearner(ctx context.Context, session models.Session, assignmentID int64, start bool) (*models.SubmissionView, error)
	GetStarted(ctx context.Context, session models.Session, submissionID string) (*service.Attempt, error)
	SaveAnswers(ctx context.Context, session models.Session, submissionID string, req dto.SaveAnswersRequest) (*models.SubmissionView, error)
	Submit(ctx context.Context, session models.Session, submissionID string) (*models.Submission, error)
	GetQuizTasks(ctx context.Context, session models.Session, submissionID string) ([]models.QuizTaskReview, error)
	ListPending(ctx context.Context, session models.Session, assignmentID int64) ([]models.Submission, error)
	ListPublished(ctx context.Context, session models.Session, assignmentID int64) ([]models.Submission, error)
}

type scorePublisher interface {
	Publish(ctx context.Context, session models.Session, req dto.PublishSubmissionsRequest) (*service.PublishResult, error)
}

// SubmissionHandler exposes learner attempts and instructor grading endpoints.
type SubmissionHandler struct {
	service   submissionService
	publisher scorePublisher
}

// NewSubmissionHandler builds the handler.
func NewSubmissionHandler(service submissionService, publisher scorePublisher) *SubmissionHandler {
	return &SubmissionHandler{service: service, publisher: publisher}
}

// Open godoc
// @Summary Get or start the caller's submission for an assignment
// @Tags Submissions
// @Produce json
// @Param assignmentId path int true "Assignment ID"
// @Param start query bool false "Create the submission when missing"
// @Success 200 {object} response.Envelope
// @Router /submissions/assignment/{assignmentId} [get]
func (h *SubmissionHandler) Open(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	assignmentID, ok := int64Param(c, "assignmentId")
	if !ok {
		return
	}
	start := false
	if raw := c.Query("start"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start must be a boolean"))
			return
		}
		start = parsed
	}
	view, err := h.service.OpenForLearner(c.Request.Context(), session, assignmentID, start)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view, middleware.ExtractMeta(c))
}

// Started godoc
// @Summary Get the caller's running attempt
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/started/{id} [get]
func (h *SubmissionHandler) Started(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	attempt, err := h.service.GetStarted(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, attempt.View(), middleware.ExtractMeta(c))
}

// QuizTasks godoc
// @Summary Review the graded tasks of a quiz submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/quiz/{id} [get]
func (h *SubmissionHandler) QuizTasks(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	items, err := h.service.GetQuizTasks(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// SaveAnswers godoc
// @Summary Save quiz answers without submitting
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.SaveAnswersRequest true "Answers"
// @Success 200 {object} response.Envelope
// @Router /submissions/quiz/{id}/answers [post]
func (h *SubmissionHandler) SaveAnswers(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var req dto.SaveAnswersRequest
	if !bindJSON(c, &req, "invalid answers payload") {
		return
	}
	view, err := h.service.SaveAnswers(c.Request.Context(), session, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Submit godoc
// @Summary Submit a quiz for grading
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/quiz/{id} [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	submission, err := h.service.Submit(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, submission)
}

// Pending godoc
// @Summary List submissions awaiting publication
// @Tags Submissions
// @Produce json
// @Param assignmentId path int true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/pending/{assignmentId} [get]
func (h *SubmissionHandler) Pending(c *gin.Context) {
	h.list(c, h.service.ListPending)
}

// Published godoc
// @Summary List published submissions
// @Tags Submissions
// @Produce json
// @Param assignmentId path int true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/published/{assignmentId} [get]
func (h *SubmissionHandler) Published(c *gin.Context) {
	h.list(c, h.service.ListPublished)
}

func (h *SubmissionHandler) list(c *gin.Context, fetch func(context.Context, models.Session, int64) ([]models.Submission, error)) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	assignmentID, ok := int64Param(c, "assignmentId")
	if !ok {
		return
	}
	items, err := fetch(c.Request.Context(), session, assignmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

// Publish godoc
// @Summary Push scores to the learning platform and publish submissions
// @Description Answers 502 with the per-submission result when any push failed; failed pushes are retried in the background.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.PublishSubmissionsRequest true "Submissions to publish"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /submissions/publish [post]
func (h *SubmissionHandler) Publish(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		return
	}
	var req dto.PublishSubmissionsRequest
	if !bindJSON(c, &req, "invalid publish payload") {
		return
	}
	result, err := h.publisher.Publish(c.Request.Context(), session, req)
	if err != nil {
		if result != nil && errors.Is(err, appErrors.ErrUpstream) {
			response.ErrorWithData(c, err, dto.PublishResponse{Published: result.Published, Failed: result.Failed})
			return
		}
		response.Error(c, err)
		return
	}
	response.OK(c, dto.PublishResponse{Published: result.Published, Failed: result.Failed})
}
