package dto

import "github.com/noah-isme/lti-assignments-api/internal/models"

// SaveAnswersRequest carries learner answers keyed by snapshot task id.
type SaveAnswersRequest struct {
	Answers []models.QuizAnswer `json:"answers" validate:"required,dive"`
}

// PublishSubmissionsRequest captures POST /submissions/publish payload.
type PublishSubmissionsRequest struct {
	AssignmentID int64    `json:"assignmentId" validate:"required"`
	Submissions  []string `json:"submissions" validate:"required,min=1,unique,dive,required"`
}

// PublishResponse reports the submissions whose score push failed.
type PublishResponse struct {
	Published []string `json:"published"`
	Failed    []string `json:"failed"`
}
