package dto

import (
	"time"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

// Quiz selection modes accepted by POST /assignments/quiz.
const (
	QuizModeRandom   = "RANDOM"
	QuizModeDefinite = "DEFINITE"
)

// CreateTaskAssignmentRequest captures POST /assignments/task payload.
type CreateTaskAssignmentRequest struct {
	Title    string            `json:"title" validate:"required,max=255"`
	Deadline time.Time         `json:"deadline" validate:"required"`
	Size     int               `json:"size" validate:"required,min=1,max=50"`
	Types    []models.TaskType `json:"types" validate:"required,min=1,unique,dive,oneof=MULTIPLE_CHOICE COMBINE_TERMS NAME_IMAGE"`
	Glossary []string          `json:"glossary,omitempty" validate:"omitempty,dive,required,max=255"`
}

// CreateQuizAssignmentRequest captures POST /assignments/quiz payload. Size is required for random
// quizzes; definite quizzes hold every listed task. Weights are keyed like a group-keyed size.
type CreateQuizAssignmentRequest struct {
	Title        string             `json:"title" validate:"required,max=255"`
	Deadline     time.Time          `json:"deadline" validate:"required"`
	Type         string             `json:"type" validate:"required,oneof=RANDOM DEFINITE"`
	Assignments  []int64            `json:"assignments" validate:"required,min=1,unique"`
	Tasks        []int64            `json:"tasks" validate:"required,min=1,unique"`
	Difficulties []int              `json:"difficulties,omitempty" validate:"omitempty,dive,min=1,max=3"`
	Size         *models.SizeSpec   `json:"size,omitempty"`
	Weights      map[string]float64 `json:"weights,omitempty" validate:"omitempty,dive,gte=0"`
	Timer        *models.Timer      `json:"timer,omitempty"`
}

// StartAssignmentRequest carries the launch parameters confirming an assignment.
type StartAssignmentRequest struct {
	OutcomeURL string  `json:"outcomeUrl" validate:"required,url"`
	Points     float64 `json:"points" validate:"gte=0"`
}

// ExportGradesRequest selects the grade sheet format.
type ExportGradesRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf xlsx"`
}

// ExportResponse points at a rendered grade sheet.
type ExportResponse struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
