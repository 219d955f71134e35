package dto

import (
	"fmt"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

// TermInput is one side of a combine-terms pair. Image terms carry a media id.
type TermInput struct {
	Type models.TermType `json:"type" validate:"required,oneof=TEXT IMAGE"`
	Term string          `json:"term" validate:"required,max=500"`
}

// TermPairInput is a term together with the term it must be combined with.
type TermPairInput struct {
	Term        TermInput `json:"term"`
	RelatedTerm TermInput `json:"relatedTerm"`
}

// TaskPayload captures POST /tasks. Without TaskID a task is created; with TaskID and Replace the
// pending task is overwritten; with TaskID alone an instructor edit overlay is written.
type TaskPayload struct {
	AssignmentID  int64           `json:"assignmentId" validate:"required"`
	TaskID        *int64          `json:"taskId,omitempty"`
	Replace       bool            `json:"replace"`
	Type          models.TaskType `json:"type" validate:"required,oneof=MULTIPLE_CHOICE COMBINE_TERMS NAME_IMAGE"`
	Title         string          `json:"title" validate:"required,max=255"`
	Description   string          `json:"description" validate:"max=5000"`
	MediaIDs      []string        `json:"mediaIds,omitempty" validate:"omitempty,dive,required"`
	Options       []string        `json:"options,omitempty" validate:"omitempty,dive,required,max=500"`
	IndexSolution int             `json:"indexSolution" validate:"gte=0"`
	Pairs         []TermPairInput `json:"pairs,omitempty" validate:"omitempty,dive"`
	Solution      string          `json:"solution,omitempty" validate:"max=255"`
}

// Validate checks the fields the task type depends on.
func (p TaskPayload) Validate() error {
	switch p.Type {
	case models.TaskTypeMultipleChoice:
		if len(p.Options) < 2 {
			return fmt.Errorf("multiple choice tasks need at least two options")
		}
		if p.IndexSolution >= len(p.Options) {
			return fmt.Errorf("solution index %d is out of range", p.IndexSolution)
		}
	case models.TaskTypeCombineTerms:
		if len(p.Pairs) == 0 {
			return fmt.Errorf("combine terms tasks need at least one pair")
		}
	case models.TaskTypeNameImage:
		if len(p.MediaIDs) == 0 {
			return fmt.Errorf("name image tasks need an image")
		}
		if p.Solution == "" {
			return fmt.Errorf("name image tasks need a solution")
		}
	default:
		return fmt.Errorf("unsupported task type %q", p.Type)
	}
	return nil
}

// IsEdit reports whether the payload targets an existing task without replacing it.
func (p TaskPayload) IsEdit() bool {
	return p.TaskID != nil && !p.Replace
}

// EvaluateTaskRequest captures POST /tasks/:id/evaluate.
type EvaluateTaskRequest struct {
	SubmissionID string   `json:"submissionId" validate:"required"`
	Score        *float64 `json:"score" validate:"omitempty,gte=0"`
	Include      bool     `json:"include"`
	GroupID      *int64   `json:"groupId,omitempty"`
}

// CreateTaskGroupRequest captures POST /tasks/groups.
type CreateTaskGroupRequest struct {
	AssignmentID int64   `json:"assignmentId" validate:"required"`
	Name         string  `json:"name" validate:"required,max=100"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// TaskGroupInfoRequest captures POST /tasks/groups/info.
type TaskGroupInfoRequest struct {
	Groups []int64 `json:"groups" validate:"required,min=1"`
}

// IncludedTasksRequest captures POST /tasks/include.
type IncludedTasksRequest struct {
	Assignments []int64 `json:"assignments" validate:"required,min=1"`
}
