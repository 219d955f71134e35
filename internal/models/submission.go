package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionStatus captures the evaluation state of one attempt.
type SubmissionStatus string

const (
	SubmissionStatusStarted            SubmissionStatus = "STARTED"
	SubmissionStatusPending            SubmissionStatus = "PENDING"
	SubmissionStatusEvaluated          SubmissionStatus = "EVALUATED"
	SubmissionStatusEvaluatedPublished SubmissionStatus = "EVALUATED_PUBLISHED"
)

// Submission is one learner's attempt at an assignment.
type Submission struct {
	ID           string           `db:"id" json:"id"`
	AssignmentID int64            `db:"assignment_id" json:"assignmentId"`
	UserID       string           `db:"user_id" json:"userId"`
	Status       SubmissionStatus `db:"status" json:"status"`
	Tasks        QuizTasks        `db:"tasks" json:"tasks,omitempty"`
	Score        *float64         `db:"score" json:"score,omitempty"`
	LMSScore     *float64         `db:"lms_score" json:"lmsScore,omitempty"`
	ReturnID     string           `db:"return_id" json:"-"`
	SubmittedAt  *time.Time       `db:"submitted_at" json:"submittedAt,omitempty"`
	PublishedAt  *time.Time       `db:"published_at" json:"publishedAt,omitempty"`
	PublishedBy  *string          `db:"published_by" json:"publishedBy,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
}

// SubmissionView is a submission enriched with the effective deadline of the attempt.
type SubmissionView struct {
	Submission
	Deadline time.Time `json:"deadline"`
	Size     SizeSpec  `json:"size"`
}

// QuizTaskContent is the learner-visible part of a pool task frozen into a quiz attempt.
type QuizTaskContent struct {
	ID          int64    `json:"id"`
	Type        TaskType `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	MediaID     *string  `json:"mediaId,omitempty"`
	Options     Options  `json:"options"`
}

// QuizTask is one entry of a quiz snapshot. Only Answer and Score change after creation.
type QuizTask struct {
	Difficulty int             `json:"difficulty"`
	Fraction   float64         `json:"fraction"`
	Group      *int64          `json:"group"`
	Task       QuizTaskContent `json:"task"`
	Answer     AnswerValue     `json:"answer"`
	Score      *float64        `json:"score,omitempty"`
}

// QuizTasks is the ordered snapshot stored in the submission's jsonb column.
type QuizTasks []QuizTask

// Value implements driver.Valuer.
func (q QuizTasks) Value() (driver.Value, error) {
	if q == nil {
		return nil, nil
	}
	data, err := json.Marshal([]QuizTask(q))
	if err != nil {
		return nil, fmt.Errorf("marshal quiz tasks: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (q *QuizTasks) Scan(value interface{}) error {
	return scanJSON(value, (*[]QuizTask)(q), "quiz tasks")
}

// TaskIDs lists the pool task ids referenced by the snapshot.
func (q QuizTasks) TaskIDs() []int64 {
	ids := make([]int64, 0, len(q))
	for _, t := range q {
		ids = append(ids, t.Task.ID)
	}
	return ids
}

// QuizAnswer is a learner answer addressed to one snapshot task.
type QuizAnswer struct {
	TaskID int64       `json:"id" validate:"required"`
	Answer AnswerValue `json:"answer"`
}

// QuizTaskReview is the instructor view of a graded snapshot entry.
type QuizTaskReview struct {
	QuizTask
	Solution AnswerValue `json:"solution"`
}

// SubmissionFilter narrows submission listings.
type SubmissionFilter struct {
	AssignmentID int64
	Statuses     []SubmissionStatus
	IDs          []string
}
