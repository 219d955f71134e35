package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TaskType enumerates gradable task kinds.
type TaskType string

const (
	TaskTypeMultipleChoice TaskType = "MULTIPLE_CHOICE"
	TaskTypeCombineTerms   TaskType = "COMBINE_TERMS"
	TaskTypeNameImage      TaskType = "NAME_IMAGE"
)

// Valid reports whether the task type is known.
func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeMultipleChoice, TaskTypeCombineTerms, TaskTypeNameImage:
		return true
	}
	return false
}

// TaskStatus captures the evaluation state of submitted work.
type TaskStatus string

const (
	TaskStatusPending          TaskStatus = "PENDING"
	TaskStatusEvaluated        TaskStatus = "EVALUATED"
	TaskStatusEvaluatedInclude TaskStatus = "EVALUATED_INCLUDE"
)

// IsEvaluated reports whether an evaluator has scored the task.
func (s TaskStatus) IsEvaluated() bool {
	return s == TaskStatusEvaluated || s == TaskStatusEvaluatedInclude
}

// TermType distinguishes text terms from image terms in combine-terms tasks.
type TermType string

const (
	TermTypeText  TermType = "TEXT"
	TermTypeImage TermType = "IMAGE"
)

// ChoiceOption is one answer of a multiple choice task.
type ChoiceOption struct {
	ID     int    `json:"id"`
	Option string `json:"option"`
}

// Term is one side of a combine-terms pair.
type Term struct {
	ID   int      `json:"id"`
	Type TermType `json:"type"`
	Term string   `json:"term"`
}

// TermPair links a left term id to a right term id.
type TermPair [2]int

// Options holds the per-type option payload. Only the field matching the task type is set;
// Columns is the display form of Terms once split into left and right columns.
type Options struct {
	Choices []ChoiceOption
	Images  []string
	Terms   []Term
	Columns [][]Term
}

// IsEmpty reports whether no variant is populated.
func (o Options) IsEmpty() bool {
	return len(o.Choices) == 0 && len(o.Images) == 0 && len(o.Terms) == 0 && len(o.Columns) == 0
}

// MarshalJSON encodes whichever variant is populated.
func (o Options) MarshalJSON() ([]byte, error) {
	switch {
	case o.Columns != nil:
		return json.Marshal(o.Columns)
	case o.Choices != nil:
		return json.Marshal(o.Choices)
	case o.Terms != nil:
		return json.Marshal(o.Terms)
	case o.Images != nil:
		return json.Marshal(o.Images)
	default:
		return []byte("[]"), nil
	}
}

// UnmarshalJSON detects the variant from the payload shape.
func (o *Options) UnmarshalJSON(data []byte) error {
	*o = Options{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return fmt.Errorf("options must be an array: %w", err)
	}
	if len(items) == 0 {
		return nil
	}
	first := bytes.TrimSpace(items[0])
	switch first[0] {
	case '[':
		return json.Unmarshal(trimmed, &o.Columns)
	case '"':
		return json.Unmarshal(trimmed, &o.Images)
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(first, &probe); err != nil {
			return err
		}
		if _, ok := probe["option"]; ok {
			return json.Unmarshal(trimmed, &o.Choices)
		}
		return json.Unmarshal(trimmed, &o.Terms)
	default:
		return fmt.Errorf("unsupported option element %q", string(first))
	}
}

// Value implements driver.Valuer for jsonb columns.
func (o Options) Value() (driver.Value, error) {
	data, err := o.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for jsonb columns.
func (o *Options) Scan(value interface{}) error {
	return scanJSON(value, o, "options")
}

// AnswerValue is a solution or a learner answer: a choice id, a glossary name or a list of term pairs.
type AnswerValue struct {
	Choice *int
	Name   *string
	Pairs  []TermPair
}

// ChoiceAnswer builds a multiple choice answer.
func ChoiceAnswer(id int) AnswerValue { return AnswerValue{Choice: &id} }

// NameAnswer builds a name-image answer.
func NameAnswer(name string) AnswerValue { return AnswerValue{Name: &name} }

// PairsAnswer builds a combine-terms answer.
func PairsAnswer(pairs ...TermPair) AnswerValue {
	if pairs == nil {
		pairs = []TermPair{}
	}
	return AnswerValue{Pairs: pairs}
}

// IsSet reports whether the value carries an answer.
func (v AnswerValue) IsSet() bool {
	return v.Choice != nil || v.Name != nil || v.Pairs != nil
}

// Equal compares scalar answers.
func (v AnswerValue) Equal(other AnswerValue) bool {
	switch {
	case v.Choice != nil && other.Choice != nil:
		return *v.Choice == *other.Choice
	case v.Name != nil && other.Name != nil:
		return *v.Name == *other.Name
	}
	return false
}

// MarshalJSON encodes the populated variant, null when unset.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Choice != nil:
		return json.Marshal(*v.Choice)
	case v.Name != nil:
		return json.Marshal(*v.Name)
	case v.Pairs != nil:
		return json.Marshal(v.Pairs)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a number, a string or a pair list.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	*v = AnswerValue{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		v.Name = &name
	case '[':
		pairs := []TermPair{}
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return fmt.Errorf("decode term pairs: %w", err)
		}
		v.Pairs = pairs
	default:
		var choice int
		if err := json.Unmarshal(trimmed, &choice); err != nil {
			return fmt.Errorf("decode choice: %w", err)
		}
		v.Choice = &choice
	}
	return nil
}

// Value implements driver.Valuer for jsonb columns.
func (v AnswerValue) Value() (driver.Value, error) {
	if !v.IsSet() {
		return nil, nil
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for jsonb columns.
func (v *AnswerValue) Scan(value interface{}) error {
	return scanJSON(value, v, "solution")
}

// TaskContent is the editable part of a task.
type TaskContent struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	MediaID     *string     `json:"mediaId,omitempty"`
	Options     Options     `json:"options"`
	Solution    AnswerValue `json:"solution"`
}

// TaskEdit is an instructor overlay that supersedes the base task fields.
type TaskEdit struct {
	TaskContent
	EditedBy string    `json:"editedBy"`
	EditedAt time.Time `json:"editedAt"`
}

// Value implements driver.Valuer for the jsonb edit column.
func (e TaskEdit) Value() (driver.Value, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal task edit: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner for the jsonb edit column.
func (e *TaskEdit) Scan(value interface{}) error {
	return scanJSON(value, e, "task edit")
}

// Task is learner-submitted work and, once included, a quiz pool item.
type Task struct {
	ID           int64       `db:"id" json:"id"`
	SubmissionID string      `db:"submission_id" json:"submissionId"`
	Type         TaskType    `db:"type" json:"type"`
	Title        string      `db:"title" json:"title"`
	Description  string      `db:"description" json:"description"`
	MediaID      *string     `db:"media_id" json:"mediaId,omitempty"`
	Options      Options     `db:"options" json:"options"`
	Solution     AnswerValue `db:"solution" json:"solution"`
	Edit         *TaskEdit   `db:"edit" json:"edit,omitempty"`
	Status       TaskStatus  `db:"status" json:"status"`
	Score        *float64    `db:"score" json:"score,omitempty"`
	EvaluatedAt  *time.Time  `db:"evaluated_at" json:"evaluatedAt,omitempty"`
	EvaluatedBy  *string     `db:"evaluated_by" json:"evaluatedBy,omitempty"`
	GroupID      *int64      `db:"task_group_id" json:"groupId,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
}

// Base returns the original task content.
func (t Task) Base() TaskContent {
	return TaskContent{
		Title:       t.Title,
		Description: t.Description,
		MediaID:     t.MediaID,
		Options:     t.Options,
		Solution:    t.Solution,
	}
}

// Effective returns the edit overlay when present, otherwise the base content.
func (t Task) Effective() TaskContent {
	if t.Edit != nil {
		return t.Edit.TaskContent
	}
	return t.Base()
}

// TaskGroup partitions pool tasks for weighted sampling and grading.
type TaskGroup struct {
	ID           int64   `db:"id" json:"id"`
	AssignmentID int64   `db:"assignment_id" json:"assignmentId"`
	Name         string  `db:"name" json:"name"`
	Description  *string `db:"description" json:"description,omitempty"`
}

// TaskSolution exposes a task's effective solution to learners once published.
type TaskSolution struct {
	TaskID   int64       `json:"id"`
	Solution AnswerValue `json:"solution"`
}

func scanJSON(value interface{}, dest interface{}, label string) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return json.Unmarshal([]byte("null"), dest)
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		data = []byte("null")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
