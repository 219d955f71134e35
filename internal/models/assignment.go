package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
)

// AssignmentKind enumerates the supported assignment flavours.
type AssignmentKind string

const (
	AssignmentKindTaskSubmission AssignmentKind = "TASK_SUBMISSION"
	AssignmentKindQuizDefinite   AssignmentKind = "QUIZ_DEFINITE"
	AssignmentKindQuizRandom     AssignmentKind = "QUIZ_RANDOM"
)

// IsQuiz reports whether submissions of this kind carry a task snapshot.
func (k AssignmentKind) IsQuiz() bool {
	return k == AssignmentKindQuizDefinite || k == AssignmentKindQuizRandom
}

// AssignmentStatus captures the assignment lifecycle.
type AssignmentStatus string

const (
	AssignmentStatusCreated               AssignmentStatus = "CREATED"
	AssignmentStatusStarted               AssignmentStatus = "STARTED"
	AssignmentStatusFinished              AssignmentStatus = "FINISHED"
	AssignmentStatusPublishedNoSolution   AssignmentStatus = "PUBLISHED_NO_SOLUTION"
	AssignmentStatusPublishedWithSolution AssignmentStatus = "PUBLISHED_WITH_SOLUTION"
)

// ClosedAssignmentStatuses lists statuses after which no learner work is accepted.
var ClosedAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusFinished,
	AssignmentStatusPublishedNoSolution,
	AssignmentStatusPublishedWithSolution,
}

// IsClosed reports whether the status is FINISHED or one of the published states.
func (s AssignmentStatus) IsClosed() bool {
	for _, closed := range ClosedAssignmentStatuses {
		if s == closed {
			return true
		}
	}
	return false
}

// Assignment is a gradable unit of work issued to a course.
type Assignment struct {
	ID         int64            `db:"id" json:"id"`
	ConsumerID string           `db:"consumer_id" json:"consumerId"`
	CourseID   string           `db:"course_id" json:"courseId"`
	Title      string           `db:"title" json:"title"`
	Kind       AssignmentKind   `db:"kind" json:"type"`
	Size       SizeSpec         `db:"size" json:"size"`
	Glossary   pq.StringArray   `db:"glossary" json:"glossary,omitempty"`
	Points     *float64         `db:"points" json:"points,omitempty"`
	Timer      *Timer           `db:"timer" json:"timer,omitempty"`
	Status     AssignmentStatus `db:"status" json:"status"`
	OutcomeURL *string          `db:"outcome_url" json:"-"`
	Deadline   time.Time        `db:"deadline" json:"deadline"`
	CreatedBy  string           `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
	TaskTypes  []TaskType       `db:"-" json:"taskTypes,omitempty"`
}

// PointsOrZero returns the LMS points possible, zero when the launch has not set it yet.
func (a *Assignment) PointsOrZero() float64 {
	if a == nil || a.Points == nil {
		return 0
	}
	return *a.Points
}

// Tier holds task counts for the low, medium and high difficulty tiers.
type Tier [3]int

// UngroupedKey is the group-map key for tasks that belong to no task group.
const UngroupedKey = "null"

// SizeSpec describes how many tasks an attempt holds. Exactly one variant is set:
// Count for task submissions and definite quizzes, Tiers for a flat random quiz,
// Groups for a group-weighted random quiz.
type SizeSpec struct {
	Count  int
	Tiers  *Tier
	Groups map[string]Tier
}

// CountSize builds a task-count size.
func CountSize(n int) SizeSpec { return SizeSpec{Count: n} }

// TierSize builds a flat tier size.
func TierSize(low, medium, high int) SizeSpec {
	t := Tier{low, medium, high}
	return SizeSpec{Tiers: &t}
}

// GroupSize builds a group-keyed tier size.
func GroupSize(groups map[string]Tier) SizeSpec { return SizeSpec{Groups: groups} }

// IsGrouped reports whether the size is keyed by task group.
func (s SizeSpec) IsGrouped() bool { return s.Groups != nil }

// GroupKeys returns the group keys in a stable order.
func (s SizeSpec) GroupKeys() []string {
	keys := make([]string, 0, len(s.Groups))
	for k := range s.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Total returns the number of tasks an attempt holds.
func (s SizeSpec) Total() int {
	switch {
	case s.Tiers != nil:
		return s.Tiers[0] + s.Tiers[1] + s.Tiers[2]
	case s.Groups != nil:
		total := 0
		for _, tier := range s.Groups {
			total += tier[0] + tier[1] + tier[2]
		}
		return total
	default:
		return s.Count
	}
}

// Validate checks that exactly one variant is populated with non-negative counts.
func (s SizeSpec) Validate() error {
	set := 0
	if s.Tiers != nil {
		set++
	}
	if s.Groups != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("size must be either a tier tuple or a group map")
	}
	if set == 0 && s.Count <= 0 {
		return fmt.Errorf("size must be positive")
	}
	check := func(t Tier) error {
		for _, n := range t {
			if n < 0 {
				return fmt.Errorf("tier counts must be non-negative")
			}
		}
		return nil
	}
	if s.Tiers != nil {
		return check(*s.Tiers)
	}
	for _, tier := range s.Groups {
		if err := check(tier); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the size as a number, a 3-tuple or a group map.
func (s SizeSpec) MarshalJSON() ([]byte, error) {
	switch {
	case s.Tiers != nil:
		return json.Marshal(s.Tiers[:])
	case s.Groups != nil:
		return json.Marshal(s.Groups)
	default:
		return json.Marshal(s.Count)
	}
}

// UnmarshalJSON decodes any of the three variants.
func (s *SizeSpec) UnmarshalJSON(data []byte) error {
	*s = SizeSpec{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '[':
		var values []int
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return fmt.Errorf("decode tier size: %w", err)
		}
		if len(values) != 3 {
			return fmt.Errorf("tier size needs 3 counts, got %d", len(values))
		}
		t := Tier{values[0], values[1], values[2]}
		s.Tiers = &t
	case '{':
		groups := map[string]Tier{}
		if err := json.Unmarshal(trimmed, &groups); err != nil {
			return fmt.Errorf("decode group size: %w", err)
		}
		s.Groups = groups
	case '"':
		// Older rows stored the count as a JSON string.
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		return s.UnmarshalJSON([]byte(raw))
	default:
		if err := json.Unmarshal(trimmed, &s.Count); err != nil {
			return fmt.Errorf("decode size count: %w", err)
		}
	}
	return nil
}

// Value implements driver.Valuer for the jsonb size column.
func (s SizeSpec) Value() (driver.Value, error) {
	payload, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

// Scan implements sql.Scanner for the jsonb size column.
func (s *SizeSpec) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = SizeSpec{}
		return nil
	case []byte:
		return s.UnmarshalJSON(v)
	case string:
		return s.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported size type %T", value)
	}
}

// Timer is a per-attempt time allowance.
type Timer struct {
	Hours   int
	Minutes int
}

// Duration converts the timer into a time.Duration.
func (t Timer) Duration() time.Duration {
	return time.Duration(t.Hours)*time.Hour + time.Duration(t.Minutes)*time.Minute
}

// MarshalJSON encodes the timer as [hours, minutes].
func (t Timer) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{t.Hours, t.Minutes})
}

// UnmarshalJSON decodes [hours, minutes].
func (t *Timer) UnmarshalJSON(data []byte) error {
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) != 2 {
		return fmt.Errorf("timer needs [hours, minutes]")
	}
	t.Hours, t.Minutes = values[0], values[1]
	return nil
}

// Value stores the timer as an integer array.
func (t Timer) Value() (driver.Value, error) {
	return pq.Int64Array{int64(t.Hours), int64(t.Minutes)}.Value()
}

// Scan reads the integer array column.
func (t *Timer) Scan(value interface{}) error {
	var arr pq.Int64Array
	if err := arr.Scan(value); err != nil {
		return fmt.Errorf("scan timer: %w", err)
	}
	if len(arr) != 2 {
		return fmt.Errorf("timer column needs 2 elements, got %d", len(arr))
	}
	t.Hours, t.Minutes = int(arr[0]), int(arr[1])
	return nil
}

// AssignmentTaskLink attaches a pool task to a quiz assignment.
type AssignmentTaskLink struct {
	AssignmentID int64   `db:"assignment_id" json:"assignmentId"`
	TaskID       int64   `db:"task_id" json:"taskId"`
	Difficulty   int     `db:"difficulty" json:"difficulty"`
	Fraction     float64 `db:"fraction" json:"fraction"`
}

// PoolTask is a quiz pool entry joined with its task content, author and group.
type PoolTask struct {
	AssignmentTaskLink
	Type      TaskType    `json:"type"`
	Content   TaskContent `json:"content"`
	CreatedBy string      `json:"createdBy"`
	GroupID   *int64      `json:"groupId,omitempty"`
}

// GroupKey returns the size-map key of the pool task's group.
func (p PoolTask) GroupKey() string {
	return GroupKeyOf(p.GroupID)
}

// GroupKeyOf formats an optional group id the way group-keyed sizes and weights are keyed.
func GroupKeyOf(groupID *int64) string {
	if groupID == nil {
		return UngroupedKey
	}
	return fmt.Sprintf("%d", *groupID)
}

// AssignmentFilter scopes assignment listings to a course.
type AssignmentFilter struct {
	ConsumerID string
	CourseID   string
	Kind       AssignmentKind
	Statuses   []AssignmentStatus
	IDs        []int64
}
