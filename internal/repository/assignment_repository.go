package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/pkg/database"
)

const assignmentColumns = `a.id, a.consumer_id, a.course_id, a.title, a.kind, a.size, a.glossary, a.points, a.timer,
       a.status, a.outcome_url, a.deadline, a.created_by, a.created_at`

// AssignmentRepository persists assignments, their accepted task types and quiz pools.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts the assignment with its accepted task types and pool links in one transaction.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment, links []models.AssignmentTaskLink) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return r.createTx(ctx, tx, assignment, links)
	})
}

func (r *AssignmentRepository) createTx(ctx context.Context, tx *sqlx.Tx, assignment *models.Assignment, links []models.AssignmentTaskLink) error {
	if assignment.Status == "" {
		assignment.Status = models.AssignmentStatusCreated
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const insertAssignment = `INSERT INTO assignments
	(consumer_id, course_id, title, kind, size, glossary, points, timer, status, outcome_url, deadline, created_by, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	RETURNING id`
	err := tx.QueryRowxContext(ctx, insertAssignment,
		assignment.ConsumerID,
		assignment.CourseID,
		assignment.Title,
		assignment.Kind,
		assignment.Size,
		assignment.Glossary,
		assignment.Points,
		assignment.Timer,
		assignment.Status,
		assignment.OutcomeURL,
		assignment.Deadline,
		assignment.CreatedBy,
		assignment.CreatedAt,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}

	for _, taskType := range assignment.TaskTypes {
		if _, err := tx.ExecContext(ctx, `INSERT INTO assignment_task_types (assignment_id, task_type) VALUES ($1, $2)`, assignment.ID, taskType); err != nil {
			return fmt.Errorf("insert assignment task type: %w", err)
		}
	}

	for i := range links {
		links[i].AssignmentID = assignment.ID
	}
	if len(links) > 0 {
		const insertLinks = `INSERT INTO assignment_tasks (assignment_id, task_id, difficulty, fraction)
		VALUES (:assignment_id, :task_id, :difficulty, :fraction)`
		if _, err := tx.NamedExecContext(ctx, insertLinks, links); err != nil {
			return fmt.Errorf("insert assignment tasks: %w", err)
		}
	}
	return nil
}

// GetByID fetches an assignment with its accepted task types.
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments a WHERE a.id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	if err := r.attachTaskTypes(ctx, &assignment); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// GetScoped fetches an assignment only when it belongs to the consumer and course.
func (r *AssignmentRepository) GetScoped(ctx context.Context, id int64, consumerID, courseID string) (*models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments a WHERE a.id = $1 AND a.consumer_id = $2 AND a.course_id = $3`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id, consumerID, courseID); err != nil {
		return nil, err
	}
	if err := r.attachTaskTypes(ctx, &assignment); err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *AssignmentRepository) attachTaskTypes(ctx context.Context, assignment *models.Assignment) error {
	var types []models.TaskType
	const query = `SELECT task_type FROM assignment_task_types WHERE assignment_id = $1 ORDER BY task_type`
	if err := r.db.SelectContext(ctx, &types, query, assignment.ID); err != nil {
		return fmt.Errorf("load assignment task types: %w", err)
	}
	assignment.TaskTypes = types
	return nil
}

// List returns assignments matching the filter ordered by creation time.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(`SELECT ` + assignmentColumns + ` FROM assignments a`)

	conditions := make([]string, 0, 5)
	if filter.ConsumerID != "" {
		args = append(args, filter.ConsumerID)
		conditions = append(conditions, fmt.Sprintf("a.consumer_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("a.course_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("a.kind = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, stringArray(filter.Statuses))
		conditions = append(conditions, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, pq.Int64Array(filter.IDs))
		conditions = append(conditions, fmt.Sprintf("a.id = ANY($%d)", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY a.created_at ASC")

	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// Start moves a CREATED assignment to STARTED and records the LMS outcome target.
func (r *AssignmentRepository) Start(ctx context.Context, id int64, outcomeURL string, points float64) error {
	const query = `UPDATE assignments SET status = $2, outcome_url = $3, points = $4, updated_at = $5
	WHERE id = $1 AND status = $6`
	result, err := r.db.ExecContext(ctx, query, id, models.AssignmentStatusStarted, outcomeURL, points, time.Now().UTC(), models.AssignmentStatusCreated)
	if err != nil {
		return fmt.Errorf("start assignment: %w", err)
	}
	return expectRows(result, "start assignment")
}

// UpdateStatus transitions an assignment only while it is in one of the from statuses.
func (r *AssignmentRepository) UpdateStatus(ctx context.Context, id int64, from []models.AssignmentStatus, to models.AssignmentStatus) error {
	const query = `UPDATE assignments SET status = $2, updated_at = $3 WHERE id = $1 AND status = ANY($4)`
	result, err := r.db.ExecContext(ctx, query, id, to, time.Now().UTC(), stringArray(from))
	if err != nil {
		return fmt.Errorf("update assignment status: %w", err)
	}
	return expectRows(result, "update assignment status")
}

// FinishExpired closes every CREATED or STARTED assignment whose deadline lies before now in a single
// conditional statement and returns the assignments it closed.
func (r *AssignmentRepository) FinishExpired(ctx context.Context, now time.Time) ([]models.Assignment, error) {
	query := `UPDATE assignments a SET status = $1, updated_at = $2
	WHERE a.status = ANY($3) AND a.deadline < $2
	RETURNING ` + assignmentColumns
	open := []models.AssignmentStatus{models.AssignmentStatusCreated, models.AssignmentStatusStarted}
	var closed []models.Assignment
	if err := r.db.SelectContext(ctx, &closed, query, models.AssignmentStatusFinished, now, stringArray(open)); err != nil {
		return nil, fmt.Errorf("finish expired assignments: %w", err)
	}
	return closed, nil
}

// ListFinishedSince returns FINISHED assignments whose deadline passed after since. The sweeper uses it
// to resume submission processing for assignments closed by an earlier tick that failed midway.
func (r *AssignmentRepository) ListFinishedSince(ctx context.Context, since time.Time) ([]models.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments a WHERE a.status = $1 AND a.deadline >= $2 ORDER BY a.deadline ASC`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, models.AssignmentStatusFinished, since); err != nil {
		return nil, fmt.Errorf("list finished assignments: %w", err)
	}
	return assignments, nil
}

type poolRow struct {
	models.AssignmentTaskLink
	Type        models.TaskType    `db:"type"`
	Title       string             `db:"title"`
	Description string             `db:"description"`
	MediaID     *string            `db:"media_id"`
	Options     models.Options     `db:"options"`
	Solution    models.AnswerValue `db:"solution"`
	Edit        *models.TaskEdit   `db:"edit"`
	CreatedBy   string             `db:"created_by"`
	GroupID     *int64             `db:"task_group_id"`
}

// PoolTasks returns the quiz pool of an assignment with effective task content, author and group.
func (r *AssignmentRepository) PoolTasks(ctx context.Context, assignmentID int64) ([]models.PoolTask, error) {
	const query = `SELECT at.assignment_id, at.task_id, at.difficulty, at.fraction,
       t.type, t.title, t.description, t.media_id, t.options, t.solution, t.edit,
       s.user_id AS created_by, tgt.task_group_id
	FROM assignment_tasks at
	JOIN tasks t ON t.id = at.task_id
	JOIN submissions s ON s.id = t.submission_id
	LEFT JOIN task_group_tasks tgt ON tgt.task_id = t.id
	WHERE at.assignment_id = $1
	ORDER BY at.task_id ASC`
	var rows []poolRow
	if err := r.db.SelectContext(ctx, &rows, query, assignmentID); err != nil {
		return nil, fmt.Errorf("load quiz pool: %w", err)
	}
	pool := make([]models.PoolTask, 0, len(rows))
	for _, row := range rows {
		task := models.Task{
			Type:        row.Type,
			Title:       row.Title,
			Description: row.Description,
			MediaID:     row.MediaID,
			Options:     row.Options,
			Solution:    row.Solution,
			Edit:        row.Edit,
		}
		pool = append(pool, models.PoolTask{
			AssignmentTaskLink: row.AssignmentTaskLink,
			Type:               row.Type,
			Content:            task.Effective(),
			CreatedBy:          row.CreatedBy,
			GroupID:            row.GroupID,
		})
	}
	return pool, nil
}

func expectRows(result sql.Result, action string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", action, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func stringArray[T ~string](values []T) pq.StringArray {
	out := make(pq.StringArray, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// IsNoRows reports whether err signals a missing row or a conditional write that matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
