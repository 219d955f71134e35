package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lti-assignments-api/internal/models"
	"github.com/noah-isme/lti-assignments-api/pkg/database"
)

const taskColumns = `t.id, t.submission_id, t.type, t.title, t.description, t.media_id, t.options, t.solution, t.edit,
       t.status, t.score, t.evaluated_at, t.evaluated_by, tgt.task_group_id, t.created_at`

const taskFrom = ` FROM tasks t LEFT JOIN task_group_tasks tgt ON tgt.task_id = t.id`

// TaskRepository persists learner-authored tasks and their evaluation.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs the repository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a task and fills its generated id.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO tasks
	(submission_id, type, title, description, media_id, options, solution, status, score, evaluated_at, evaluated_by, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		task.SubmissionID,
		task.Type,
		task.Title,
		task.Description,
		task.MediaID,
		task.Options,
		task.Solution,
		task.Status,
		task.Score,
		task.EvaluatedAt,
		task.EvaluatedBy,
		task.CreatedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetByID fetches a task with its group link.
func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.id = $1`
	var task models.Task
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListBySubmission returns the tasks of a submission in creation order.
func (r *TaskRepository) ListBySubmission(ctx context.Context, submissionID string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.submission_id = $1 ORDER BY t.id ASC`
	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, submissionID); err != nil {
		return nil, fmt.Errorf("list submission tasks: %w", err)
	}
	return tasks, nil
}

// ListByIDs returns the requested tasks.
func (r *TaskRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + taskFrom + ` WHERE t.id = ANY($1) ORDER BY t.id ASC`
	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, pq.Int64Array(ids)); err != nil {
		return nil, fmt.Errorf("list tasks by id: %w", err)
	}
	return tasks, nil
}

// CountBySubmission counts the tasks of a submission.
func (r *TaskRepository) CountBySubmission(ctx context.Context, submissionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM tasks WHERE submission_id = $1`, submissionID); err != nil {
		return 0, fmt.Errorf("count submission tasks: %w", err)
	}
	return count, nil
}

// ListIncluded returns EVALUATED_INCLUDE tasks submitted to any of the given assignments.
func (r *TaskRepository) ListIncluded(ctx context.Context, assignmentIDs []int64) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + taskFrom + `
	JOIN submissions s ON s.id = t.submission_id
	WHERE s.assignment_id = ANY($1) AND t.status = $2
	ORDER BY t.id ASC`
	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, pq.Int64Array(assignmentIDs), models.TaskStatusEvaluatedInclude); err != nil {
		return nil, fmt.Errorf("list included tasks: %w", err)
	}
	return tasks, nil
}

// Replace overwrites the content of a task that is still PENDING.
func (r *TaskRepository) Replace(ctx context.Context, task *models.Task) error {
	const query = `UPDATE tasks SET type = $2, title = $3, description = $4, media_id = $5, options = $6, solution = $7, updated_at = $8
	WHERE id = $1 AND status = $9`
	result, err := r.db.ExecContext(ctx, query, task.ID, task.Type, task.Title, task.Description, task.MediaID,
		task.Options, task.Solution, time.Now().UTC(), models.TaskStatusPending)
	if err != nil {
		return fmt.Errorf("replace task: %w", err)
	}
	return expectRows(result, "replace task")
}

// SetEdit writes the instructor overlay; a nil edit clears it and leaves the status unchanged.
func (r *TaskRepository) SetEdit(ctx context.Context, id int64, edit *models.TaskEdit) error {
	const query = `UPDATE tasks SET edit = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, edit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set task edit: %w", err)
	}
	return expectRows(result, "set task edit")
}

// TaskEvaluation is an evaluator's verdict on one task.
type TaskEvaluation struct {
	Status      models.TaskStatus
	Score       *float64
	EvaluatedBy string
	EvaluatedAt time.Time
}

// Evaluate records the verdict on a task.
func (r *TaskRepository) Evaluate(ctx context.Context, id int64, eval TaskEvaluation) error {
	const query = `UPDATE tasks SET status = $2, score = $3, evaluated_by = $4, evaluated_at = $5, updated_at = $5 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, eval.Status, eval.Score, eval.EvaluatedBy, eval.EvaluatedAt)
	if err != nil {
		return fmt.Errorf("evaluate task: %w", err)
	}
	return expectRows(result, "evaluate task")
}

// SetGroup replaces the task's group link. A nil group removes it.
func (r *TaskRepository) SetGroup(ctx context.Context, taskID int64, groupID *int64) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM task_group_tasks WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("clear task group: %w", err)
		}
		if groupID == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_group_tasks (task_group_id, task_id) VALUES ($1, $2)`, *groupID, taskID); err != nil {
			return fmt.Errorf("link task group: %w", err)
		}
		return nil
	})
}
