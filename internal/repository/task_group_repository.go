package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

// TaskGroupRepository persists task groups used for weighted sampling.
type TaskGroupRepository struct {
	db *sqlx.DB
}

// NewTaskGroupRepository constructs the repository.
func NewTaskGroupRepository(db *sqlx.DB) *TaskGroupRepository {
	return &TaskGroupRepository{db: db}
}

// Create inserts a group and fills its id.
func (r *TaskGroupRepository) Create(ctx context.Context, group *models.TaskGroup) error {
	const query = `INSERT INTO task_groups (assignment_id, name, description) VALUES ($1, $2, $3) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, group.AssignmentID, group.Name, group.Description).Scan(&group.ID); err != nil {
		return fmt.Errorf("create task group: %w", err)
	}
	return nil
}

// GetByID fetches a group.
func (r *TaskGroupRepository) GetByID(ctx context.Context, id int64) (*models.TaskGroup, error) {
	var group models.TaskGroup
	if err := r.db.GetContext(ctx, &group, `SELECT id, assignment_id, name, description FROM task_groups WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListByAssignment returns the groups of an assignment.
func (r *TaskGroupRepository) ListByAssignment(ctx context.Context, assignmentID int64) ([]models.TaskGroup, error) {
	var groups []models.TaskGroup
	const query = `SELECT id, assignment_id, name, description FROM task_groups WHERE assignment_id = $1 ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &groups, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list task groups: %w", err)
	}
	return groups, nil
}

// ListByIDs returns the requested groups.
func (r *TaskGroupRepository) ListByIDs(ctx context.Context, ids []int64) ([]models.TaskGroup, error) {
	var groups []models.TaskGroup
	const query = `SELECT id, assignment_id, name, description FROM task_groups WHERE id = ANY($1) ORDER BY id ASC`
	if err := r.db.SelectContext(ctx, &groups, query, pq.Int64Array(ids)); err != nil {
		return nil, fmt.Errorf("list task groups by id: %w", err)
	}
	return groups, nil
}
