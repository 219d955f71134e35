package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

const submissionColumns = `id, assignment_id, user_id, status, tasks, score, lms_score, return_id,
       submitted_at, published_at, published_by, created_at`

// SubmissionRepository persists learner attempts. Every status change is conditional on the current status.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts a new submission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusStarted
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO submissions
	(id, assignment_id, user_id, status, tasks, score, lms_score, return_id, submitted_at, published_at, published_by, created_at, updated_at)
	VALUES (:id, :assignment_id, :user_id, :status, :tasks, :score, :lms_score, :return_id, :submitted_at, :published_at, :published_by, :created_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// GetByID fetches a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// GetByAssignmentAndUser fetches the caller's latest submission to an assignment.
func (r *SubmissionRepository) GetByAssignmentAndUser(ctx context.Context, assignmentID int64, userID string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE assignment_id = $1 AND user_id = $2
	ORDER BY created_at DESC LIMIT 1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, userID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// List returns submissions matching the filter.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + submissionColumns + ` FROM submissions`)

	conditions := make([]string, 0, 3)
	if filter.AssignmentID != 0 {
		args = append(args, filter.AssignmentID)
		conditions = append(conditions, fmt.Sprintf("assignment_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, stringArray(filter.Statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, pq.StringArray(filter.IDs))
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at ASC")

	var submissions []models.Submission
	if err := r.db.SelectContext(ctx, &submissions, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}

// Finish moves a STARTED submission to the given status and stamps the submission time.
func (r *SubmissionRepository) Finish(ctx context.Context, id string, to models.SubmissionStatus, submittedAt time.Time) error {
	const query = `UPDATE submissions SET status = $2, submitted_at = $3, updated_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, to, submittedAt, models.SubmissionStatusStarted)
	if err != nil {
		return fmt.Errorf("finish submission: %w", err)
	}
	return expectRows(result, "finish submission")
}

// SaveAnswers replaces the quiz snapshot of a STARTED submission.
func (r *SubmissionRepository) SaveAnswers(ctx context.Context, id string, tasks models.QuizTasks) error {
	const query = `UPDATE submissions SET tasks = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, tasks, time.Now().UTC(), models.SubmissionStatusStarted)
	if err != nil {
		return fmt.Errorf("save quiz answers: %w", err)
	}
	return expectRows(result, "save quiz answers")
}

// QuizEvaluation is the graded outcome of a quiz attempt.
type QuizEvaluation struct {
	Tasks       models.QuizTasks
	Score       float64
	LMSScore    float64
	SubmittedAt *time.Time
}

// SaveQuizEvaluation stores the graded snapshot and moves a STARTED submission to EVALUATED.
// SubmittedAt stays untouched when the evaluation was forced.
func (r *SubmissionRepository) SaveQuizEvaluation(ctx context.Context, id string, eval QuizEvaluation) error {
	const query = `UPDATE submissions SET status = $2, tasks = $3, score = $4, lms_score = $5,
	submitted_at = COALESCE($6, submitted_at), updated_at = $7
	WHERE id = $1 AND status = $8`
	result, err := r.db.ExecContext(ctx, query, id, models.SubmissionStatusEvaluated, eval.Tasks, eval.Score, eval.LMSScore,
		eval.SubmittedAt, time.Now().UTC(), models.SubmissionStatusStarted)
	if err != nil {
		return fmt.Errorf("save quiz evaluation: %w", err)
	}
	return expectRows(result, "save quiz evaluation")
}

// SaveEvaluation stores the aggregated score of a task submission that is PENDING or already EVALUATED.
func (r *SubmissionRepository) SaveEvaluation(ctx context.Context, id string, score, lmsScore float64) error {
	const query = `UPDATE submissions SET status = $2, score = $3, lms_score = $4, updated_at = $5
	WHERE id = $1 AND status = ANY($6)`
	from := []models.SubmissionStatus{models.SubmissionStatusPending, models.SubmissionStatusEvaluated}
	result, err := r.db.ExecContext(ctx, query, id, models.SubmissionStatusEvaluated, score, lmsScore, time.Now().UTC(), stringArray(from))
	if err != nil {
		return fmt.Errorf("save submission evaluation: %w", err)
	}
	return expectRows(result, "save submission evaluation")
}

// MarkPublished moves an EVALUATED submission to EVALUATED_PUBLISHED.
func (r *SubmissionRepository) MarkPublished(ctx context.Context, id, publishedBy string, publishedAt time.Time) error {
	const query = `UPDATE submissions SET status = $2, published_at = $3, published_by = $4, updated_at = $3
	WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, models.SubmissionStatusEvaluatedPublished, publishedAt, publishedBy, models.SubmissionStatusEvaluated)
	if err != nil {
		return fmt.Errorf("publish submission: %w", err)
	}
	return expectRows(result, "publish submission")
}

// MovePending moves every STARTED submission of the assignment to PENDING and returns how many moved.
func (r *SubmissionRepository) MovePending(ctx context.Context, assignmentID int64) (int64, error) {
	const query = `UPDATE submissions SET status = $2, updated_at = $3 WHERE assignment_id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, assignmentID, models.SubmissionStatusPending, time.Now().UTC(), models.SubmissionStatusStarted)
	if err != nil {
		return 0, fmt.Errorf("move submissions to pending: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check pending rows: %w", err)
	}
	return rows, nil
}

// CountUnpublished counts submissions of the assignment that are not EVALUATED_PUBLISHED.
func (r *SubmissionRepository) CountUnpublished(ctx context.Context, assignmentID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM submissions WHERE assignment_id = $1 AND status <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, assignmentID, models.SubmissionStatusEvaluatedPublished); err != nil {
		return 0, fmt.Errorf("count unpublished submissions: %w", err)
	}
	return count, nil
}
