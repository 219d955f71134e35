package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

// ConsumerRepository reads registered LTI tool consumers.
type ConsumerRepository struct {
	db *sqlx.DB
}

// NewConsumerRepository constructs the repository.
func NewConsumerRepository(db *sqlx.DB) *ConsumerRepository {
	return &ConsumerRepository{db: db}
}

// GetByID fetches a consumer with its shared secret.
func (r *ConsumerRepository) GetByID(ctx context.Context, id string) (*models.Consumer, error) {
	const query = `SELECT id, consumer_key, consumer_secret, name, status, created_at FROM consumers WHERE id = $1`
	var consumer models.Consumer
	if err := r.db.GetContext(ctx, &consumer, query, id); err != nil {
		return nil, err
	}
	return &consumer, nil
}
