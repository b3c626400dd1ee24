package repository

import (
	"context"

	"github.com/spec-kit/webdesk/internal/domain"
)

// ReviewRepository stores reviewer decisions.
type ReviewRepository interface {
	Create(ctx context.Context, review *domain.Review) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Review, error)
}

type reviewRepository struct {
	db DBTX
}

func (r *reviewRepository) Create(ctx context.Context, review *domain.Review) error {
	const query = `
        INSERT INTO ticket_reviews (ticket_id, reviewer_id, status, comment, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		review.TicketID,
		review.ReviewerID,
		review.Status,
		review.Comment,
		review.CreatedAt,
	).Scan(&review.ID)
}

func (r *reviewRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Review, error) {
	const query = `
        SELECT id, ticket_id, reviewer_id, status, comment, created_at, deleted_at
        FROM ticket_reviews
        WHERE ticket_id=$1 AND deleted_at IS NULL
        ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Review{}
	for rows.Next() {
		var review domain.Review
		if err := rows.Scan(
			&review.ID,
			&review.TicketID,
			&review.ReviewerID,
			&review.Status,
			&review.Comment,
			&review.CreatedAt,
			&review.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, review)
	}
	return result, rows.Err()
}
