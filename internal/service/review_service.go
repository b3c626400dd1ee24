package service

import (
	"context"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/repository"
)

// ReviewService keeps the reviewer side of approve and reject decisions.
type ReviewService struct {
	store repository.Store
	clock Clock
}

// NewReviewService creates the service.
func NewReviewService(store repository.Store, clock Clock) *ReviewService {
	return &ReviewService{store: store, clock: clock}
}

func (s *ReviewService) withStore(tx repository.Store) *ReviewService {
	return &ReviewService{store: tx, clock: s.clock}
}

// Record stores a verdict. An empty comment is stored as null.
func (s *ReviewService) Record(ctx context.Context, ticketID, reviewerID string, status domain.ReviewStatus, comment string) (*domain.Review, error) {
	review := &domain.Review{
		TicketID:   ticketID,
		ReviewerID: reviewerID,
		Status:     status,
		CreatedAt:  s.clock.now(),
	}
	if comment != "" {
		review.Comment = &comment
	}
	if err := s.store.Reviews().Create(ctx, review); err != nil {
		return nil, err
	}
	return review, nil
}

func (s *ReviewService) ByTicket(ctx context.Context, ticketID string) ([]domain.Review, error) {
	return s.store.Reviews().ListByTicket(ctx, ticketID)
}
