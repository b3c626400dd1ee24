package service

import (
	"context"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/repository"
)

// StatusHistoryService appends and reads the status history ledger. Entries
// are never edited once written.
type StatusHistoryService struct {
	store repository.Store
	clock Clock
}

// NewStatusHistoryService creates the service.
func NewStatusHistoryService(store repository.Store, clock Clock) *StatusHistoryService {
	return &StatusHistoryService{store: store, clock: clock}
}

func (s *StatusHistoryService) withStore(tx repository.Store) *StatusHistoryService {
	return &StatusHistoryService{store: tx, clock: s.clock}
}

// Record appends one transition to the ledger.
func (s *StatusHistoryService) Record(ctx context.Context, ticketID string, oldStatus, newStatus domain.TicketStatus, changedBy string) (*domain.StatusHistoryEntry, error) {
	entry := &domain.StatusHistoryEntry{
		TicketID:  ticketID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		ChangedBy: changedBy,
		ChangedAt: s.clock.now(),
	}
	if err := s.store.StatusHistory().Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ByTicket lists the live entries of a ticket, oldest first.
func (s *StatusHistoryService) ByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	return s.store.StatusHistory().ListByTicket(ctx, ticketID)
}
