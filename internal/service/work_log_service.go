package service

import (
	"context"
	"math"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/repository"
	apperrors "github.com/spec-kit/webdesk/pkg/util"
)

// WorkLogService keeps the record of developer work attempts on tickets.
type WorkLogService struct {
	store repository.Store
	clock Clock
}

// NewWorkLogService creates the service.
func NewWorkLogService(store repository.Store, clock Clock) *WorkLogService {
	return &WorkLogService{store: store, clock: clock}
}

func (s *WorkLogService) withStore(tx repository.Store) *WorkLogService {
	return &WorkLogService{store: tx, clock: s.clock}
}

// StartWork opens a new attempt for devID. An attempt still open on the
// ticket, for example after an admin moved it back to OPEN, is resumed
// instead: a developer has at most one attempt in progress per ticket.
func (s *WorkLogService) StartWork(ctx context.Context, ticketID, devID string) (*domain.WorkLogEntry, error) {
	active, err := s.store.WorkLogs().FindActive(ctx, ticketID, devID)
	if err == nil {
		return active, nil
	}
	if !apperrors.IsNoRows(err) {
		return nil, err
	}

	now := s.clock.now()
	entry := &domain.WorkLogEntry{
		TicketID:  ticketID,
		DevID:     devID,
		StartedAt: now,
		Status:    domain.WorkLogStatusInProgress,
		CreatedAt: now,
	}
	if err := s.store.WorkLogs().Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// FinishWork completes the open attempt of devID on the ticket.
func (s *WorkLogService) FinishWork(ctx context.Context, ticketID, devID string) (*domain.WorkLogEntry, error) {
	entry, err := s.store.WorkLogs().FindActive(ctx, ticketID, devID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("active work log", map[string]any{"ticket_id": ticketID, "dev_id": devID})
		}
		return nil, err
	}
	finished := s.clock.now()
	entry.FinishedAt = &finished
	entry.Status = domain.WorkLogStatusCompleted
	if err := s.store.WorkLogs().Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RejectWork marks the most recent completed attempt as rejected.
func (s *WorkLogService) RejectWork(ctx context.Context, ticketID, reason string) (*domain.WorkLogEntry, error) {
	entry, err := s.store.WorkLogs().FindLatestCompleted(ctx, ticketID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewNotFound("completed work log", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	entry.Status = domain.WorkLogStatusRejected
	entry.RejectionReason = &reason
	if err := s.store.WorkLogs().Update(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ByTicket lists every attempt on the ticket, oldest first.
func (s *WorkLogService) ByTicket(ctx context.Context, ticketID string) ([]domain.WorkLogEntry, error) {
	return s.store.WorkLogs().ListByTicket(ctx, ticketID)
}

// TotalTime sums the finished attempts of a ticket.
func (s *WorkLogService) TotalTime(ctx context.Context, ticketID string) (domain.WorkTotals, error) {
	entries, err := s.store.WorkLogs().ListByTicket(ctx, ticketID)
	if err != nil {
		return domain.WorkTotals{}, err
	}
	return sumWorkTotals(entries), nil
}

// sumWorkTotals counts every attempt and adds the whole minutes of each
// finished one. Open attempts contribute no time.
func sumWorkTotals(entries []domain.WorkLogEntry) domain.WorkTotals {
	totals := domain.WorkTotals{Attempts: len(entries)}
	for _, entry := range entries {
		if entry.FinishedAt == nil {
			continue
		}
		totals.TotalMinutes += int(math.Floor(entry.FinishedAt.Sub(entry.StartedAt).Minutes()))
	}
	return totals
}
