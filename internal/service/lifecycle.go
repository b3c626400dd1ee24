package service

import (
	"context"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/repository"
	apperrors "github.com/spec-kit/webdesk/pkg/util"
)

type operation string

const (
	opStart   operation = "start"
	opFinish  operation = "finish"
	opApprove operation = "approve"
	opReject  operation = "reject"
)

// transitionRule is one edge set of the lifecycle graph.
type transitionRule struct {
	op        operation
	from      []domain.TicketStatus
	to        domain.TicketStatus
	authorize func(actor Actor, ticket *domain.Ticket) error
}

var lifecycle = map[operation]transitionRule{
	opStart: {
		op:        opStart,
		from:      []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusRejected},
		to:        domain.TicketStatusInProgress,
		authorize: requireAssignee("start"),
	},
	opFinish: {
		op:        opFinish,
		from:      []domain.TicketStatus{domain.TicketStatusInProgress},
		to:        domain.TicketStatusInReview,
		authorize: requireAssignee("finish"),
	},
	opApprove: {
		op:        opApprove,
		from:      []domain.TicketStatus{domain.TicketStatusInReview},
		to:        domain.TicketStatusResolved,
		authorize: requireReviewer("approve"),
	},
	opReject: {
		op:        opReject,
		from:      []domain.TicketStatus{domain.TicketStatusInReview},
		to:        domain.TicketStatusRejected,
		authorize: requireReviewer("reject"),
	},
}

func (r transitionRule) allows(status domain.TicketStatus) bool {
	for _, from := range r.from {
		if from == status {
			return true
		}
	}
	return false
}

func requireAssignee(verb string) func(Actor, *domain.Ticket) error {
	return func(actor Actor, ticket *domain.Ticket) error {
		if !ticket.IsAssignedTo(actor.ID) {
			return apperrors.NewForbidden("only the assigned developer may " + verb + " this ticket")
		}
		return nil
	}
}

// requireReviewer admits admins and, once a validator is bound, only that
// validator; unbound tickets may be reviewed by any validator.
func requireReviewer(verb string) func(Actor, *domain.Ticket) error {
	return func(actor Actor, ticket *domain.Ticket) error {
		if actor.Role == domain.UserRoleAdmin {
			return nil
		}
		if ticket.ValidatorID != nil {
			if ticket.IsValidatedBy(actor.ID) {
				return nil
			}
			return apperrors.NewForbidden("only an admin or the ticket's validator may " + verb + " this ticket")
		}
		if actor.Role == domain.UserRoleValidator {
			return nil
		}
		return apperrors.NewForbidden("only an admin or a validator may " + verb + " this ticket")
	}
}

// txScope exposes the ledgers bound to the running transaction.
type txScope struct {
	workLogs *WorkLogService
	reviews  *ReviewService
}

type transitionEffect func(ctx context.Context, scope txScope, ticket *domain.Ticket) error

// transition runs one lifecycle operation as a single transaction: lock the
// ticket, check status then actor, record history with the pre-mutation
// status, persist the new status and apply the ledger effect.
func (s *TicketService) transition(ctx context.Context, actor Actor, ticketID string, rule transitionRule, effect transitionEffect, reason string) (*domain.Ticket, error) {
	var (
		updated   *domain.Ticket
		oldStatus domain.TicketStatus
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ticket, err := tx.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return ticketLookupError(err, ticketID)
		}
		if !rule.allows(ticket.Status) {
			return apperrors.NewInvalidTransition("cannot "+string(rule.op)+" a ticket in status "+string(ticket.Status), map[string]any{
				"ticket_id": ticket.ID,
				"status":    ticket.Status,
				"operation": rule.op,
			})
		}
		if err := rule.authorize(actor, ticket); err != nil {
			return err
		}

		oldStatus = ticket.Status
		if _, err := s.history.withStore(tx).Record(ctx, ticket.ID, oldStatus, rule.to, actor.ID); err != nil {
			return err
		}
		ticket.Status = rule.to
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		if effect != nil {
			if err := effect(ctx, txScope{
				workLogs: s.workLogs.withStore(tx),
				reviews:  s.reviews.withStore(tx),
			}, ticket); err != nil {
				return err
			}
		}
		updated = ticket
		return nil
	})
	s.metrics.RecordTransition(string(rule.op), outcomeOf(err))
	if err != nil {
		return nil, err
	}
	s.publishStatusChange(ctx, actor, updated, oldStatus, string(rule.op), reason)
	return updated, nil
}
