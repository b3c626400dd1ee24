package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/webdesk/internal/domain"
	"github.com/spec-kit/webdesk/internal/events"
	"github.com/spec-kit/webdesk/internal/observability"
	"github.com/spec-kit/webdesk/internal/repository"
	apperrors "github.com/spec-kit/webdesk/pkg/util"
)

// Actor is the authenticated caller of a ticket operation.
type Actor struct {
	ID   string
	Role domain.UserRole
}

// TicketService coordinates the ticket lifecycle. Every mutating operation
// runs as one store transaction: the ticket row is locked, preconditions are
// checked, and the ticket update plus its ledger writes commit together or
// not at all. Events are published only after a commit.
type TicketService struct {
	store      repository.Store
	roles      *RoleValidator
	history    *StatusHistoryService
	workLogs   *WorkLogService
	reviews    *ReviewService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      Clock
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      Clock
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	WebID       string
	CreatedBy   string
	AssignedTo  *string
	ValidatorID *string
	// Status overrides the initial OPEN state when set.
	Status *domain.TicketStatus
}

// TicketUpdateInput carries the fields of a generic update; nil fields are
// left untouched.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	AssignedTo  *string
	ValidatorID *string
}

// TicketListFilter describes listing filters supplied by the caller.
type TicketListFilter struct {
	Status   *domain.TicketStatus
	Priority *domain.TicketPriority
	WebID    *string
	Limit    int
	Offset   int
}

// NewTicketService constructs the service together with its ledgers.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		store:      deps.Store,
		roles:      NewRoleValidator(deps.Store),
		history:    NewStatusHistoryService(deps.Store, deps.Clock),
		workLogs:   NewWorkLogService(deps.Store, deps.Clock),
		reviews:    NewReviewService(deps.Store, deps.Clock),
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		clock:      deps.Clock,
	}
}

// CreateTicket creates a ticket. Named assignees are checked against the
// user directory before anything is written.
func (s *TicketService) CreateTicket(ctx context.Context, actor Actor, input TicketCreateInput) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
		WebID:       strings.TrimSpace(input.WebID),
		CreatedBy:   input.CreatedBy,
		AssignedTo:  input.AssignedTo,
		ValidatorID: input.ValidatorID,
	}
	if ticket.CreatedBy == "" {
		ticket.CreatedBy = actor.ID
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}
	if input.Status != nil {
		ticket.Status = *input.Status
	}
	if err := validateNewTicket(ticket); err != nil {
		return nil, err
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		roles := s.roles.withStore(tx)
		if ticket.AssignedTo != nil {
			if err := roles.EnsureRole(ctx, *ticket.AssignedTo, domain.UserRoleDeveloper); err != nil {
				return err
			}
		}
		if ticket.ValidatorID != nil {
			if err := roles.EnsureRole(ctx, *ticket.ValidatorID, domain.UserRoleValidator); err != nil {
				return err
			}
		}
		return tx.Tickets().Create(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketCreatedPayload{
			WebID:    ticket.WebID,
			Status:   ticket.Status,
			Priority: ticket.Priority,
			Title:    ticket.Title,
		},
	})
	if ticket.AssignedTo != nil || ticket.ValidatorID != nil {
		s.publishAssignment(ctx, actor, ticket)
	}
	return ticket, nil
}

// GetTicket loads a live ticket the caller may see. Tickets outside the
// caller's scope are reported as not found, the same way listing omits them.
func (s *TicketService) GetTicket(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets().GetByID(ctx, ticketID)
	if err != nil {
		return nil, ticketLookupError(err, ticketID)
	}
	if !canView(actor, ticket) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// ListTickets returns the tickets visible to the caller. Clients see the
// tickets they raised, developers their assignments and validators their
// review bindings; admins see everything.
func (s *TicketService) ListTickets(ctx context.Context, actor Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		Status:   filter.Status,
		Priority: filter.Priority,
		WebID:    filter.WebID,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": *filter.Status})
	}
	if filter.Priority != nil && !filter.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": *filter.Priority})
	}
	id := actor.ID
	switch actor.Role {
	case domain.UserRoleAdmin:
	case domain.UserRoleClient:
		repoFilter.CreatedBy = &id
	case domain.UserRoleDeveloper:
		repoFilter.AssignedTo = &id
	case domain.UserRoleValidator:
		repoFilter.ValidatorID = &id
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}
	return s.store.Tickets().List(ctx, repoFilter)
}

// UpdateTicket applies an administrative edit. Reassignments are validated
// against the user directory and a status change is written to the history
// ledger; the edit is rejected as a whole on any failure.
func (s *TicketService) UpdateTicket(ctx context.Context, actor Actor, ticketID string, input TicketUpdateInput) (*domain.Ticket, error) {
	if err := validateUpdate(input); err != nil {
		return nil, err
	}

	var (
		updated       *domain.Ticket
		oldStatus     domain.TicketStatus
		statusChanged bool
		reassigned    bool
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		ticket, err := tx.Tickets().GetByIDForUpdate(ctx, ticketID)
		if err != nil {
			return ticketLookupError(err, ticketID)
		}
		roles := s.roles.withStore(tx)
		if input.AssignedTo != nil {
			if err := roles.EnsureRole(ctx, *input.AssignedTo, domain.UserRoleDeveloper); err != nil {
				return err
			}
			reassigned = !ticket.IsAssignedTo(*input.AssignedTo)
		}
		if input.ValidatorID != nil {
			if err := roles.EnsureRole(ctx, *input.ValidatorID, domain.UserRoleValidator); err != nil {
				return err
			}
			reassigned = reassigned || !ticket.IsValidatedBy(*input.ValidatorID)
		}

		oldStatus = ticket.Status
		if input.Status != nil && *input.Status != oldStatus {
			if _, err := s.history.withStore(tx).Record(ctx, ticket.ID, oldStatus, *input.Status, actor.ID); err != nil {
				return err
			}
			ticket.Status = *input.Status
			statusChanged = true
		}
		if input.Title != nil {
			ticket.Title = strings.TrimSpace(*input.Title)
		}
		if input.Description != nil {
			ticket.Description = strings.TrimSpace(*input.Description)
		}
		if input.Priority != nil {
			ticket.Priority = *input.Priority
		}
		if input.AssignedTo != nil {
			ticket.AssignedTo = input.AssignedTo
		}
		if input.ValidatorID != nil {
			ticket.ValidatorID = input.ValidatorID
		}
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		updated = ticket
		return nil
	})
	s.metrics.RecordTransition("update", outcomeOf(err))
	if err != nil {
		return nil, err
	}

	if statusChanged {
		s.publishStatusChange(ctx, actor, updated, oldStatus, "update", "")
	}
	if reassigned {
		s.publishAssignment(ctx, actor, updated)
	}
	return updated, nil
}

// DeleteTicket soft-deletes a ticket. Its ledgers are kept for audit.
func (s *TicketService) DeleteTicket(ctx context.Context, actor Actor, ticketID string) error {
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Tickets().GetByIDForUpdate(ctx, ticketID); err != nil {
			return ticketLookupError(err, ticketID)
		}
		if err := tx.Tickets().SoftDelete(ctx, ticketID, s.clock.now()); err != nil {
			return ticketLookupError(err, ticketID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticketID,
		Actor:    eventActor(actor),
	})
	return nil
}

// StartTicket moves an OPEN or REJECTED ticket into progress and opens a
// work log attempt for the assigned developer.
func (s *TicketService) StartTicket(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, lifecycle[opStart], func(ctx context.Context, scope txScope, ticket *domain.Ticket) error {
		_, err := scope.workLogs.StartWork(ctx, ticket.ID, actor.ID)
		return err
	}, "")
}

// FinishTicket hands the ticket to review and closes the developer's attempt.
func (s *TicketService) FinishTicket(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, lifecycle[opFinish], func(ctx context.Context, scope txScope, ticket *domain.Ticket) error {
		_, err := scope.workLogs.FinishWork(ctx, ticket.ID, actor.ID)
		return err
	}, "")
}

// ApproveTicket resolves a ticket under review and records the approval.
func (s *TicketService) ApproveTicket(ctx context.Context, actor Actor, ticketID string) (*domain.Ticket, error) {
	return s.transition(ctx, actor, ticketID, lifecycle[opApprove], func(ctx context.Context, scope txScope, ticket *domain.Ticket) error {
		_, err := scope.reviews.Record(ctx, ticket.ID, actor.ID, domain.ReviewStatusApproved, "")
		return err
	}, "")
}

// RejectTicket sends a ticket under review back to the developer. The reason
// is kept on the review and on the latest completed attempt.
func (s *TicketService) RejectTicket(ctx context.Context, actor Actor, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		s.metrics.RecordTransition(string(opReject), apperrors.CodeMissingReason)
		return nil, apperrors.NewMissingReason()
	}
	return s.transition(ctx, actor, ticketID, lifecycle[opReject], func(ctx context.Context, scope txScope, ticket *domain.Ticket) error {
		if _, err := scope.reviews.Record(ctx, ticket.ID, actor.ID, domain.ReviewStatusChangesRequested, reason); err != nil {
			return err
		}
		_, err := scope.workLogs.RejectWork(ctx, ticket.ID, reason)
		return err
	}, reason)
}

// ListStatusHistory returns the audit trail of a live ticket the caller may see.
func (s *TicketService) ListStatusHistory(ctx context.Context, actor Actor, ticketID string) ([]domain.StatusHistoryEntry, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.history.ByTicket(ctx, ticketID)
}

// ListWorkLogs returns every work attempt on a live ticket.
func (s *TicketService) ListWorkLogs(ctx context.Context, actor Actor, ticketID string) ([]domain.WorkLogEntry, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.workLogs.ByTicket(ctx, ticketID)
}

// ListReviews returns the review decisions on a live ticket, oldest first.
func (s *TicketService) ListReviews(ctx context.Context, actor Actor, ticketID string) ([]domain.Review, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	return s.reviews.ByTicket(ctx, ticketID)
}

// GetWorkTotals aggregates the time spent on a live ticket.
func (s *TicketService) GetWorkTotals(ctx context.Context, actor Actor, ticketID string) (domain.WorkTotals, error) {
	if _, err := s.GetTicket(ctx, actor, ticketID); err != nil {
		return domain.WorkTotals{}, err
	}
	return s.workLogs.TotalTime(ctx, ticketID)
}

// Stats returns dashboard counters scoped to the caller.
func (s *TicketService) Stats(ctx context.Context, actor Actor) (domain.TicketStats, error) {
	return s.store.Tickets().Stats(ctx, repository.StatsScope{UserID: actor.ID, Role: actor.Role})
}

// canView mirrors the listing scopes. Validators also see unbound tickets,
// which any validator may review.
func canView(actor Actor, ticket *domain.Ticket) bool {
	switch actor.Role {
	case domain.UserRoleAdmin:
		return true
	case domain.UserRoleClient:
		return ticket.CreatedBy == actor.ID
	case domain.UserRoleDeveloper:
		return ticket.IsAssignedTo(actor.ID)
	case domain.UserRoleValidator:
		return ticket.ValidatorID == nil || ticket.IsValidatedBy(actor.ID)
	}
	return false
}

func validateNewTicket(ticket *domain.Ticket) error {
	missing := []string{}
	if ticket.Title == "" {
		missing = append(missing, "title")
	}
	if ticket.Description == "" {
		missing = append(missing, "description")
	}
	if ticket.WebID == "" {
		missing = append(missing, "web_id")
	}
	if ticket.CreatedBy == "" {
		missing = append(missing, "created_by")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}
	if !ticket.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": ticket.Priority})
	}
	if !ticket.Status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": ticket.Status})
	}
	if err := validateOptionalID("assigned_to", ticket.AssignedTo); err != nil {
		return err
	}
	return validateOptionalID("validator_id", ticket.ValidatorID)
}

func validateUpdate(input TicketUpdateInput) error {
	if input.Status != nil && !input.Status.Valid() {
		return apperrors.NewValidationError("unknown status", map[string]any{"status": *input.Status})
	}
	if input.Priority != nil && !input.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority", map[string]any{"priority": *input.Priority})
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return apperrors.NewValidationError("title must not be empty", nil)
	}
	if input.Description != nil && strings.TrimSpace(*input.Description) == "" {
		return apperrors.NewValidationError("description must not be empty", nil)
	}
	if err := validateOptionalID("assigned_to", input.AssignedTo); err != nil {
		return err
	}
	return validateOptionalID("validator_id", input.ValidatorID)
}

func validateOptionalID(field string, id *string) error {
	if id != nil && strings.TrimSpace(*id) == "" {
		return apperrors.NewValidationError(field+" must not be empty", nil)
	}
	return nil
}

func ticketLookupError(err error, ticketID string) error {
	if apperrors.IsNoRows(err) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return err
}

func (s *TicketService) publishStatusChange(ctx context.Context, actor Actor, ticket *domain.Ticket, oldStatus domain.TicketStatus, operation, reason string) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketStatusChangedPayload{
			OldStatus:   oldStatus,
			NewStatus:   ticket.Status,
			Operation:   operation,
			Reason:      reason,
			CreatedBy:   ticket.CreatedBy,
			AssignedTo:  ticket.AssignedTo,
			ValidatorID: ticket.ValidatorID,
		},
	})
}

func (s *TicketService) publishAssignment(ctx context.Context, actor Actor, ticket *domain.Ticket) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    eventActor(actor),
		Payload: events.TicketAssignedPayload{
			AssignedTo:  ticket.AssignedTo,
			ValidatorID: ticket.ValidatorID,
		},
	})
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func eventActor(actor Actor) events.Actor {
	return events.Actor{UserID: actor.ID, Role: actor.Role}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.ToDomainError(err).Code
}
