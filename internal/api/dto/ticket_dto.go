package dto

import (
	"time"

	"github.com/spec-kit/webdesk/internal/domain"
)

// CreateTicketRequest payload. CreatedBy is honored for admins only.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority"`
	WebID       string                `json:"web_id"`
	CreatedBy   string                `json:"created_by"`
	AssignedTo  *string               `json:"assigned_to"`
	ValidatorID *string               `json:"validator_id"`
	Status      *domain.TicketStatus  `json:"status"`
}

// UpdateTicketRequest payload; absent fields are left unchanged.
type UpdateTicketRequest struct {
	Title       *string                `json:"title"`
	Description *string                `json:"description"`
	Status      *domain.TicketStatus   `json:"status"`
	Priority    *domain.TicketPriority `json:"priority"`
	AssignedTo  *string                `json:"assigned_to"`
	ValidatorID *string                `json:"validator_id"`
}

// RejectTicketRequest payload.
type RejectTicketRequest struct {
	Reason string `json:"reason"`
}

// TicketResponse renders a ticket.
type TicketResponse struct {
	ID          string                `json:"id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	WebID       string                `json:"web_id"`
	CreatedBy   string                `json:"created_by"`
	AssignedTo  *string               `json:"assigned_to"`
	ValidatorID *string               `json:"validator_id"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// StatusHistoryResponse renders one audit entry.
type StatusHistoryResponse struct {
	ID        string              `json:"id"`
	TicketID  string              `json:"ticket_id"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	ChangedBy string              `json:"changed_by"`
	ChangedAt time.Time           `json:"changed_at"`
}

// WorkLogResponse renders one work attempt.
type WorkLogResponse struct {
	ID              string               `json:"id"`
	TicketID        string               `json:"ticket_id"`
	DevID           string               `json:"dev_id"`
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      *time.Time           `json:"finished_at"`
	Status          domain.WorkLogStatus `json:"status"`
	RejectionReason *string              `json:"rejection_reason"`
	CreatedAt       time.Time            `json:"created_at"`
}

// ReviewResponse renders one review decision.
type ReviewResponse struct {
	ID         string              `json:"id"`
	TicketID   string              `json:"ticket_id"`
	ReviewerID string              `json:"reviewer_id"`
	Status     domain.ReviewStatus `json:"status"`
	Comment    *string             `json:"comment"`
	CreatedAt  time.Time           `json:"created_at"`
}

// WorkTotalsResponse renders aggregated work time.
type WorkTotalsResponse struct {
	TotalMinutes int `json:"totalMinutes"`
	Attempts     int `json:"attempts"`
}

// TicketStatsResponse renders dashboard counters.
type TicketStatsResponse struct {
	Total         int  `json:"total"`
	Open          int  `json:"open"`
	InProgress    int  `json:"in_progress"`
	InReview      int  `json:"in_review"`
	Resolved      int  `json:"resolved"`
	Rejected      int  `json:"rejected"`
	Critical      int  `json:"critical"`
	Unassigned    int  `json:"unassigned"`
	MyTickets     *int `json:"my_tickets,omitempty"`
	PendingReview *int `json:"pending_review,omitempty"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		WebID:       t.WebID,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		ValidatorID: t.ValidatorID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func NewReviewResponse(r domain.Review) ReviewResponse {
	return ReviewResponse{
		ID:         r.ID,
		TicketID:   r.TicketID,
		ReviewerID: r.ReviewerID,
		Status:     r.Status,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
	}
}

// NewStatusHistoryResponse maps a history entry.
func NewStatusHistoryResponse(e domain.StatusHistoryEntry) StatusHistoryResponse {
	return StatusHistoryResponse{
		ID:        e.ID,
		TicketID:  e.TicketID,
		OldStatus: e.OldStatus,
		NewStatus: e.NewStatus,
		ChangedBy: e.ChangedBy,
		ChangedAt: e.ChangedAt,
	}
}

// NewWorkLogResponse maps a work log entry.
func NewWorkLogResponse(e domain.WorkLogEntry) WorkLogResponse {
	return WorkLogResponse{
		ID:              e.ID,
		TicketID:        e.TicketID,
		DevID:           e.DevID,
		StartedAt:       e.StartedAt,
		FinishedAt:      e.FinishedAt,
		Status:          e.Status,
		RejectionReason: e.RejectionReason,
		CreatedAt:       e.CreatedAt,
	}
}

// NewTicketStatsResponse maps stats.
func NewTicketStatsResponse(s domain.TicketStats) TicketStatsResponse {
	return TicketStatsResponse{
		Total:         s.Total,
		Open:          s.Open,
		InProgress:    s.InProgress,
		InReview:      s.InReview,
		Resolved:      s.Resolved,
		Rejected:      s.Rejected,
		Critical:      s.Critical,
		Unassigned:    s.Unassigned,
		MyTickets:     s.MyTickets,
		PendingReview: s.PendingReview,
	}
}
