package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusInReview   TicketStatus = "IN_REVIEW"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusRejected   TicketStatus = "REJECTED"
)

// TicketStatuses lists every state a ticket can be in.
var TicketStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusInReview,
	TicketStatusResolved,
	TicketStatusRejected,
}

// Valid reports whether s is one of the lifecycle states.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests raised against a registered web.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	WebID       string
	CreatedBy   string
	AssignedTo  *string
	ValidatorID *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// IsAssignedTo reports whether userID is the ticket's developer.
func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// IsValidatedBy reports whether userID is the ticket's bound validator.
func (t *Ticket) IsValidatedBy(userID string) bool {
	return t.ValidatorID != nil && *t.ValidatorID == userID
}

// TicketStats summarizes ticket counts for dashboards.
type TicketStats struct {
	Total         int
	Open          int
	InProgress    int
	InReview      int
	Resolved      int
	Rejected      int
	Critical      int
	Unassigned    int
	MyTickets     *int
	PendingReview *int
}
