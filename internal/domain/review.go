package domain

import "time"

// ReviewStatus is the verdict a reviewer gave on a finished ticket.
type ReviewStatus string

const (
	ReviewStatusApproved         ReviewStatus = "APPROVED"
	ReviewStatusChangesRequested ReviewStatus = "CHANGES_REQUESTED"
)

// Review is the reviewer's record of one approve or reject decision.
type Review struct {
	ID         string
	TicketID   string
	ReviewerID string
	Status     ReviewStatus
	Comment    *string
	CreatedAt  time.Time
	DeletedAt  *time.Time
}
