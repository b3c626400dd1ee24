package domain

import "time"

// WorkLogStatus tracks the outcome of a developer attempt.
type WorkLogStatus string

const (
	WorkLogStatusInProgress WorkLogStatus = "IN_PROGRESS"
	WorkLogStatusCompleted  WorkLogStatus = "COMPLETED"
	WorkLogStatusRejected   WorkLogStatus = "REJECTED"
)

// WorkLogEntry is one developer attempt at a ticket.
type WorkLogEntry struct {
	ID              string
	TicketID        string
	DevID           string
	StartedAt       time.Time
	FinishedAt      *time.Time
	Status          WorkLogStatus
	RejectionReason *string
	CreatedAt       time.Time
}

// WorkTotals aggregates time spent across all attempts on a ticket.
type WorkTotals struct {
	TotalMinutes int
	Attempts     int
}
