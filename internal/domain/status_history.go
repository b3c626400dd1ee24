package domain

import "time"

// StatusHistoryEntry is an immutable audit record of one accepted status transition.
type StatusHistoryEntry struct {
	ID        string
	TicketID  string
	OldStatus TicketStatus
	NewStatus TicketStatus
	ChangedBy string
	ChangedAt time.Time
	DeletedAt *time.Time
}
