package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/webdesk/internal/domain"
)

// memoryData is the full dataset of a MemoryStore. Transactions work on a
// deep copy and swap it in on commit.
type memoryData struct {
	users    map[string]domain.User
	tickets  map[string]domain.Ticket
	history  []domain.StatusHistoryEntry
	workLogs []domain.WorkLogEntry
	reviews  []domain.Review
}

func (d *memoryData) clone() *memoryData {
	out := &memoryData{
		users:    make(map[string]domain.User, len(d.users)),
		tickets:  make(map[string]domain.Ticket, len(d.tickets)),
		history:  append([]domain.StatusHistoryEntry(nil), d.history...),
		workLogs: append([]domain.WorkLogEntry(nil), d.workLogs...),
		reviews:  append([]domain.Review(nil), d.reviews...),
	}
	for id, u := range d.users {
		out.users[id] = u
	}
	for id, t := range d.tickets {
		out.tickets[id] = t
	}
	return out
}

// MemoryStore is a Store kept in process memory. It backs local development
// when no database is configured, and tests.
type MemoryStore struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	data *memoryData
	inTx bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:   &sync.Mutex{},
		txMu: &sync.Mutex{},
		data: &memoryData{
			users:   map[string]domain.User{},
			tickets: map[string]domain.Ticket{},
		},
	}
}

// PutUser seeds the user directory. Outside a transaction it waits for the
// running one to commit so the write is not lost in the snapshot swap.
func (s *MemoryStore) PutUser(user domain.User) {
	if !s.inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.data.users[user.ID] = user
}

func (s *MemoryStore) Users() UserRepository                  { return memoryUsers{s} }
func (s *MemoryStore) Tickets() TicketRepository              { return memoryTickets{s} }
func (s *MemoryStore) StatusHistory() StatusHistoryRepository { return memoryHistory{s} }
func (s *MemoryStore) WorkLogs() WorkLogRepository            { return memoryWorkLogs{s} }
func (s *MemoryStore) Reviews() ReviewRepository              { return memoryReviews{s} }

// InTx serializes transactions and applies fn's writes only when it succeeds.
// Nested calls join the enclosing transaction.
func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	tx := &MemoryStore{mu: &sync.Mutex{}, txMu: s.txMu, data: snapshot, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) with(fn func(d *memoryData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.s.with(func(d *memoryData) error {
		user, ok := d.users[id]
		if !ok || user.DeletedAt != nil {
			return pgx.ErrNoRows
		}
		out = &user
		return nil
	})
	return out, err
}

type memoryTickets struct{ s *MemoryStore }

func (r memoryTickets) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.s.with(func(d *memoryData) error {
		now := time.Now()
		ticket.ID = uuid.NewString()
		ticket.CreatedAt = now
		ticket.UpdatedAt = now
		d.tickets[ticket.ID] = cloneTicket(*ticket)
		return nil
	})
}

func (r memoryTickets) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.s.with(func(d *memoryData) error {
		current, ok := d.tickets[ticket.ID]
		if !ok || current.DeletedAt != nil {
			return pgx.ErrNoRows
		}
		ticket.UpdatedAt = time.Now()
		ticket.CreatedAt = current.CreatedAt
		d.tickets[ticket.ID] = cloneTicket(*ticket)
		return nil
	})
}

func (r memoryTickets) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.s.with(func(d *memoryData) error {
		ticket, ok := d.tickets[id]
		if !ok || ticket.DeletedAt != nil {
			return pgx.ErrNoRows
		}
		cp := cloneTicket(ticket)
		out = &cp
		return nil
	})
	return out, err
}

// GetByIDForUpdate needs no row lock: transactions are already serialized.
func (r memoryTickets) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r memoryTickets) SoftDelete(_ context.Context, id string, at time.Time) error {
	return r.s.with(func(d *memoryData) error {
		ticket, ok := d.tickets[id]
		if !ok || ticket.DeletedAt != nil {
			return pgx.ErrNoRows
		}
		ticket.DeletedAt = &at
		ticket.UpdatedAt = time.Now()
		d.tickets[id] = ticket
		return nil
	})
}

func (r memoryTickets) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	err := r.s.with(func(d *memoryData) error {
		for _, ticket := range d.tickets {
			if ticket.DeletedAt == nil && matchesFilter(ticket, filter) {
				result = append(result, cloneTicket(ticket))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	limit, offset := normalizePage(filter.Limit, filter.Offset)
	if offset >= len(result) {
		return []domain.Ticket{}, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func (r memoryTickets) Stats(_ context.Context, scope StatsScope) (domain.TicketStats, error) {
	var stats domain.TicketStats
	var mine, pending int
	err := r.s.with(func(d *memoryData) error {
		for _, t := range d.tickets {
			if t.DeletedAt != nil {
				continue
			}
			stats.Total++
			switch t.Status {
			case domain.TicketStatusOpen:
				stats.Open++
			case domain.TicketStatusInProgress:
				stats.InProgress++
			case domain.TicketStatusInReview:
				stats.InReview++
				if t.IsValidatedBy(scope.UserID) {
					pending++
				}
			case domain.TicketStatusResolved:
				stats.Resolved++
			case domain.TicketStatusRejected:
				stats.Rejected++
			}
			if t.Priority == domain.TicketPriorityCritical {
				stats.Critical++
			}
			if t.AssignedTo == nil {
				stats.Unassigned++
			}
			if t.CreatedBy == scope.UserID || t.IsAssignedTo(scope.UserID) {
				mine++
			}
		}
		return nil
	})
	if err != nil {
		return domain.TicketStats{}, err
	}
	applyScopedStats(&stats, scope, mine, pending)
	return stats, nil
}

func matchesFilter(t domain.Ticket, f TicketFilter) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if f.Priority != nil && t.Priority != *f.Priority {
		return false
	}
	if f.WebID != nil && t.WebID != *f.WebID {
		return false
	}
	if f.CreatedBy != nil && t.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedTo != nil && !t.IsAssignedTo(*f.AssignedTo) {
		return false
	}
	if f.ValidatorID != nil && !t.IsValidatedBy(*f.ValidatorID) {
		return false
	}
	return true
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.AssignedTo = cloneString(t.AssignedTo)
	t.ValidatorID = cloneString(t.ValidatorID)
	return t
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

type memoryHistory struct{ s *MemoryStore }

func (r memoryHistory) Create(_ context.Context, entry *domain.StatusHistoryEntry) error {
	return r.s.with(func(d *memoryData) error {
		entry.ID = uuid.NewString()
		d.history = append(d.history, *entry)
		return nil
	})
}

func (r memoryHistory) ListByTicket(_ context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	result := []domain.StatusHistoryEntry{}
	err := r.s.with(func(d *memoryData) error {
		for _, entry := range d.history {
			if entry.TicketID == ticketID && entry.DeletedAt == nil {
				result = append(result, entry)
			}
		}
		return nil
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ChangedAt.Before(result[j].ChangedAt)
	})
	return result, err
}

type memoryWorkLogs struct{ s *MemoryStore }

func (r memoryWorkLogs) Create(_ context.Context, entry *domain.WorkLogEntry) error {
	return r.s.with(func(d *memoryData) error {
		entry.ID = uuid.NewString()
		d.workLogs = append(d.workLogs, cloneWorkLog(*entry))
		return nil
	})
}

func (r memoryWorkLogs) Update(_ context.Context, entry *domain.WorkLogEntry) error {
	return r.s.with(func(d *memoryData) error {
		for i := range d.workLogs {
			if d.workLogs[i].ID == entry.ID {
				d.workLogs[i].FinishedAt = entry.FinishedAt
				d.workLogs[i].Status = entry.Status
				d.workLogs[i].RejectionReason = entry.RejectionReason
				return nil
			}
		}
		return pgx.ErrNoRows
	})
}

func (r memoryWorkLogs) FindActive(_ context.Context, ticketID, devID string) (*domain.WorkLogEntry, error) {
	return r.latest(func(e domain.WorkLogEntry) bool {
		return e.TicketID == ticketID && e.DevID == devID && e.Status == domain.WorkLogStatusInProgress
	})
}

func (r memoryWorkLogs) FindLatestCompleted(_ context.Context, ticketID string) (*domain.WorkLogEntry, error) {
	return r.latest(func(e domain.WorkLogEntry) bool {
		return e.TicketID == ticketID && e.Status == domain.WorkLogStatusCompleted
	})
}

// latest returns the matching entry with the greatest created_at; among
// equal timestamps the later insertion wins.
func (r memoryWorkLogs) latest(match func(domain.WorkLogEntry) bool) (*domain.WorkLogEntry, error) {
	var out *domain.WorkLogEntry
	err := r.s.with(func(d *memoryData) error {
		for i := range d.workLogs {
			entry := d.workLogs[i]
			if !match(entry) {
				continue
			}
			if out == nil || !entry.CreatedAt.Before(out.CreatedAt) {
				cp := cloneWorkLog(entry)
				out = &cp
			}
		}
		if out == nil {
			return pgx.ErrNoRows
		}
		return nil
	})
	return out, err
}

func (r memoryWorkLogs) ListByTicket(_ context.Context, ticketID string) ([]domain.WorkLogEntry, error) {
	result := []domain.WorkLogEntry{}
	err := r.s.with(func(d *memoryData) error {
		for _, entry := range d.workLogs {
			if entry.TicketID == ticketID {
				result = append(result, cloneWorkLog(entry))
			}
		}
		return nil
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, err
}

func cloneWorkLog(e domain.WorkLogEntry) domain.WorkLogEntry {
	if e.FinishedAt != nil {
		finished := *e.FinishedAt
		e.FinishedAt = &finished
	}
	e.RejectionReason = cloneString(e.RejectionReason)
	return e
}

type memoryReviews struct{ s *MemoryStore }

func (r memoryReviews) Create(_ context.Context, review *domain.Review) error {
	return r.s.with(func(d *memoryData) error {
		review.ID = uuid.NewString()
		cp := *review
		cp.Comment = cloneString(review.Comment)
		d.reviews = append(d.reviews, cp)
		return nil
	})
}

func (r memoryReviews) ListByTicket(_ context.Context, ticketID string) ([]domain.Review, error) {
	result := []domain.Review{}
	err := r.s.with(func(d *memoryData) error {
		for _, review := range d.reviews {
			if review.TicketID == ticketID && review.DeletedAt == nil {
				review.Comment = cloneString(review.Comment)
				result = append(result, review)
			}
		}
		return nil
	})
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, err
}
