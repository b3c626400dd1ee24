package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/webdesk/internal/domain"
)

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	WebID       *string
	CreatedBy   *string
	AssignedTo  *string
	ValidatorID *string
	Limit       int
	Offset      int
}

// StatsScope identifies the caller a stats query is computed for.
type StatsScope struct {
	UserID string
	Role   domain.UserRole
}

// TicketRepository encapsulates ticket persistence. Every read ignores
// soft-deleted rows.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetByIDForUpdate reads the ticket and locks its row until the
	// surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	SoftDelete(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Stats(ctx context.Context, scope StatsScope) (domain.TicketStats, error)
}

type ticketRepository struct {
	db DBTX
}

const ticketColumns = `id, title, description, status, priority, web_id, created_by, assigned_to,
               validator_id, created_at, updated_at, deleted_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, status, priority, web_id, created_by, assigned_to, validator_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.WebID,
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.ValidatorID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, assigned_to=$5,
            validator_id=$6, updated_at=NOW()
        WHERE id=$7 AND deleted_at IS NULL
        RETURNING updated_at`
	err := r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.AssignedTo,
		ticket.ValidatorID,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE id=$1 AND deleted_at IS NULL`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + `
        FROM tickets WHERE id=$1 AND deleted_at IS NULL
        FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE tickets SET deleted_at=$1, updated_at=NOW() WHERE id=$2 AND deleted_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return lookupErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.db.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.WebID,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.ValidatorID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.DeletedAt,
	); err != nil {
		return nil, lookupErr(err)
	}
	return &ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"deleted_at IS NULL"}
	args := []any{}

	addEq := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if filter.Status != nil {
		addEq("status", *filter.Status)
	}
	if filter.Priority != nil {
		addEq("priority", *filter.Priority)
	}
	if filter.WebID != nil {
		addEq("web_id", *filter.WebID)
	}
	if filter.CreatedBy != nil {
		addEq("created_by", *filter.CreatedBy)
	}
	if filter.AssignedTo != nil {
		addEq("assigned_to", *filter.AssignedTo)
	}
	if filter.ValidatorID != nil {
		addEq("validator_id", *filter.ValidatorID)
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Stats(ctx context.Context, scope StatsScope) (domain.TicketStats, error) {
	const query = `
        SELECT
            COUNT(*),
            COUNT(*) FILTER (WHERE status='OPEN'),
            COUNT(*) FILTER (WHERE status='IN_PROGRESS'),
            COUNT(*) FILTER (WHERE status='IN_REVIEW'),
            COUNT(*) FILTER (WHERE status='RESOLVED'),
            COUNT(*) FILTER (WHERE status='REJECTED'),
            COUNT(*) FILTER (WHERE priority='CRITICAL'),
            COUNT(*) FILTER (WHERE assigned_to IS NULL),
            COUNT(*) FILTER (WHERE created_by=$1 OR assigned_to=$1),
            COUNT(*) FILTER (WHERE status='IN_REVIEW' AND validator_id=$1)
        FROM tickets WHERE deleted_at IS NULL`

	var stats domain.TicketStats
	var mine, pending int
	if err := r.db.QueryRow(ctx, query, scope.UserID).Scan(
		&stats.Total,
		&stats.Open,
		&stats.InProgress,
		&stats.InReview,
		&stats.Resolved,
		&stats.Rejected,
		&stats.Critical,
		&stats.Unassigned,
		&mine,
		&pending,
	); err != nil {
		return domain.TicketStats{}, err
	}
	applyScopedStats(&stats, scope, mine, pending)
	return stats, nil
}

// applyScopedStats fills the per-role counters: developers and clients see
// their own tickets, validators their review queue.
func applyScopedStats(stats *domain.TicketStats, scope StatsScope, mine, pending int) {
	switch scope.Role {
	case domain.UserRoleDeveloper, domain.UserRoleClient:
		stats.MyTickets = &mine
	case domain.UserRoleValidator:
		stats.PendingReview = &pending
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.WebID,
			&ticket.CreatedBy,
			&ticket.AssignedTo,
			&ticket.ValidatorID,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
