package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/webdesk/internal/domain"
)

// WorkLogRepository stores developer work attempts.
type WorkLogRepository interface {
	Create(ctx context.Context, entry *domain.WorkLogEntry) error
	Update(ctx context.Context, entry *domain.WorkLogEntry) error
	// FindActive returns the IN_PROGRESS attempt of devID on ticketID.
	FindActive(ctx context.Context, ticketID, devID string) (*domain.WorkLogEntry, error)
	// FindLatestCompleted returns the most recently created COMPLETED attempt on ticketID.
	FindLatestCompleted(ctx context.Context, ticketID string) (*domain.WorkLogEntry, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.WorkLogEntry, error)
}

type workLogRepository struct {
	db DBTX
}

const workLogColumns = `id, ticket_id, dev_id, started_at, finished_at, status, rejection_reason, created_at`

func (r *workLogRepository) Create(ctx context.Context, entry *domain.WorkLogEntry) error {
	const query = `
        INSERT INTO ticket_work_logs (ticket_id, dev_id, started_at, finished_at, status, rejection_reason, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		entry.TicketID,
		entry.DevID,
		entry.StartedAt,
		entry.FinishedAt,
		entry.Status,
		entry.RejectionReason,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *workLogRepository) Update(ctx context.Context, entry *domain.WorkLogEntry) error {
	const query = `
        UPDATE ticket_work_logs SET finished_at=$1, status=$2, rejection_reason=$3
        WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query,
		entry.FinishedAt,
		entry.Status,
		entry.RejectionReason,
		entry.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *workLogRepository) FindActive(ctx context.Context, ticketID, devID string) (*domain.WorkLogEntry, error) {
	const query = `SELECT ` + workLogColumns + `
        FROM ticket_work_logs
        WHERE ticket_id=$1 AND dev_id=$2 AND status='IN_PROGRESS'
        ORDER BY created_at DESC
        LIMIT 1`
	return r.fetchSingle(ctx, query, ticketID, devID)
}

func (r *workLogRepository) FindLatestCompleted(ctx context.Context, ticketID string) (*domain.WorkLogEntry, error) {
	const query = `SELECT ` + workLogColumns + `
        FROM ticket_work_logs
        WHERE ticket_id=$1 AND status='COMPLETED'
        ORDER BY created_at DESC
        LIMIT 1`
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *workLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.WorkLogEntry, error) {
	const query = `SELECT ` + workLogColumns + `
        FROM ticket_work_logs
        WHERE ticket_id=$1
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.WorkLogEntry{}
	for rows.Next() {
		var entry domain.WorkLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.DevID,
			&entry.StartedAt,
			&entry.FinishedAt,
			&entry.Status,
			&entry.RejectionReason,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *workLogRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.WorkLogEntry, error) {
	var entry domain.WorkLogEntry
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&entry.ID,
		&entry.TicketID,
		&entry.DevID,
		&entry.StartedAt,
		&entry.FinishedAt,
		&entry.Status,
		&entry.RejectionReason,
		&entry.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
