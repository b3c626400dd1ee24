package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store groups the repositories that take part in one unit of work.
type Store interface {
	Users() UserRepository
	Tickets() TicketRepository
	StatusHistory() StatusHistoryRepository
	WorkLogs() WorkLogRepository
	Reviews() ReviewRepository

	// InTx runs fn against a transactional Store. Any error returned by fn
	// rolls back every write made through the Store it was handed.
	InTx(ctx context.Context, fn func(tx Store) error) error
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgStore struct {
	db DBTX
}

// NewPostgresStore returns a Store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{db: pool}
}

func (s *pgStore) Users() UserRepository {
	return &userRepository{db: s.db}
}

func (s *pgStore) Tickets() TicketRepository {
	return &ticketRepository{db: s.db}
}

func (s *pgStore) StatusHistory() StatusHistoryRepository {
	return &statusHistoryRepository{db: s.db}
}

func (s *pgStore) WorkLogs() WorkLogRepository {
	return &workLogRepository{db: s.db}
}

func (s *pgStore) Reviews() ReviewRepository {
	return &reviewRepository{db: s.db}
}

// InTx opens a transaction, or a savepoint when already inside one.
func (s *pgStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgStore{db: tx})
	})
}

// invalidTextRepresentation is raised when an id is not a valid UUID.
const invalidTextRepresentation = "22P02"

// lookupErr maps malformed ids to pgx.ErrNoRows: such an id names no row.
func lookupErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation {
		return pgx.ErrNoRows
	}
	return err
}
