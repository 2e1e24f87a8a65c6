package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

type TxRepositories struct {
	Entries EntryRepository
	Outbox  OutboxRepository
}

type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error
}

type PostgresTxManager struct {
	db *sql.DB
}

func NewPostgresTxManager(db *sql.DB) *PostgresTxManager {
	return &PostgresTxManager{db: db}
}

func (m *PostgresTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	return m.run(ctx, sql.LevelReadCommitted, fn)
}

// serializableAttempts bounds retries of transactions aborted with a
// serialization failure (SQLSTATE 40001).
const serializableAttempts = 3

// WithSerializableTx runs fn inside a SERIALIZABLE transaction so that
// check-then-mutate sequences cannot interleave. The callback must be safe to
// re-run: an aborted attempt is rolled back completely before the retry.
func (m *PostgresTxManager) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, repos TxRepositories) error) error {
	var err error
	for attempt := 0; attempt < serializableAttempts; attempt++ {
		err = m.run(ctx, sql.LevelSerializable, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (m *PostgresTxManager) run(ctx context.Context, isolation sql.IsolationLevel, fn func(ctx context.Context, repos TxRepositories) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: isolation})
	if err != nil {
		return err
	}

	repos := TxRepositories{
		Entries: NewEntryPostgresRepository(tx),
		Outbox:  NewOutboxPostgresRepository(tx),
	}

	if err := fn(ctx, repos); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return rollbackErr
		}
		return err
	}

	return tx.Commit()
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

// IsExclusionViolation reports whether err is a Postgres exclusion-constraint
// violation (SQLSTATE 23P01). The entries table carries range-exclusion
// constraints on the teacher and class dimensions, so a violation here is a
// double-booking raised by the database itself.
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
