package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"school-timetable/internal/domain"
)

type OutboxRecord struct {
	ID        uuid.UUID
	EventType string
	Payload   json.RawMessage
	CreatedAt time.Time
}

type OutboxRepository interface {
	Insert(ctx context.Context, event domain.AuditEvent) error
	ListUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

type OutboxPostgresRepository struct {
	execer Execer
}

func NewOutboxPostgresRepository(execer Execer) *OutboxPostgresRepository {
	return &OutboxPostgresRepository{execer: execer}
}

func (r *OutboxPostgresRepository) Insert(ctx context.Context, event domain.AuditEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}

	const query = `
INSERT INTO timetable.outbox_events (
	id,
	event_type,
	payload,
	created_at,
	published
) VALUES ($1, $2, $3, now(), false)
`

	_, err = r.execer.ExecContext(ctx, query, uuid.New(), event.EventType, payload)
	return err
}

func (r *OutboxPostgresRepository) ListUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error) {
	const query = `
SELECT id, event_type, payload, created_at
FROM timetable.outbox_events
WHERE published = false
ORDER BY created_at ASC
LIMIT $1
`

	rows, err := r.execer.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var record OutboxRecord
		if err := rows.Scan(&record.ID, &record.EventType, &record.Payload, &record.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *OutboxPostgresRepository) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	const query = `
UPDATE timetable.outbox_events
SET published = true
WHERE id = ANY($1)
`

	idStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrings = append(idStrings, id.String())
	}

	_, err := r.execer.ExecContext(ctx, query, idStrings)
	return err
}
