package repo

import (
	"context"

	"github.com/google/uuid"
)

const insertDomainEvent = `INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4, $5)`

func (q *Queries) InsertDomainEvent(ctx context.Context, ev DomainEvent) error {
	_, err := q.db.Exec(ctx, insertDomainEvent, ev.ID, ev.Topic, ev.AggregateID, ev.Payload, ev.OccurredAt)
	return err
}

const listDomainEvents = `SELECT id, topic, aggregate_id, payload, occurred_at FROM domain_events
WHERE aggregate_id = $1
ORDER BY occurred_at, id`

// ListDomainEvents returns the history of one aggregate, oldest first.
func (q *Queries) ListDomainEvents(ctx context.Context, aggregateID uuid.UUID) ([]DomainEvent, error) {
	rows, err := q.db.Query(ctx, listDomainEvents, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DomainEvent
	for rows.Next() {
		var ev DomainEvent
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.AggregateID, &ev.Payload, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
