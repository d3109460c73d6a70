package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS inbox (
    event_id    TEXT PRIMARY KEY,
    received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS notifications (
    event_id   TEXT PRIMARY KEY REFERENCES inbox (event_id),
    order_id   TEXT NOT NULL,
    type       TEXT NOT NULL,
    recipient  TEXT NOT NULL DEFAULT '',
    message    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

type PGStore struct {
	Pool *pgxpool.Pool
}

func (s PGStore) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

func (s PGStore) Save(ctx context.Context, n Notification) (bool, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `INSERT INTO inbox(event_id, received_at)
		VALUES ($1, now()) ON CONFLICT (event_id) DO NOTHING`, n.EventID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	_, err = tx.Exec(ctx, `INSERT INTO notifications(event_id, order_id, type, recipient, message)
		VALUES ($1, $2, $3, $4, $5)`, n.EventID, n.OrderID, n.Type, n.Recipient, n.Message)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}
