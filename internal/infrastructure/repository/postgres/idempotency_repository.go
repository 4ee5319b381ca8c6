package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// IdempotencyRepository claims message identifiers in Postgres. Claims are
// scoped per consumer group so independent stages can each process the same
// pipeline message once, and they expire after the broker's maximum
// redelivery window so the table does not grow forever.
type IdempotencyRepository struct {
	db    *sql.DB
	scope string
	ttl   time.Duration
	now   func() time.Time
}

func NewIdempotencyRepository(db *sql.DB, scope string, ttl time.Duration) *IdempotencyRepository {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyRepository{
		db:    db,
		scope: scope,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// TryClaim performs an atomic check-and-set: the insert either lands (first
// claim), takes over an expired row, or hits a live row and affects nothing.
// A store failure is an error; it is never treated as "not yet claimed".
func (r *IdempotencyRepository) TryClaim(ctx context.Context, messageID string) (bool, error) {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO processed_messages (scope, message_id, claimed_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (scope, message_id) DO UPDATE
SET claimed_at = EXCLUDED.claimed_at, expires_at = EXCLUDED.expires_at
WHERE processed_messages.expires_at <= EXCLUDED.claimed_at
`, r.scope, messageID, now, now.Add(r.ttl))
	if err != nil {
		return false, domain.WrapError(domain.ErrTemporary, "claim message id", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return affected > 0, nil
}

// Release drops a claim after the claimed work failed, so the broker's
// redelivery of the same message is processed instead of dropped.
func (r *IdempotencyRepository) Release(ctx context.Context, messageID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE scope = $1 AND message_id = $2`,
		r.scope, messageID,
	); err != nil {
		return domain.WrapError(domain.ErrTemporary, "release message claim", err)
	}
	return nil
}

// PurgeExpired removes claims that fell out of the redelivery window. Called
// periodically by the worker binaries.
func (r *IdempotencyRepository) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE scope = $1 AND expires_at <= $2`,
		r.scope, r.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge expired claims: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return affected, nil
}
