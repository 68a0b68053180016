package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"stocktrigger/internal/domain"
)

// EvaluationLockImpl is a named lease row in evaluation_locks. Each instance
// carries its own holder token so a release never drops another holder's lease.
type EvaluationLockImpl struct {
	db     *pgxpool.Pool
	name   string
	holder string
}

// NewEvaluationLock creates a lock handle with a fresh holder token
func NewEvaluationLock(db *pgxpool.Pool, name string) domain.EvaluationLock {
	return &EvaluationLockImpl{
		db:     db,
		name:   name,
		holder: uuid.NewString(),
	}
}

// TryAcquire takes the lease when it is free or expired. A live lease is not
// re-granted to its own holder
func (l *EvaluationLockImpl) TryAcquire(ctx context.Context, lease time.Duration) (bool, error) {
	tag, err := l.db.Exec(ctx, `
		INSERT INTO evaluation_locks (name, holder, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 millisecond')
		ON CONFLICT (name) DO UPDATE SET
			holder = EXCLUDED.holder,
			expires_at = EXCLUDED.expires_at
		WHERE evaluation_locks.expires_at < NOW()
	`, l.name, l.holder, lease.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("failed to acquire evaluation lock: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// Release deletes the lease if we still hold it
func (l *EvaluationLockImpl) Release(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `
		DELETE FROM evaluation_locks WHERE name = $1 AND holder = $2
	`, l.name, l.holder)
	if err != nil {
		return fmt.Errorf("failed to release evaluation lock: %w", err)
	}
	return nil
}
