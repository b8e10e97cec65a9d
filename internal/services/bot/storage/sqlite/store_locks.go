package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	platformerrors "github.com/featherpost/featherpost/internal/platform/errors"
	"github.com/featherpost/featherpost/internal/services/bot/storage"
)

// AcquireLock takes or reclaims the named lease.
//
// Protocol: the first acquire inserts the row with fencing token 1. An
// acquire against an expired lease reclaims it and increments the token, so
// writes guarded by the old token can be rejected. An acquire by the current
// holder before expiry renews in place without a token bump. Any other
// acquire fails with a lock-held error naming the holder.
func (s *Store) AcquireLock(ctx context.Context, name string, holder string, ttl time.Duration) (storage.Lease, error) {
	if err := ctx.Err(); err != nil {
		return storage.Lease{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Lease{}, fmt.Errorf("storage is not configured")
	}
	name = strings.TrimSpace(name)
	holder = strings.TrimSpace(holder)
	if name == "" {
		return storage.Lease{}, fmt.Errorf("lock name is required")
	}
	if holder == "" {
		return storage.Lease{}, fmt.Errorf("lock holder is required")
	}
	if ttl <= 0 {
		return storage.Lease{}, fmt.Errorf("lock ttl must be greater than zero")
	}

	now := time.Now().UTC()
	nowMillis := toMillis(now)
	expiresAt := now.Add(ttl)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Lease{}, fmt.Errorf("begin lock tx: %w", err)
	}
	defer tx.Rollback()

	var (
		currentHolder string
		currentToken  int64
		lockedUntil   int64
	)
	err = tx.QueryRowContext(ctx, `
SELECT holder, fencing_token, locked_until FROM runtime_locks WHERE name = ?
`, name).Scan(&currentHolder, &currentToken, &lockedUntil)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
INSERT INTO runtime_locks (name, holder, fencing_token, locked_until, acquired_at, updated_at)
VALUES (?, ?, 1, ?, ?, ?)
`, name, holder, toMillis(expiresAt), nowMillis, nowMillis); err != nil {
			return storage.Lease{}, fmt.Errorf("insert lock: %w", err)
		}
		currentToken = 1
	case err != nil:
		return storage.Lease{}, fmt.Errorf("read lock: %w", err)
	case currentHolder == holder && lockedUntil > nowMillis:
		// Re-acquire by the live holder renews without a token bump.
		if _, err := tx.ExecContext(ctx, `
UPDATE runtime_locks SET locked_until = ?, updated_at = ? WHERE name = ?
`, toMillis(expiresAt), nowMillis, name); err != nil {
			return storage.Lease{}, fmt.Errorf("renew lock: %w", err)
		}
	case lockedUntil <= nowMillis:
		// Expired lease: reclaim and fence out the previous holder.
		currentToken++
		if _, err := tx.ExecContext(ctx, `
UPDATE runtime_locks SET holder = ?, fencing_token = ?, locked_until = ?, acquired_at = ?, updated_at = ?
WHERE name = ?
`, holder, currentToken, toMillis(expiresAt), nowMillis, nowMillis, name); err != nil {
			return storage.Lease{}, fmt.Errorf("reclaim lock: %w", err)
		}
	default:
		return storage.Lease{}, platformerrors.WithMetadata(
			platformerrors.CodeLockHeld,
			"lock is held by another instance",
			map[string]string{
				"name":         name,
				"holder":       currentHolder,
				"locked_until": strconv.FormatInt(lockedUntil, 10),
			},
		)
	}

	if err := tx.Commit(); err != nil {
		return storage.Lease{}, fmt.Errorf("commit lock tx: %w", err)
	}
	return storage.Lease{
		Name:         name,
		Holder:       holder,
		FencingToken: currentToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewLock extends an unexpired lease held with a matching fencing token.
func (s *Store) RenewLock(ctx context.Context, lease storage.Lease, ttl time.Duration) (storage.Lease, error) {
	if err := ctx.Err(); err != nil {
		return storage.Lease{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Lease{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(lease.Name) == "" || strings.TrimSpace(lease.Holder) == "" {
		return storage.Lease{}, fmt.Errorf("lease name and holder are required")
	}
	if ttl <= 0 {
		return storage.Lease{}, fmt.Errorf("lock ttl must be greater than zero")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE runtime_locks SET locked_until = ?, updated_at = ?
WHERE name = ? AND holder = ? AND fencing_token = ? AND locked_until > ?
`, toMillis(expiresAt), toMillis(now), lease.Name, lease.Holder, lease.FencingToken, toMillis(now))
	if err != nil {
		return storage.Lease{}, fmt.Errorf("renew lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Lease{}, fmt.Errorf("renew lock: %w", err)
	}
	if affected == 0 {
		return storage.Lease{}, platformerrors.WithMetadata(
			platformerrors.CodeLockExpired,
			"lease is expired, reclaimed, or was never held",
			map[string]string{"name": lease.Name, "holder": lease.Holder},
		)
	}
	lease.ExpiresAt = expiresAt
	return lease, nil
}

// ReleaseLock drops a lease held with a matching fencing token. Releasing a
// lease that was reclaimed by another instance is a fencing error.
func (s *Store) ReleaseLock(ctx context.Context, lease storage.Lease) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(lease.Name) == "" || strings.TrimSpace(lease.Holder) == "" {
		return fmt.Errorf("lease name and holder are required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM runtime_locks
WHERE name = ? AND holder = ? AND fencing_token = ?
`, lease.Name, lease.Holder, lease.FencingToken)
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if affected == 0 {
		return platformerrors.WithMetadata(
			platformerrors.CodeLockFencingMismatch,
			"lease does not match the current lock state",
			map[string]string{"name": lease.Name, "holder": lease.Holder},
		)
	}
	return nil
}
