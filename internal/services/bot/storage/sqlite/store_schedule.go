package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	platformerrors "github.com/featherpost/featherpost/internal/platform/errors"
	"github.com/featherpost/featherpost/internal/services/bot/storage"
)

func validStatus(status string) bool {
	switch status {
	case storage.StatusPending, storage.StatusApproved, storage.StatusPosted, storage.StatusRejected:
		return true
	default:
		return false
	}
}

// allowedTransitions is the posting queue status machine: review resolves a
// pending post, and only approved posts can be published.
var allowedTransitions = map[string][]string{
	storage.StatusPending:  {storage.StatusApproved, storage.StatusRejected},
	storage.StatusApproved: {storage.StatusPosted},
}

func transitionAllowed(from string, to string) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// EnqueuePost adds one pending unit of posting work.
func (s *Store) EnqueuePost(ctx context.Context, post storage.ScheduledPost) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	post.ID = strings.TrimSpace(post.ID)
	if post.ID == "" {
		return fmt.Errorf("scheduled post id is required")
	}
	if strings.TrimSpace(post.Content) == "" {
		return platformerrors.New(platformerrors.CodePostContentEmpty, "scheduled post content is required")
	}
	if !validFormat(post.Format) {
		return platformerrors.WithMetadata(
			platformerrors.CodePostInvalidFormat,
			"scheduled post format must be single or thread",
			map[string]string{"format": post.Format},
		)
	}
	if post.ScheduledFor.IsZero() {
		return fmt.Errorf("scheduled time is required")
	}
	if post.Status == "" {
		post.Status = storage.StatusPending
	}
	if !validStatus(post.Status) {
		return platformerrors.WithMetadata(
			platformerrors.CodeScheduleInvalidStatus,
			"unknown scheduled post status",
			map[string]string{"status": post.Status},
		)
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO scheduled_posts (
	id, content, format, scheduled_for, status,
	claimed_by, lease_expires_at, attempt_count, last_error, posted_post_id,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, '', 0, 0, '', '', ?, ?)
`,
		post.ID,
		post.Content,
		toNullString(post.Format),
		toMillis(post.ScheduledFor),
		post.Status,
		toMillis(post.CreatedAt),
		toMillis(post.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue post: %w", err)
	}
	return nil
}

// GetScheduledPost returns one queue entry by id.
func (s *Store) GetScheduledPost(ctx context.Context, id string) (storage.ScheduledPost, error) {
	if err := ctx.Err(); err != nil {
		return storage.ScheduledPost{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ScheduledPost{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ScheduledPost{}, fmt.Errorf("scheduled post id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, content, format, scheduled_for, status,
	claimed_by, lease_expires_at, attempt_count, last_error, posted_post_id,
	created_at, updated_at
FROM scheduled_posts
WHERE id = ?
`, id)
	post, err := scanScheduledPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ScheduledPost{}, storage.ErrNotFound
		}
		return storage.ScheduledPost{}, fmt.Errorf("get scheduled post: %w", err)
	}
	return post, nil
}

// Transition moves a queue entry between statuses, enforcing the status machine.
func (s *Store) Transition(ctx context.Context, id string, from string, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("scheduled post id is required")
	}
	if !validStatus(from) || !validStatus(to) {
		return platformerrors.WithMetadata(
			platformerrors.CodeScheduleInvalidStatus,
			"unknown scheduled post status",
			map[string]string{"from": from, "to": to},
		)
	}
	if !transitionAllowed(from, to) {
		return platformerrors.WithMetadata(
			platformerrors.CodeScheduleInvalidTransition,
			"disallowed scheduled post transition",
			map[string]string{"from": from, "to": to},
		)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE scheduled_posts SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`, to, toMillis(time.Now().UTC()), id, from)
	if err != nil {
		return fmt.Errorf("transition scheduled post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition scheduled post: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClaimDue claims the earliest approved post due at now whose previous claim
// is absent or lease-expired. The claim and its lease stamp commit in one
// transaction so two pollers cannot hold the same entry.
func (s *Store) ClaimDue(ctx context.Context, claimer string, now time.Time, leaseTTL time.Duration) (storage.ScheduledPost, error) {
	if err := ctx.Err(); err != nil {
		return storage.ScheduledPost{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ScheduledPost{}, fmt.Errorf("storage is not configured")
	}
	claimer = strings.TrimSpace(claimer)
	if claimer == "" {
		return storage.ScheduledPost{}, fmt.Errorf("claimer is required")
	}
	if leaseTTL <= 0 {
		return storage.ScheduledPost{}, fmt.Errorf("lease ttl must be greater than zero")
	}
	nowMillis := toMillis(now)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.ScheduledPost{}, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
SELECT id FROM scheduled_posts
WHERE status = ? AND scheduled_for <= ?
	AND (claimed_by = '' OR lease_expires_at <= ?)
ORDER BY scheduled_for ASC, id ASC
LIMIT 1
`, storage.StatusApproved, nowMillis, nowMillis).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ScheduledPost{}, storage.ErrNotFound
		}
		return storage.ScheduledPost{}, fmt.Errorf("select due post: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
UPDATE scheduled_posts SET
	claimed_by = ?,
	lease_expires_at = ?,
	attempt_count = attempt_count + 1,
	updated_at = ?
WHERE id = ? AND status = ?
	AND (claimed_by = '' OR lease_expires_at <= ?)
`, claimer, toMillis(now.Add(leaseTTL)), nowMillis, id, storage.StatusApproved, nowMillis)
	if err != nil {
		return storage.ScheduledPost{}, fmt.Errorf("claim due post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ScheduledPost{}, fmt.Errorf("claim due post: %w", err)
	}
	if affected == 0 {
		return storage.ScheduledPost{}, storage.ErrNotFound
	}

	row := tx.QueryRowContext(ctx, `
SELECT id, content, format, scheduled_for, status,
	claimed_by, lease_expires_at, attempt_count, last_error, posted_post_id,
	created_at, updated_at
FROM scheduled_posts
WHERE id = ?
`, id)
	post, err := scanScheduledPost(row)
	if err != nil {
		return storage.ScheduledPost{}, fmt.Errorf("read claimed post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.ScheduledPost{}, fmt.Errorf("commit claim tx: %w", err)
	}
	return post, nil
}

// MarkPosted completes a claimed entry, linking the published post.
func (s *Store) MarkPosted(ctx context.Context, id string, claimer string, postedPostID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	claimer = strings.TrimSpace(claimer)
	postedPostID = strings.TrimSpace(postedPostID)
	if id == "" {
		return fmt.Errorf("scheduled post id is required")
	}
	if claimer == "" {
		return fmt.Errorf("claimer is required")
	}
	if postedPostID == "" {
		return fmt.Errorf("posted post id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE scheduled_posts SET
	status = ?,
	posted_post_id = ?,
	claimed_by = '',
	lease_expires_at = 0,
	last_error = '',
	updated_at = ?
WHERE id = ? AND status = ? AND claimed_by = ?
`,
		storage.StatusPosted,
		postedPostID,
		toMillis(time.Now().UTC()),
		id,
		storage.StatusApproved,
		claimer,
	)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	if affected == 0 {
		return platformerrors.WithMetadata(
			platformerrors.CodeScheduleClaimLost,
			"scheduled post is not claimed by this worker",
			map[string]string{"id": id, "claimer": claimer},
		)
	}
	return nil
}

// ReleaseClaim hands a claimed entry back to the queue, recording the failure.
func (s *Store) ReleaseClaim(ctx context.Context, id string, claimer string, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	claimer = strings.TrimSpace(claimer)
	if id == "" {
		return fmt.Errorf("scheduled post id is required")
	}
	if claimer == "" {
		return fmt.Errorf("claimer is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE scheduled_posts SET
	claimed_by = '',
	lease_expires_at = 0,
	last_error = ?,
	updated_at = ?
WHERE id = ? AND claimed_by = ?
`, strings.TrimSpace(lastError), toMillis(time.Now().UTC()), id, claimer)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	if affected == 0 {
		return platformerrors.WithMetadata(
			platformerrors.CodeScheduleClaimLost,
			"scheduled post is not claimed by this worker",
			map[string]string{"id": id, "claimer": claimer},
		)
	}
	return nil
}

// ReclaimExpired clears abandoned claims whose lease has lapsed, returning
// how many entries were handed back to the queue.
func (s *Store) ReclaimExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE scheduled_posts SET
	claimed_by = '',
	lease_expires_at = 0,
	last_error = 'claim lease expired',
	updated_at = ?
WHERE status = ? AND claimed_by != '' AND lease_expires_at <= ?
`, toMillis(now), storage.StatusApproved, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("reclaim expired claims: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim expired claims: %w", err)
	}
	return int(affected), nil
}

func scanScheduledPost(row rowScanner) (storage.ScheduledPost, error) {
	var (
		post         storage.ScheduledPost
		format       sql.NullString
		scheduledFor int64
		leaseExpires int64
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(
		&post.ID,
		&post.Content,
		&format,
		&scheduledFor,
		&post.Status,
		&post.ClaimedBy,
		&leaseExpires,
		&post.AttemptCount,
		&post.LastError,
		&post.PostedPostID,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ScheduledPost{}, err
	}
	post.Format = format.String
	post.ScheduledFor = fromMillis(scheduledFor)
	if leaseExpires > 0 {
		post.LeaseExpiresAt = fromMillis(leaseExpires)
	}
	post.CreatedAt = fromMillis(createdAt)
	post.UpdatedAt = fromMillis(updatedAt)
	return post, nil
}
