package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/featherpost/featherpost/internal/services/bot/storage"
)

// RecordSnapshot appends one engagement snapshot. A snapshot taken at the
// same instant for the same post is a no-op rather than a duplicate.
func (s *Store) RecordSnapshot(ctx context.Context, snapshot storage.MetricsSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	snapshot.PostID = strings.TrimSpace(snapshot.PostID)
	if snapshot.PostID == "" {
		return fmt.Errorf("post id is required")
	}
	if snapshot.CollectedAt.IsZero() {
		snapshot.CollectedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO post_metrics (
	post_id, likes_count, retweets_count, replies_count, impressions_count, collected_at
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (post_id, collected_at) DO NOTHING
`,
		snapshot.PostID,
		snapshot.Likes,
		snapshot.Retweets,
		snapshot.Replies,
		snapshot.Impressions,
		toMillis(snapshot.CollectedAt),
	)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns newest-first snapshots for a post.
func (s *Store) ListSnapshots(ctx context.Context, postID string, limit int) ([]storage.MetricsSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, fmt.Errorf("post id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT post_id, likes_count, retweets_count, replies_count, impressions_count, collected_at
FROM post_metrics
WHERE post_id = ?
ORDER BY collected_at DESC
LIMIT ?
`, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]storage.MetricsSnapshot, 0, limit)
	for rows.Next() {
		var (
			snapshot    storage.MetricsSnapshot
			collectedAt int64
		)
		if err := rows.Scan(
			&snapshot.PostID,
			&snapshot.Likes,
			&snapshot.Retweets,
			&snapshot.Replies,
			&snapshot.Impressions,
			&collectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshot.CollectedAt = fromMillis(collectedAt)
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// EngagementVelocity derives engagement gained per hour from the earliest and
// latest snapshots inside the window. Fewer than two snapshots yield zero.
func (s *Store) EngagementVelocity(ctx context.Context, postID string, window time.Duration) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return 0, fmt.Errorf("post id is required")
	}
	if window <= 0 {
		return 0, fmt.Errorf("window must be greater than zero")
	}

	cutoff := toMillis(time.Now().UTC().Add(-window))
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COALESCE(MIN(collected_at), 0),
	COALESCE(MAX(collected_at), 0),
	COALESCE(SUM(CASE WHEN collected_at = (
		SELECT MIN(collected_at) FROM post_metrics WHERE post_id = ? AND collected_at >= ?
	) THEN likes_count + retweets_count + replies_count ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN collected_at = (
		SELECT MAX(collected_at) FROM post_metrics WHERE post_id = ? AND collected_at >= ?
	) THEN likes_count + retweets_count + replies_count ELSE 0 END), 0)
FROM post_metrics
WHERE post_id = ? AND collected_at >= ?
`, postID, cutoff, postID, cutoff, postID, cutoff)

	var (
		count    int64
		minAt    int64
		maxAt    int64
		firstSum float64
		lastSum  float64
	)
	if err := row.Scan(&count, &minAt, &maxAt, &firstSum, &lastSum); err != nil {
		return 0, fmt.Errorf("engagement velocity: %w", err)
	}
	if count < 2 || maxAt <= minAt {
		return 0, nil
	}
	hours := float64(maxAt-minAt) / float64(time.Hour.Milliseconds())
	return (lastSum - firstSum) / hours, nil
}
