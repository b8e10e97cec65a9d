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

func validFormat(format string) bool {
	switch format {
	case "", storage.FormatSingle, storage.FormatThread:
		return true
	default:
		return false
	}
}

// PutPost inserts one generated post.
func (s *Store) PutPost(ctx context.Context, post storage.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	post.ID = strings.TrimSpace(post.ID)
	if post.ID == "" {
		return fmt.Errorf("post id is required")
	}
	if strings.TrimSpace(post.Content) == "" {
		return platformerrors.New(platformerrors.CodePostContentEmpty, "post content is required")
	}
	if !validFormat(post.Format) {
		return platformerrors.WithMetadata(
			platformerrors.CodePostInvalidFormat,
			"post format must be single or thread",
			map[string]string{"format": post.Format},
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
INSERT INTO posts (
	id, content, format, thread_root_id, model, confidence, quality_score,
	likes_count, retweets_count, replies_count, impressions_count,
	topic, hook_pattern, generator, followers_gained, engagement_rate,
	posted_at, deleted_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		post.ID,
		post.Content,
		toNullString(post.Format),
		toNullString(post.ThreadRootID),
		toNullString(post.Model),
		post.Confidence,
		post.QualityScore,
		post.Likes,
		post.Retweets,
		post.Replies,
		post.Impressions,
		post.Topic,
		post.HookPattern,
		post.Generator,
		post.FollowersGained,
		post.EngagementRate,
		toNullMillis(post.PostedAt),
		toNullMillis(post.DeletedAt),
		toMillis(post.CreatedAt),
		toMillis(post.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put post: %w", err)
	}
	return nil
}

// GetPost returns one post by id, including soft-deleted rows.
func (s *Store) GetPost(ctx context.Context, postID string) (storage.Post, error) {
	if err := ctx.Err(); err != nil {
		return storage.Post{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Post{}, fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return storage.Post{}, fmt.Errorf("post id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT
	id, content, format, thread_root_id, model, confidence, quality_score,
	likes_count, retweets_count, replies_count, impressions_count,
	topic, hook_pattern, generator, followers_gained, engagement_rate,
	posted_at, deleted_at, created_at, updated_at
FROM posts
WHERE id = ?
`, postID)
	post, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Post{}, storage.ErrNotFound
		}
		return storage.Post{}, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// UpdateEngagement records post-hoc engagement counts for a post. The
// engagement rate is recomputed when impressions are present.
func (s *Store) UpdateEngagement(ctx context.Context, postID string, counts storage.EngagementCounts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return fmt.Errorf("post id is required")
	}

	rate := 0.0
	if counts.Impressions > 0 {
		rate = float64(counts.Likes+counts.Retweets+counts.Replies) / float64(counts.Impressions)
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE posts SET
	likes_count = ?,
	retweets_count = ?,
	replies_count = ?,
	impressions_count = ?,
	engagement_rate = ?,
	updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`,
		counts.Likes,
		counts.Retweets,
		counts.Replies,
		counts.Impressions,
		rate,
		toMillis(time.Now().UTC()),
		postID,
	)
	if err != nil {
		return fmt.Errorf("update engagement: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update engagement: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetAttribution records which strategy produced a post and what it earned.
func (s *Store) SetAttribution(ctx context.Context, postID string, attribution storage.Attribution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return fmt.Errorf("post id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE posts SET
	topic = ?,
	hook_pattern = ?,
	generator = ?,
	followers_gained = ?,
	engagement_rate = ?,
	updated_at = ?
WHERE id = ?
`,
		attribution.Topic,
		attribution.HookPattern,
		attribution.Generator,
		attribution.FollowersGained,
		attribution.EngagementRate,
		toMillis(time.Now().UTC()),
		postID,
	)
	if err != nil {
		return fmt.Errorf("set attribution: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set attribution: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SoftDeletePost marks a post deleted without removing the row.
func (s *Store) SoftDeletePost(ctx context.Context, postID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return fmt.Errorf("post id is required")
	}

	now := toMillis(time.Now().UTC())
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE posts SET deleted_at = ?, updated_at = ?
WHERE id = ? AND deleted_at IS NULL
`, now, now, postID)
	if err != nil {
		return fmt.Errorf("soft delete post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("soft delete post: %w", err)
	}
	if affected == 0 {
		return platformerrors.New(platformerrors.CodePostAlreadyDeleted, "post is missing or already deleted")
	}
	return nil
}

// ListRecentPosts returns newest-first posts posted since the given time,
// excluding soft-deleted rows.
func (s *Store) ListRecentPosts(ctx context.Context, since time.Time, limit int) ([]storage.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id, content, format, thread_root_id, model, confidence, quality_score,
	likes_count, retweets_count, replies_count, impressions_count,
	topic, hook_pattern, generator, followers_gained, engagement_rate,
	posted_at, deleted_at, created_at, updated_at
FROM posts
WHERE deleted_at IS NULL AND posted_at IS NOT NULL AND posted_at >= ?
ORDER BY posted_at DESC, id DESC
LIMIT ?
`, toMillis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	defer rows.Close()

	posts := make([]storage.Post, 0, limit)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (storage.Post, error) {
	var (
		post         storage.Post
		format       sql.NullString
		threadRootID sql.NullString
		model        sql.NullString
		confidence   sql.NullFloat64
		quality      sql.NullFloat64
		postedAt     sql.NullInt64
		deletedAt    sql.NullInt64
		createdAt    int64
		updatedAt    int64
	)
	if err := row.Scan(
		&post.ID,
		&post.Content,
		&format,
		&threadRootID,
		&model,
		&confidence,
		&quality,
		&post.Likes,
		&post.Retweets,
		&post.Replies,
		&post.Impressions,
		&post.Topic,
		&post.HookPattern,
		&post.Generator,
		&post.FollowersGained,
		&post.EngagementRate,
		&postedAt,
		&deletedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Post{}, err
	}
	post.Format = format.String
	post.ThreadRootID = threadRootID.String
	post.Model = model.String
	post.Confidence = confidence.Float64
	post.QualityScore = quality.Float64
	post.PostedAt = fromNullMillis(postedAt)
	post.DeletedAt = fromNullMillis(deletedAt)
	post.CreatedAt = fromMillis(createdAt)
	post.UpdatedAt = fromMillis(updatedAt)
	return post, nil
}
