package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	platformerrors "github.com/featherpost/featherpost/internal/platform/errors"
	"github.com/featherpost/featherpost/internal/services/bot/storage"
)

func TestPutPostAndGetPost(t *testing.T) {
	store := openTempStore(t)

	postedAt := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)
	post := storage.Post{
		ID:           "post-1",
		Content:      "shipping is a feature",
		Format:       storage.FormatSingle,
		Model:        "gpt-4o-mini",
		Confidence:   0.82,
		QualityScore: 0.9,
		PostedAt:     &postedAt,
	}
	if err := store.PutPost(context.Background(), post); err != nil {
		t.Fatalf("put post: %v", err)
	}

	got, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Content != post.Content {
		t.Fatalf("expected content %q, got %q", post.Content, got.Content)
	}
	if got.Format != storage.FormatSingle {
		t.Fatalf("expected format single, got %q", got.Format)
	}
	if got.PostedAt == nil || !got.PostedAt.Equal(postedAt) {
		t.Fatalf("expected posted_at %v, got %v", postedAt, got.PostedAt)
	}
	if got.DeletedAt != nil {
		t.Fatal("expected no deleted_at on a fresh post")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected created_at and updated_at to be stamped")
	}
}

func TestPutPostRejectsEmptyContent(t *testing.T) {
	store := openTempStore(t)

	err := store.PutPost(context.Background(), storage.Post{ID: "post-1", Content: "   "})
	if platformerrors.CodeOf(err) != platformerrors.CodePostContentEmpty {
		t.Fatalf("expected empty content code, got %v", err)
	}
}

func TestPutPostRejectsUnknownFormat(t *testing.T) {
	store := openTempStore(t)

	err := store.PutPost(context.Background(), storage.Post{
		ID:      "post-1",
		Content: "hello",
		Format:  "poll",
	})
	if platformerrors.CodeOf(err) != platformerrors.CodePostInvalidFormat {
		t.Fatalf("expected invalid format code, got %v", err)
	}
}

func TestFormatConstraintEnforcedInSchema(t *testing.T) {
	store := openTempStore(t)

	_, err := store.DB().Exec(`
INSERT INTO posts (id, content, format, created_at, updated_at)
VALUES ('raw-1', 'hello', 'poll', 0, 0)
`)
	if err == nil {
		t.Fatal("expected CHECK constraint to reject unknown format")
	}
}

func TestGetPostNotFound(t *testing.T) {
	store := openTempStore(t)

	if _, err := store.GetPost(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateEngagementRecomputesRate(t *testing.T) {
	store := openTempStore(t)

	if err := store.PutPost(context.Background(), storage.Post{ID: "post-1", Content: "hello"}); err != nil {
		t.Fatalf("put post: %v", err)
	}

	counts := storage.EngagementCounts{Likes: 30, Retweets: 15, Replies: 5, Impressions: 1000}
	if err := store.UpdateEngagement(context.Background(), "post-1", counts); err != nil {
		t.Fatalf("update engagement: %v", err)
	}

	got, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Likes != 30 || got.Retweets != 15 || got.Replies != 5 || got.Impressions != 1000 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if got.EngagementRate != 0.05 {
		t.Fatalf("expected engagement rate 0.05, got %v", got.EngagementRate)
	}
}

func TestUpdateEngagementZeroImpressions(t *testing.T) {
	store := openTempStore(t)

	if err := store.PutPost(context.Background(), storage.Post{ID: "post-1", Content: "hello"}); err != nil {
		t.Fatalf("put post: %v", err)
	}
	if err := store.UpdateEngagement(context.Background(), "post-1", storage.EngagementCounts{Likes: 3}); err != nil {
		t.Fatalf("update engagement: %v", err)
	}

	got, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.EngagementRate != 0 {
		t.Fatalf("expected zero rate without impressions, got %v", got.EngagementRate)
	}
}

func TestUpdateEngagementSkipsDeletedPost(t *testing.T) {
	store := openTempStore(t)

	if err := store.PutPost(context.Background(), storage.Post{ID: "post-1", Content: "hello"}); err != nil {
		t.Fatalf("put post: %v", err)
	}
	if err := store.SoftDeletePost(context.Background(), "post-1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	err := store.UpdateEngagement(context.Background(), "post-1", storage.EngagementCounts{Likes: 1})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for deleted post, got %v", err)
	}
}

func TestSetAttribution(t *testing.T) {
	store := openTempStore(t)

	if err := store.PutPost(context.Background(), storage.Post{ID: "post-1", Content: "hello"}); err != nil {
		t.Fatalf("put post: %v", err)
	}

	attribution := storage.Attribution{
		Topic:           "indie-dev",
		HookPattern:     "contrarian",
		Generator:       "threads-v2",
		FollowersGained: 12,
		EngagementRate:  0.041,
	}
	if err := store.SetAttribution(context.Background(), "post-1", attribution); err != nil {
		t.Fatalf("set attribution: %v", err)
	}

	got, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Topic != "indie-dev" || got.HookPattern != "contrarian" || got.Generator != "threads-v2" {
		t.Fatalf("unexpected attribution: %+v", got)
	}
	if got.FollowersGained != 12 {
		t.Fatalf("expected 12 followers gained, got %d", got.FollowersGained)
	}
}

func TestSoftDeletePostIsObservableAndFinal(t *testing.T) {
	store := openTempStore(t)

	if err := store.PutPost(context.Background(), storage.Post{ID: "post-1", Content: "hello"}); err != nil {
		t.Fatalf("put post: %v", err)
	}
	if err := store.SoftDeletePost(context.Background(), "post-1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.DeletedAt == nil {
		t.Fatal("expected deleted_at to be set")
	}

	err = store.SoftDeletePost(context.Background(), "post-1")
	if platformerrors.CodeOf(err) != platformerrors.CodePostAlreadyDeleted {
		t.Fatalf("expected already deleted code, got %v", err)
	}
}

func TestListRecentPostsExcludesDeletedAndOld(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, entry := range []struct {
		id     string
		offset time.Duration
	}{
		{"post-old", -48 * time.Hour},
		{"post-mid", -2 * time.Hour},
		{"post-new", -1 * time.Hour},
		{"post-gone", -30 * time.Minute},
	} {
		postedAt := base.Add(entry.offset)
		post := storage.Post{ID: entry.id, Content: "hello", PostedAt: &postedAt}
		if err := store.PutPost(ctx, post); err != nil {
			t.Fatalf("put %s: %v", entry.id, err)
		}
	}
	if err := store.SoftDeletePost(ctx, "post-gone"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	posts, err := store.ListRecentPosts(ctx, base.Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list recent posts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(posts))
	}
	if posts[0].ID != "post-new" || posts[1].ID != "post-mid" {
		t.Fatalf("expected newest-first ordering, got %s then %s", posts[0].ID, posts[1].ID)
	}
}
