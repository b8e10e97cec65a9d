// Package storage defines persistence contracts for bot pipeline state:
// generated posts, engagement snapshots, the scheduling queue, typed
// configuration, learning records, the budget ledger, and runtime leases.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Post formats accepted by the content pipeline.
const (
	FormatSingle = "single"
	FormatThread = "thread"
)

// Post stores one generated content unit and its latest engagement snapshot.
type Post struct {
	ID           string
	Content      string
	Format       string // single, thread, or empty
	ThreadRootID string
	Model        string
	Confidence   float64
	QualityScore float64

	Likes       int64
	Retweets    int64
	Replies     int64
	Impressions int64

	Topic           string
	HookPattern     string
	Generator       string
	FollowersGained int64
	EngagementRate  float64

	PostedAt  *time.Time
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EngagementCounts is a post-hoc engagement measurement for a post.
type EngagementCounts struct {
	Likes       int64
	Retweets    int64
	Replies     int64
	Impressions int64
}

// Attribution records which generation strategy produced a post and what the
// post earned, feeding the learning loop.
type Attribution struct {
	Topic           string
	HookPattern     string
	Generator       string
	FollowersGained int64
	EngagementRate  float64
}

// PostStore persists generated posts.
type PostStore interface {
	PutPost(ctx context.Context, post Post) error
	GetPost(ctx context.Context, postID string) (Post, error)
	UpdateEngagement(ctx context.Context, postID string, counts EngagementCounts) error
	SetAttribution(ctx context.Context, postID string, attribution Attribution) error
	SoftDeletePost(ctx context.Context, postID string) error
	ListRecentPosts(ctx context.Context, since time.Time, limit int) ([]Post, error)
}

// MetricsSnapshot is one time-stamped engagement measurement; many per post,
// append-only.
type MetricsSnapshot struct {
	PostID      string
	Likes       int64
	Retweets    int64
	Replies     int64
	Impressions int64
	CollectedAt time.Time
}

// MetricsStore persists append-only engagement snapshots.
type MetricsStore interface {
	RecordSnapshot(ctx context.Context, snapshot MetricsSnapshot) error
	ListSnapshots(ctx context.Context, postID string, limit int) ([]MetricsSnapshot, error)
	EngagementVelocity(ctx context.Context, postID string, window time.Duration) (float64, error)
}

// Scheduled post queue statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusPosted   = "posted"
	StatusRejected = "rejected"
)

// ScheduledPost is one pending unit of posting work with a target time.
type ScheduledPost struct {
	ID             string
	Content        string
	Format         string
	ScheduledFor   time.Time
	Status         string
	ClaimedBy      string
	LeaseExpiresAt time.Time
	AttemptCount   int
	LastError      string
	PostedPostID   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ScheduleStore persists the posting queue and its claim leases.
type ScheduleStore interface {
	EnqueuePost(ctx context.Context, post ScheduledPost) error
	GetScheduledPost(ctx context.Context, id string) (ScheduledPost, error)
	Transition(ctx context.Context, id string, from string, to string) error
	ClaimDue(ctx context.Context, claimer string, now time.Time, leaseTTL time.Duration) (ScheduledPost, error)
	MarkPosted(ctx context.Context, id string, claimer string, postedPostID string) error
	ReleaseClaim(ctx context.Context, id string, claimer string, lastError string) error
	ReclaimExpired(ctx context.Context, now time.Time) (int, error)
}

// ConfigRecord is one versioned configuration document.
type ConfigRecord struct {
	Domain    string
	Value     string
	Version   int64
	UpdatedAt time.Time
}

// ConfigStore persists versioned per-domain configuration documents.
type ConfigStore interface {
	GetConfig(ctx context.Context, domain string) (ConfigRecord, error)
	PutConfig(ctx context.Context, domain string, value string) (ConfigRecord, error)
	ListConfigVersions(ctx context.Context) (map[string]int64, error)
}

// Decision records a strategy choice, its predicted outcome, and eventually
// the measured outcome.
type Decision struct {
	ID             string
	DecisionType   string
	Arm            string
	PredictedScore float64
	ActualScore    *float64
	Confidence     float64
	Correct        *bool
	DecidedAt      time.Time
	MeasuredAt     *time.Time
}

// AccuracyReport aggregates resolved decisions for one decision type.
type AccuracyReport struct {
	DecisionType string
	Total        int64
	Resolved     int64
	Correct      int64
	Accuracy     float64
	AvgPredicted float64
	AvgActual    float64
}

// TimingInsight aggregates posted-hour performance.
type TimingInsight struct {
	HourOfDay         int
	Posts             int64
	AvgEngagementRate float64
}

// BanditArm holds empirical counters for one strategy arm.
type BanditArm struct {
	Arm            string
	Scope          string
	Pulls          int64
	Successes      int64
	RewardSum      float64
	LastSelectedAt *time.Time
}

// LearningCycle is one run of the offline analysis loop.
type LearningCycle struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    *time.Time
	PostsAnalyzed int64
	Adjustments   string // JSON document
	Notes         string
}

// LearningStore persists decisions, bandit arms, and learning cycles.
type LearningStore interface {
	RecordDecision(ctx context.Context, decision Decision) error
	ResolveDecision(ctx context.Context, id string, actualScore float64, measuredAt time.Time) error
	DecisionAccuracy(ctx context.Context, since time.Time) ([]AccuracyReport, error)
	TimingInsights(ctx context.Context, since time.Time) ([]TimingInsight, error)
	UpsertArm(ctx context.Context, arm BanditArm) error
	RecordArmResult(ctx context.Context, arm string, success bool, reward float64, at time.Time) error
	ListArms(ctx context.Context, scope string) ([]BanditArm, error)
	StartLearningCycle(ctx context.Context, cycle LearningCycle) error
	FinishLearningCycle(ctx context.Context, id string, finishedAt time.Time, postsAnalyzed int64, adjustments string, notes string) error
}

// DayStatus is the running spend ledger for one calendar day.
type DayStatus struct {
	Date      string // YYYY-MM-DD
	LimitUSD  float64
	SpentUSD  float64
	Remaining float64
	CallsMade int64
	UpdatedAt time.Time
}

// MonthState is the running consumption ledger for one calendar month.
type MonthState struct {
	Month      string // YYYY-MM
	PostsUsed  int64
	PostsLimit int64
	SpentUSD   float64
	LimitUSD   float64
	ResetAt    time.Time
}

// SpendRecord is one billable model call charged against the ledgers.
type SpendRecord struct {
	OccurredAt time.Time
	Model      string
	Tokens     int64
	CostUSD    float64
	Purpose    string
	IsPost     bool
}

// ROIReport summarizes follower growth earned per dollar for one month.
type ROIReport struct {
	Month           string
	SpentUSD        float64
	FollowersGained int64
	FollowersPerUSD float64
}

// BudgetStore persists the daily and monthly consumption ledgers.
type BudgetStore interface {
	EnsureDay(ctx context.Context, date string, limitUSD float64) (DayStatus, error)
	EnsureMonth(ctx context.Context, month string, postsLimit int64, limitUSD float64, resetAt time.Time) (MonthState, error)
	RecordSpend(ctx context.Context, spend SpendRecord) error
	DayStatus(ctx context.Context, date string) (DayStatus, error)
	MonthState(ctx context.Context, month string) (MonthState, error)
	ViralGrowthROI(ctx context.Context, month string) (ROIReport, error)
}

// Lease is one held runtime lock. The fencing token increases every time the
// lock is reclaimed from an expired holder, so a stale holder's writes can
// be rejected downstream.
type Lease struct {
	Name         string
	Holder       string
	FencingToken int64
	ExpiresAt    time.Time
}

// LockStore implements lease-based mutual exclusion between bot instances.
type LockStore interface {
	AcquireLock(ctx context.Context, name string, holder string, ttl time.Duration) (Lease, error)
	RenewLock(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error)
	ReleaseLock(ctx context.Context, lease Lease) error
}
