// Package botconfig gives the bot_config JSON documents typed shapes. Each
// configuration domain has one struct with validation and seeded defaults,
// and a polling watcher surfaces version changes to running components.
package botconfig

import (
	"encoding/json"
	"fmt"
	"strings"

	platformerrors "github.com/featherpost/featherpost/internal/platform/errors"
)

// Domain names one bot_config document.
type Domain string

const (
	DomainPosting    Domain = "posting"
	DomainQuality    Domain = "quality"
	DomainBudget     Domain = "budget"
	DomainAPILimits  Domain = "api_limits"
	DomainGrowth     Domain = "growth"
	DomainMonitoring Domain = "monitoring"
)

// Domains lists every configuration domain in seeding order.
func Domains() []Domain {
	return []Domain{
		DomainPosting,
		DomainQuality,
		DomainBudget,
		DomainAPILimits,
		DomainGrowth,
		DomainMonitoring,
	}
}

// PostingPolicy controls how often and when the bot posts.
type PostingPolicy struct {
	MaxPostsPerDay  int   `json:"max_posts_per_day"`
	MinGapMinutes   int   `json:"min_gap_minutes"`
	PeakHoursUTC    []int `json:"peak_hours_utc"`
	ThreadsEnabled  bool  `json:"threads_enabled"`
	MaxThreadLength int   `json:"max_thread_length"`
}

// Validate checks the policy holds publishable values.
func (p PostingPolicy) Validate() error {
	if p.MaxPostsPerDay <= 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "max_posts_per_day must be positive")
	}
	if p.MinGapMinutes < 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "min_gap_minutes must not be negative")
	}
	for _, hour := range p.PeakHoursUTC {
		if hour < 0 || hour > 23 {
			return platformerrors.WithMetadata(
				platformerrors.CodeConfigInvalid,
				"peak hour out of range",
				map[string]string{"hour": fmt.Sprintf("%d", hour)},
			)
		}
	}
	if p.ThreadsEnabled && p.MaxThreadLength < 2 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "max_thread_length must be at least 2 when threads are enabled")
	}
	return nil
}

// QualityPolicy gates what generated content is allowed out.
type QualityPolicy struct {
	MinQualityScore    float64 `json:"min_quality_score"`
	MinModelConfidence float64 `json:"min_model_confidence"`
	ReviewRequired     bool    `json:"review_required"`
}

func (q QualityPolicy) Validate() error {
	if q.MinQualityScore < 0 || q.MinQualityScore > 1 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "min_quality_score must be within [0, 1]")
	}
	if q.MinModelConfidence < 0 || q.MinModelConfidence > 1 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "min_model_confidence must be within [0, 1]")
	}
	return nil
}

// BudgetPolicy caps model spend and monthly post volume.
type BudgetPolicy struct {
	DailyLimitUSD   float64 `json:"daily_limit_usd"`
	MonthlyLimitUSD float64 `json:"monthly_limit_usd"`
	MonthlyPostCap  int64   `json:"monthly_post_cap"`
}

func (b BudgetPolicy) Validate() error {
	if b.DailyLimitUSD <= 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "daily_limit_usd must be positive")
	}
	if b.MonthlyLimitUSD < b.DailyLimitUSD {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "monthly_limit_usd must cover at least one daily limit")
	}
	if b.MonthlyPostCap <= 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "monthly_post_cap must be positive")
	}
	return nil
}

// APILimits mirrors the platform's write and read quotas.
type APILimits struct {
	DailyWriteCap  int64 `json:"daily_write_cap"`
	MonthlyReadCap int64 `json:"monthly_read_cap"`
}

func (a APILimits) Validate() error {
	if a.DailyWriteCap <= 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "daily_write_cap must be positive")
	}
	if a.MonthlyReadCap <= 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "monthly_read_cap must be positive")
	}
	return nil
}

// GrowthTargets sets the follower goals the learning loop steers toward.
type GrowthTargets struct {
	FollowersPerWeek   int64   `json:"followers_per_week"`
	MinEngagementRate  float64 `json:"min_engagement_rate"`
	ViralThresholdHour float64 `json:"viral_threshold_per_hour"`
}

func (g GrowthTargets) Validate() error {
	if g.FollowersPerWeek < 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "followers_per_week must not be negative")
	}
	if g.MinEngagementRate < 0 || g.MinEngagementRate > 1 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "min_engagement_rate must be within [0, 1]")
	}
	if g.ViralThresholdHour < 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "viral_threshold_per_hour must not be negative")
	}
	return nil
}

// MonitoringPolicy controls the metrics collection cadence.
type MonitoringPolicy struct {
	SnapshotIntervalMinutes int `json:"snapshot_interval_minutes"`
	SnapshotWindowHours     int `json:"snapshot_window_hours"`
}

func (m MonitoringPolicy) Validate() error {
	if m.SnapshotIntervalMinutes <= 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "snapshot_interval_minutes must be positive")
	}
	if m.SnapshotWindowHours <= 0 {
		return platformerrors.New(platformerrors.CodeConfigInvalid, "snapshot_window_hours must be positive")
	}
	return nil
}

// Validator is implemented by every configuration document.
type Validator interface {
	Validate() error
}

// Defaults returns the seeded document for one domain.
func Defaults(domain Domain) (Validator, error) {
	switch domain {
	case DomainPosting:
		return PostingPolicy{
			MaxPostsPerDay:  4,
			MinGapMinutes:   90,
			PeakHoursUTC:    []int{13, 17, 21},
			ThreadsEnabled:  true,
			MaxThreadLength: 7,
		}, nil
	case DomainQuality:
		return QualityPolicy{
			MinQualityScore:    0.7,
			MinModelConfidence: 0.6,
			ReviewRequired:     true,
		}, nil
	case DomainBudget:
		return BudgetPolicy{
			DailyLimitUSD:   1.0,
			MonthlyLimitUSD: 10.0,
			MonthlyPostCap:  500,
		}, nil
	case DomainAPILimits:
		return APILimits{
			DailyWriteCap:  17,
			MonthlyReadCap: 100,
		}, nil
	case DomainGrowth:
		return GrowthTargets{
			FollowersPerWeek:   50,
			MinEngagementRate:  0.02,
			ViralThresholdHour: 5.0,
		}, nil
	case DomainMonitoring:
		return MonitoringPolicy{
			SnapshotIntervalMinutes: 30,
			SnapshotWindowHours:     24,
		}, nil
	default:
		return nil, unknownDomain(domain)
	}
}

// DefaultValue returns the seeded JSON document for one domain.
func DefaultValue(domain Domain) (string, error) {
	doc, err := Defaults(domain)
	if err != nil {
		return "", err
	}
	return Encode(doc)
}

// Encode serializes a configuration document after validating it.
func Encode(doc Validator) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(raw), nil
}

// DecodeDomain parses and validates one domain's JSON document.
func DecodeDomain(domain Domain, value string) (Validator, error) {
	if strings.TrimSpace(value) == "" {
		return nil, platformerrors.New(platformerrors.CodeConfigInvalid, "config value is empty")
	}
	decode := func(doc Validator) (Validator, error) {
		if err := json.Unmarshal([]byte(value), doc); err != nil {
			return nil, platformerrors.Wrap(platformerrors.CodeConfigInvalid, "config document is not valid JSON", err)
		}
		return doc, nil
	}

	var doc Validator
	var err error
	switch domain {
	case DomainPosting:
		doc, err = decode(&PostingPolicy{})
	case DomainQuality:
		doc, err = decode(&QualityPolicy{})
	case DomainBudget:
		doc, err = decode(&BudgetPolicy{})
	case DomainAPILimits:
		doc, err = decode(&APILimits{})
	case DomainGrowth:
		doc, err = decode(&GrowthTargets{})
	case DomainMonitoring:
		doc, err = decode(&MonitoringPolicy{})
	default:
		return nil, unknownDomain(domain)
	}
	if err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func unknownDomain(domain Domain) error {
	return platformerrors.WithMetadata(
		platformerrors.CodeConfigUnknownDomain,
		"unknown configuration domain",
		map[string]string{"domain": string(domain)},
	)
}
