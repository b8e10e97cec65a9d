// Package analytics derives publishing signals from stored engagement data.
package analytics

// Viral probability buckets over engagement velocity (engagement per hour).
// Each edge is inclusive on its lower bound.
const (
	velocityViral    = 5.0
	velocityStrong   = 2.0
	velocityHealthy  = 1.0
	velocityModerate = 0.5
)

// ViralProbability maps an engagement velocity to the empirical probability
// that the post goes viral.
func ViralProbability(velocity float64) float64 {
	switch {
	case velocity >= velocityViral:
		return 0.9
	case velocity >= velocityStrong:
		return 0.7
	case velocity >= velocityHealthy:
		return 0.5
	case velocity >= velocityModerate:
		return 0.3
	default:
		return 0.1
	}
}

// EngagementRate is the engagement-per-impression ratio; zero impressions
// yield zero rather than dividing.
func EngagementRate(likes, retweets, replies, impressions int64) float64 {
	if impressions <= 0 {
		return 0
	}
	return float64(likes+retweets+replies) / float64(impressions)
}
