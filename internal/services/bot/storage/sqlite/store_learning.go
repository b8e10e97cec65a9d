package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/featherpost/featherpost/internal/services/bot/storage"
)

// decisionAccuracyFloor is the fraction of the predicted score the measured
// outcome must reach for the decision to count as correct.
const decisionAccuracyFloor = 0.8

// RecordDecision persists one strategy choice with its prediction.
func (s *Store) RecordDecision(ctx context.Context, decision storage.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	decision.ID = strings.TrimSpace(decision.ID)
	decision.DecisionType = strings.TrimSpace(decision.DecisionType)
	decision.Arm = strings.TrimSpace(decision.Arm)
	if decision.ID == "" {
		return fmt.Errorf("decision id is required")
	}
	if decision.DecisionType == "" {
		return fmt.Errorf("decision type is required")
	}
	if decision.Arm == "" {
		return fmt.Errorf("decision arm is required")
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO decision_outcomes (
	id, decision_type, arm, predicted_score, actual_score, confidence,
	correct, decided_at, measured_at
) VALUES (?, ?, ?, ?, NULL, ?, NULL, ?, NULL)
`,
		decision.ID,
		decision.DecisionType,
		decision.Arm,
		decision.PredictedScore,
		decision.Confidence,
		toMillis(decision.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// ResolveDecision records the measured outcome for a decision and marks it
// correct when the outcome reached the accuracy floor of the prediction.
func (s *Store) ResolveDecision(ctx context.Context, id string, actualScore float64, measuredAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("decision id is required")
	}
	if measuredAt.IsZero() {
		measuredAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE decision_outcomes SET
	actual_score = ?,
	measured_at = ?,
	correct = CASE WHEN ? >= predicted_score * ? THEN 1 ELSE 0 END
WHERE id = ?
`, actualScore, toMillis(measuredAt), actualScore, decisionAccuracyFloor, id)
	if err != nil {
		return fmt.Errorf("resolve decision: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve decision: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DecisionAccuracy aggregates resolved decisions per decision type since the
// given time.
func (s *Store) DecisionAccuracy(ctx context.Context, since time.Time) ([]storage.AccuracyReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	decision_type,
	COUNT(*),
	COUNT(correct),
	COALESCE(SUM(CASE WHEN correct = 1 THEN 1 ELSE 0 END), 0),
	COALESCE(AVG(predicted_score), 0),
	COALESCE(AVG(actual_score), 0)
FROM decision_outcomes
WHERE decided_at >= ?
GROUP BY decision_type
ORDER BY decision_type ASC
`, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("decision accuracy: %w", err)
	}
	defer rows.Close()

	var reports []storage.AccuracyReport
	for rows.Next() {
		var report storage.AccuracyReport
		if err := rows.Scan(
			&report.DecisionType,
			&report.Total,
			&report.Resolved,
			&report.Correct,
			&report.AvgPredicted,
			&report.AvgActual,
		); err != nil {
			return nil, fmt.Errorf("scan accuracy report: %w", err)
		}
		if report.Resolved > 0 {
			report.Accuracy = float64(report.Correct) / float64(report.Resolved)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accuracy reports: %w", err)
	}
	return reports, nil
}

// TimingInsights aggregates per-hour posting performance since the given time.
func (s *Store) TimingInsights(ctx context.Context, since time.Time) ([]storage.TimingInsight, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	CAST(strftime('%H', posted_at / 1000, 'unixepoch') AS INTEGER) AS hour_of_day,
	COUNT(*),
	COALESCE(AVG(engagement_rate), 0)
FROM posts
WHERE deleted_at IS NULL AND posted_at IS NOT NULL AND posted_at >= ?
GROUP BY hour_of_day
ORDER BY hour_of_day ASC
`, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("timing insights: %w", err)
	}
	defer rows.Close()

	var insights []storage.TimingInsight
	for rows.Next() {
		var insight storage.TimingInsight
		if err := rows.Scan(&insight.HourOfDay, &insight.Posts, &insight.AvgEngagementRate); err != nil {
			return nil, fmt.Errorf("scan timing insight: %w", err)
		}
		insights = append(insights, insight)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timing insights: %w", err)
	}
	return insights, nil
}

// UpsertArm creates or refreshes one bandit arm's counters.
func (s *Store) UpsertArm(ctx context.Context, arm storage.BanditArm) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	arm.Arm = strings.TrimSpace(arm.Arm)
	if arm.Arm == "" {
		return fmt.Errorf("arm name is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO bandit_arms (arm, scope, pulls, successes, reward_sum, last_selected_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (arm) DO UPDATE SET
	scope = excluded.scope,
	pulls = excluded.pulls,
	successes = excluded.successes,
	reward_sum = excluded.reward_sum,
	last_selected_at = excluded.last_selected_at
`,
		arm.Arm,
		arm.Scope,
		arm.Pulls,
		arm.Successes,
		arm.RewardSum,
		toNullMillis(arm.LastSelectedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert arm: %w", err)
	}
	return nil
}

// RecordArmResult increments one arm's empirical counters after an outcome.
func (s *Store) RecordArmResult(ctx context.Context, arm string, success bool, reward float64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	arm = strings.TrimSpace(arm)
	if arm == "" {
		return fmt.Errorf("arm name is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	successDelta := 0
	if success {
		successDelta = 1
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE bandit_arms SET
	pulls = pulls + 1,
	successes = successes + ?,
	reward_sum = reward_sum + ?,
	last_selected_at = ?
WHERE arm = ?
`, successDelta, reward, toMillis(at), arm)
	if err != nil {
		return fmt.Errorf("record arm result: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record arm result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListArms returns arms for one scope, or all arms when scope is empty.
func (s *Store) ListArms(ctx context.Context, scope string) ([]storage.BanditArm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	query := `
SELECT arm, scope, pulls, successes, reward_sum, last_selected_at
FROM bandit_arms
ORDER BY arm ASC
`
	args := []any{}
	scope = strings.TrimSpace(scope)
	if scope != "" {
		query = `
SELECT arm, scope, pulls, successes, reward_sum, last_selected_at
FROM bandit_arms
WHERE scope = ?
ORDER BY arm ASC
`
		args = append(args, scope)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list arms: %w", err)
	}
	defer rows.Close()

	var arms []storage.BanditArm
	for rows.Next() {
		var (
			arm            storage.BanditArm
			lastSelectedAt sql.NullInt64
		)
		if err := rows.Scan(&arm.Arm, &arm.Scope, &arm.Pulls, &arm.Successes, &arm.RewardSum, &lastSelectedAt); err != nil {
			return nil, fmt.Errorf("scan arm: %w", err)
		}
		arm.LastSelectedAt = fromNullMillis(lastSelectedAt)
		arms = append(arms, arm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate arms: %w", err)
	}
	return arms, nil
}

// StartLearningCycle records the beginning of one analysis run.
func (s *Store) StartLearningCycle(ctx context.Context, cycle storage.LearningCycle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	cycle.ID = strings.TrimSpace(cycle.ID)
	if cycle.ID == "" {
		return fmt.Errorf("learning cycle id is required")
	}
	if cycle.StartedAt.IsZero() {
		cycle.StartedAt = time.Now().UTC()
	}
	if cycle.Adjustments == "" {
		cycle.Adjustments = "{}"
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO learning_cycles (id, started_at, finished_at, posts_analyzed, adjustments, notes)
VALUES (?, ?, NULL, ?, ?, ?)
`,
		cycle.ID,
		toMillis(cycle.StartedAt),
		cycle.PostsAnalyzed,
		cycle.Adjustments,
		cycle.Notes,
	)
	if err != nil {
		return fmt.Errorf("start learning cycle: %w", err)
	}
	return nil
}

// FinishLearningCycle closes one analysis run with its results.
func (s *Store) FinishLearningCycle(ctx context.Context, id string, finishedAt time.Time, postsAnalyzed int64, adjustments string, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("learning cycle id is required")
	}
	if finishedAt.IsZero() {
		finishedAt = time.Now().UTC()
	}
	if adjustments == "" {
		adjustments = "{}"
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE learning_cycles SET
	finished_at = ?,
	posts_analyzed = ?,
	adjustments = ?,
	notes = ?
WHERE id = ? AND finished_at IS NULL
`, toMillis(finishedAt), postsAnalyzed, adjustments, notes, id)
	if err != nil {
		return fmt.Errorf("finish learning cycle: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish learning cycle: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
