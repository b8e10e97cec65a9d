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

// EnsureDay creates the ledger row for one calendar day when absent. The
// UNIQUE(date) key makes concurrent ensures converge on a single row.
func (s *Store) EnsureDay(ctx context.Context, date string, limitUSD float64) (storage.DayStatus, error) {
	if err := ctx.Err(); err != nil {
		return storage.DayStatus{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DayStatus{}, fmt.Errorf("storage is not configured")
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return storage.DayStatus{}, fmt.Errorf("date is required")
	}
	if limitUSD < 0 {
		return storage.DayStatus{}, fmt.Errorf("daily limit must not be negative")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO daily_budget_status (date, limit_usd, spent_usd, remaining_usd, calls_made, updated_at)
VALUES (?, ?, 0, ?, 0, ?)
ON CONFLICT (date) DO NOTHING
`, date, limitUSD, limitUSD, toMillis(time.Now().UTC()))
	if err != nil {
		return storage.DayStatus{}, fmt.Errorf("ensure day: %w", err)
	}
	return s.DayStatus(ctx, date)
}

// EnsureMonth creates the consumption ledger for one calendar month when absent.
func (s *Store) EnsureMonth(ctx context.Context, month string, postsLimit int64, limitUSD float64, resetAt time.Time) (storage.MonthState, error) {
	if err := ctx.Err(); err != nil {
		return storage.MonthState{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MonthState{}, fmt.Errorf("storage is not configured")
	}
	month = strings.TrimSpace(month)
	if month == "" {
		return storage.MonthState{}, fmt.Errorf("month is required")
	}
	if resetAt.IsZero() {
		return storage.MonthState{}, fmt.Errorf("reset time is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO monthly_budget_state (month, posts_used, posts_limit, spent_usd, limit_usd, reset_at)
VALUES (?, 0, ?, 0, ?, ?)
ON CONFLICT (month) DO NOTHING
`, month, postsLimit, limitUSD, toMillis(resetAt))
	if err != nil {
		return storage.MonthState{}, fmt.Errorf("ensure month: %w", err)
	}
	return s.MonthState(ctx, month)
}

// RecordSpend charges one billable call against the day and month ledgers and
// appends the transaction, all in one transaction.
func (s *Store) RecordSpend(ctx context.Context, spend storage.SpendRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	spend.Model = strings.TrimSpace(spend.Model)
	if spend.Model == "" {
		return fmt.Errorf("model is required")
	}
	if spend.CostUSD < 0 {
		return platformerrors.New(platformerrors.CodeBudgetInvalidSpend, "spend cost must not be negative")
	}
	if spend.Tokens < 0 {
		return platformerrors.New(platformerrors.CodeBudgetInvalidSpend, "spend tokens must not be negative")
	}
	if spend.OccurredAt.IsZero() {
		spend.OccurredAt = time.Now().UTC()
	}
	day := spend.OccurredAt.UTC().Format("2006-01-02")
	month := spend.OccurredAt.UTC().Format("2006-01")
	now := toMillis(time.Now().UTC())

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin spend tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO budget_transactions (occurred_at, day, model, tokens, cost_usd, purpose)
VALUES (?, ?, ?, ?, ?, ?)
`,
		toMillis(spend.OccurredAt),
		day,
		spend.Model,
		spend.Tokens,
		spend.CostUSD,
		spend.Purpose,
	); err != nil {
		return fmt.Errorf("append budget transaction: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
UPDATE daily_budget_status SET
	spent_usd = spent_usd + ?,
	remaining_usd = remaining_usd - ?,
	calls_made = calls_made + 1,
	updated_at = ?
WHERE date = ?
`, spend.CostUSD, spend.CostUSD, now, day)
	if err != nil {
		return fmt.Errorf("charge day ledger: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("charge day ledger: %w", err)
	}
	if affected == 0 {
		return platformerrors.WithMetadata(
			platformerrors.CodeBudgetInvalidSpend,
			"day ledger row is missing; ensure the day before spending",
			map[string]string{"date": day},
		)
	}

	postsDelta := 0
	if spend.IsPost {
		postsDelta = 1
	}
	result, err = tx.ExecContext(ctx, `
UPDATE monthly_budget_state SET
	spent_usd = spent_usd + ?,
	posts_used = posts_used + ?
WHERE month = ?
`, spend.CostUSD, postsDelta, month)
	if err != nil {
		return fmt.Errorf("charge month ledger: %w", err)
	}
	affected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("charge month ledger: %w", err)
	}
	if affected == 0 {
		return platformerrors.WithMetadata(
			platformerrors.CodeBudgetInvalidSpend,
			"month ledger row is missing; ensure the month before spending",
			map[string]string{"month": month},
		)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit spend tx: %w", err)
	}
	return nil
}

// DayStatus returns the ledger for one calendar day.
func (s *Store) DayStatus(ctx context.Context, date string) (storage.DayStatus, error) {
	if err := ctx.Err(); err != nil {
		return storage.DayStatus{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.DayStatus{}, fmt.Errorf("storage is not configured")
	}
	date = strings.TrimSpace(date)
	if date == "" {
		return storage.DayStatus{}, fmt.Errorf("date is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT date, limit_usd, spent_usd, remaining_usd, calls_made, updated_at
FROM daily_budget_status
WHERE date = ?
`, date)
	var (
		status    storage.DayStatus
		updatedAt int64
	)
	if err := row.Scan(
		&status.Date,
		&status.LimitUSD,
		&status.SpentUSD,
		&status.Remaining,
		&status.CallsMade,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.DayStatus{}, storage.ErrNotFound
		}
		return storage.DayStatus{}, fmt.Errorf("day status: %w", err)
	}
	status.UpdatedAt = fromMillis(updatedAt)
	return status, nil
}

// MonthState returns the consumption ledger for one calendar month.
func (s *Store) MonthState(ctx context.Context, month string) (storage.MonthState, error) {
	if err := ctx.Err(); err != nil {
		return storage.MonthState{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.MonthState{}, fmt.Errorf("storage is not configured")
	}
	month = strings.TrimSpace(month)
	if month == "" {
		return storage.MonthState{}, fmt.Errorf("month is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT month, posts_used, posts_limit, spent_usd, limit_usd, reset_at
FROM monthly_budget_state
WHERE month = ?
`, month)
	var (
		state   storage.MonthState
		resetAt int64
	)
	if err := row.Scan(
		&state.Month,
		&state.PostsUsed,
		&state.PostsLimit,
		&state.SpentUSD,
		&state.LimitUSD,
		&resetAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MonthState{}, storage.ErrNotFound
		}
		return storage.MonthState{}, fmt.Errorf("month state: %w", err)
	}
	state.ResetAt = fromMillis(resetAt)
	return state, nil
}

// ViralGrowthROI reports followers gained per dollar spent for one month.
func (s *Store) ViralGrowthROI(ctx context.Context, month string) (storage.ROIReport, error) {
	if err := ctx.Err(); err != nil {
		return storage.ROIReport{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ROIReport{}, fmt.Errorf("storage is not configured")
	}
	month = strings.TrimSpace(month)
	if month == "" {
		return storage.ROIReport{}, fmt.Errorf("month is required")
	}

	state, err := s.MonthState(ctx, month)
	if err != nil {
		return storage.ROIReport{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT COALESCE(SUM(followers_gained), 0)
FROM posts
WHERE deleted_at IS NULL
	AND posted_at IS NOT NULL
	AND strftime('%Y-%m', posted_at / 1000, 'unixepoch') = ?
`, month)
	var followers int64
	if err := row.Scan(&followers); err != nil {
		return storage.ROIReport{}, fmt.Errorf("viral growth roi: %w", err)
	}

	report := storage.ROIReport{
		Month:           month,
		SpentUSD:        state.SpentUSD,
		FollowersGained: followers,
	}
	if state.SpentUSD > 0 {
		report.FollowersPerUSD = float64(followers) / state.SpentUSD
	}
	return report, nil
}
