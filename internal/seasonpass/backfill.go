package seasonpass

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
)

// BackfillOptions narrows a repair run. Zero value means every progress
// row of every season.
type BackfillOptions struct {
	SeasonID *int
	UserID   *uuid.UUID
	DryRun   bool
}

// BackfillFailure records one level grant that could not be repaired.
type BackfillFailure struct {
	UserID   uuid.UUID `json:"user_id"`
	SeasonID int       `json:"season_id"`
	Level    int       `json:"level"`
	Error    string    `json:"error"`
}

// BackfillReport summarizes a repair run.
type BackfillReport struct {
	Scanned  int               `json:"scanned"`
	Granted  int               `json:"granted"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Failures []BackfillFailure `json:"failures,omitempty"`
}

// Backfill grants auto_claim level rewards that were reached but never
// delivered, typically after an incident left reward logs behind progress.
// Safe to re-run: the reward log uniqueness makes every grant idempotent.
// Each grant is its own transaction so one failure never blocks the rest.
func (e *Engine) Backfill(ctx context.Context, opts BackfillOptions) (*BackfillReport, error) {
	progresses, err := e.seasons.ListProgress(ctx, e.pool, opts.SeasonID, opts.UserID)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{}
	levelCache := map[int][]domain.SeasonPassLevel{}
	claimedCache := map[string]map[int]bool{}

	for _, p := range progresses {
		report.Scanned++

		levels, ok := levelCache[p.SeasonID]
		if !ok {
			levels, err = e.seasons.ListLevels(ctx, e.pool, p.SeasonID)
			if err != nil {
				return nil, err
			}
			levelCache[p.SeasonID] = levels
		}

		cacheKey := fmt.Sprintf("%s/%d", p.UserID, p.SeasonID)
		claimed, ok := claimedCache[cacheKey]
		if !ok {
			logs, err := e.seasons.ListRewardLogs(ctx, e.pool, p.UserID, p.SeasonID)
			if err != nil {
				return nil, err
			}
			claimed = make(map[int]bool, len(logs))
			for _, l := range logs {
				claimed[l.Level] = true
			}
			claimedCache[cacheKey] = claimed
		}

		for _, l := range levels {
			if !l.AutoClaim || l.Level > p.CurrentLevel {
				continue
			}
			if claimed[l.Level] {
				report.Skipped++
				continue
			}

			if opts.DryRun {
				e.logger.Info("backfill would grant",
					"user_id", p.UserID, "season_id", p.SeasonID, "level", l.Level,
					"reward_type", l.RewardType, "reward_amount", l.RewardAmount)
				report.Granted++
				continue
			}

			granted, err := e.backfillLevel(ctx, p, l)
			if err != nil {
				e.logger.Error("backfill grant failed",
					"user_id", p.UserID, "season_id", p.SeasonID, "level", l.Level, "error", err)
				report.Failed++
				report.Failures = append(report.Failures, BackfillFailure{
					UserID:   p.UserID,
					SeasonID: p.SeasonID,
					Level:    l.Level,
					Error:    err.Error(),
				})
				continue
			}
			if granted {
				report.Granted++
			} else {
				report.Skipped++
			}
		}
	}

	e.logger.Info("backfill complete",
		"scanned", report.Scanned, "granted", report.Granted,
		"skipped", report.Skipped, "failed", report.Failed, "dry_run", opts.DryRun)

	return report, nil
}

// backfillLevel grants one missed level in its own transaction. A false
// return means a concurrent claim got there first.
func (e *Engine) backfillLevel(ctx context.Context, p domain.SeasonPassProgress, l domain.SeasonPassLevel) (bool, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin backfill tx: %w", err)
	}
	defer tx.Rollback(ctx)

	granted, err := e.claimLevelLocked(ctx, tx, p.UserID, p.SeasonID, p.ID, l, domain.RewardSourceBackfill)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit backfill tx: %w", err)
	}

	return granted, nil
}
