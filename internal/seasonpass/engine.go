// Package seasonpass implements the daily-stamp progression engine:
// season resolution, status, stamping with auto-claimed level rewards,
// and manual claims.
package seasonpass

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/infra"
	"github.com/snowfest/platform/internal/repository"
	"github.com/snowfest/platform/internal/reward"
)

// LevelUpListener is notified after a committed stamp raised the user's
// level. The trigger matcher hangs off this; failures there never affect
// the stamp.
type LevelUpListener interface {
	HandleLevelUp(ctx context.Context, userID uuid.UUID, newLevel int)
}

// Engine drives season-pass progression.
type Engine struct {
	pool      repository.DB
	seasons   repository.SeasonPassRepository
	outbox    repository.OutboxRepository
	activity  repository.ActivityRepository
	deliverer reward.Deliverer
	clock     *infra.EventClock
	logger    *slog.Logger

	levelUp LevelUpListener
}

// NewEngine creates a season-pass engine.
func NewEngine(
	pool repository.DB,
	seasons repository.SeasonPassRepository,
	outbox repository.OutboxRepository,
	activity repository.ActivityRepository,
	deliverer reward.Deliverer,
	clock *infra.EventClock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		pool:      pool,
		seasons:   seasons,
		outbox:    outbox,
		activity:  activity,
		deliverer: deliverer,
		clock:     clock,
		logger:    logger,
	}
}

// SetLevelUpListener wires the post-stamp level-up hook. Optional.
func (e *Engine) SetLevelUpListener(l LevelUpListener) { e.levelUp = l }

// CurrentSeason resolves the single active season for today in the event
// timezone.
func (e *Engine) CurrentSeason(ctx context.Context) (*domain.SeasonConfig, error) {
	configs, err := e.seasons.ListActiveSeasons(ctx, e.pool)
	if err != nil {
		return nil, err
	}
	return domain.ResolveSeason(configs, e.clock.Now())
}

// LevelStatus is one level row annotated with the caller's claim state.
type LevelStatus struct {
	Level        int    `json:"level"`
	RequiredXP   int    `json:"required_xp"`
	RewardType   string `json:"reward_type"`
	RewardAmount int64  `json:"reward_amount"`
	AutoClaim    bool   `json:"auto_claim"`
	Reached      bool   `json:"reached"`
	Claimed      bool   `json:"claimed"`
}

// Status is the caller-facing season-pass view.
type Status struct {
	Season       domain.SeasonConfig `json:"season"`
	CurrentXP    int                 `json:"current_xp"`
	CurrentLevel int                 `json:"current_level"`
	StampCount   int                 `json:"stamp_count"`
	StampedToday bool                `json:"stamped_today"`
	Levels       []LevelStatus       `json:"levels"`
}

// GetStatus returns the user's progression for the active season, lazily
// creating the progress row on first sight.
func (e *Engine) GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error) {
	season, err := e.CurrentSeason(ctx)
	if err != nil {
		return nil, err
	}

	progress, err := e.seasons.FindProgress(ctx, e.pool, userID, season.ID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress, err = e.seasons.CreateProgress(ctx, e.pool, userID, season.ID)
		if err != nil {
			return nil, err
		}
	}

	levels, err := e.seasons.ListLevels(ctx, e.pool, season.ID)
	if err != nil {
		return nil, err
	}
	rewardLogs, err := e.seasons.ListRewardLogs(ctx, e.pool, userID, season.ID)
	if err != nil {
		return nil, err
	}
	stampCount, err := e.seasons.CountStamps(ctx, e.pool, progress.ID)
	if err != nil {
		return nil, err
	}

	claimed := make(map[int]bool, len(rewardLogs))
	for _, l := range rewardLogs {
		claimed[l.Level] = true
	}

	status := &Status{
		Season:       *season,
		CurrentXP:    progress.CurrentXP,
		CurrentLevel: progress.CurrentLevel,
		StampCount:   stampCount,
		StampedToday: progress.StampedOn(e.clock.Now()),
		Levels:       make([]LevelStatus, 0, len(levels)),
	}
	for _, l := range levels {
		status.Levels = append(status.Levels, LevelStatus{
			Level:        l.Level,
			RequiredXP:   l.RequiredXP,
			RewardType:   l.RewardType,
			RewardAmount: l.RewardAmount,
			AutoClaim:    l.AutoClaim,
			Reached:      l.Level <= progress.CurrentLevel,
			Claimed:      claimed[l.Level],
		})
	}

	return status, nil
}

// Stamp records today's daily stamp for the user, advances XP and level,
// and auto-delivers auto_claim level rewards crossed by the advance. The
// stamp earns base_xp_per_stamp plus xpBonus (event promotions; negative
// values are ignored). The whole operation is one transaction; each
// auto-claim runs in a nested transaction so a single failing reward is
// logged and skipped without losing the stamp.
func (e *Engine) Stamp(ctx context.Context, userID uuid.UUID, sourceFeatureType string, xpBonus int) (*domain.StampResult, error) {
	season, err := e.CurrentSeason(ctx)
	if err != nil {
		return nil, err
	}
	levels, err := e.seasons.ListLevels(ctx, e.pool, season.ID)
	if err != nil {
		return nil, err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin stamp tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := e.seasons.CreateProgress(ctx, tx, userID, season.ID); err != nil {
		return nil, err
	}
	progress, err := e.seasons.FindProgressForUpdate(ctx, tx, userID, season.ID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, domain.ErrInternal("progress row vanished mid-stamp", nil)
	}

	now := e.clock.Now()
	if progress.StampedOn(now) {
		return nil, domain.ErrAlreadyStampedToday()
	}
	if xpBonus < 0 {
		xpBonus = 0
	}
	xpEarned := season.BaseXPPerStamp + xpBonus

	stampCount, err := e.seasons.CountStamps(ctx, tx, progress.ID)
	if err != nil {
		return nil, err
	}
	stampCount++

	// The UNIQUE (progress_id, stamp_date) constraint is the real gate;
	// the StampedOn check above only short-circuits the common case.
	err = e.seasons.InsertStampLog(ctx, tx, domain.SeasonPassStampLog{
		ProgressID:        progress.ID,
		SeasonID:          season.ID,
		StampDate:         domain.DateOf(now),
		XPEarned:          xpEarned,
		StampCount:        stampCount,
		SourceFeatureType: sourceFeatureType,
	})
	if err != nil {
		return nil, err
	}

	newXP := progress.CurrentXP + xpEarned
	oldLevel := progress.CurrentLevel
	newLevel := domain.LevelForXP(levels, newXP)

	if err := e.seasons.UpdateProgress(ctx, tx, progress.ID, newXP, newLevel, now); err != nil {
		return nil, err
	}
	if err := e.activity.Touch(ctx, tx, userID, now); err != nil {
		return nil, err
	}

	result := &domain.StampResult{
		SeasonID:     season.ID,
		XPAdded:      xpEarned,
		CurrentXP:    newXP,
		CurrentLevel: newLevel,
		StampCount:   stampCount,
		Rewards:      []domain.ClaimedReward{},
	}

	for _, l := range domain.AutoClaimableLevels(levels, oldLevel, newLevel) {
		granted, err := e.autoClaimLevel(ctx, tx, userID, season.ID, progress.ID, l)
		if err != nil {
			e.logger.Error("auto-claim failed, skipping level",
				"user_id", userID, "season_id", season.ID, "level", l.Level, "error", err)
			continue
		}
		if granted {
			result.Rewards = append(result.Rewards, domain.ClaimedReward{
				Level:        l.Level,
				RewardType:   l.RewardType,
				RewardAmount: l.RewardAmount,
			})
		}
	}

	evt := domain.NewSeasonStampedEvent(userID, season.ID, xpEarned, newLevel, sourceFeatureType)
	if err := e.outbox.Insert(ctx, tx, evt); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit stamp tx: %w", err)
	}

	e.logger.Info("stamp recorded",
		"user_id", userID, "season_id", season.ID, "xp", newXP,
		"level", newLevel, "stamp_count", stampCount, "rewards", len(result.Rewards))

	if newLevel > oldLevel && e.levelUp != nil {
		e.levelUp.HandleLevelUp(ctx, userID, newLevel)
	}

	return result, nil
}

// autoClaimLevel grants one level reward inside a nested transaction
// (a savepoint under pgx), so its failure rolls back only this level.
func (e *Engine) autoClaimLevel(ctx context.Context, tx pgx.Tx, userID uuid.UUID, seasonID int, progressID int64, l domain.SeasonPassLevel) (bool, error) {
	nested, err := tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin auto-claim savepoint: %w", err)
	}

	granted, err := e.claimLevelLocked(ctx, nested, userID, seasonID, progressID, l, domain.RewardSourceAutoClaim)
	if err != nil {
		_ = nested.Rollback(ctx)
		return false, err
	}
	if err := nested.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit auto-claim savepoint: %w", err)
	}

	return granted, nil
}

// claimLevelLocked writes the reward log, delivers tokens and emits the
// claimed event. Returns false when the level was already granted.
func (e *Engine) claimLevelLocked(ctx context.Context, db repository.DBTX, userID uuid.UUID, seasonID int, progressID int64, l domain.SeasonPassLevel, source string) (bool, error) {
	inserted, err := e.seasons.InsertRewardLog(ctx, db, domain.SeasonPassRewardLog{
		UserID:       userID,
		SeasonID:     seasonID,
		ProgressID:   progressID,
		Level:        l.Level,
		RewardType:   l.RewardType,
		RewardAmount: l.RewardAmount,
		Source:       source,
	})
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if _, err := e.deliverer.Deliver(ctx, db, userID, l.RewardType, l.RewardAmount, map[string]interface{}{
		"season_id": seasonID,
		"level":     l.Level,
		"source":    source,
	}); err != nil {
		return false, err
	}

	evt := domain.NewLevelClaimedEvent(userID, seasonID, l.Level, l.RewardType, l.RewardAmount, source)
	if err := e.outbox.Insert(ctx, db, evt); err != nil {
		return false, err
	}

	return true, nil
}

// Claim manually grants the reward for a reached level.
func (e *Engine) Claim(ctx context.Context, userID uuid.UUID, level int) (*domain.ClaimedReward, error) {
	season, err := e.CurrentSeason(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	progress, err := e.seasons.FindProgressForUpdate(ctx, tx, userID, season.ID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, domain.ErrNoProgress()
	}
	if progress.CurrentLevel < level {
		return nil, domain.ErrLevelNotReached(level)
	}

	levelRow, err := e.seasons.FindLevel(ctx, tx, season.ID, level)
	if err != nil {
		return nil, err
	}
	if levelRow == nil {
		return nil, domain.ErrNotFound("season pass level", fmt.Sprintf("%d", level))
	}

	granted, err := e.claimLevelLocked(ctx, tx, userID, season.ID, progress.ID, *levelRow, domain.RewardSourceManual)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, domain.ErrAlreadyClaimed(level)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	e.logger.Info("level reward claimed", "user_id", userID, "season_id", season.ID, "level", level)

	return &domain.ClaimedReward{
		Level:        levelRow.Level,
		RewardType:   levelRow.RewardType,
		RewardAmount: levelRow.RewardAmount,
	}, nil
}
