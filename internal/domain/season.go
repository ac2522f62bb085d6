package domain

import (
	"time"

	"github.com/google/uuid"
)

// SeasonConfig is a season_pass_configs row. StartDate and EndDate are
// calendar dates (midnight in the event timezone); the range is inclusive
// on both ends.
type SeasonConfig struct {
	ID             int       `json:"id"`
	SeasonName     string    `json:"season_name"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	MaxLevel       int       `json:"max_level"`
	BaseXPPerStamp int       `json:"base_xp_per_stamp"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Covers reports whether the given calendar day falls inside the season's
// inclusive [start_date, end_date] range. Both sides are compared as dates.
func (c SeasonConfig) Covers(day time.Time) bool {
	d := DateOf(day)
	return !d.Before(DateOf(c.StartDate)) && !d.After(DateOf(c.EndDate))
}

// ResolveSeason selects the single active season covering today.
// Zero matches → NO_ACTIVE_SEASON; more than one → NO_ACTIVE_SEASON_CONFLICT.
// Overlap is an operator error detected here, at lookup time, never
// silently resolved by picking one.
func ResolveSeason(configs []SeasonConfig, today time.Time) (*SeasonConfig, error) {
	var found *SeasonConfig
	for i := range configs {
		c := configs[i]
		if !c.IsActive || !c.Covers(today) {
			continue
		}
		if found != nil {
			return nil, ErrSeasonConflict()
		}
		found = &c
	}
	if found == nil {
		return nil, ErrNoActiveSeason()
	}
	return found, nil
}

// SeasonPassLevel is one row of a season's level table, sorted ascending by
// Level with non-decreasing RequiredXP (ordering is assumed, not enforced).
type SeasonPassLevel struct {
	ID           int    `json:"id"`
	SeasonID     int    `json:"season_id"`
	Level        int    `json:"level"`
	RequiredXP   int    `json:"required_xp"`
	RewardType   string `json:"reward_type"`
	RewardAmount int64  `json:"reward_amount"`
	AutoClaim    bool   `json:"auto_claim"`
}

// LevelForXP returns the highest level whose required XP is within xp,
// or 0 when no level is reached yet. Levels must be sorted ascending.
func LevelForXP(levels []SeasonPassLevel, xp int) int {
	current := 0
	for _, l := range levels {
		if l.RequiredXP > xp {
			break
		}
		current = l.Level
	}
	return current
}

// AutoClaimableLevels returns the auto_claim levels strictly above oldLevel
// and up to newLevel inclusive, in ascending order. A multi-level jump in a
// single stamp yields every eligible intermediate level, not just the last.
func AutoClaimableLevels(levels []SeasonPassLevel, oldLevel, newLevel int) []SeasonPassLevel {
	var out []SeasonPassLevel
	for _, l := range levels {
		if l.Level > oldLevel && l.Level <= newLevel && l.AutoClaim {
			out = append(out, l)
		}
	}
	return out
}

// SeasonPassProgress is the per-(user, season) progression row. Created
// lazily on first status query or stamp; mutated only by the stamp path.
// CurrentLevel is cached but always recomputable from CurrentXP.
type SeasonPassProgress struct {
	ID           int64      `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	SeasonID     int        `json:"season_id"`
	CurrentXP    int        `json:"current_xp"`
	CurrentLevel int        `json:"current_level"`
	LastPlayDate *time.Time `json:"last_play_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// StampedOn reports whether the progress already holds a stamp for the
// given calendar day.
func (p SeasonPassProgress) StampedOn(day time.Time) bool {
	return p.LastPlayDate != nil && SameDate(*p.LastPlayDate, day)
}

// SeasonPassStampLog is the append-only audit row for one accepted stamp.
// A UNIQUE (progress_id, stamp_date) constraint backs the one-stamp-per-day
// invariant at the storage layer.
type SeasonPassStampLog struct {
	ID                int64     `json:"id"`
	ProgressID        int64     `json:"progress_id"`
	SeasonID          int       `json:"season_id"`
	StampDate         time.Time `json:"stamp_date"`
	XPEarned          int       `json:"xp_earned"`
	StampCount        int       `json:"stamp_count"`
	SourceFeatureType string    `json:"source_feature_type"`
	CreatedAt         time.Time `json:"created_at"`
}

// Reward log sources.
const (
	RewardSourceAutoClaim = "AUTO_CLAIM"
	RewardSourceManual    = "MANUAL_CLAIM"
	RewardSourceBackfill  = "BACKFILL"
)

// SeasonPassRewardLog is the append-only grant record and idempotency
// guard: its existence is the authoritative "already granted" marker for
// (user, season, level), enforced by a UNIQUE constraint.
type SeasonPassRewardLog struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	SeasonID     int       `json:"season_id"`
	ProgressID   int64     `json:"progress_id"`
	Level        int       `json:"level"`
	RewardType   string    `json:"reward_type"`
	RewardAmount int64     `json:"reward_amount"`
	Source       string    `json:"source"`
	ClaimedAt    time.Time `json:"claimed_at"`
}

// ClaimedReward is the caller-facing view of one granted level reward.
type ClaimedReward struct {
	Level        int    `json:"level"`
	RewardType   string `json:"reward_type"`
	RewardAmount int64  `json:"reward_amount"`
}

// StampResult is returned by the stamp operation.
type StampResult struct {
	SeasonID     int             `json:"season_id"`
	XPAdded      int             `json:"xp_added"`
	CurrentXP    int             `json:"current_xp"`
	CurrentLevel int             `json:"current_level"`
	StampCount   int             `json:"stamp_count"`
	Rewards      []ClaimedReward `json:"rewards"`
}

// DateOf truncates a timestamp to its calendar date, preserving location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDate reports whether two timestamps fall on the same calendar date
// when viewed in b's location. Callers must pass both values in the event
// timezone; the daily-stamp gate and inactivity day counting depend on it.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
