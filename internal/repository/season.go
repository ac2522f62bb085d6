package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/snowfest/platform/internal/domain"
)

type seasonPassRepository struct{}

// NewSeasonPassRepository creates a season-pass repository.
func NewSeasonPassRepository() SeasonPassRepository {
	return &seasonPassRepository{}
}

func (r *seasonPassRepository) ListActiveSeasons(ctx context.Context, db DBTX) ([]domain.SeasonConfig, error) {
	rows, err := db.Query(ctx, `
		SELECT id, season_name, start_date, end_date, max_level, base_xp_per_stamp, is_active, created_at
		FROM season_pass_configs
		WHERE is_active = true
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active seasons: %w", err)
	}
	defer rows.Close()

	var configs []domain.SeasonConfig
	for rows.Next() {
		var c domain.SeasonConfig
		if err := rows.Scan(&c.ID, &c.SeasonName, &c.StartDate, &c.EndDate, &c.MaxLevel, &c.BaseXPPerStamp, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan season config: %w", err)
		}
		configs = append(configs, c)
	}

	return configs, rows.Err()
}

func (r *seasonPassRepository) ListLevels(ctx context.Context, db DBTX, seasonID int) ([]domain.SeasonPassLevel, error) {
	rows, err := db.Query(ctx, `
		SELECT id, season_id, level, required_xp, reward_type, reward_amount, auto_claim
		FROM season_pass_levels
		WHERE season_id = $1
		ORDER BY level ASC`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	var levels []domain.SeasonPassLevel
	for rows.Next() {
		var l domain.SeasonPassLevel
		if err := rows.Scan(&l.ID, &l.SeasonID, &l.Level, &l.RequiredXP, &l.RewardType, &l.RewardAmount, &l.AutoClaim); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, l)
	}

	return levels, rows.Err()
}

func (r *seasonPassRepository) FindLevel(ctx context.Context, db DBTX, seasonID, level int) (*domain.SeasonPassLevel, error) {
	var l domain.SeasonPassLevel
	err := db.QueryRow(ctx, `
		SELECT id, season_id, level, required_xp, reward_type, reward_amount, auto_claim
		FROM season_pass_levels
		WHERE season_id = $1 AND level = $2`,
		seasonID, level,
	).Scan(&l.ID, &l.SeasonID, &l.Level, &l.RequiredXP, &l.RewardType, &l.RewardAmount, &l.AutoClaim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find level: %w", err)
	}

	return &l, nil
}

const progressColumns = `id, user_id, season_id, current_xp, current_level, last_play_date, created_at, updated_at`

func scanProgress(row pgx.Row) (*domain.SeasonPassProgress, error) {
	var p domain.SeasonPassProgress
	err := row.Scan(&p.ID, &p.UserID, &p.SeasonID, &p.CurrentXP, &p.CurrentLevel, &p.LastPlayDate, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	return &p, nil
}

func (r *seasonPassRepository) FindProgress(ctx context.Context, db DBTX, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error) {
	return scanProgress(db.QueryRow(ctx, `
		SELECT `+progressColumns+`
		FROM season_pass_progress
		WHERE user_id = $1 AND season_id = $2`,
		userID, seasonID))
}

func (r *seasonPassRepository) FindProgressForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error) {
	return scanProgress(tx.QueryRow(ctx, `
		SELECT `+progressColumns+`
		FROM season_pass_progress
		WHERE user_id = $1 AND season_id = $2
		FOR UPDATE`,
		userID, seasonID))
}

func (r *seasonPassRepository) CreateProgress(ctx context.Context, db DBTX, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error) {
	// ON CONFLICT with a no-op update so RETURNING always yields the row,
	// whether this call created it or lost a creation race.
	return scanProgress(db.QueryRow(ctx, `
		INSERT INTO season_pass_progress (user_id, season_id, current_xp, current_level)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (user_id, season_id)
		DO UPDATE SET updated_at = season_pass_progress.updated_at
		RETURNING `+progressColumns,
		userID, seasonID))
}

func (r *seasonPassRepository) UpdateProgress(ctx context.Context, db DBTX, progressID int64, xp, level int, lastPlay time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE season_pass_progress
		SET current_xp = $2, current_level = $3, last_play_date = $4, updated_at = now()
		WHERE id = $1`,
		progressID, xp, level, lastPlay)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

func (r *seasonPassRepository) CountStamps(ctx context.Context, db DBTX, progressID int64) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM season_pass_stamp_logs WHERE progress_id = $1`,
		progressID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stamps: %w", err)
	}
	return count, nil
}

func (r *seasonPassRepository) InsertStampLog(ctx context.Context, db DBTX, log domain.SeasonPassStampLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO season_pass_stamp_logs (progress_id, season_id, stamp_date, xp_earned, stamp_count, source_feature_type)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ProgressID, log.SeasonID, log.StampDate, log.XPEarned, log.StampCount, log.SourceFeatureType)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyStampedToday()
	}
	if err != nil {
		return fmt.Errorf("insert stamp log: %w", err)
	}
	return nil
}

func (r *seasonPassRepository) InsertRewardLog(ctx context.Context, db DBTX, log domain.SeasonPassRewardLog) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO season_pass_reward_logs (user_id, season_id, progress_id, level, reward_type, reward_amount, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, season_id, level) DO NOTHING`,
		log.UserID, log.SeasonID, log.ProgressID, log.Level, log.RewardType, log.RewardAmount, log.Source)
	if err != nil {
		return false, fmt.Errorf("insert reward log: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *seasonPassRepository) ListRewardLogs(ctx context.Context, db DBTX, userID uuid.UUID, seasonID int) ([]domain.SeasonPassRewardLog, error) {
	rows, err := db.Query(ctx, `
		SELECT id, user_id, season_id, progress_id, level, reward_type, reward_amount, source, claimed_at
		FROM season_pass_reward_logs
		WHERE user_id = $1 AND season_id = $2
		ORDER BY level ASC`, userID, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list reward logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.SeasonPassRewardLog
	for rows.Next() {
		var l domain.SeasonPassRewardLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.SeasonID, &l.ProgressID, &l.Level, &l.RewardType, &l.RewardAmount, &l.Source, &l.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan reward log: %w", err)
		}
		logs = append(logs, l)
	}

	return logs, rows.Err()
}

func (r *seasonPassRepository) ListProgress(ctx context.Context, db DBTX, seasonID *int, userID *uuid.UUID) ([]domain.SeasonPassProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM season_pass_progress`
	var conds []string
	var args []interface{}
	if seasonID != nil {
		args = append(args, *seasonID)
		conds = append(conds, fmt.Sprintf("season_id = $%d", len(args)))
	}
	if userID != nil {
		args = append(args, *userID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id"

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var out []domain.SeasonPassProgress
	for rows.Next() {
		var p domain.SeasonPassProgress
		if err := rows.Scan(&p.ID, &p.UserID, &p.SeasonID, &p.CurrentXP, &p.CurrentLevel, &p.LastPlayDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
