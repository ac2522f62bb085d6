package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/snowfest/platform/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB is what services hold: a DBTX that can also open transactions.
// Satisfied by pgxpool.Pool.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletRepository provides access to game_wallets. All balance mutations
// are single-statement server-side arithmetic so concurrent grants and
// revokes for the same (user, token_type) cannot lose updates.
type WalletRepository interface {
	// Grant adds amount to the wallet, creating it at zero if absent.
	Grant(ctx context.Context, db DBTX, userID uuid.UUID, tokenType domain.TokenType, amount int64) (int64, error)

	// Revoke subtracts amount; fails with INSUFFICIENT_BALANCE rather than
	// driving the balance below zero.
	Revoke(ctx context.Context, db DBTX, userID uuid.UUID, tokenType domain.TokenType, amount int64) (int64, error)

	// GetBalance returns the current balance, zero for unknown wallets.
	GetBalance(ctx context.Context, db DBTX, userID uuid.UUID, tokenType domain.TokenType) (int64, error)

	// ListWallets returns wallets, optionally filtered to one user.
	ListWallets(ctx context.Context, db DBTX, userID *uuid.UUID) ([]domain.GameWallet, error)
}

// SeasonPassRepository provides access to the season-pass tables.
type SeasonPassRepository interface {
	// ListActiveSeasons returns all is_active season configs. Date
	// resolution (including overlap detection) happens in the engine.
	ListActiveSeasons(ctx context.Context, db DBTX) ([]domain.SeasonConfig, error)

	// ListLevels returns a season's level table sorted ascending by level.
	ListLevels(ctx context.Context, db DBTX, seasonID int) ([]domain.SeasonPassLevel, error)

	// FindLevel returns one level row, nil if absent.
	FindLevel(ctx context.Context, db DBTX, seasonID, level int) (*domain.SeasonPassLevel, error)

	// FindProgress returns the progress row for (user, season), nil if absent.
	FindProgress(ctx context.Context, db DBTX, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error)

	// FindProgressForUpdate acquires a row-level lock (SELECT FOR UPDATE),
	// serializing concurrent stamps per (user, season).
	FindProgressForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error)

	// CreateProgress lazily creates the progress row. Safe under races: an
	// existing row is returned unchanged.
	CreateProgress(ctx context.Context, db DBTX, userID uuid.UUID, seasonID int) (*domain.SeasonPassProgress, error)

	// UpdateProgress writes the post-stamp XP, level and last play date.
	UpdateProgress(ctx context.Context, db DBTX, progressID int64, xp, level int, lastPlay time.Time) error

	// CountStamps returns the number of accepted stamps for a progress row.
	CountStamps(ctx context.Context, db DBTX, progressID int64) (int, error)

	// InsertStampLog appends the audit row. A duplicate calendar day maps
	// the UNIQUE (progress_id, stamp_date) violation to ALREADY_STAMPED_TODAY.
	InsertStampLog(ctx context.Context, db DBTX, log domain.SeasonPassStampLog) error

	// InsertRewardLog appends the grant record. Returns false without error
	// when a log for (user, season, level) already exists — the storage-level
	// idempotency gate for claim and auto-claim.
	InsertRewardLog(ctx context.Context, db DBTX, log domain.SeasonPassRewardLog) (bool, error)

	// ListRewardLogs returns all grant records for (user, season).
	ListRewardLogs(ctx context.Context, db DBTX, userID uuid.UUID, seasonID int) ([]domain.SeasonPassRewardLog, error)

	// ListProgress returns progress rows for the backfill scan, optionally
	// filtered by season and/or user.
	ListProgress(ctx context.Context, db DBTX, seasonID *int, userID *uuid.UUID) ([]domain.SeasonPassProgress, error)
}

// SurveyRepository provides read access to survey definitions and rules.
type SurveyRepository interface {
	// FindByID returns a survey, nil if absent.
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.Survey, error)

	// ListActive returns ACTIVE surveys whose start/end window contains now.
	ListActive(ctx context.Context, db DBTX, now time.Time) ([]domain.Survey, error)

	// ListQuestions returns a survey's questions with options, in order.
	ListQuestions(ctx context.Context, db DBTX, surveyID int64) ([]domain.SurveyQuestion, error)

	// ListActiveTriggerRules returns active rules of the given type joined
	// to ACTIVE surveys.
	ListActiveTriggerRules(ctx context.Context, db DBTX, triggerType domain.SurveyTriggerType) ([]domain.SurveyTriggerRule, error)
}

// SurveyResponseRepository provides access to survey_responses and answers.
type SurveyResponseRepository interface {
	// FindByID returns a response, nil if absent.
	FindByID(ctx context.Context, db DBTX, id int64) (*domain.SurveyResponse, error)

	// FindLatest returns the newest response for (survey, user), nil if none.
	FindLatest(ctx context.Context, db DBTX, surveyID int64, userID uuid.UUID) (*domain.SurveyResponse, error)

	// ListOpenBySurveys maps survey ID → newest PENDING/IN_PROGRESS response
	// ID for the user, for the active-survey listing.
	ListOpenBySurveys(ctx context.Context, db DBTX, surveyIDs []int64, userID uuid.UUID) (map[int64]int64, error)

	// Create inserts a PENDING response, optionally bound to a trigger rule.
	Create(ctx context.Context, db DBTX, surveyID int64, userID uuid.UUID, triggerRuleID *int64, now time.Time) (*domain.SurveyResponse, error)

	// MarkInProgress updates activity bookkeeping during answer saves.
	MarkInProgress(ctx context.Context, db DBTX, responseID int64, lastQuestionID *int64, now time.Time) error

	// MarkCompleted flips the response to COMPLETED. Conditional on not
	// being COMPLETED already; returns false when a concurrent completion
	// won, so exactly one caller observes the transition.
	MarkCompleted(ctx context.Context, db DBTX, responseID int64, now time.Time) (bool, error)

	// ScheduleReward flips reward_status to SCHEDULED, conditional on the
	// current status being NONE or FAILED. Returns false when the row is
	// already SCHEDULED or GRANTED — the storage-level gate that keeps
	// concurrent reward applications from double-delivering.
	ScheduleReward(ctx context.Context, db DBTX, responseID int64) (bool, error)

	// SetRewardStatus persists one reward state transition. Each transition
	// is written individually so a crash mid-delivery is observable.
	SetRewardStatus(ctx context.Context, db DBTX, responseID int64, status domain.SurveyRewardStatus, payload json.RawMessage) error

	// ListAnswers returns all saved answers for a response.
	ListAnswers(ctx context.Context, db DBTX, responseID int64) ([]domain.SurveyAnswer, error)

	// UpsertAnswer inserts or replaces the answer for (response, question).
	UpsertAnswer(ctx context.Context, db DBTX, a domain.SurveyAnswer) error

	// CountByRule returns the user's total responses spawned by a rule.
	CountByRule(ctx context.Context, db DBTX, userID uuid.UUID, surveyID, ruleID int64) (int, error)

	// FindLatestByRule returns the newest response spawned by a rule for
	// the user, nil if none.
	FindLatestByRule(ctx context.Context, db DBTX, userID uuid.UUID, surveyID, ruleID int64) (*domain.SurveyResponse, error)
}

// ActivityRepository tracks per-user last play time for inactivity triggers.
type ActivityRepository interface {
	// Touch upserts the user's last seen timestamp.
	Touch(ctx context.Context, db DBTX, userID uuid.UUID, at time.Time) error

	// ListAll returns every tracked user's activity row.
	ListAll(ctx context.Context, db DBTX) ([]domain.UserActivity, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the
	// state change it describes).
	Insert(ctx context.Context, db DBTX, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events for the outbox poller.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]OutboxRow, error)

	// MarkPublished stamps events as published.
	MarkPublished(ctx context.Context, db DBTX, ids []int64) error
}

// OutboxRow pairs an outbox draft with its table sequence ID.
type OutboxRow struct {
	SeqID int64
	domain.OutboxDraft
}
