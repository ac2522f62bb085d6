package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/snowfest/platform/internal/domain"
)

type surveyRepository struct{}

// NewSurveyRepository creates a survey definition repository.
func NewSurveyRepository() SurveyRepository {
	return &surveyRepository{}
}

const surveyColumns = `id, title, description, status, channel, reward_json, start_at, end_at, created_at`

func scanSurvey(row pgx.Row) (*domain.Survey, error) {
	var s domain.Survey
	err := row.Scan(&s.ID, &s.Title, &s.Description, &s.Status, &s.Channel, &s.RewardJSON, &s.StartAt, &s.EndAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan survey: %w", err)
	}
	return &s, nil
}

func (r *surveyRepository) FindByID(ctx context.Context, db DBTX, id int64) (*domain.Survey, error) {
	return scanSurvey(db.QueryRow(ctx, `
		SELECT `+surveyColumns+` FROM surveys WHERE id = $1`, id))
}

func (r *surveyRepository) ListActive(ctx context.Context, db DBTX, now time.Time) ([]domain.Survey, error) {
	rows, err := db.Query(ctx, `
		SELECT `+surveyColumns+`
		FROM surveys
		WHERE status = 'ACTIVE'
		  AND (start_at IS NULL OR start_at <= $1)
		  AND (end_at IS NULL OR end_at >= $1)
		ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("list active surveys: %w", err)
	}
	defer rows.Close()

	var surveys []domain.Survey
	for rows.Next() {
		var s domain.Survey
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.Status, &s.Channel, &s.RewardJSON, &s.StartAt, &s.EndAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan survey: %w", err)
		}
		surveys = append(surveys, s)
	}

	return surveys, rows.Err()
}

func (r *surveyRepository) ListQuestions(ctx context.Context, db DBTX, surveyID int64) ([]domain.SurveyQuestion, error) {
	rows, err := db.Query(ctx, `
		SELECT id, survey_id, order_index, question_type, title, helper_text, is_required
		FROM survey_questions
		WHERE survey_id = $1
		ORDER BY order_index ASC`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.SurveyQuestion
	byID := map[int64]int{}
	for rows.Next() {
		var q domain.SurveyQuestion
		if err := rows.Scan(&q.ID, &q.SurveyID, &q.OrderIndex, &q.QuestionType, &q.Title, &q.HelperText, &q.IsRequired); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		byID[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(questions) == 0 {
		return questions, nil
	}

	optRows, err := db.Query(ctx, `
		SELECT o.id, o.question_id, o.value, o.label, o.order_index
		FROM survey_options o
		JOIN survey_questions q ON q.id = o.question_id
		WHERE q.survey_id = $1
		ORDER BY o.question_id, o.order_index ASC`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var o domain.SurveyOption
		if err := optRows.Scan(&o.ID, &o.QuestionID, &o.Value, &o.Label, &o.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if idx, ok := byID[o.QuestionID]; ok {
			questions[idx].Options = append(questions[idx].Options, o)
		}
	}

	return questions, optRows.Err()
}

func (r *surveyRepository) ListActiveTriggerRules(ctx context.Context, db DBTX, triggerType domain.SurveyTriggerType) ([]domain.SurveyTriggerRule, error) {
	// Rules only fire for surveys that are currently ACTIVE; a paused or
	// archived survey silently deactivates its rules.
	rows, err := db.Query(ctx, `
		SELECT r.id, r.survey_id, r.trigger_type, r.trigger_config_json, r.priority, r.cooldown_hours, r.max_per_user, r.is_active
		FROM survey_trigger_rules r
		JOIN surveys s ON s.id = r.survey_id
		WHERE r.is_active = true AND r.trigger_type = $1 AND s.status = 'ACTIVE'
		ORDER BY r.priority DESC, r.id`, triggerType)
	if err != nil {
		return nil, fmt.Errorf("list trigger rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.SurveyTriggerRule
	for rows.Next() {
		var rule domain.SurveyTriggerRule
		if err := rows.Scan(&rule.ID, &rule.SurveyID, &rule.TriggerType, &rule.ConfigJSON, &rule.Priority, &rule.CooldownHours, &rule.MaxPerUser, &rule.IsActive); err != nil {
			return nil, fmt.Errorf("scan trigger rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

type surveyResponseRepository struct{}

// NewSurveyResponseRepository creates a survey response repository.
func NewSurveyResponseRepository() SurveyResponseRepository {
	return &surveyResponseRepository{}
}

const responseColumns = `id, survey_id, user_id, trigger_rule_id, status, reward_status, reward_payload, last_question_id, started_at, completed_at, last_activity_at, created_at`

func scanResponse(row pgx.Row) (*domain.SurveyResponse, error) {
	var resp domain.SurveyResponse
	err := row.Scan(&resp.ID, &resp.SurveyID, &resp.UserID, &resp.TriggerRuleID, &resp.Status, &resp.RewardStatus, &resp.RewardPayload, &resp.LastQuestionID, &resp.StartedAt, &resp.CompletedAt, &resp.LastActivityAt, &resp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan response: %w", err)
	}
	return &resp, nil
}

func (r *surveyResponseRepository) FindByID(ctx context.Context, db DBTX, id int64) (*domain.SurveyResponse, error) {
	return scanResponse(db.QueryRow(ctx, `
		SELECT `+responseColumns+` FROM survey_responses WHERE id = $1`, id))
}

func (r *surveyResponseRepository) FindLatest(ctx context.Context, db DBTX, surveyID int64, userID uuid.UUID) (*domain.SurveyResponse, error) {
	return scanResponse(db.QueryRow(ctx, `
		SELECT `+responseColumns+`
		FROM survey_responses
		WHERE survey_id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT 1`, surveyID, userID))
}

func (r *surveyResponseRepository) ListOpenBySurveys(ctx context.Context, db DBTX, surveyIDs []int64, userID uuid.UUID) (map[int64]int64, error) {
	open := map[int64]int64{}
	if len(surveyIDs) == 0 {
		return open, nil
	}

	rows, err := db.Query(ctx, `
		SELECT DISTINCT ON (survey_id) survey_id, id
		FROM survey_responses
		WHERE survey_id = ANY($1) AND user_id = $2 AND status IN ('PENDING', 'IN_PROGRESS')
		ORDER BY survey_id, created_at DESC`, surveyIDs, userID)
	if err != nil {
		return nil, fmt.Errorf("list open responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var surveyID, responseID int64
		if err := rows.Scan(&surveyID, &responseID); err != nil {
			return nil, fmt.Errorf("scan open response: %w", err)
		}
		open[surveyID] = responseID
	}

	return open, rows.Err()
}

func (r *surveyResponseRepository) Create(ctx context.Context, db DBTX, surveyID int64, userID uuid.UUID, triggerRuleID *int64, now time.Time) (*domain.SurveyResponse, error) {
	return scanResponse(db.QueryRow(ctx, `
		INSERT INTO survey_responses (survey_id, user_id, trigger_rule_id, status, reward_status, last_activity_at)
		VALUES ($1, $2, $3, 'PENDING', 'NONE', $4)
		RETURNING `+responseColumns,
		surveyID, userID, triggerRuleID, now))
}

func (r *surveyResponseRepository) MarkInProgress(ctx context.Context, db DBTX, responseID int64, lastQuestionID *int64, now time.Time) error {
	_, err := db.Exec(ctx, `
		UPDATE survey_responses
		SET status = 'IN_PROGRESS',
		    started_at = COALESCE(started_at, $2),
		    last_question_id = COALESCE($3, last_question_id),
		    last_activity_at = $2
		WHERE id = $1 AND status IN ('PENDING', 'IN_PROGRESS')`,
		responseID, now, lastQuestionID)
	if err != nil {
		return fmt.Errorf("mark response in progress: %w", err)
	}
	return nil
}

func (r *surveyResponseRepository) MarkCompleted(ctx context.Context, db DBTX, responseID int64, now time.Time) (bool, error) {
	// Conditional so two concurrent completions resolve at the storage
	// layer: exactly one UPDATE touches the row.
	tag, err := db.Exec(ctx, `
		UPDATE survey_responses
		SET status = 'COMPLETED', completed_at = $2, last_activity_at = $2
		WHERE id = $1 AND status <> 'COMPLETED'`,
		responseID, now)
	if err != nil {
		return false, fmt.Errorf("mark response completed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *surveyResponseRepository) ScheduleReward(ctx context.Context, db DBTX, responseID int64) (bool, error) {
	// NONE and FAILED may move to SCHEDULED; SCHEDULED (in flight) and
	// GRANTED (done) may not. The condition is the double-delivery gate.
	tag, err := db.Exec(ctx, `
		UPDATE survey_responses
		SET reward_status = 'SCHEDULED'
		WHERE id = $1 AND reward_status IN ('NONE', 'FAILED')`,
		responseID)
	if err != nil {
		return false, fmt.Errorf("schedule reward: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *surveyResponseRepository) SetRewardStatus(ctx context.Context, db DBTX, responseID int64, status domain.SurveyRewardStatus, payload json.RawMessage) error {
	_, err := db.Exec(ctx, `
		UPDATE survey_responses
		SET reward_status = $2, reward_payload = COALESCE($3, reward_payload)
		WHERE id = $1`,
		responseID, status, payload)
	if err != nil {
		return fmt.Errorf("set reward status: %w", err)
	}
	return nil
}

func (r *surveyResponseRepository) ListAnswers(ctx context.Context, db DBTX, responseID int64) ([]domain.SurveyAnswer, error) {
	rows, err := db.Query(ctx, `
		SELECT id, response_id, question_id, option_id, answer_text, answer_number, meta_json, answered_at
		FROM survey_answers
		WHERE response_id = $1
		ORDER BY question_id`, responseID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.SurveyAnswer
	for rows.Next() {
		var a domain.SurveyAnswer
		if err := rows.Scan(&a.ID, &a.ResponseID, &a.QuestionID, &a.OptionID, &a.AnswerText, &a.AnswerNumber, &a.MetaJSON, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}

	return answers, rows.Err()
}

func (r *surveyResponseRepository) UpsertAnswer(ctx context.Context, db DBTX, a domain.SurveyAnswer) error {
	// Re-answering replaces the prior answer wholesale; partial merges of
	// option/text/number fields would leave stale data behind.
	_, err := db.Exec(ctx, `
		INSERT INTO survey_answers (response_id, question_id, option_id, answer_text, answer_number, meta_json, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (response_id, question_id)
		DO UPDATE SET option_id = EXCLUDED.option_id,
		              answer_text = EXCLUDED.answer_text,
		              answer_number = EXCLUDED.answer_number,
		              meta_json = EXCLUDED.meta_json,
		              answered_at = EXCLUDED.answered_at`,
		a.ResponseID, a.QuestionID, a.OptionID, a.AnswerText, a.AnswerNumber, a.MetaJSON, a.AnsweredAt)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (r *surveyResponseRepository) CountByRule(ctx context.Context, db DBTX, userID uuid.UUID, surveyID, ruleID int64) (int, error) {
	var count int
	err := db.QueryRow(ctx, `
		SELECT COUNT(*) FROM survey_responses
		WHERE user_id = $1 AND survey_id = $2 AND trigger_rule_id = $3`,
		userID, surveyID, ruleID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count responses by rule: %w", err)
	}
	return count, nil
}

func (r *surveyResponseRepository) FindLatestByRule(ctx context.Context, db DBTX, userID uuid.UUID, surveyID, ruleID int64) (*domain.SurveyResponse, error) {
	return scanResponse(db.QueryRow(ctx, `
		SELECT `+responseColumns+`
		FROM survey_responses
		WHERE user_id = $1 AND survey_id = $2 AND trigger_rule_id = $3
		ORDER BY created_at DESC
		LIMIT 1`, userID, surveyID, ruleID))
}

type activityRepository struct{}

// NewActivityRepository creates a user activity repository.
func NewActivityRepository() ActivityRepository {
	return &activityRepository{}
}

func (r *activityRepository) Touch(ctx context.Context, db DBTX, userID uuid.UUID, at time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO user_activity (user_id, last_seen_at)
		VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET last_seen_at = GREATEST(user_activity.last_seen_at, EXCLUDED.last_seen_at)`,
		userID, at)
	if err != nil {
		return fmt.Errorf("touch user activity: %w", err)
	}
	return nil
}

func (r *activityRepository) ListAll(ctx context.Context, db DBTX) ([]domain.UserActivity, error) {
	rows, err := db.Query(ctx, `
		SELECT user_id, last_seen_at FROM user_activity ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list user activity: %w", err)
	}
	defer rows.Close()

	var out []domain.UserActivity
	for rows.Next() {
		var a domain.UserActivity
		if err := rows.Scan(&a.UserID, &a.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan user activity: %w", err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}
