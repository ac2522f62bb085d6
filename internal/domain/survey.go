package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SurveyStatus is the lifecycle state of a survey definition.
type SurveyStatus string

const (
	SurveyDraft    SurveyStatus = "DRAFT"
	SurveyActive   SurveyStatus = "ACTIVE"
	SurveyPaused   SurveyStatus = "PAUSED"
	SurveyArchived SurveyStatus = "ARCHIVED"
)

// SurveyChannel ties a survey to the feature surface it is shown on.
type SurveyChannel string

const (
	ChannelGlobal     SurveyChannel = "GLOBAL"
	ChannelSeasonPass SurveyChannel = "SEASON_PASS"
	ChannelRoulette   SurveyChannel = "ROULETTE"
	ChannelDice       SurveyChannel = "DICE"
	ChannelLottery    SurveyChannel = "LOTTERY"
	ChannelTeamBattle SurveyChannel = "TEAM_BATTLE"
)

// Survey is a survey definition owned by the survey admin subsystem.
// RewardJSON and trigger configs are read here as opaque mappings with
// documented recognized keys.
type Survey struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      SurveyStatus    `json:"status"`
	Channel     SurveyChannel   `json:"channel"`
	RewardJSON  json.RawMessage `json:"reward_json,omitempty"`
	StartAt     *time.Time      `json:"start_at,omitempty"`
	EndAt       *time.Time      `json:"end_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InWindow reports whether the survey's optional start/end window contains
// now. Nil bounds are open.
func (s Survey) InWindow(now time.Time) bool {
	if s.StartAt != nil && now.Before(*s.StartAt) {
		return false
	}
	if s.EndAt != nil && now.After(*s.EndAt) {
		return false
	}
	return true
}

// SurveyQuestionType enumerates question kinds.
type SurveyQuestionType string

const (
	QuestionSingleChoice SurveyQuestionType = "SINGLE_CHOICE"
	QuestionMultiChoice  SurveyQuestionType = "MULTI_CHOICE"
	QuestionLikert       SurveyQuestionType = "LIKERT"
	QuestionText         SurveyQuestionType = "TEXT"
	QuestionNumber       SurveyQuestionType = "NUMBER"
)

// SurveyQuestion is one question of a survey, ordered by OrderIndex.
type SurveyQuestion struct {
	ID           int64              `json:"id"`
	SurveyID     int64              `json:"survey_id"`
	OrderIndex   int                `json:"order_index"`
	QuestionType SurveyQuestionType `json:"question_type"`
	Title        string             `json:"title"`
	HelperText   string             `json:"helper_text,omitempty"`
	IsRequired   bool               `json:"is_required"`
	Options      []SurveyOption     `json:"options,omitempty"`
}

// SurveyOption is a selectable choice for choice-type questions.
type SurveyOption struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Value      string `json:"value"`
	Label      string `json:"label"`
	OrderIndex int    `json:"order_index"`
}

// SurveyTriggerType enumerates the events that can spawn a pending response.
type SurveyTriggerType string

const (
	TriggerLevelUp      SurveyTriggerType = "LEVEL_UP"
	TriggerInactiveDays SurveyTriggerType = "INACTIVE_DAYS"
	TriggerGameResult   SurveyTriggerType = "GAME_RESULT"
	TriggerManualPush   SurveyTriggerType = "MANUAL_PUSH"
)

// SurveyTriggerRule is a condition plus cooldown/frequency cap that spawns
// a pending survey response on a qualifying event.
type SurveyTriggerRule struct {
	ID            int64             `json:"id"`
	SurveyID      int64             `json:"survey_id"`
	TriggerType   SurveyTriggerType `json:"trigger_type"`
	ConfigJSON    json.RawMessage   `json:"trigger_config_json,omitempty"`
	Priority      int               `json:"priority"`
	CooldownHours int               `json:"cooldown_hours"`
	MaxPerUser    int               `json:"max_per_user"`
	IsActive      bool              `json:"is_active"`
}

// TriggerConfig is the parsed view of a rule's trigger_config_json.
// Fallback keys mirror what operators have historically written:
// min_level|level_min, max_level|level_max, min_days|days.
type TriggerConfig struct {
	MinLevel    int
	MaxLevel    int
	FeatureType string
	Result      string
	MinDays     int
}

// ParseTriggerConfig decodes a rule config once at the boundary. Missing
// bounds default to an open range; MinDays defaults to 3 as in the
// inactivity campaign defaults.
func ParseTriggerConfig(raw json.RawMessage) TriggerConfig {
	cfg := TriggerConfig{MaxLevel: int(^uint(0) >> 1), MinDays: 3}
	if len(raw) == 0 {
		return cfg
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return cfg
	}
	if v, ok := intKey(m, "min_level", "level_min"); ok {
		cfg.MinLevel = v
	}
	if v, ok := intKey(m, "max_level", "level_max"); ok {
		cfg.MaxLevel = v
	}
	if v, ok := strKey(m, "feature_type"); ok {
		cfg.FeatureType = v
	}
	if v, ok := strKey(m, "result"); ok {
		cfg.Result = v
	}
	if v, ok := intKey(m, "min_days", "days"); ok {
		cfg.MinDays = v
	}
	return cfg
}

// MatchesLevel reports whether a new level falls inside the configured bounds.
func (c TriggerConfig) MatchesLevel(newLevel int) bool {
	return newLevel >= c.MinLevel && newLevel <= c.MaxLevel
}

// MatchesGameResult reports whether a game outcome matches the rule filter.
// Empty filter fields match anything.
func (c TriggerConfig) MatchesGameResult(featureType, result string) bool {
	if c.FeatureType != "" && c.FeatureType != featureType {
		return false
	}
	if c.Result != "" && c.Result != result {
		return false
	}
	return true
}

// SurveyResponseStatus is the lifecycle state of one (survey, user) attempt.
type SurveyResponseStatus string

const (
	ResponsePending    SurveyResponseStatus = "PENDING"
	ResponseInProgress SurveyResponseStatus = "IN_PROGRESS"
	ResponseCompleted  SurveyResponseStatus = "COMPLETED"
	ResponseDropped    SurveyResponseStatus = "DROPPED"
	ResponseExpired    SurveyResponseStatus = "EXPIRED"
)

// SurveyRewardStatus is the per-response reward delivery state machine:
// NONE/SCHEDULED → GRANTED|FAILED, persisted at each transition so a crash
// mid-delivery is observable. It is the idempotency guard for survey
// rewards, scoped to a single response row because a response is one-shot.
type SurveyRewardStatus string

const (
	RewardNone      SurveyRewardStatus = "NONE"
	RewardScheduled SurveyRewardStatus = "SCHEDULED"
	RewardGranted   SurveyRewardStatus = "GRANTED"
	RewardFailed    SurveyRewardStatus = "FAILED"
)

// SurveyResponse is a survey_responses row.
type SurveyResponse struct {
	ID             int64                `json:"id"`
	SurveyID       int64                `json:"survey_id"`
	UserID         uuid.UUID            `json:"user_id"`
	TriggerRuleID  *int64               `json:"trigger_rule_id,omitempty"`
	Status         SurveyResponseStatus `json:"status"`
	RewardStatus   SurveyRewardStatus   `json:"reward_status"`
	RewardPayload  json.RawMessage      `json:"reward_payload,omitempty"`
	LastQuestionID *int64               `json:"last_question_id,omitempty"`
	StartedAt      *time.Time           `json:"started_at,omitempty"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	LastActivityAt time.Time            `json:"last_activity_at"`
	CreatedAt      time.Time            `json:"created_at"`
}

// SurveyAnswer is one saved answer, unique per (response, question).
type SurveyAnswer struct {
	ID           int64           `json:"id"`
	ResponseID   int64           `json:"response_id"`
	QuestionID   int64           `json:"question_id"`
	OptionID     *int64          `json:"option_id,omitempty"`
	AnswerText   string          `json:"answer_text,omitempty"`
	AnswerNumber *int64          `json:"answer_number,omitempty"`
	MetaJSON     json.RawMessage `json:"meta_json,omitempty"`
	AnsweredAt   time.Time       `json:"answered_at"`
}

// HasAnswer reports whether an answer actually answers its question. A
// MULTI_CHOICE question counts as answered only when its selection payload
// is non-empty; blank text is not an answer.
func HasAnswer(a SurveyAnswer, q SurveyQuestion) bool {
	if a.OptionID != nil {
		return true
	}
	if q.QuestionType == QuestionMultiChoice {
		return nonEmptyJSON(a.MetaJSON)
	}
	if strings.TrimSpace(a.AnswerText) != "" {
		return true
	}
	if a.AnswerNumber != nil {
		return true
	}
	return nonEmptyJSON(a.MetaJSON)
}

// MissingRequired returns the IDs of required questions without a valid
// answer, in question order.
func MissingRequired(questions []SurveyQuestion, answers map[int64]SurveyAnswer) []int64 {
	var missing []int64
	for _, q := range questions {
		if !q.IsRequired {
			continue
		}
		a, ok := answers[q.ID]
		if !ok || !HasAnswer(a, q) {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// RewardConfig is the parsed view of a survey's reward_json, validated once
// at the boundary instead of re-probing fallback keys at every call site.
// Recognized keys: reward_type|token_type|type (first present wins),
// amount|token_amount (default 0), toast_message.
type RewardConfig struct {
	RewardType   string
	Amount       int64
	ToastMessage string
}

// Empty reports whether there is nothing to deliver.
func (c RewardConfig) Empty() bool {
	return c.RewardType == "" || c.Amount == 0
}

// Toast returns the configured toast message or a default.
func (c RewardConfig) Toast() string {
	if c.ToastMessage != "" {
		return c.ToastMessage
	}
	return "Survey reward granted."
}

// ParseRewardConfig decodes a survey's reward_json. Malformed or absent
// JSON yields the empty config, which the adapter records as reward NONE.
func ParseRewardConfig(raw json.RawMessage) RewardConfig {
	var cfg RewardConfig
	if len(raw) == 0 {
		return cfg
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return cfg
	}
	if v, ok := strKey(m, "reward_type", "token_type", "type"); ok {
		cfg.RewardType = v
	}
	if v, ok := intKey(m, "amount", "token_amount"); ok {
		cfg.Amount = int64(v)
	}
	if v, ok := strKey(m, "toast_message"); ok {
		cfg.ToastMessage = v
	}
	return cfg
}

func strKey(m map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

func intKey(m map[string]json.RawMessage, keys ...string) (int, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

func nonEmptyJSON(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	case string:
		return strings.TrimSpace(t) != ""
	default:
		return true
	}
}
