package survey

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/infra"
	"github.com/snowfest/platform/internal/repository"
)

// Matcher evaluates trigger rules against gameplay events and spawns
// pending survey responses. Rules are independent: one event can spawn
// several surveys, and a non-matching rule never blocks the next one.
// Matching is best-effort side work; failures are logged, never returned
// to the gameplay path.
type Matcher struct {
	pool      repository.DB
	surveys   repository.SurveyRepository
	responses repository.SurveyResponseRepository
	activity  repository.ActivityRepository
	outbox    repository.OutboxRepository
	clock     *infra.EventClock
	logger    *slog.Logger
}

// NewMatcher creates a trigger matcher.
func NewMatcher(
	pool repository.DB,
	surveys repository.SurveyRepository,
	responses repository.SurveyResponseRepository,
	activity repository.ActivityRepository,
	outbox repository.OutboxRepository,
	clock *infra.EventClock,
	logger *slog.Logger,
) *Matcher {
	return &Matcher{
		pool:      pool,
		surveys:   surveys,
		responses: responses,
		activity:  activity,
		outbox:    outbox,
		clock:     clock,
		logger:    logger,
	}
}

// HandleLevelUp runs LEVEL_UP rules after a committed stamp raised the
// user's level.
func (m *Matcher) HandleLevelUp(ctx context.Context, userID uuid.UUID, newLevel int) {
	rules, err := m.surveys.ListActiveTriggerRules(ctx, m.pool, domain.TriggerLevelUp)
	if err != nil {
		m.logger.Error("list level-up rules failed", "error", err)
		return
	}

	for _, rule := range rules {
		cfg := domain.ParseTriggerConfig(rule.ConfigJSON)
		if !cfg.MatchesLevel(newLevel) {
			continue
		}
		m.tryTrigger(ctx, userID, rule)
	}
}

// HandleGameResult runs GAME_RESULT rules after a game round settles.
// featureType names the game surface (ROULETTE, DICE, ...), result the
// outcome (WIN, LOSE, JACKPOT, ...).
func (m *Matcher) HandleGameResult(ctx context.Context, userID uuid.UUID, featureType, result string) {
	rules, err := m.surveys.ListActiveTriggerRules(ctx, m.pool, domain.TriggerGameResult)
	if err != nil {
		m.logger.Error("list game-result rules failed", "error", err)
		return
	}

	for _, rule := range rules {
		cfg := domain.ParseTriggerConfig(rule.ConfigJSON)
		if !cfg.MatchesGameResult(featureType, result) {
			continue
		}
		m.tryTrigger(ctx, userID, rule)
	}
}

// SweepInactive runs INACTIVE_DAYS rules against every tracked user.
// Called from the scheduler, typically once a day.
func (m *Matcher) SweepInactive(ctx context.Context) {
	rules, err := m.surveys.ListActiveTriggerRules(ctx, m.pool, domain.TriggerInactiveDays)
	if err != nil {
		m.logger.Error("list inactivity rules failed", "error", err)
		return
	}
	if len(rules) == 0 {
		return
	}

	users, err := m.activity.ListAll(ctx, m.pool)
	if err != nil {
		m.logger.Error("list user activity failed", "error", err)
		return
	}

	now := m.clock.Now()
	spawned := 0
	for _, u := range users {
		days := u.DaysInactive(now)
		for _, rule := range rules {
			cfg := domain.ParseTriggerConfig(rule.ConfigJSON)
			if days < cfg.MinDays {
				continue
			}
			if m.tryTrigger(ctx, u.UserID, rule) {
				spawned++
			}
		}
	}

	m.logger.Info("inactivity sweep complete", "users", len(users), "rules", len(rules), "spawned", spawned)
}

// PushManual runs a MANUAL_PUSH rule against an explicit user list.
// Returns how many responses were spawned; cooldown and frequency caps
// still apply per user.
func (m *Matcher) PushManual(ctx context.Context, ruleID int64, userIDs []uuid.UUID) (int, error) {
	rules, err := m.surveys.ListActiveTriggerRules(ctx, m.pool, domain.TriggerManualPush)
	if err != nil {
		return 0, err
	}

	var target *domain.SurveyTriggerRule
	for i := range rules {
		if rules[i].ID == ruleID {
			target = &rules[i]
			break
		}
	}
	if target == nil {
		return 0, domain.ErrNotFound("trigger rule", strconv.FormatInt(ruleID, 10))
	}

	spawned := 0
	for _, userID := range userIDs {
		if m.tryTrigger(ctx, userID, *target) {
			spawned++
		}
	}

	return spawned, nil
}

// tryTrigger spawns a pending response for (user, rule) if the rule's
// frequency cap and cooldown allow it. Returns true when spawned.
func (m *Matcher) tryTrigger(ctx context.Context, userID uuid.UUID, rule domain.SurveyTriggerRule) bool {
	ok, err := m.passesCooldown(ctx, userID, rule)
	if err != nil {
		m.logger.Error("trigger cooldown check failed", "rule_id", rule.ID, "user_id", userID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	now := m.clock.Now()
	ruleID := rule.ID
	resp, err := m.responses.Create(ctx, m.pool, rule.SurveyID, userID, &ruleID, now)
	if err != nil {
		m.logger.Error("spawn triggered response failed", "rule_id", rule.ID, "user_id", userID, "error", err)
		return false
	}

	evt := domain.NewSurveyTriggeredEvent(userID, rule.SurveyID, resp.ID, rule.ID, rule.TriggerType)
	if err := m.outbox.Insert(ctx, m.pool, evt); err != nil {
		m.logger.Error("triggered event insert failed", "response_id", resp.ID, "error", err)
	}

	m.logger.Info("survey triggered",
		"rule_id", rule.ID, "survey_id", rule.SurveyID, "user_id", userID,
		"trigger_type", rule.TriggerType, "response_id", resp.ID)

	return true
}

// passesCooldown applies the rule's per-user frequency cap first, then
// the recency cooldown against the newest response the rule spawned.
func (m *Matcher) passesCooldown(ctx context.Context, userID uuid.UUID, rule domain.SurveyTriggerRule) (bool, error) {
	if rule.MaxPerUser > 0 {
		count, err := m.responses.CountByRule(ctx, m.pool, userID, rule.SurveyID, rule.ID)
		if err != nil {
			return false, err
		}
		if count >= rule.MaxPerUser {
			return false, nil
		}
	}

	if rule.CooldownHours > 0 {
		latest, err := m.responses.FindLatestByRule(ctx, m.pool, userID, rule.SurveyID, rule.ID)
		if err != nil {
			return false, err
		}
		if latest != nil {
			cooldown := time.Duration(rule.CooldownHours) * time.Hour
			if m.clock.Now().Sub(latest.CreatedAt) < cooldown {
				return false, nil
			}
		}
	}

	return true, nil
}
