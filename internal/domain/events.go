package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func draft(agg AggregateType, evt EventType, key string, payload interface{}) OutboxDraft {
	body, _ := json.Marshal(payload)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   key,
		EventType:     evt,
		Payload:       body,
		OccurredAt:    time.Now(),
	}
}

// NewRewardGrantedEvent records a successful reward delivery to a wallet.
func NewRewardGrantedEvent(userID uuid.UUID, tokenType TokenType, amount, newBalance int64, meta map[string]interface{}) OutboxDraft {
	return draft(AggregateWallet, EventRewardGranted, userID.String(), map[string]interface{}{
		"user_id":    userID.String(),
		"token_type": tokenType,
		"amount":     amount,
		"balance":    newBalance,
		"meta":       meta,
	})
}

// NewWalletRevokedEvent records an admin revoke against a wallet.
func NewWalletRevokedEvent(userID uuid.UUID, tokenType TokenType, amount, newBalance int64) OutboxDraft {
	return draft(AggregateWallet, EventWalletRevoked, userID.String(), map[string]interface{}{
		"user_id":    userID.String(),
		"token_type": tokenType,
		"amount":     amount,
		"balance":    newBalance,
	})
}

// NewSeasonStampedEvent records an accepted daily stamp.
func NewSeasonStampedEvent(userID uuid.UUID, seasonID, xpEarned, newLevel int, source string) OutboxDraft {
	return draft(AggregateSeasonPass, EventSeasonStamped, userID.String(), map[string]interface{}{
		"user_id":   userID.String(),
		"season_id": seasonID,
		"xp_earned": xpEarned,
		"level":     newLevel,
		"source":    source,
	})
}

// NewLevelClaimedEvent records a granted level reward (auto or manual).
func NewLevelClaimedEvent(userID uuid.UUID, seasonID, level int, rewardType string, amount int64, source string) OutboxDraft {
	return draft(AggregateSeasonPass, EventLevelClaimed, userID.String(), map[string]interface{}{
		"user_id":       userID.String(),
		"season_id":     seasonID,
		"level":         level,
		"reward_type":   rewardType,
		"reward_amount": amount,
		"source":        source,
	})
}

// NewSurveyTriggeredEvent records a trigger rule spawning a pending response.
func NewSurveyTriggeredEvent(userID uuid.UUID, surveyID, responseID, ruleID int64, triggerType SurveyTriggerType) OutboxDraft {
	return draft(AggregateSurvey, EventSurveyTriggered, userID.String(), map[string]interface{}{
		"user_id":      userID.String(),
		"survey_id":    surveyID,
		"response_id":  responseID,
		"rule_id":      ruleID,
		"trigger_type": triggerType,
	})
}

// NewSurveyCompletedEvent records a completed survey response.
func NewSurveyCompletedEvent(userID uuid.UUID, surveyID, responseID int64, rewardStatus SurveyRewardStatus) OutboxDraft {
	return draft(AggregateSurvey, EventSurveyCompleted, userID.String(), map[string]interface{}{
		"user_id":       userID.String(),
		"survey_id":     surveyID,
		"response_id":   responseID,
		"reward_status": rewardStatus,
	})
}
