package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventRewardGranted   EventType = "fest.reward.granted"
	EventSeasonStamped   EventType = "fest.seasonpass.stamped"
	EventLevelClaimed    EventType = "fest.seasonpass.level.claimed"
	EventSurveyCompleted EventType = "fest.survey.response.completed"
	EventSurveyTriggered EventType = "fest.survey.response.triggered"
	EventWalletRevoked   EventType = "fest.wallet.revoked"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateWallet     AggregateType = "wallet"
	AggregateSeasonPass AggregateType = "seasonpass"
	AggregateSurvey     AggregateType = "survey"
)

// OutboxDraft is the payload written to the event_outbox table. The
// aggregate ID doubles as the Kafka partition key, so all events for one
// user stay ordered.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}
