package survey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/repository"
	"github.com/snowfest/platform/internal/reward"
)

// RewardAdapter bridges survey reward_json configs onto the reward
// delivery service, driving the per-response reward state machine:
// NONE/FAILED -> SCHEDULED -> GRANTED | FAILED. Each transition is
// committed on its own so a crash between SCHEDULED and GRANTED leaves
// evidence.
type RewardAdapter struct {
	db        repository.DB
	responses repository.SurveyResponseRepository
	deliverer reward.Deliverer
	logger    *slog.Logger
}

// NewRewardAdapter creates a survey reward adapter.
func NewRewardAdapter(db repository.DB, responses repository.SurveyResponseRepository, deliverer reward.Deliverer, logger *slog.Logger) *RewardAdapter {
	return &RewardAdapter{db: db, responses: responses, deliverer: deliverer, logger: logger}
}

// Apply delivers the survey's configured reward for a completed response.
// Returns (granted, toast). Safe to re-enter: a prior GRANTED
// short-circuits to success, a SCHEDULED delivery is presumed in flight
// and is never re-attempted here, and the NONE/FAILED -> SCHEDULED
// transition is conditional at the storage layer, so concurrent
// applications grant at most once.
func (a *RewardAdapter) Apply(ctx context.Context, resp *domain.SurveyResponse, survey *domain.Survey) (bool, string, error) {
	cfg := domain.ParseRewardConfig(survey.RewardJSON)

	if resp.RewardStatus == domain.RewardGranted {
		return true, cfg.Toast(), nil
	}
	if resp.RewardStatus == domain.RewardScheduled {
		return false, "", nil
	}

	if cfg.Empty() {
		if resp.RewardStatus != domain.RewardNone {
			if err := a.responses.SetRewardStatus(ctx, a.db, resp.ID, domain.RewardNone, nil); err != nil {
				return false, "", err
			}
		}
		return false, "", nil
	}

	scheduled, err := a.responses.ScheduleReward(ctx, a.db, resp.ID)
	if err != nil {
		return false, "", err
	}
	if !scheduled {
		// A concurrent application moved the row first; its delivery owns
		// the grant.
		return false, "", nil
	}

	delivery, err := a.deliverInTx(ctx, resp, cfg)
	if err != nil {
		a.logger.Error("survey reward delivery failed",
			"response_id", resp.ID, "user_id", resp.UserID, "reward_type", cfg.RewardType, "error", err)
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		if serr := a.responses.SetRewardStatus(ctx, a.db, resp.ID, domain.RewardFailed, payload); serr != nil {
			return false, "", serr
		}
		return false, "", nil
	}

	if !delivery.Granted {
		// Config named a reward type the wallet doesn't know. Not a
		// failure; there is just nothing to hand out.
		if err := a.responses.SetRewardStatus(ctx, a.db, resp.ID, domain.RewardNone, nil); err != nil {
			return false, "", err
		}
		return false, "", nil
	}

	a.logger.Info("survey reward granted",
		"response_id", resp.ID, "user_id", resp.UserID,
		"token_type", delivery.TokenType, "amount", delivery.Amount)

	return true, cfg.Toast(), nil
}

// deliverInTx grants the tokens and flips the status to GRANTED in one
// transaction, so a granted wallet write always carries its marker.
func (a *RewardAdapter) deliverInTx(ctx context.Context, resp *domain.SurveyResponse, cfg domain.RewardConfig) (*reward.Delivery, error) {
	tx, err := a.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reward tx: %w", err)
	}
	defer tx.Rollback(ctx)

	delivery, err := a.deliverer.Deliver(ctx, tx, resp.UserID, cfg.RewardType, cfg.Amount, map[string]interface{}{
		"survey_id":   resp.SurveyID,
		"response_id": resp.ID,
	})
	if err != nil {
		return nil, err
	}

	if delivery.Granted {
		payload, _ := json.Marshal(map[string]interface{}{
			"token_type": delivery.TokenType,
			"amount":     delivery.Amount,
			"balance":    delivery.NewBalance,
		})
		if err := a.responses.SetRewardStatus(ctx, tx, resp.ID, domain.RewardGranted, payload); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reward tx: %w", err)
	}

	return delivery, nil
}
