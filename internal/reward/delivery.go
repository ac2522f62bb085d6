// Package reward implements the central reward delivery service. Every
// feature that grants tokens (season pass, surveys, game payouts) goes
// through Deliver so wallet writes and granted events stay in one place.
package reward

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/repository"
)

// Deliverer grants a reward to a user's wallet. Callers never treat a
// delivery as a wallet write: unknown reward types and zero amounts are
// valid no-ops, not errors.
type Deliverer interface {
	Deliver(ctx context.Context, db repository.DBTX, userID uuid.UUID, rewardType string, amount int64, meta map[string]interface{}) (*Delivery, error)
}

// Delivery describes the outcome of one delivery request.
type Delivery struct {
	Granted    bool             `json:"granted"`
	TokenType  domain.TokenType `json:"token_type,omitempty"`
	Amount     int64            `json:"amount"`
	NewBalance int64            `json:"new_balance"`
}

// Service is the production Deliverer backed by the wallet and outbox
// repositories. It runs against whatever DBTX the caller hands it, so a
// delivery can join the caller's transaction.
type Service struct {
	wallets repository.WalletRepository
	outbox  repository.OutboxRepository
	logger  *slog.Logger
}

// NewService creates a reward delivery service.
func NewService(wallets repository.WalletRepository, outbox repository.OutboxRepository, logger *slog.Logger) *Service {
	return &Service{wallets: wallets, outbox: outbox, logger: logger}
}

// Deliver grants amount tokens of rewardType to the user. A zero or
// negative amount, or a reward type that does not map to a wallet token,
// is skipped without error so config-driven callers need no pre-checks.
// Per-call atomicity only: callers needing call-level idempotency must
// carry their own guard (reward logs, reward status) in the same
// transaction.
func (s *Service) Deliver(ctx context.Context, db repository.DBTX, userID uuid.UUID, rewardType string, amount int64, meta map[string]interface{}) (*Delivery, error) {
	if amount <= 0 {
		s.logger.Debug("reward delivery skipped", "user_id", userID, "reward_type", rewardType, "amount", amount, "reason", "non_positive_amount")
		return &Delivery{Granted: false, Amount: amount}, nil
	}

	tokenType, ok := domain.ParseTokenType(rewardType)
	if !ok {
		s.logger.Warn("reward delivery skipped", "user_id", userID, "reward_type", rewardType, "reason", "unrecognized_reward_type")
		return &Delivery{Granted: false, Amount: amount}, nil
	}

	balance, err := s.wallets.Grant(ctx, db, userID, tokenType, amount)
	if err != nil {
		return nil, err
	}

	evt := domain.NewRewardGrantedEvent(userID, tokenType, amount, balance, meta)
	if err := s.outbox.Insert(ctx, db, evt); err != nil {
		return nil, err
	}

	s.logger.Info("reward delivered", "user_id", userID, "token_type", tokenType, "amount", amount, "balance", balance)
	return &Delivery{Granted: true, TokenType: tokenType, Amount: amount, NewBalance: balance}, nil
}
