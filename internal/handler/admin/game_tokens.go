package admin

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/handler"
	"github.com/snowfest/platform/internal/repository"
)

// GameTokenHandler handles admin wallet management: direct grants,
// revokes and balance inspection.
type GameTokenHandler struct {
	pool    repository.DB
	wallets repository.WalletRepository
	outbox  repository.OutboxRepository
}

// NewGameTokenHandler creates a new GameTokenHandler.
func NewGameTokenHandler(pool repository.DB, wallets repository.WalletRepository, outbox repository.OutboxRepository) *GameTokenHandler {
	return &GameTokenHandler{pool: pool, wallets: wallets, outbox: outbox}
}

type tokenMutationRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	TokenType string    `json:"token_type"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason,omitempty"`
}

func (req tokenMutationRequest) validate() (domain.TokenType, error) {
	if req.UserID == uuid.Nil {
		return "", domain.ErrValidation("user_id is required")
	}
	tokenType, ok := domain.ParseTokenType(req.TokenType)
	if !ok {
		return "", domain.ErrValidation(fmt.Sprintf("unknown token_type %q", req.TokenType))
	}
	if req.Amount <= 0 {
		return "", domain.ErrValidation("amount must be positive")
	}
	return tokenType, nil
}

// Grant handles POST /admin/game-tokens/grant.
func (h *GameTokenHandler) Grant(w http.ResponseWriter, r *http.Request) {
	var req tokenMutationRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	tokenType, err := req.validate()
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("begin grant tx", err))
		return
	}
	defer tx.Rollback(r.Context())

	balance, err := h.wallets.Grant(r.Context(), tx, req.UserID, tokenType, req.Amount)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	evt := domain.NewRewardGrantedEvent(req.UserID, tokenType, req.Amount, balance, map[string]interface{}{
		"source": "ADMIN_GRANT",
		"reason": req.Reason,
	})
	if err := h.outbox.Insert(r.Context(), tx, evt); err != nil {
		handler.RespondError(w, domain.ErrInternal("record grant event", err))
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		handler.RespondError(w, domain.ErrInternal("commit grant tx", err))
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    req.UserID,
		"token_type": tokenType,
		"balance":    balance,
	})
}

// Revoke handles POST /admin/game-tokens/revoke.
func (h *GameTokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req tokenMutationRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	tokenType, err := req.validate()
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		handler.RespondError(w, domain.ErrInternal("begin revoke tx", err))
		return
	}
	defer tx.Rollback(r.Context())

	balance, err := h.wallets.Revoke(r.Context(), tx, req.UserID, tokenType, req.Amount)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	evt := domain.NewWalletRevokedEvent(req.UserID, tokenType, req.Amount, balance)
	if err := h.outbox.Insert(r.Context(), tx, evt); err != nil {
		handler.RespondError(w, domain.ErrInternal("record revoke event", err))
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		handler.RespondError(w, domain.ErrInternal("commit revoke tx", err))
		return
	}

	handler.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":    req.UserID,
		"token_type": tokenType,
		"balance":    balance,
	})
}

// ListWallets handles GET /admin/game-tokens/wallets?user_id=...
func (h *GameTokenHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	var userID *uuid.UUID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.RespondError(w, domain.ErrValidation("invalid user_id"))
			return
		}
		userID = &id
	}

	wallets, err := h.wallets.ListWallets(r.Context(), h.pool, userID)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, wallets)
}
