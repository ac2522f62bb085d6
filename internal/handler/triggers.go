package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/survey"
)

// TriggerHandler handles internal trigger hooks called by other game
// services after a round settles. Matching runs synchronously but the
// response never carries matcher failures; the gameplay call must not
// depend on survey plumbing.
type TriggerHandler struct {
	matcher *survey.Matcher
}

// NewTriggerHandler creates a new TriggerHandler.
func NewTriggerHandler(matcher *survey.Matcher) *TriggerHandler {
	return &TriggerHandler{matcher: matcher}
}

type gameResultRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	FeatureType string    `json:"feature_type"`
	Result      string    `json:"result"`
}

// GameResult handles POST /internal/triggers/game-result.
func (h *TriggerHandler) GameResult(w http.ResponseWriter, r *http.Request) {
	var req gameResultRequest
	if err := DecodeJSON(r, &req); err != nil || req.UserID == uuid.Nil || req.FeatureType == "" {
		RespondError(w, domain.ErrValidation("user_id and feature_type are required"))
		return
	}

	h.matcher.HandleGameResult(r.Context(), req.UserID, req.FeatureType, req.Result)
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
