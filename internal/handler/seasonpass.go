package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/snowfest/platform/internal/auth"
	"github.com/snowfest/platform/internal/domain"
	"github.com/snowfest/platform/internal/seasonpass"
)

// SeasonPassHandler handles season-pass endpoints.
type SeasonPassHandler struct {
	engine *seasonpass.Engine
}

// NewSeasonPassHandler creates a new SeasonPassHandler.
func NewSeasonPassHandler(engine *seasonpass.Engine) *SeasonPassHandler {
	return &SeasonPassHandler{engine: engine}
}

// GetSeason handles GET /season-pass/season — the active season config.
func (h *SeasonPassHandler) GetSeason(w http.ResponseWriter, r *http.Request) {
	season, err := h.engine.CurrentSeason(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, season)
}

// GetStatus handles GET /season-pass/status — the caller's progression view.
func (h *SeasonPassHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	status, err := h.engine.GetStatus(r.Context(), userID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, status)
}

type stampRequest struct {
	SourceFeatureType string `json:"source_feature_type"`
	XPBonus           int    `json:"xp_bonus"`
}

// Stamp handles POST /season-pass/stamp — records today's daily stamp.
func (h *SeasonPassHandler) Stamp(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	var req stampRequest
	_ = DecodeJSON(r, &req) // body is optional; source defaults below
	if req.SourceFeatureType == "" {
		req.SourceFeatureType = "SEASON_PASS"
	}

	result, err := h.engine.Stamp(r.Context(), userID, req.SourceFeatureType, req.XPBonus)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

// Claim handles POST /season-pass/levels/{level}/claim.
func (h *SeasonPassHandler) Claim(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r)
	if err != nil {
		RespondError(w, err)
		return
	}

	level, err := strconv.Atoi(chi.URLParam(r, "level"))
	if err != nil || level < 1 {
		RespondError(w, domain.ErrValidation("invalid level"))
		return
	}

	claimed, err := h.engine.Claim(r.Context(), userID, level)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, claimed)
}

// userIDFromContext pulls the authenticated user out of the request.
func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	id := auth.UserIDFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, domain.ErrUnauthorized("no authenticated user")
	}
	return id, nil
}
